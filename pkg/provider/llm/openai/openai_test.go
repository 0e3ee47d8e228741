package openai

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/tapvox/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()
	sys, err := convertMessage(llm.Message{Role: llm.RoleSystem, Content: "s"})
	if err != nil || sys.OfSystem == nil {
		t.Errorf("system: OfSystem not set (err=%v)", err)
	}
	usr, err := convertMessage(llm.Message{Role: llm.RoleUser, Content: "u"})
	if err != nil || usr.OfUser == nil {
		t.Errorf("user: OfUser not set (err=%v)", err)
	}
	asst, err := convertMessage(llm.Message{Role: llm.RoleAssistant, Content: "a"})
	if err != nil || asst.OfAssistant == nil {
		t.Errorf("assistant: OfAssistant not set (err=%v)", err)
	}
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		key     string
		model   string
		opts    []Option
		wantErr bool
	}{
		{"hosted", "sk-test", "gpt-4o-mini", nil, false},
		{"self-hosted without key", "", "qwen2.5", []Option{WithBaseURL("http://localhost:8000/v1/")}, false},
		{"no key no base url", "", "gpt-4o-mini", nil, true},
		{"no model", "sk-test", "", nil, true},
		{"all options", "sk-test", "m", []Option{WithOrganization("org-1"), WithHeader("X-Api-Key", "k")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.key, tt.model, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// sseServer replays events as a chat completion stream. When headers is
// non-nil, each request's headers are sent on it.
func sseServer(t *testing.T, events []string, headers chan<- http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if headers != nil {
			headers <- r.Header.Clone()
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func delta(content, finish string) string {
	fr := "null"
	if finish != "" {
		fr = fmt.Sprintf("%q", finish)
	}
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":0,"model":"m","choices":[{"index":0,"delta":{"content":%q},"finish_reason":%s}]}`, content, fr)
}

func TestStreamCompletion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		events     []string
		wantText   string
		wantChunks int
	}{
		{
			name:       "fragments then stop",
			events:     []string{delta("Hola", ""), delta(", bien.", ""), delta("", "stop")},
			wantText:   "Hola, bien.",
			wantChunks: 3,
		},
		{
			name:       "empty deltas dropped",
			events:     []string{delta("", ""), delta("Vale.", ""), delta("", ""), delta("", "stop")},
			wantText:   "Vale.",
			wantChunks: 2,
		},
		{
			name:       "missing finish reason",
			events:     []string{delta("Sí.", "")},
			wantText:   "Sí.",
			wantChunks: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := sseServer(t, tt.events, nil)
			p, err := New("sk-test", "m", WithBaseURL(srv.URL+"/v1/"))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			ch, err := p.StreamCompletion(t.Context(), llm.CompletionRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hola"}},
			})
			if err != nil {
				t.Fatalf("StreamCompletion: %v", err)
			}

			var text strings.Builder
			var chunks []llm.Chunk
			for c := range ch {
				if c.FinishReason == llm.FinishReasonError {
					t.Fatalf("stream error: %s", c.Text)
				}
				text.WriteString(c.Text)
				chunks = append(chunks, c)
			}
			if text.String() != tt.wantText {
				t.Errorf("text = %q, want %q", text.String(), tt.wantText)
			}
			if len(chunks) != tt.wantChunks {
				t.Errorf("got %d chunks, want %d", len(chunks), tt.wantChunks)
			}
			if last := chunks[len(chunks)-1]; last.FinishReason != "stop" {
				t.Errorf("last finish reason = %q, want stop", last.FinishReason)
			}
		})
	}
}

func TestStreamCompletion_SelfHostedHeaders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-real-secret")
	headers := make(chan http.Header, 4)
	srv := sseServer(t, []string{delta("Ok", "stop")}, headers)

	p, err := New("", "m", WithBaseURL(srv.URL+"/v1/"), WithHeader("X-Gateway", "tapvox"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.StreamCompletion(t.Context(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	for range ch {
	}

	got := <-headers
	if strings.Contains(got.Get("Authorization"), "sk-real-secret") {
		t.Error("environment API key sent to a self-hosted server")
	}
	if got.Get("X-Gateway") != "tapvox" {
		t.Errorf("X-Gateway = %q, want tapvox", got.Get("X-Gateway"))
	}
}

func TestStreamCompletion_NoMessages(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", "m")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.StreamCompletion(t.Context(), llm.CompletionRequest{}); err == nil {
		t.Error("empty request accepted")
	}
}
