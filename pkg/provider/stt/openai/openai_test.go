package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/tapvox/pkg/audio/wav"
	"github.com/MrWong99/tapvox/pkg/provider/stt"
)

type capture struct {
	mu       sync.Mutex
	path     string
	model    string
	language string
	clip     wav.Clip
}

func newServer(t *testing.T, c *capture, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		c.mu.Lock()
		c.path = r.URL.Path
		c.model = r.FormValue("model")
		c.language = r.FormValue("language")
		if f, _, err := r.FormFile("file"); err == nil {
			data, _ := io.ReadAll(f)
			c.clip, _ = wav.Decode(data)
		}
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
}

func TestTranscribe_UploadsWAV(t *testing.T) {
	t.Parallel()

	c := &capture{}
	srv := newServer(t, c, http.StatusOK, `{"text":"  Hola, ¿cómo estás?  "}`)
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL), WithLanguage("es"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := p.Transcribe(context.Background(), stt.Request{
		Samples:    []float32{0.1, 0.3, -0.2, -0.4},
		SampleRate: 16000,
		Channels:   2,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "Hola, ¿cómo estás?" {
		t.Errorf("text: got %q", tr.Text)
	}
	if tr.Language != "es" {
		t.Errorf("language: got %q", tr.Language)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "/audio/transcriptions" {
		t.Errorf("path: got %q", c.path)
	}
	if c.model != "whisper-1" {
		t.Errorf("model: got %q", c.model)
	}
	if c.language != "es" {
		t.Errorf("language field: got %q", c.language)
	}
	if c.clip.Channels != 1 || len(c.clip.Samples) != 2 {
		t.Errorf("expected mono upload with 2 samples, got %d channels / %d samples", c.clip.Channels, len(c.clip.Samples))
	}
}

func TestTranscribe_EmptyAudioSkipsServer(t *testing.T) {
	t.Parallel()

	c := &capture{}
	srv := newServer(t, c, http.StatusOK, `{"text":"x"}`)
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), stt.Request{SampleRate: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("expected empty text, got %q", tr.Text)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "" {
		t.Error("server should not have been called")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &capture{}, http.StatusBadRequest, `{"error":{"message":"bad audio"}}`)
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Transcribe(context.Background(), stt.Request{Samples: []float32{0.1}, SampleRate: 16000, Channels: 1})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}
