package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/tapvox/pkg/provider/llm"
	llmmock "github.com/MrWong99/tapvox/pkg/provider/llm/mock"
	"github.com/MrWong99/tapvox/pkg/provider/stt"
	sttmock "github.com/MrWong99/tapvox/pkg/provider/stt/mock"
	"github.com/MrWong99/tapvox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/tapvox/pkg/provider/tts/mock"
)

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		primaryErr error
		want       string
		wantCalls  [2]int
	}{
		{name: "primary ok", want: "primary", wantCalls: [2]int{1, 0}},
		{name: "failover", primaryErr: errors.New("down"), want: "secondary", wantCalls: [2]int{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			primary := &llmmock.Provider{
				CompleteResponse: &llm.CompletionResponse{Content: "primary"},
				CompleteErr:      tt.primaryErr,
			}
			secondary := &llmmock.Provider{
				CompleteResponse: &llm.CompletionResponse{Content: "secondary"},
			}
			fb := NewLLMFallback(primary, "primary", FallbackConfig{})
			fb.AddFallback("secondary", secondary)

			resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Content != tt.want {
				t.Errorf("content = %q, want %q", resp.Content, tt.want)
			}
			if got := [2]int{len(primary.CompleteCalls), len(secondary.CompleteCalls)}; got != tt.wantCalls {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestLLMFallback_StreamCompletionFailover(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{StreamErr: errors.New("connection refused")}
	secondary := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "Hola."}, {FinishReason: "stop"}}}
	fb := NewLLMFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	ch, err := fb.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var text string
	for c := range ch {
		text += c.Text
	}
	if text != "Hola." {
		t.Errorf("text = %q, want %q", text, "Hola.")
	}
	if len(fb.States()) != 2 {
		t.Errorf("States() has %d entries, want 2", len(fb.States()))
	}
}

func TestSTTFallback_Transcribe(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errors.New("whisper offline")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "qué hora es"}}
	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("deepgram", secondary)

	got, err := fb.Transcribe(context.Background(), stt.Request{Samples: []float32{0.1}, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "qué hora es" {
		t.Errorf("text = %q, want %q", got.Text, "qué hora es")
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
}

func TestTTSFallback_Synthesize(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{Err: errors.New("quota exceeded")}
	secondary := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
	fb.AddFallback("coqui", secondary)

	audio, err := fb.Synthesize(context.Background(), "Hola.", tts.Voice{ID: "es"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audio.Samples) == 0 {
		t.Error("expected samples from the fallback")
	}
	if got := secondary.Texts(); len(got) != 1 || got[0] != "Hola." {
		t.Errorf("fallback texts = %v, want [Hola.]", got)
	}
}

func TestTTSFallback_AllFailed(t *testing.T) {
	t.Parallel()

	fb := NewTTSFallback(&ttsmock.Provider{Err: errTest}, "only", FallbackConfig{})
	_, err := fb.Synthesize(context.Background(), "x", tts.Voice{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
