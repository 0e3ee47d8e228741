package resilience

import (
	"context"

	"github.com/MrWong99/tapvox/pkg/provider/llm"
	"github.com/MrWong99/tapvox/pkg/provider/stt"
	"github.com/MrWong99/tapvox/pkg/provider/tts"
)

var (
	_ llm.Provider = (*LLMFallback)(nil)
	_ stt.Provider = (*STTFallback)(nil)
	_ tts.Provider = (*TTSFallback)(nil)
)

// LLMFallback is an llm.Provider that fails over along its group.
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{NewFallbackGroup(primary, name, cfg)}
}

func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion fails over only while opening the stream. Once a backend
// has started streaming, its error chunks reach the caller unchanged.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// STTFallback is an stt.Provider that fails over along its group.
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

func NewSTTFallback(primary stt.Provider, name string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{NewFallbackGroup(primary, name, cfg)}
}

func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// TTSFallback is a tts.Provider that fails over along its group.
type TTSFallback struct {
	*FallbackGroup[tts.Provider]
}

func NewTTSFallback(primary tts.Provider, name string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{NewFallbackGroup(primary, name, cfg)}
}

func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(p tts.Provider) (tts.Audio, error) {
		return p.Synthesize(ctx, text, voice)
	})
}
