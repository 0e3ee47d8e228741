package whisper

// NativeProvider needs libwhisper.a and whisper.h at build time, found through
// LIBRARY_PATH and C_INCLUDE_PATH.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/tapvox/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider runs whisper.cpp in-process. The model is loaded once and
// every utterance gets its own inference context.
type NativeProvider struct {
	language string
	threads  uint

	// One inference at a time: on a Raspberry Pi a second concurrent run
	// only slows both down.
	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption configures a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language code ("es", "en", ...).
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads caps the CPU threads used per inference. Zero keeps
// whisper.cpp's own default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative loads the ggml model at modelPath. Call Close to free it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	p := &NativeProvider{language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	m, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load %q: %w", modelPath, err)
	}
	p.model = m
	return p, nil
}

// Close frees the model.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe implements stt.Provider. whisper.cpp cannot be interrupted, so
// ctx is only checked before inference starts.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	samples, err := prepare(req)
	if err != nil || len(samples) == 0 {
		return stt.Transcript{}, err
	}
	lang := orDefault(req.Language, p.language)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}

	wc, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wc.SetLanguage(lang); err != nil {
		slog.Warn("whisper: language rejected, model default used", "language", lang, "err", err)
	}
	if p.threads > 0 {
		wc.SetThreads(p.threads)
	}
	if err := wc.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: inference: %w", err)
	}

	text, err := collect(wc)
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{Text: text, Language: lang}, nil
}

// collect joins the non-blank segments produced by the last Process call.
func collect(wc whisperlib.Context) (string, error) {
	var b strings.Builder
	for {
		seg, err := wc.NextSegment()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		t := strings.TrimSpace(seg.Text)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
