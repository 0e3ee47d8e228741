// Package tts defines the Provider interface for Text-to-Speech backends.
//
// tapvox speaks one phrase at a time: the speech worker hands a provider a
// short, already-segmented piece of text and plays the returned clip before
// moving on. The interface is therefore batch shaped rather than streaming.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"time"
)

// Voice selects how a phrase is spoken.
type Voice struct {
	// ID is the provider-specific voice identifier (speaker name, voice id,
	// speaker wav path). Empty selects the provider default.
	ID string

	// Language is the BCP-47 language tag (e.g., "es"). Empty selects the
	// provider default.
	Language string

	// Speed adjusts the speaking rate where supported (1.0 = default, 0 = unset).
	Speed float64
}

// Audio is a synthesised clip.
type Audio struct {
	// Samples holds interleaved float32 samples normalised to [-1, 1].
	Samples []float32

	// SampleRate in Hz, as produced by the backend.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int
}

// Duration returns the playback length of the clip.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	ch := max(a.Channels, 1)
	return time.Duration(len(a.Samples)/ch) * time.Second / time.Duration(a.SampleRate)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text into a clip. Returns an error if the backend
	// cannot be reached, rejects the request, or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice Voice) (Audio, error)
}
