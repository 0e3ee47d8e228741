// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider turns a finalized utterance (a contiguous block of audio
// recorded between two triggers) into best-effort text. tapvox only ever
// transcribes complete utterances, so the interface is batch shaped: one
// request in, one transcript out.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Request is a finalized utterance ready for transcription.
type Request struct {
	// Samples holds interleaved float32 samples normalised to [-1, 1].
	Samples []float32

	// SampleRate in Hz. Providers resample when their backend needs a fixed
	// rate (whisper.cpp requires 16 kHz).
	SampleRate int

	// Channels is the interleaved channel count; 0 is treated as mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "es", "en").
	// An empty string selects the provider default.
	Language string
}

// Duration returns the length of the audio in the request.
func (r Request) Duration() time.Duration {
	ch := r.Channels
	if ch <= 0 {
		ch = 1
	}
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.Samples)/ch) * time.Second / time.Duration(r.SampleRate)
}

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the transcribed speech. Empty when nothing intelligible was
	// recognised; callers treat that as "no speech detected".
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64

	// Language is the detected or requested language, when known.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts req into text. An empty transcript with a nil error
	// means nothing was recognised. Errors are non-fatal to the caller.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
