// Package audio defines the capture and playback abstractions used by tapvox
// together with small helpers for converting between PCM representations.
//
// The two primary abstractions are:
//
//   - [Source]: an input device delivering fixed-size [Frame] values for the
//     lifetime of the process.
//   - [Player]: an output device that plays a block of samples synchronously.
//
// Implementations live in adapter packages (audio/portaudio for in-process
// device access, audio/process for ffmpeg/aplay). The interfaces are narrow so
// the dialogue loop never depends on the device mechanism.
package audio

import "context"

// Source is a continuous audio input stream.
//
// Implementations need not be safe for concurrent Read calls; a single
// capture goroutine owns the source.
type Source interface {
	// Read blocks until the next frame is available. Returns ctx.Err() when
	// ctx is cancelled and io.EOF when the underlying stream ended.
	Read(ctx context.Context) (Frame, error)

	// Close stops the stream and releases the device. Calling Close more than
	// once is safe.
	Close() error
}

// Player plays audio to an output device.
//
// Implementations must be safe for concurrent use; calls are serialised
// internally so two Play calls never overlap on the device.
type Player interface {
	// Play blocks until samples finished playing or ctx is cancelled. The
	// samples are interleaved float32 in [-1, 1] at the given rate and channel
	// count. Cancelling ctx stops playback early and returns ctx.Err().
	Play(ctx context.Context, samples []float32, sampleRate, channels int) error

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}
