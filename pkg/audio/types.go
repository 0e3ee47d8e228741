package audio

import (
	"math"
	"time"
)

// Frame is a fixed-size block of captured audio. Frames are the unit handed
// from a [Source] to the trigger evaluator; they are discarded after
// evaluation unless retained in a recording buffer.
type Frame struct {
	// Samples holds interleaved float32 samples normalised to [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for speech capture).
	SampleRate int

	// Channels: 1 for mono. Interleaved when greater than one.
	Channels int
}

// Peak returns the largest absolute sample value in the frame.
func (f Frame) Peak() float64 {
	return Peak(f.Samples)
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate, f.Channels)
}

// Peak returns the largest absolute value in samples, or 0 for an empty slice.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return peak
}

// SamplesDuration converts an interleaved sample count to a duration.
func SamplesDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	if channels <= 0 {
		channels = 1
	}
	return time.Duration(n/channels) * time.Second / time.Duration(sampleRate)
}

// SamplesFor returns the interleaved sample count covering d.
func SamplesFor(d time.Duration, sampleRate, channels int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	if channels <= 0 {
		channels = 1
	}
	return int(d*time.Duration(sampleRate)/time.Second) * channels
}
