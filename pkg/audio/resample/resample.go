// Package resample converts float32 audio between sample rates using the
// pure-Go polyphase resampler from go-audio-resampling.
package resample

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Convert resamples interleaved samples from srcRate to dstRate. When the
// rates match, samples is returned unchanged.
func Convert(samples []float32, channels, srcRate, dstRate int) ([]float32, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rates %d -> %d", srcRate, dstRate)
	}
	if channels <= 0 {
		channels = 1
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resample: create resampler: %w", err)
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample: process: %w", err)
	}

	res := make([]float32, len(out))
	for i, s := range out {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		res[i] = float32(s)
	}
	return res, nil
}
