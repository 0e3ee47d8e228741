package audio

import (
	"encoding/binary"
	"math"
)

// PCM16ToFloat converts 16-bit signed little-endian PCM to float32 samples
// normalised to [-1, 1]. A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// FloatToPCM16 converts float32 samples to 16-bit signed little-endian PCM,
// clamping values outside [-1, 1].
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := float64(s) * 32767.0
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// ToMono averages interleaved channels into a single channel. If channels is
// 1 or less the input is returned unchanged.
func ToMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Scale multiplies every sample by gain in place, clamping to [-1, 1], and
// returns samples for chaining.
func Scale(samples []float32, gain float64) []float32 {
	if gain == 1 {
		return samples
	}
	for i, s := range samples {
		v := float64(s) * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = float32(v)
	}
	return samples
}
