// Package wav reads and writes 16-bit PCM RIFF/WAVE data.
//
// Only the subset tapvox needs is supported: uncompressed 16-bit integer PCM
// with any channel count. Unknown chunks (LIST, fact, ...) are skipped.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/MrWong99/tapvox/pkg/audio"
)

const (
	headerSize    = 44
	bitsPerSample = 16
	formatPCM     = 1
)

// Clip is a decoded WAV file.
type Clip struct {
	// Samples holds interleaved float32 samples normalised to [-1, 1].
	Samples    []float32
	SampleRate int
	Channels   int
}

// EncodePCM wraps raw 16-bit little-endian PCM in a canonical 44-byte WAV
// header.
func EncodePCM(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, headerSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// Encode converts float32 samples to 16-bit PCM and wraps them in a WAV header.
func Encode(samples []float32, sampleRate, channels int) []byte {
	return EncodePCM(audio.FloatToPCM16(samples), sampleRate, channels)
}

// Decode parses a WAV byte slice. The fmt chunk must declare 16-bit PCM.
func Decode(data []byte) (Clip, error) {
	pcm, rate, channels, err := DecodePCM(data)
	if err != nil {
		return Clip{}, err
	}
	return Clip{
		Samples:    audio.PCM16ToFloat(pcm),
		SampleRate: rate,
		Channels:   channels,
	}, nil
}

// DecodePCM parses a WAV byte slice and returns the raw 16-bit PCM payload.
func DecodePCM(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 12 {
		return nil, 0, 0, errors.New("wav: data too short to be a RIFF file")
	}
	if string(data[0:4]) != "RIFF" {
		return nil, 0, 0, errors.New("wav: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return nil, 0, 0, errors.New("wav: missing WAVE identifier")
	}

	foundFmt := false
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, 0, 0, errors.New("wav: truncated fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != formatPCM || bits != bitsPerSample {
				return nil, 0, 0, fmt.Errorf("wav: unsupported encoding (format %d, %d bits)", format, bits)
			}
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, 0, 0, errors.New("wav: data chunk before fmt chunk")
			}
			end := body + size
			if end > len(data) {
				end = len(data)
			}
			return data[body:end], sampleRate, channels, nil
		}

		// Chunks are word-aligned.
		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return nil, 0, 0, errors.New("wav: missing data chunk")
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("wav: %w", err)
	}
	clip, err := Decode(data)
	if err != nil {
		return Clip{}, fmt.Errorf("%w (%s)", err, path)
	}
	return clip, nil
}

// WriteFile encodes samples and writes them to path, replacing any existing
// file.
func WriteFile(path string, samples []float32, sampleRate, channels int) error {
	if err := os.WriteFile(path, Encode(samples, sampleRate, channels), 0o644); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	return nil
}
