// Package portaudio implements [audio.Source] and [audio.Player] on top of the
// PortAudio C library (via github.com/gordonklaus/portaudio).
//
// Devices are selected by a case-insensitive substring of their name, which
// matches how USB interfaces show up on ALSA ("USB PnP Sound Device: Audio
// (hw:1,0)", "Blue Yeti PRO", ...). An empty name selects the host default.
//
// Every Open call initialises PortAudio and every Close terminates it;
// PortAudio reference-counts these calls internally.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/tapvox/pkg/audio"
	"github.com/MrWong99/tapvox/pkg/audio/resample"
)

// Compile-time interface assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Player = (*Player)(nil)
)

// playbackFrames is the PortAudio buffer size used for output streams.
const playbackFrames = 1024

// DeviceNames returns the names of every device PortAudio can see, in index
// order, flagging which ones accept input and output.
func DeviceNames() ([]string, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}
	defer pa.Terminate()

	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	names := make([]string, 0, len(devs))
	for _, d := range devs {
		names = append(names, fmt.Sprintf("%s (in=%d out=%d)", d.Name, d.MaxInputChannels, d.MaxOutputChannels))
	}
	return names, nil
}

// ─── Source ───────────────────────────────────────────────────────────────────

// Source reads fixed-size mono or multi-channel frames from an input device.
type Source struct {
	mu     sync.Mutex
	stream *pa.Stream
	buf    []float32
	rate   int
	chans  int
	closed bool

	overflows   int
	lastOverLog time.Time
}

// OpenSource opens and starts an input stream on the first device whose name
// contains deviceName. frameSize is the number of samples per channel per
// frame.
func OpenSource(deviceName string, sampleRate, channels, frameSize int) (*Source, error) {
	if sampleRate <= 0 || channels <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid capture format %d Hz, %d ch, %d frames", sampleRate, channels, frameSize)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}

	dev, err := findDevice(deviceName, true)
	if err != nil {
		pa.Terminate()
		return nil, err
	}

	params := pa.LowLatencyParameters(dev, nil)
	params.Input.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = frameSize

	buf := make([]float32, frameSize*channels)
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("portaudio: open input %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return nil, fmt.Errorf("portaudio: start input %q: %w", dev.Name, err)
	}

	slog.Info("portaudio input opened",
		"device", dev.Name,
		"sample_rate", sampleRate,
		"channels", channels,
		"frame_size", frameSize,
	)
	return &Source{stream: stream, buf: buf, rate: sampleRate, chans: channels}, nil
}

// Read implements [audio.Source]. It blocks for roughly one frame duration.
// Input overflows are logged (throttled) and the frame is still returned.
func (s *Source) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.Frame{}, errors.New("portaudio: source closed")
	}

	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, pa.InputOverflowed) {
			return audio.Frame{}, fmt.Errorf("portaudio: read: %w", err)
		}
		s.overflows++
		if time.Since(s.lastOverLog) > time.Second {
			slog.Warn("portaudio input overflow", "count", s.overflows)
			s.lastOverLog = time.Now()
		}
	}

	samples := make([]float32, len(s.buf))
	copy(samples, s.buf)
	return audio.Frame{Samples: samples, SampleRate: s.rate, Channels: s.chans}, nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := errors.Join(s.stream.Stop(), s.stream.Close())
	pa.Terminate()
	return err
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player plays sample blocks on an output device. Each Play call opens a
// short-lived stream at the device's native rate, resampling when needed.
type Player struct {
	mu     sync.Mutex
	dev    *pa.DeviceInfo
	rate   int
	closed bool
}

// OpenPlayer resolves the output device whose name contains deviceName. If
// sampleRate is zero the device's default rate is used.
func OpenPlayer(deviceName string, sampleRate int) (*Player, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}
	dev, err := findDevice(deviceName, false)
	if err != nil {
		pa.Terminate()
		return nil, err
	}
	if sampleRate <= 0 {
		sampleRate = int(dev.DefaultSampleRate)
	}
	slog.Info("portaudio output selected", "device", dev.Name, "sample_rate", sampleRate)
	return &Player{dev: dev, rate: sampleRate}, nil
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("portaudio: player closed")
	}
	if len(samples) == 0 {
		return nil
	}

	if channels > p.dev.MaxOutputChannels && p.dev.MaxOutputChannels > 0 {
		samples = audio.ToMono(samples, channels)
		channels = 1
	}
	samples, err := resample.Convert(samples, channels, sampleRate, p.rate)
	if err != nil {
		return fmt.Errorf("portaudio: %w", err)
	}

	params := pa.LowLatencyParameters(nil, p.dev)
	params.Output.Channels = channels
	params.SampleRate = float64(p.rate)
	params.FramesPerBuffer = playbackFrames

	buf := make([]float32, playbackFrames*channels)
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output %q: %w", p.dev.Name, err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output %q: %w", p.dev.Name, err)
	}

	for off := 0; off < len(samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			stream.Abort()
			return err
		}
		n := copy(buf, samples[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			stream.Abort()
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	// Stop blocks until queued buffers have been played.
	return stream.Stop()
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return pa.Terminate()
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func findDevice(name string, input bool) (*pa.DeviceInfo, error) {
	if name == "" {
		if input {
			return pa.DefaultInputDevice()
		}
		return pa.DefaultOutputDevice()
	}
	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	names := make([]string, len(devs))
	usable := make([]bool, len(devs))
	for i, d := range devs {
		names[i] = d.Name
		usable[i] = (input && d.MaxInputChannels > 0) || (!input && d.MaxOutputChannels > 0)
	}
	idx := matchDevice(names, usable, name)
	if idx < 0 {
		dir := "output"
		if input {
			dir = "input"
		}
		return nil, fmt.Errorf("portaudio: no %s device matching %q", dir, name)
	}
	return devs[idx], nil
}

// matchDevice returns the index of the first usable device whose name
// contains substr (case-insensitive), or -1.
func matchDevice(names []string, usable []bool, substr string) int {
	needle := strings.ToLower(substr)
	for i, n := range names {
		if usable[i] && strings.Contains(strings.ToLower(n), needle) {
			return i
		}
	}
	return -1
}
