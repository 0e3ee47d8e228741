// Package process implements audio capture and playback by spawning external
// programs: ffmpeg (or arecord) for capture, aplay for playback and amixer
// for hardware volume. It is the fallback for hosts where PortAudio is not
// available and the natural fit for ALSA-only embedded boards.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/tapvox/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// startupGrace is how long a freshly spawned capture process must survive
// before it is considered started.
const startupGrace = 250 * time.Millisecond

// CaptureConfig describes an ffmpeg capture process.
type CaptureConfig struct {
	// Command is the ffmpeg binary. Defaults to "ffmpeg".
	Command string

	// InputFormat is the ffmpeg input driver ("alsa", "pulse", ...). Defaults
	// to "alsa".
	InputFormat string

	// Device is the driver-specific input name. Defaults to "default".
	Device string

	SampleRate int
	Channels   int

	// FrameSize is the number of samples per channel per frame.
	FrameSize int
}

// Source reads s16le PCM from an ffmpeg child process and converts it to
// float32 frames.
type Source struct {
	cfg    CaptureConfig
	stdout io.ReadCloser
	stderr *bytes.Buffer
	proc   *os.Process
	wait   <-chan error
	buf    []byte

	stopOnce sync.Once
	stopErr  error
}

// StartCapture spawns the capture process and waits briefly to make sure it
// did not exit immediately (missing device, bad driver).
func StartCapture(ctx context.Context, cfg CaptureConfig) (*Source, error) {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "alsa"
	}
	if cfg.Device == "" {
		cfg.Device = "default"
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("process: invalid capture format %d Hz, %d ch, %d frames", cfg.SampleRate, cfg.Channels, cfg.FrameSize)
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.Device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
	cmd := Command(ctx, cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("process: capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", cfg.Command, err)
	}

	wait := make(chan error, 1)
	go func() {
		wait <- cmd.Wait()
		close(wait)
	}()

	select {
	case err := <-wait:
		if err != nil {
			return nil, fmt.Errorf("process: %s exited before capture started: %w: %s", cfg.Command, err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("process: %s exited before capture started", cfg.Command)
	case <-time.After(startupGrace):
	}

	return &Source{
		cfg:    cfg,
		stdout: stdout,
		stderr: &stderr,
		proc:   cmd.Process,
		wait:   wait,
		buf:    make([]byte, cfg.FrameSize*cfg.Channels*2),
	}, nil
}

// Read implements [audio.Source]. It blocks until a full frame of PCM has
// been read from the child process.
func (s *Source) Read(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	if _, err := io.ReadFull(s.stdout, s.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return audio.Frame{}, err
	}
	return audio.Frame{
		Samples:    audio.PCM16ToFloat(s.buf),
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
	}, nil
}

// Close implements [audio.Source]. The child is interrupted first and
// killed if it has not exited within a short timeout.
func (s *Source) Close() error {
	s.stopOnce.Do(func() {
		_ = interruptGroup(s.proc)

		select {
		case err, ok := <-s.wait:
			if ok {
				s.stopErr = normalizeExit(err)
			}
		case <-time.After(1200 * time.Millisecond):
			_ = killGroup(s.proc)
			if err, ok := <-s.wait; ok {
				s.stopErr = normalizeExit(err)
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.stopErr
}

// normalizeExit treats a non-zero exit status after an interrupt as a clean
// stop.
func normalizeExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
