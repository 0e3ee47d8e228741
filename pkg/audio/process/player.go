package process

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/MrWong99/tapvox/pkg/audio"
	"github.com/MrWong99/tapvox/pkg/audio/wav"
)

// Compile-time interface assertion.
var _ audio.Player = (*Player)(nil)

// Player plays sample blocks by piping a WAV stream into aplay.
type Player struct {
	// Command is the aplay binary. Defaults to "aplay".
	Command string

	// Device is the ALSA PCM name passed with -D (e.g. "plughw:1"). Empty
	// means the ALSA default.
	Device string

	mu sync.Mutex
}

// NewPlayer returns a Player writing to the given ALSA device.
func NewPlayer(device string) *Player {
	return &Player{Command: "aplay", Device: device}
}

// Play implements [audio.Player]. Cancelling ctx kills aplay and anything
// it spawned.
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate, channels int) error {
	if len(samples) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := Command(ctx, p.command(), p.Args()...)
	cmd.Stdin = bytes.NewReader(wav.Encode(samples, sampleRate, channels))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("process: %s: %w: %s", p.command(), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Close implements [audio.Player]. There is nothing to release.
func (p *Player) Close() error { return nil }

// Args returns the aplay arguments for reading a WAV stream from stdin.
func (p *Player) Args() []string {
	args := []string{"-q"}
	if p.Device != "" {
		args = append(args, "-D", p.Device)
	}
	return append(args, "-")
}

func (p *Player) command() string {
	if p.Command == "" {
		return "aplay"
	}
	return p.Command
}

var hwCardRe = regexp.MustCompile(`hw:(\d+)`)

// ALSACard extracts the card number from a device name such as
// "USB PRO Audio (hw:1,0)". It returns false when the name carries no hw:
// reference.
func ALSACard(deviceName string) (string, bool) {
	m := hwCardRe.FindStringSubmatch(deviceName)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// PlugDevice returns the ALSA plug device for card ("plughw:1").
func PlugDevice(card string) string {
	if card == "" {
		return ""
	}
	return "plughw:" + card
}
