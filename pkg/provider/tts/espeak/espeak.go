// Package espeak provides a TTS provider that shells out to espeak-ng (or the
// older espeak) and decodes the WAV it writes to stdout.
//
// The engine runs fully offline. Voice.ID selects the espeak voice
// ("es+m3"), Voice.Speed scales the base speaking rate of 150 words per
// minute.
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MrWong99/tapvox/pkg/audio/process"
	"github.com/MrWong99/tapvox/pkg/audio/wav"
	"github.com/MrWong99/tapvox/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	// DefaultVoice is the voice used when a request does not name one.
	DefaultVoice = "es+m3"

	// DefaultAmplitude is espeak's -a value. espeak's own default of 100 clips
	// on small USB speakers.
	DefaultAmplitude = 16

	// BaseRate is the words-per-minute rate at Voice.Speed 1.0.
	BaseRate = 150

	minRate = 80
	maxRate = 450
)

// Option configures a Provider.
type Option func(*Provider)

// WithCommand sets the espeak binary. Defaults to "espeak-ng".
func WithCommand(cmd string) Option {
	return func(p *Provider) { p.command = cmd }
}

// WithAmplitude sets the espeak amplitude (0-200).
func WithAmplitude(a int) Option {
	return func(p *Provider) { p.amplitude = a }
}

// WithVoice sets the default voice.
func WithVoice(v string) Option {
	return func(p *Provider) { p.voice = v }
}

// Provider synthesises speech with a local espeak process.
type Provider struct {
	command   string
	amplitude int
	voice     string
}

// New creates a Provider. It fails if the amplitude is out of range.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		command:   "espeak-ng",
		amplitude: DefaultAmplitude,
		voice:     DefaultVoice,
	}
	for _, o := range opts {
		o(p)
	}
	if p.amplitude < 0 || p.amplitude > 200 {
		return nil, fmt.Errorf("espeak: amplitude %d outside [0, 200]", p.amplitude)
	}
	if p.command == "" {
		return nil, errors.New("espeak: command must not be empty")
	}
	return p, nil
}

// Synthesize runs espeak for text and returns the decoded clip.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, errors.New("espeak: text must not be empty")
	}

	cmd := process.Command(ctx, p.command, p.Args(text, voice)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return tts.Audio{}, ctx.Err()
		}
		return tts.Audio{}, fmt.Errorf("espeak: %s: %w: %s", p.command, err, strings.TrimSpace(stderr.String()))
	}

	clip, err := wav.Decode(stdout.Bytes())
	if err != nil {
		return tts.Audio{}, fmt.Errorf("espeak: decode output: %w", err)
	}
	return tts.Audio{Samples: clip.Samples, SampleRate: clip.SampleRate, Channels: clip.Channels}, nil
}

// Args returns the espeak command line for text. The text is passed after
// "--" so a phrase starting with a dash is not parsed as a flag.
func (p *Provider) Args(text string, voice tts.Voice) []string {
	v := voice.ID
	if v == "" {
		v = p.voice
	}
	return []string{
		"-a", strconv.Itoa(p.amplitude),
		"-v", v,
		"-s", strconv.Itoa(Rate(voice.Speed)),
		"--stdout",
		"--", text,
	}
}

// Rate converts a speed multiplier to espeak words per minute. Zero means
// normal speed. The result is clamped to the range espeak accepts.
func Rate(speed float64) int {
	if speed <= 0 {
		speed = 1
	}
	r := int(math.Round(BaseRate * speed))
	return max(minRate, min(maxRate, r))
}
