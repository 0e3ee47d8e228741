package speech

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tapvox/pkg/audio"
	"github.com/MrWong99/tapvox/pkg/audio/resample"
	"github.com/MrWong99/tapvox/pkg/provider/tts"
)

// VolumeControl raises the hardware output volume. process.Mixer
// implements it with amixer.
type VolumeControl interface {
	Maximize(ctx context.Context) error
}

// SynthOption configures a SynthRenderer.
type SynthOption func(*SynthRenderer)

// WithVoice sets the voice passed to the TTS provider.
func WithVoice(v tts.Voice) SynthOption {
	return func(r *SynthRenderer) { r.voice = v }
}

// WithGain scales synthesized samples before playback. 1.0 leaves them
// unchanged.
func WithGain(g float64) SynthOption {
	return func(r *SynthRenderer) { r.gain = g }
}

// WithOutputRate resamples every clip to rate before playback. Zero keeps
// the provider's rate.
func WithOutputRate(rate int) SynthOption {
	return func(r *SynthRenderer) { r.outputRate = rate }
}

// WithVolumeControl resets the hardware volume before every phrase.
func WithVolumeControl(vc VolumeControl) SynthOption {
	return func(r *SynthRenderer) { r.volume = vc }
}

// SynthRenderer renders text with a TTS provider and plays the result on an
// audio.Player.
type SynthRenderer struct {
	tts        tts.Provider
	player     audio.Player
	voice      tts.Voice
	gain       float64
	outputRate int
	volume     VolumeControl
}

var _ Renderer = (*SynthRenderer)(nil)

// NewSynthRenderer creates a SynthRenderer.
func NewSynthRenderer(p tts.Provider, player audio.Player, opts ...SynthOption) *SynthRenderer {
	r := &SynthRenderer{tts: p, player: player, gain: 1}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render implements [Renderer]. A failing volume control is logged and
// otherwise ignored.
func (r *SynthRenderer) Render(ctx context.Context, text string) error {
	if r.volume != nil {
		if err := r.volume.Maximize(ctx); err != nil {
			slog.Debug("speech: hardware volume reset failed", "err", err)
		}
	}

	clip, err := r.tts.Synthesize(ctx, text, r.voice)
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	if len(clip.Samples) == 0 {
		return nil
	}

	samples, rate := clip.Samples, clip.SampleRate
	if r.outputRate > 0 && r.outputRate != rate {
		samples, err = resample.Convert(samples, clip.Channels, rate, r.outputRate)
		if err != nil {
			return fmt.Errorf("speech: %w", err)
		}
		rate = r.outputRate
	}
	samples = audio.Scale(samples, r.gain)

	if err := r.player.Play(ctx, samples, rate, clip.Channels); err != nil {
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}
