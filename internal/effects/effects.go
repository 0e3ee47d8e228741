// Package effects plays the short cue sounds that mark the start and end of
// a recording.
package effects

import (
	"context"
	"log/slog"

	"github.com/MrWong99/tapvox/pkg/audio"
	"github.com/MrWong99/tapvox/pkg/audio/wav"
)

// Cue identifies an effect.
type Cue string

const (
	Start Cue = "start"
	End   Cue = "end"
)

// Set holds the decoded cue clips. A cue without a clip is silent.
type Set struct {
	player audio.Player
	clips  map[Cue]wav.Clip
}

// Load reads the WAV file for each cue. An empty path leaves the cue silent;
// an unreadable file is logged and also leaves it silent.
func Load(player audio.Player, paths map[Cue]string) *Set {
	s := &Set{player: player, clips: make(map[Cue]wav.Clip, len(paths))}
	for cue, path := range paths {
		if path == "" {
			continue
		}
		clip, err := wav.ReadFile(path)
		if err != nil {
			slog.Warn("effects: cue unavailable", "cue", cue, "path", path, "err", err)
			continue
		}
		s.clips[cue] = clip
	}
	return s
}

// Has reports whether cue has a clip.
func (s *Set) Has(cue Cue) bool {
	_, ok := s.clips[cue]
	return ok
}

// Play plays cue and blocks until it finished. Playback failures are logged
// and swallowed.
func (s *Set) Play(ctx context.Context, cue Cue) {
	clip, ok := s.clips[cue]
	if !ok || s.player == nil {
		return
	}
	if err := s.player.Play(ctx, clip.Samples, clip.SampleRate, clip.Channels); err != nil && ctx.Err() == nil {
		slog.Warn("effects: playback failed", "cue", cue, "err", err)
	}
}
