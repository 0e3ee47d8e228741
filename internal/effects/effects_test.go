package effects

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MrWong99/tapvox/pkg/audio/mock"
	"github.com/MrWong99/tapvox/pkg/audio/wav"
)

func TestLoadAndPlay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	startPath := filepath.Join(dir, "start.wav")
	if err := wav.WriteFile(startPath, []float32{0.5, -0.5}, 22050, 1); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	player := &mock.Player{}
	s := Load(player, map[Cue]string{
		Start: startPath,
		End:   filepath.Join(dir, "missing.wav"),
	})

	if !s.Has(Start) {
		t.Fatal("start cue not loaded")
	}
	if s.Has(End) {
		t.Fatal("missing end cue reported as loaded")
	}

	s.Play(context.Background(), Start)
	s.Play(context.Background(), End)

	calls := player.Calls()
	if len(calls) != 1 {
		t.Fatalf("play calls = %d, want 1", len(calls))
	}
	if calls[0].SampleRate != 22050 || len(calls[0].Samples) != 2 {
		t.Errorf("played %d samples at %d Hz, want 2 at 22050", len(calls[0].Samples), calls[0].SampleRate)
	}
}

func TestPlay_ErrorsSwallowed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "end.wav")
	if err := wav.WriteFile(path, []float32{0.1}, 16000, 1); err != nil {
		t.Fatal(err)
	}
	s := Load(&mock.Player{PlayError: errors.New("device busy")}, map[Cue]string{End: path})
	s.Play(context.Background(), End)

	// No player configured.
	Load(nil, map[Cue]string{End: path}).Play(context.Background(), End)
}
