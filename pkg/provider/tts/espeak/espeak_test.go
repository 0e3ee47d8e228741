package espeak_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/tapvox/pkg/audio/wav"
	"github.com/MrWong99/tapvox/pkg/provider/tts"
	"github.com/MrWong99/tapvox/pkg/provider/tts/espeak"
)

func TestArgs(t *testing.T) {
	t.Parallel()

	p, err := espeak.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		name  string
		voice tts.Voice
		want  []string
	}{
		{
			name: "defaults",
			want: []string{"-a", "16", "-v", "es+m3", "-s", "150", "--stdout", "--", "-hola"},
		},
		{
			name:  "voice and speed",
			voice: tts.Voice{ID: "en-us", Speed: 1.2},
			want:  []string{"-a", "16", "-v", "en-us", "-s", "180", "--stdout", "--", "-hola"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.Args("-hola", tt.voice); !slices.Equal(got, tt.want) {
				t.Errorf("Args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		speed float64
		want  int
	}{
		{0, 150},
		{1, 150},
		{0.5, 80},
		{2, 300},
		{10, 450},
		{-1, 150},
	}
	for _, tt := range tests {
		if got := espeak.Rate(tt.speed); got != tt.want {
			t.Errorf("Rate(%v) = %d, want %d", tt.speed, got, tt.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := espeak.New(espeak.WithAmplitude(300)); err == nil {
		t.Error("expected error for amplitude 300")
	}
	if _, err := espeak.New(espeak.WithCommand("")); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestSynthesize_DecodesStdout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clip := wav.Encode([]float32{0.5, -0.5, 0.25}, 22050, 1)
	clipPath := filepath.Join(dir, "clip.wav")
	if err := os.WriteFile(clipPath, clip, 0o600); err != nil {
		t.Fatal(err)
	}
	argsPath := filepath.Join(dir, "args")
	script := filepath.Join(dir, "espeak.sh")
	body := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argsPath + "\ncat " + clipPath + "\n"
	if err := os.WriteFile(script, []byte(body), 0o700); err != nil {
		t.Fatal(err)
	}

	p, err := espeak.New(espeak.WithCommand(script), espeak.WithAmplitude(40), espeak.WithVoice("es"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Synthesize(context.Background(), "  Hola, mundo.  ", tts.Voice{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.SampleRate != 22050 || got.Channels != 1 || len(got.Samples) != 3 {
		t.Errorf("audio = %d Hz, %d ch, %d samples; want 22050 Hz, 1 ch, 3 samples",
			got.SampleRate, got.Channels, len(got.Samples))
	}

	raw, err := os.ReadFile(argsPath)
	if err != nil {
		t.Fatal(err)
	}
	args := strings.Split(strings.TrimSpace(string(raw)), "\n")
	want := []string{"-a", "40", "-v", "es", "-s", "150", "--stdout", "--", "Hola, mundo."}
	if !slices.Equal(args, want) {
		t.Errorf("args = %q, want %q", args, want)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	failing := filepath.Join(dir, "fail.sh")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\necho 'voice not found' >&2\nexit 1\n"), 0o700); err != nil {
		t.Fatal(err)
	}
	garbage := filepath.Join(dir, "garbage.sh")
	if err := os.WriteFile(garbage, []byte("#!/bin/sh\necho nonsense\n"), 0o700); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		command string
		text    string
		wantSub string
	}{
		{name: "empty text", command: failing, text: "   ", wantSub: "empty"},
		{name: "process failure", command: failing, text: "hola", wantSub: "voice not found"},
		{name: "bad wav", command: garbage, text: "hola", wantSub: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := espeak.New(espeak.WithCommand(tt.command))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = p.Synthesize(context.Background(), tt.text, tts.Voice{})
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("err = %v, want it to contain %q", err, tt.wantSub)
			}
		})
	}
}

func TestSynthesize_CancelKillsChildProcesses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	marker := filepath.Join(dir, "survived")
	script := filepath.Join(dir, "espeak.sh")
	body := "#!/bin/sh\n(sleep 1; touch " + marker + ") &\nsleep 5\n"
	if err := os.WriteFile(script, []byte(body), 0o700); err != nil {
		t.Fatal(err)
	}
	p, err := espeak.New(espeak.WithCommand(script))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := p.Synthesize(ctx, "hola", tts.Voice{}); err == nil {
		t.Fatal("expected error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Synthesize returned after %v, want under 2s", elapsed)
	}

	time.Sleep(1500 * time.Millisecond)
	if _, err := os.Stat(marker); err == nil {
		t.Error("child process outlived the cancelled synthesis")
	}
}
