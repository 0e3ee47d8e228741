package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/tapvox/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Providers.STT.Name = "whisper"
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		wantLevel   bool
		wantTrigger bool
		wantRestart []string
	}{
		{
			name:      "log level",
			mutate:    func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLevel: true,
		},
		{
			name:        "trigger threshold",
			mutate:      func(c *config.Config) { c.Trigger.Threshold = 0.7 },
			wantTrigger: true,
		},
		{
			name:        "max recording",
			mutate:      func(c *config.Config) { c.Trigger.MaxRecording = time.Minute },
			wantTrigger: true,
		},
		{
			name:        "delimiter table",
			mutate:      func(c *config.Config) { c.Speech.Delimiters["."] = time.Second },
			wantRestart: []string{"speech"},
		},
		{
			name: "provider and capture",
			mutate: func(c *config.Config) {
				c.Providers.LLM.Model = "llama3"
				c.Capture.Device = "USB"
			},
			wantRestart: []string{"providers", "capture"},
		},
		{
			name: "everything at once",
			mutate: func(c *config.Config) {
				c.Server.LogLevel = config.LogWarn
				c.Trigger.Debounce = time.Second
				c.Recording.JournalPath = "/tmp/j.jsonl"
			},
			wantLevel:   true,
			wantTrigger: true,
			wantRestart: []string{"recording"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(new)

			d := config.Diff(old, new)
			if d.LogLevelChanged != tt.wantLevel {
				t.Errorf("LogLevelChanged: got %v, want %v", d.LogLevelChanged, tt.wantLevel)
			}
			if d.TriggerChanged != tt.wantTrigger {
				t.Errorf("TriggerChanged: got %v, want %v", d.TriggerChanged, tt.wantTrigger)
			}
			if d.TriggerChanged && d.NewTrigger != new.Trigger {
				t.Errorf("NewTrigger: got %+v, want %+v", d.NewTrigger, new.Trigger)
			}
			if !slices.Equal(d.RestartRequired, tt.wantRestart) {
				t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, tt.wantRestart)
			}
			if !d.Changed() {
				t.Error("Changed() = false, want true")
			}
		})
	}
}
