package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TriggerChanged is set when any trigger parameter changed. Trigger
	// settings are applied to the running dialogue loop.
	TriggerChanged bool
	NewTrigger     TriggerConfig

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.TriggerChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Trigger != new.Trigger {
		d.TriggerChanged = true
		d.NewTrigger = new.Trigger
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"providers", old.Providers, new.Providers},
		{"capture", old.Capture, new.Capture},
		{"conversation", old.Conversation, new.Conversation},
		{"speech", old.Speech, new.Speech},
		{"effects", old.Effects, new.Effects},
		{"recording", old.Recording, new.Recording},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
