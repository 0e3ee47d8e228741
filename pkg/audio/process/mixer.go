package process

import (
	"context"
	"errors"
	"fmt"
)

// DefaultControls are the simple mixer controls raised by [Mixer.Maximize].
// Cheap USB speakers expose different names, so all three are tried.
var DefaultControls = []string{"PCM", "Speaker", "Playback"}

// Mixer drives ALSA simple mixer controls through amixer.
type Mixer struct {
	// Command is the amixer binary. Defaults to "amixer".
	Command string

	// Card is the ALSA card number. Empty selects the default card.
	Card string

	// Controls lists the controls to set. Defaults to DefaultControls.
	Controls []string
}

// Maximize sets every control to 100%. Missing controls are reported in the
// joined error but do not stop the remaining ones from being set.
func (m *Mixer) Maximize(ctx context.Context) error {
	var errs []error
	for _, ctl := range m.controls() {
		cmd := Command(ctx, m.command(), m.Args(ctl)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			errs = append(errs, fmt.Errorf("process: amixer %s: %w: %s", ctl, err, out))
		}
	}
	return errors.Join(errs...)
}

// Args returns the amixer arguments for setting ctl to 100%.
func (m *Mixer) Args(ctl string) []string {
	var args []string
	if m.Card != "" {
		args = append(args, "-c", m.Card)
	}
	return append(args, "sset", ctl, "100%", "--quiet")
}

func (m *Mixer) command() string {
	if m.Command == "" {
		return "amixer"
	}
	return m.Command
}

func (m *Mixer) controls() []string {
	if len(m.Controls) == 0 {
		return DefaultControls
	}
	return m.Controls
}
