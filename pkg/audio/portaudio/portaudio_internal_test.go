package portaudio

import "testing"

func TestMatchDevice(t *testing.T) {
	t.Parallel()
	names := []string{
		"HDA Intel PCH: ALC257 Analog (hw:0,0)",
		"Blue Yeti PRO: USB Audio (hw:1,0)",
		"USB PRO Speaker (hw:2,0)",
		"default",
	}
	tests := []struct {
		name   string
		usable []bool
		substr string
		want   int
	}{
		{"first match", []bool{true, true, true, true}, "PRO", 1},
		{"case-insensitive", []bool{true, true, true, true}, "yeti", 1},
		{"skips unusable", []bool{true, false, true, true}, "pro", 2},
		{"no match", []bool{true, true, true, true}, "scarlett", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := matchDevice(names, tt.usable, tt.substr); got != tt.want {
				t.Errorf("matchDevice(%q) = %d, want %d", tt.substr, got, tt.want)
			}
		})
	}
}
