package resample_test

import (
	"testing"

	"github.com/MrWong99/tapvox/pkg/audio/resample"
)

func TestConvert_SameRateIsPassthrough(t *testing.T) {
	t.Parallel()
	in := []float32{0.1, 0.2, 0.3}
	out, err := resample.Convert(in, 1, 16000, 16000)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if &out[0] != &in[0] {
		t.Error("expected the input slice to be returned unchanged")
	}
}

func TestConvert_EmptyInput(t *testing.T) {
	t.Parallel()
	out, err := resample.Convert(nil, 1, 22050, 16000)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}

func TestConvert_InvalidRate(t *testing.T) {
	t.Parallel()
	if _, err := resample.Convert([]float32{0}, 1, 0, 16000); err == nil {
		t.Error("expected error for zero source rate")
	}
	if _, err := resample.Convert([]float32{0}, 1, 16000, -1); err == nil {
		t.Error("expected error for negative target rate")
	}
}
