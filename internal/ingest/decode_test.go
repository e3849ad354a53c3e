package ingest

import (
	"math"
	"testing"

	"github.com/BrickBench/AutoMarathon/internal/audio"
)

func TestFloat32FrombitsSanitizesCorruptSamples(t *testing.T) {
	if got := float32frombits(math.Float32bits(0.5)); got != 0.5 {
		t.Errorf("normal sample = %v, want 0.5", got)
	}
	if got := float32frombits(math.Float32bits(float32(math.NaN()))); got != 0 {
		t.Errorf("NaN sample = %v, want 0", got)
	}
	if got := float32frombits(math.Float32bits(float32(math.Inf(1)))); got != 0 {
		t.Errorf("+Inf sample = %v, want 0", got)
	}
	if got := float32frombits(math.Float32bits(100)); got != 0 {
		t.Errorf("wild sample = %v, want 0", got)
	}
	if got := float32frombits(math.Float32bits(-1)); got != -1 {
		t.Errorf("full-scale negative = %v, want -1", got)
	}
}

func TestRingSamplesDefaults(t *testing.T) {
	if got := ringSamples(0); got != 2*audio.SampleRate*audio.Channels {
		t.Errorf("ringSamples(0) = %d, want the 2 s default", got)
	}
	if got := ringSamples(1); got != audio.SampleRate*audio.Channels {
		t.Errorf("ringSamples(1) = %d", got)
	}
}
