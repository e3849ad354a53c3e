package audio

import (
	"math"
	"testing"
)

func TestAmpDBConversions(t *testing.T) {
	if got := AmpToDB(1); got != 0 {
		t.Errorf("AmpToDB(1) = %v, want 0", got)
	}
	if got := AmpToDB(0); got != -120 {
		t.Errorf("AmpToDB(0) = %v, want -120 floor", got)
	}
	if got := AmpToDB(0.5); math.Abs(got+6.02) > 0.1 {
		t.Errorf("AmpToDB(0.5) = %v, want about -6", got)
	}
}

func TestBlockStats(t *testing.T) {
	peak, rms := BlockStats([]float32{0.5, -1, 0.25, 0})
	if peak != 1 {
		t.Errorf("peak = %v, want 1", peak)
	}
	want := math.Sqrt((0.25 + 1 + 0.0625) / 4)
	if math.Abs(rms-want) > 1e-9 {
		t.Errorf("rms = %v, want %v", rms, want)
	}
}

func TestDuckEngagesOnLoudVoice(t *testing.T) {
	d := NewDuckEnvelope()

	// -20 dBFS voice is above the -30 dBFS threshold; after the attack
	// settles the duck gain approaches -12 dB.
	loud := math.Pow(10, -20.0/20)
	var gain float64
	for i := 0; i < 100; i++ {
		gain = d.Step(loud)
	}
	wantGain := math.Pow(10, -12.0/20)
	if math.Abs(gain-wantGain) > 0.01 {
		t.Errorf("gain = %v, want about %v", gain, wantGain)
	}
}

func TestDuckReleasesOnSilence(t *testing.T) {
	d := NewDuckEnvelope()
	loud := math.Pow(10, -20.0/20)
	for i := 0; i < 100; i++ {
		d.Step(loud)
	}

	// Silence drains the 120 ms window; the envelope releases toward
	// unity over the 300 ms release.
	var gain float64
	for i := 0; i < 200; i++ {
		gain = d.Step(0)
	}
	if gain < 0.99 {
		t.Errorf("gain = %v, want release back to about 1", gain)
	}
}

func TestDuckIgnoresQuietVoice(t *testing.T) {
	d := NewDuckEnvelope()
	quiet := math.Pow(10, -50.0/20)
	var gain float64
	for i := 0; i < 100; i++ {
		gain = d.Step(quiet)
	}
	if gain < 0.99 {
		t.Errorf("gain = %v, quiet voice below threshold should not duck", gain)
	}
}

func TestSoftLimitPassesBelowKnee(t *testing.T) {
	in := 0.5
	if got := SoftLimit(in); got != in {
		t.Errorf("SoftLimit(%v) = %v, want unchanged", in, got)
	}
}

func TestSoftLimitCompressesAboveKnee(t *testing.T) {
	for _, in := range []float64{1.0, 1.5, 3.0, 10.0} {
		got := SoftLimit(in)
		if got > 1 {
			t.Errorf("SoftLimit(%v) = %v, want at most 1 (0 dBFS ceiling)", in, got)
		}
		if got <= math.Pow(10, -1.0/20) {
			t.Errorf("SoftLimit(%v) = %v, want above the knee", in, got)
		}
	}
	// Monotone in the input.
	if SoftLimit(3) <= SoftLimit(1.2) {
		t.Error("limiter should be monotone")
	}
}

func TestSoftLimitSymmetric(t *testing.T) {
	if SoftLimit(-2) != -SoftLimit(2) {
		t.Error("limiter should be odd-symmetric")
	}
}

func TestSpeakDetectorFiresOnVoiceBand(t *testing.T) {
	sd := NewSpeakDetector()

	// Prime the noise floor with near-silence.
	noise := make([]float32, BlockSamples)
	for i := range noise {
		noise[i] = 0.0001 * float32(math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	for i := 0; i < 50; i++ {
		sd.Process(noise)
	}

	// A loud 440 Hz tone sits inside the 80-4000 Hz band.
	tone := make([]float32, BlockSamples)
	for i := range tone {
		tone[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	speaking, dft := sd.Process(tone)
	if !speaking {
		t.Error("loud in-band tone should register as speaking")
	}
	var energy float64
	for _, v := range dft {
		energy += float64(v)
	}
	if energy <= 0 {
		t.Error("dft should carry energy")
	}
}

func TestSpeakDetectorQuietOnSilence(t *testing.T) {
	sd := NewSpeakDetector()
	silence := make([]float32, BlockSamples)
	for i := 0; i < 20; i++ {
		if speaking, _ := sd.Process(silence); speaking {
			t.Fatal("silence should never register as speaking")
		}
	}
}
