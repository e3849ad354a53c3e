package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Fixed stream format: 48 kHz stereo f32, 10 ms blocks.
const (
	SampleRate   = 48_000
	Channels     = 2
	BlockSamples = 480
	BlockLen     = BlockSamples * Channels
)

// dbToAmp converts decibels to an amplitude multiplier.
func dbToAmp(db float64) float64 {
	return math.Pow(10, db/20)
}

// AmpToDB converts an amplitude to dBFS, clamping silence to -120 dB.
func AmpToDB(amp float64) float64 {
	if amp <= 1e-6 {
		return -120
	}
	return 20 * math.Log10(amp)
}

// BlockStats returns the peak amplitude and RMS of a block.
func BlockStats(block []float32) (peak, rms float64) {
	var sum float64
	for _, s := range block {
		a := math.Abs(float64(s))
		if a > peak {
			peak = a
		}
		sum += a * a
	}
	if len(block) > 0 {
		rms = math.Sqrt(sum / float64(len(block)))
	}
	return peak, rms
}

// Ducking parameters: non-voice channels are attenuated while voice RMS
// over a 120 ms window exceeds -30 dBFS, with a 50 ms attack and 300 ms
// release envelope.
const (
	duckWindowBlocks  = 12 // 120 ms of 10 ms blocks
	duckThresholdDB   = -30
	duckAttenuationDB = -12
	duckAttackMs      = 50
	duckReleaseMs     = 300
)

// DuckEnvelope tracks the smoothed duck gain across blocks.
type DuckEnvelope struct {
	window [duckWindowBlocks]float64
	idx    int
	gain   float64 // current attenuation amplitude, 1 = no duck
}

// NewDuckEnvelope returns an envelope at unity gain.
func NewDuckEnvelope() *DuckEnvelope {
	return &DuckEnvelope{gain: 1}
}

// Step feeds one block's voice RMS and returns the duck gain to apply to
// non-voice channels for this block.
func (d *DuckEnvelope) Step(voiceRMS float64) float64 {
	d.window[d.idx] = voiceRMS * voiceRMS
	d.idx = (d.idx + 1) % duckWindowBlocks

	var mean float64
	for _, v := range d.window {
		mean += v
	}
	mean = math.Sqrt(mean / duckWindowBlocks)

	target := 1.0
	if AmpToDB(mean) > duckThresholdDB {
		target = dbToAmp(duckAttenuationDB)
	}

	blockMs := 1000.0 * BlockSamples / SampleRate
	var coeff float64
	if target < d.gain {
		coeff = math.Min(1, blockMs/duckAttackMs)
	} else {
		coeff = math.Min(1, blockMs/duckReleaseMs)
	}
	d.gain += (target - d.gain) * coeff
	return d.gain
}

// Limiter parameters: the mix is summed against a -3 dBFS headroom ceiling
// and a soft knee limiter engages above -1 dBFS.
const (
	headroomDB       = -3
	limiterKneeDB    = -1
	limiterKneeWidth = 2.0
)

// Headroom is the amplitude of the summing headroom ceiling.
func Headroom() float64 { return dbToAmp(headroomDB) }

// SoftLimit applies the soft-knee limiter to one sample.
func SoftLimit(s float64) float64 {
	threshold := dbToAmp(limiterKneeDB)
	a := math.Abs(s)
	if a <= threshold {
		return s
	}
	// Smooth compression above the knee, asymptotic to 0 dBFS; in float64
	// tanh saturates, so large inputs come out at exactly 1.0.
	over := a - threshold
	limited := threshold + (1-threshold)*math.Tanh(over/(limiterKneeWidth*(1-threshold)))
	return math.Copysign(limited, s)
}

// Speaking detection: a 1024-point Hann-windowed FFT per commentator
// channel; a channel is speaking when 80-4000 Hz band energy exceeds a
// threshold derived from a 10 s exponential noise estimate.
const (
	fftSize        = 1024
	speakBandLowHz = 80
	speakBandHiHz  = 4000
	noiseAlpha     = 0.02
	speakRatio     = 4.0 // band energy multiple over the noise floor
	// DFTBins is the quantized spectrum resolution shipped to overlays.
	DFTBins = 16
)

// SpeakDetector tracks one channel's running noise estimate and spectrum.
type SpeakDetector struct {
	fft    *fourier.FFT
	window []float64
	input  []float64
	noise  float64
	primed bool
}

// NewSpeakDetector builds a detector with a precomputed Hann window.
func NewSpeakDetector() *SpeakDetector {
	window := make([]float64, fftSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return &SpeakDetector{
		fft:    fourier.NewFFT(fftSize),
		window: window,
		input:  make([]float64, fftSize),
	}
}

// Process analyses the latest mono block (zero-padded or truncated to the
// FFT size) and returns the speaking flag plus the quantized spectrum.
func (sd *SpeakDetector) Process(block []float32) (bool, [DFTBins]float32) {
	n := len(block)
	if n > fftSize {
		n = fftSize
	}
	for i := 0; i < n; i++ {
		sd.input[i] = float64(block[i]) * sd.window[i]
	}
	for i := n; i < fftSize; i++ {
		sd.input[i] = 0
	}

	coeffs := sd.fft.Coefficients(nil, sd.input)

	binHz := float64(SampleRate) / fftSize
	lowBin := int(speakBandLowHz / binHz)
	hiBin := int(speakBandHiHz / binHz)
	if hiBin >= len(coeffs) {
		hiBin = len(coeffs) - 1
	}

	var band float64
	for i := lowBin; i <= hiBin; i++ {
		re, im := real(coeffs[i]), imag(coeffs[i])
		band += re*re + im*im
	}
	band /= float64(hiBin - lowBin + 1)

	// 10-second exponential noise average.
	if !sd.primed {
		sd.noise = band
		sd.primed = true
	} else {
		sd.noise += noiseAlpha * (band - sd.noise)
	}

	speaking := band > sd.noise*speakRatio && band > 1e-9

	var dft [DFTBins]float32
	step := len(coeffs) / DFTBins
	if step > 0 {
		for b := 0; b < DFTBins; b++ {
			var sum float64
			for i := b * step; i < (b+1)*step && i < len(coeffs); i++ {
				re, im := real(coeffs[i]), imag(coeffs[i])
				sum += re*re + im*im
			}
			dft[b] = float32(sum / float64(step))
		}
	}

	return speaking, dft
}
