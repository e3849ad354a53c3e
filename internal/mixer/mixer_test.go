package mixer

import (
	"math"
	"testing"

	"github.com/BrickBench/AutoMarathon/internal/audio"
	"github.com/BrickBench/AutoMarathon/internal/ingest"
)

// captureSink records mixed blocks.
type captureSink struct {
	blocks [][]float32
}

func (s *captureSink) WriteBlock(block []float32) error {
	copied := make([]float32, len(block))
	copy(copied, block)
	s.blocks = append(s.blocks, copied)
	return nil
}

func (s *captureSink) Close() error { return nil }

func fillRing(ring *audio.Ring, value float32, samples int) {
	buf := make([]float32, samples)
	for i := range buf {
		buf[i] = value
	}
	ring.Write(buf)
}

func runnerChannel(value float32, gain float64, audible bool) RunnerChannel {
	ring := audio.NewRing(audio.BlockLen * 4)
	fillRing(ring, value, audio.BlockLen*2)
	return RunnerChannel{
		ID:       1,
		Consumer: &ingest.Consumer{Ring: ring},
		Gain:     gain,
		Audible:  audible,
	}
}

func TestStepAppliesRunnerGain(t *testing.T) {
	sink := &captureSink{}
	m := New("main", sink, audio.NewLevelsBus())
	m.SetChannels([]RunnerChannel{runnerChannel(0.4, 0.5, true)}, nil)

	m.step()

	if len(sink.blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(sink.blocks))
	}
	// 0.4 * 0.5 gain * headroom (-3 dB); below the limiter knee.
	want := 0.4 * 0.5 * audio.Headroom()
	got := float64(sink.blocks[0][0])
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("sample = %v, want %v", got, want)
	}
}

func TestStepSilenceOnUnderrun(t *testing.T) {
	sink := &captureSink{}
	m := New("main", sink, audio.NewLevelsBus())

	// Ring with fewer samples than one block.
	ring := audio.NewRing(audio.BlockLen)
	fillRing(ring, 0.5, 100)
	m.SetChannels([]RunnerChannel{{ID: 1, Consumer: &ingest.Consumer{Ring: ring}, Gain: 1, Audible: true}}, nil)

	m.step()

	block := sink.blocks[0]
	if block[99] == 0 {
		t.Error("available samples should pass through")
	}
	for i := 100; i < audio.BlockLen; i++ {
		if block[i] != 0 {
			t.Fatalf("sample %d = %v, want silence after underrun", i, block[i])
		}
	}
}

func TestStepDucksNonAudibleUnderVoice(t *testing.T) {
	sink := &captureSink{}
	m := New("main", sink, audio.NewLevelsBus())

	loudVoice := audio.NewRing(audio.SampleRate)
	fillRing(loudVoice, 0.3, audio.BlockSamples*40)

	audibleRing := audio.NewRing(audio.BlockLen * 64)
	fillRing(audibleRing, 0.1, audio.BlockLen*40)
	duckedRing := audio.NewRing(audio.BlockLen * 64)
	fillRing(duckedRing, 0.1, audio.BlockLen*40)

	m.SetChannels(
		[]RunnerChannel{
			{ID: 1, Consumer: &ingest.Consumer{Ring: audibleRing}, Gain: 1, Audible: true},
			{ID: 2, Consumer: &ingest.Consumer{Ring: duckedRing}, Gain: 1, Audible: false},
		},
		[]VoiceChannel{{ID: "u1", Name: "caster", Ring: loudVoice, Gain: 1}},
	)

	// Run enough blocks for the duck window and attack to settle, then
	// step the duck once more at the voice level and check its gain.
	for i := 0; i < 30; i++ {
		m.step()
	}

	gain := m.duck.Step(0.3)
	wantDuck := math.Pow(10, -12.0/20)
	if math.Abs(gain-wantDuck) > 0.02 {
		t.Errorf("duck gain = %v, want about %v", gain, wantDuck)
	}
}

func TestStepLimiterCapsOutput(t *testing.T) {
	sink := &captureSink{}
	m := New("main", sink, audio.NewLevelsBus())

	hot := audio.NewRing(audio.BlockLen * 4)
	fillRing(hot, 1.0, audio.BlockLen*2)
	m.SetChannels([]RunnerChannel{
		{ID: 1, Consumer: &ingest.Consumer{Ring: hot}, Gain: 2.0, Audible: true},
	}, nil)

	m.step()

	for i, s := range sink.blocks[0] {
		if float64(s) >= 1 {
			t.Fatalf("sample %d = %v, limiter must keep output under 0 dBFS", i, s)
		}
	}
}

func TestVoiceLevelsPublishedAtReportRate(t *testing.T) {
	bus := audio.NewLevelsBus()
	levels, cancel := bus.Subscribe()
	defer cancel()

	sink := &captureSink{}
	m := New("main", sink, bus)

	voiceRing := audio.NewRing(audio.SampleRate)
	fillRing(voiceRing, 0.2, audio.BlockSamples*20)
	m.SetChannels(nil, []VoiceChannel{{ID: "u1", Name: "caster", Ring: voiceRing, Gain: 1}})

	for i := 0; i < levelReportBlocks; i++ {
		m.step()
	}

	select {
	case v := <-levels:
		if v.Host != "main" {
			t.Errorf("host = %q", v.Host)
		}
		if _, ok := v.Users["u1"]; !ok {
			t.Errorf("users = %+v, want u1", v.Users)
		}
	default:
		t.Fatal("no levels published after a full report interval")
	}
}
