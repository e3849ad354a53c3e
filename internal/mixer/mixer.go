// Package mixer produces one mixed 48 kHz stereo program feed per host:
// selected runner streams with per-runner gain and voice-activated ducking,
// commentator voice with per-user gain, metering, and a speaking detector.
package mixer

import (
	"context"
	"sync"
	"time"

	"github.com/BrickBench/AutoMarathon/internal/audio"
	"github.com/BrickBench/AutoMarathon/internal/ingest"
	"github.com/BrickBench/AutoMarathon/internal/metrics"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

const levelReportBlocks = 10 // 10 Hz at 10 ms blocks

// RunnerChannel is one selected runner's audio input.
type RunnerChannel struct {
	ID       int64
	Consumer *ingest.Consumer
	Gain     float64 // linear, stream_volume_percent / 100
	Audible  bool
}

// VoiceChannel is one commentator's audio input (mono ring).
type VoiceChannel struct {
	ID   string
	Name string
	Ring *audio.Ring
	Gain float64
}

// Mixer is the per-host block-clock actor. Its loop blocks only on the
// block ticker; ring underruns become silence, never a stall.
type Mixer struct {
	host string
	sink audio.Sink
	bus  *audio.LevelsBus

	mu      sync.Mutex
	runners []RunnerChannel
	voices  []VoiceChannel

	duck      *audio.DuckEnvelope
	detectors map[string]*audio.SpeakDetector

	// scratch buffers reused across blocks
	runnerBuf []float32
	voiceBuf  []float32
	voiceSum  []float32
	out       []float32

	blockCount int
	peakHold   float64
	rmsHold    float64
	userLevels map[string]audio.UserLevel

	quit   chan struct{}
	doneCh chan struct{}
}

// New creates a mixer for one host.
func New(host string, sink audio.Sink, bus *audio.LevelsBus) *Mixer {
	return &Mixer{
		host:       host,
		sink:       sink,
		bus:        bus,
		duck:       audio.NewDuckEnvelope(),
		detectors:  make(map[string]*audio.SpeakDetector),
		runnerBuf:  make([]float32, audio.BlockLen),
		voiceBuf:   make([]float32, audio.BlockSamples),
		voiceSum:   make([]float32, audio.BlockLen),
		out:        make([]float32, audio.BlockLen),
		userLevels: make(map[string]audio.UserLevel),
		quit:       make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// SetChannels replaces the mixer's input roster. Called by the manager
// whenever the snapshot changes.
func (m *Mixer) SetChannels(runners []RunnerChannel, voices []VoiceChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners = runners
	m.voices = voices

	known := make(map[string]struct{}, len(voices))
	for _, v := range voices {
		known[v.ID] = struct{}{}
		if _, ok := m.detectors[v.ID]; !ok {
			m.detectors[v.ID] = audio.NewSpeakDetector()
		}
	}
	for id := range m.detectors {
		if _, ok := known[id]; !ok {
			delete(m.detectors, id)
		}
	}
}

// Start launches the block loop.
func (m *Mixer) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop signals shutdown; Done closes when the loop has exited.
func (m *Mixer) Stop()                 { close(m.quit) }
func (m *Mixer) Done() <-chan struct{} { return m.doneCh }

func (m *Mixer) run(ctx context.Context) {
	defer close(m.doneCh)
	defer m.sink.Close()

	blockInterval := time.Second * audio.BlockSamples / audio.SampleRate
	ticker := time.NewTicker(blockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drop any backlog: a late block is dropped, not queued.
			for drained := false; !drained; {
				select {
				case <-ticker.C:
				default:
					drained = true
				}
			}
			m.step()
		}
	}
}

// step renders one 10 ms block.
func (m *Mixer) step() {
	m.mu.Lock()
	runners := m.runners
	voices := m.voices
	m.mu.Unlock()

	for i := range m.voiceSum {
		m.voiceSum[i] = 0
	}

	// 1. Commentator voice: per-user gain, speaking detection, upmix.
	for _, v := range voices {
		n := v.Ring.Read(m.voiceBuf)
		for i := n; i < audio.BlockSamples; i++ {
			m.voiceBuf[i] = 0
		}

		det := m.detectorFor(v.ID)
		speaking, dft := det.Process(m.voiceBuf[:audio.BlockSamples])

		var peak float64
		for i := 0; i < audio.BlockSamples; i++ {
			s := m.voiceBuf[i] * float32(v.Gain)
			a := float64(s)
			if a < 0 {
				a = -a
			}
			if a > peak {
				peak = a
			}
			m.voiceSum[i*2] += s
			m.voiceSum[i*2+1] += s
		}
		m.userLevels[v.ID] = audio.UserLevel{
			Active: speaking,
			PeakDB: float32(audio.AmpToDB(peak)),
			DFT:    dft,
		}
	}

	_, voiceRMS := audio.BlockStats(m.voiceSum)

	// 2+3. Runner channels: linear gain; the audible runner bypasses the
	// duck attenuator.
	duckGain := m.duck.Step(voiceRMS)
	for i := range m.out {
		m.out[i] = 0
	}
	for _, r := range runners {
		n := r.Consumer.Ring.Read(m.runnerBuf)
		for i := n; i < audio.BlockLen; i++ {
			m.runnerBuf[i] = 0
		}
		gain := r.Gain
		if !r.Audible {
			gain *= duckGain
		}
		for i := 0; i < audio.BlockLen; i++ {
			m.out[i] += m.runnerBuf[i] * float32(gain)
		}
	}

	// 4. Sum with headroom, then soft-knee limit.
	headroom := audio.Headroom()
	for i := 0; i < audio.BlockLen; i++ {
		m.out[i] = float32(audio.SoftLimit(headroom * float64(m.out[i]+m.voiceSum[i])))
	}

	// 5. Metering at 10 Hz.
	peak, rms := audio.BlockStats(m.out)
	if peak > m.peakHold {
		m.peakHold = peak
	}
	if rms > m.rmsHold {
		m.rmsHold = rms
	}
	m.blockCount++
	if m.blockCount >= levelReportBlocks {
		m.publishLevels()
	}

	// 6. Emit.
	if err := m.sink.WriteBlock(m.out); err != nil {
		logger := pkglog.L()
		logger.Debug().Err(err).Str(pkglog.FieldHost, m.host).Msg("audio sink write failed")
	}
}

func (m *Mixer) detectorFor(id string) *audio.SpeakDetector {
	m.mu.Lock()
	defer m.mu.Unlock()
	det, ok := m.detectors[id]
	if !ok {
		det = audio.NewSpeakDetector()
		m.detectors[id] = det
	}
	return det
}

func (m *Mixer) publishLevels() {
	metrics.ObserveMixerLevels(m.host, audio.AmpToDB(m.peakHold), audio.AmpToDB(m.rmsHold))

	users := make(map[string]audio.UserLevel, len(m.userLevels))
	for id, lvl := range m.userLevels {
		users[id] = lvl
	}
	m.bus.Publish(audio.VoiceLevels{Host: m.host, Users: users})

	m.blockCount = 0
	m.peakHold = 0
	m.rmsHold = 0
}
