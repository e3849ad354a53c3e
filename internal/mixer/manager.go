package mixer

import (
	"context"

	"github.com/BrickBench/AutoMarathon/internal/domain"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	"github.com/BrickBench/AutoMarathon/internal/ingest"
	"github.com/BrickBench/AutoMarathon/internal/voice"
)

// Manager keeps each host mixer's input roster in sync with the hub
// snapshot: which runners are on the host's stream, their gains, the
// audible selection, and the commentator roster with per-user gains.
type Manager struct {
	hub     *hub.Hub
	pool    *ingest.Pool
	mixers  map[string]*Mixer
	bridges map[string]*voice.Bridge

	consumers map[string]map[int64]*ingest.Consumer

	quit   chan struct{}
	doneCh chan struct{}
}

// NewManager wires the pool, per-host mixers, and voice bridges together.
func NewManager(h *hub.Hub, pool *ingest.Pool, mixers map[string]*Mixer, bridges map[string]*voice.Bridge) *Manager {
	consumers := make(map[string]map[int64]*ingest.Consumer, len(mixers))
	for host := range mixers {
		consumers[host] = make(map[int64]*ingest.Consumer)
	}
	return &Manager{
		hub:       h,
		pool:      pool,
		mixers:    mixers,
		bridges:   bridges,
		consumers: consumers,
		quit:      make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the snapshot-follow loop.
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop signals shutdown; Done closes when the loop has exited.
func (m *Manager) Stop()                 { close(m.quit) }
func (m *Manager) Done() <-chan struct{} { return m.doneCh }

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneCh)

	sub := m.hub.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case <-m.quit:
			return
		case <-ctx.Done():
			return
		case snap := <-sub.C:
			for host := range m.mixers {
				m.update(host, &snap)
			}
		}
	}
}

// update rebuilds one host's channel roster from a snapshot.
func (m *Manager) update(host string, snap *domain.AMState) {
	mixer := m.mixers[host]
	held := m.consumers[host]

	var runners []RunnerChannel
	wanted := make(map[int64]struct{})

	if stream, ok := snap.StreamForHost(host); ok {
		for _, id := range stream.StreamRunners {
			runner, ok := snap.Runners[id]
			if !ok {
				continue
			}
			url := mediaURL(&runner)
			if url == "" {
				continue
			}
			wanted[id] = struct{}{}

			consumer, have := held[id]
			if !have {
				consumer = m.pool.Acquire(id, url)
				held[id] = consumer
			} else {
				m.pool.Refresh(id, url)
			}

			audible := stream.AudibleRunner != nil && *stream.AudibleRunner == id
			runners = append(runners, RunnerChannel{
				ID:       id,
				Consumer: consumer,
				Gain:     float64(runner.StreamVolumePercent) / 100,
				Audible:  audible,
			})
		}
	}

	for id, consumer := range held {
		if _, keep := wanted[id]; !keep {
			consumer.Release()
			delete(held, id)
		}
	}

	var voices []VoiceChannel
	if bridge, ok := m.bridges[host]; ok {
		users := snap.Hosts[host].VoiceUsers
		for _, speaker := range bridge.Speakers() {
			gain := 1.0
			if u, ok := users[speaker.ID]; ok {
				gain = float64(u.GainPercent) / 100
			}
			voices = append(voices, VoiceChannel{
				ID:   speaker.ID,
				Name: speaker.Name,
				Ring: speaker.Ring,
				Gain: gain,
			})
		}
	}

	mixer.SetChannels(runners, voices)
}

// mediaURL picks the decode URL for a runner: the override, then the
// resolver's "best" rendition, then any resolved quality.
func mediaURL(r *domain.Runner) string {
	if r.OverrideStreamURL != "" {
		return r.OverrideStreamURL
	}
	if url, ok := r.ResolvedURLs["best"]; ok {
		return url
	}
	for _, url := range r.ResolvedURLs {
		return url
	}
	return ""
}
