// Package ingest maintains at most one live media decode per runner and
// fans decoded audio out to per-consumer lock-free rings.
package ingest

import (
	"context"
	"sync"

	"github.com/BrickBench/AutoMarathon/internal/audio"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

// Consumer is one reference-counted view of a runner's decoded audio.
// Each consumer owns its ring; the decode goroutine is the only producer.
type Consumer struct {
	Ring    *audio.Ring
	release func()
	once    sync.Once
}

// Release drops the reference; the decode stops when the last consumer
// releases.
func (c *Consumer) Release() {
	c.once.Do(c.release)
}

type entry struct {
	url       string
	active    *decode
	pending   *decode
	consumers map[*Consumer]struct{}
}

// Pool owns every live decode.
type Pool struct {
	ffmpegPath  string
	ringSeconds int

	mu      sync.Mutex
	entries map[int64]*entry
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPool creates the ingest pool.
func NewPool(ffmpegPath string, ringSeconds int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ffmpegPath:  ffmpegPath,
		ringSeconds: ringSeconds,
		entries:     make(map[int64]*entry),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Acquire returns a consumer of the runner's decoded audio, starting the
// decode on first reference. url is the already-selected media URL.
func (p *Pool) Acquire(runner int64, url string) *Consumer {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[runner]
	if !ok {
		e = &entry{url: url, consumers: make(map[*Consumer]struct{})}
		e.active = startDecode(p.ctx, p.ffmpegPath, runner, url, p.deliverFunc(runner))
		p.entries[runner] = e
		logger := pkglog.L()
		logger.Info().Int64(pkglog.FieldRunner, runner).Msg("media decode started")
	} else if e.url != url {
		p.swapLocked(runner, e, url)
	}

	c := &Consumer{Ring: audio.NewRing(ringSamples(p.ringSeconds))}
	c.release = func() { p.releaseConsumer(runner, c) }
	e.consumers[c] = struct{}{}
	return c
}

// Refresh re-points a runner's decode at a new URL. In-flight consumers
// keep their rings; the swap happens when the new decode yields its first
// frame.
func (p *Pool) Refresh(runner int64, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[runner]
	if !ok || e.url == url {
		return
	}
	p.swapLocked(runner, e, url)
}

func (p *Pool) swapLocked(runner int64, e *entry, url string) {
	if e.pending != nil {
		go e.pending.stop()
	}
	e.url = url
	e.pending = startDecode(p.ctx, p.ffmpegPath, runner, url, p.deliverFunc(runner))
}

// deliverFunc returns the fan-out callback for one runner. A pending
// decode is promoted on its first delivered frame, atomically replacing
// the old one.
func (p *Pool) deliverFunc(runner int64) func(*decode, []float32) {
	return func(d *decode, samples []float32) {
		p.mu.Lock()
		e, ok := p.entries[runner]
		if !ok {
			p.mu.Unlock()
			return
		}
		if e.pending == d {
			old := e.active
			e.active = d
			e.pending = nil
			if old != nil {
				go old.stop()
			}
		}
		if e.active != d {
			p.mu.Unlock()
			return
		}
		// Fan out under the lock so a decode being demoted can never
		// write a ring concurrently with its replacement.
		for c := range e.consumers {
			c.Ring.Write(samples)
		}
		p.mu.Unlock()
	}
}

func (p *Pool) releaseConsumer(runner int64, c *Consumer) {
	p.mu.Lock()
	e, ok := p.entries[runner]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(e.consumers, c)
	if len(e.consumers) > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.entries, runner)
	active, pending := e.active, e.pending
	p.mu.Unlock()

	if active != nil {
		go active.stop()
	}
	if pending != nil {
		go pending.stop()
	}
	logger := pkglog.L()
	logger.Info().Int64(pkglog.FieldRunner, runner).Msg("media decode stopped")
}

// Close stops every decode.
func (p *Pool) Close() {
	p.cancel()
	p.mu.Lock()
	p.entries = make(map[int64]*entry)
	p.mu.Unlock()
}
