package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/BrickBench/AutoMarathon/internal/backoff"
	"github.com/BrickBench/AutoMarathon/internal/domain"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

const maxResolveAttempts = 3

// Worker drains the hub's refresh queue, resolving each runner's stream
// URL and writing the result back as a SetRunnerURLs mutation.
type Worker struct {
	client *Client
	hub    *hub.Hub
	retry  backoff.Policy
	quit   chan struct{}
	doneCh chan struct{}
}

// NewWorker creates the refresh worker.
func NewWorker(client *Client, h *hub.Hub) *Worker {
	return &Worker{
		client: client,
		hub:    h,
		retry:  backoff.New(),
		quit:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the worker loop.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to exit; Done closes when it has.
func (w *Worker) Stop()                 { close(w.quit) }
func (w *Worker) Done() <-chan struct{} { return w.doneCh }

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case id := <-w.hub.RefreshRequests():
			w.refresh(ctx, id)
		}
	}
}

func (w *Worker) refresh(ctx context.Context, id int64) {
	logger := pkglog.L().With().Int64(pkglog.FieldRunner, id).Logger()

	snap, err := w.hub.Snapshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("refresh: snapshot failed")
		return
	}
	runner, ok := snap.Runners[id]
	if !ok || runner.StreamURL == "" {
		logger.Debug().Msg("refresh: runner gone or has no stream url")
		return
	}

	var urls map[string]string
	for attempt := 0; ; attempt++ {
		urls, err = w.client.Resolve(ctx, runner.StreamURL)
		if err == nil {
			break
		}
		// Upstream failures retry automatically; anything else is final.
		retryable := errors.Is(err, domain.ErrUpstream) || errors.Is(err, domain.ErrTimeout)
		if !retryable || attempt+1 >= maxResolveAttempts {
			logger.Warn().Err(err).Msg("refresh: resolution failed")
			return
		}
		if !w.retry.Sleep(ctx, attempt) {
			return
		}
	}

	applyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := w.hub.Apply(applyCtx, hub.SetRunnerURLs{ID: id, URLs: urls}); err != nil {
		logger.Warn().Err(err).Msg("refresh: apply failed")
		return
	}
	logger.Info().Int("qualities", len(urls)).Msg("stream urls refreshed")
}
