// Package reconciler drives one compositor host toward the desired scene,
// source, and audio layout. It is the single writer for that host's scene
// graph; domain state is never mutated here, only host status is reported
// back to the hub.
package reconciler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BrickBench/AutoMarathon/internal/backoff"
	"github.com/BrickBench/AutoMarathon/internal/compositor"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	"github.com/BrickBench/AutoMarathon/internal/metrics"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

// Dialer opens a control connection to the host's compositor.
type Dialer func(ctx context.Context) (compositor.Conn, error)

const statusTimeout = 5 * time.Second

// Reconciler is the per-host convergence actor.
type Reconciler struct {
	host string
	dial Dialer
	hub  *hub.Hub

	desired     hub.Desired
	haveDesired bool
	obs         Observed

	retry  backoff.Policy
	quit   chan struct{}
	doneCh chan struct{}
}

// New creates a reconciler for one configured host.
func New(host string, dial Dialer, h *hub.Hub) *Reconciler {
	return &Reconciler{
		host:   host,
		dial:   dial,
		hub:    h,
		obs:    newObserved(),
		retry:  backoff.New(),
		quit:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the reconciler loop.
func (r *Reconciler) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop signals the reconciler to exit; Done closes when it has.
func (r *Reconciler) Stop()                 { close(r.quit) }
func (r *Reconciler) Done() <-chan struct{} { return r.doneCh }

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.doneCh)

	logger := pkglog.L().With().Str(pkglog.FieldHost, r.host).Logger()
	desiredCh := r.hub.HostCommands(r.host)

	attempt := 0
	for {
		select {
		case <-r.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, err := r.dial(ctx)
		if err != nil {
			metrics.SetHostConnected(r.host, false)
			r.reportDisconnected(ctx)
			logger.Warn().Err(err).Int("attempt", attempt).Msg("compositor connect failed")
			if !r.sleep(ctx, attempt) {
				return
			}
			attempt++
			continue
		}
		attempt = 0
		metrics.SetHostConnected(r.host, true)
		logger.Info().Msg("compositor connected")

		r.session(ctx, conn, desiredCh)
		conn.Close()

		select {
		case <-r.quit:
			return
		case <-ctx.Done():
			return
		default:
		}
		metrics.SetHostConnected(r.host, false)
		r.reportDisconnected(ctx)
		logger.Warn().Msg("compositor connection lost, reconnecting")
		if !r.sleep(ctx, attempt) {
			return
		}
		attempt++
	}
}

func (r *Reconciler) sleep(ctx context.Context, attempt int) bool {
	t := time.NewTimer(r.retry.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-r.quit:
		return false
	}
}

// session runs one connected episode: full sync, then steady-state
// reconciliation until the connection dies or shutdown is requested.
func (r *Reconciler) session(ctx context.Context, conn compositor.Conn, desiredCh <-chan hub.Desired) {
	log := pkglog.L().With().Str(pkglog.FieldHost, r.host).Logger()

	if err := r.sync(ctx, conn); err != nil {
		log.Warn().Err(err).Msg("scene sync failed")
		return
	}
	r.reportStatus(ctx)

	var retryTimer *time.Timer
	retryC := func() <-chan time.Time {
		if retryTimer == nil {
			return nil
		}
		return retryTimer.C
	}
	failures := 0
	pending := r.haveDesired

	for {
		if pending {
			if err := r.reconcile(ctx, conn); err != nil {
				log.Warn().Err(err).Int("failures", failures).Msg("reconcile failed, retrying")
				if retryTimer != nil {
					retryTimer.Stop()
				}
				retryTimer = time.NewTimer(r.retry.Delay(failures))
				failures++
			} else {
				failures = 0
				retryTimer = nil
			}
			pending = false
			r.reportStatus(ctx)
		}

		select {
		case <-r.quit:
			return
		case <-ctx.Done():
			return
		case <-conn.Err():
			return
		case d := <-desiredCh:
			r.desired = d
			r.haveDesired = true
			pending = true
		case ev, ok := <-conn.Events():
			if !ok {
				return
			}
			r.handleEvent(ev)
			r.reportStatus(ctx)
			pending = r.haveDesired
		case <-retryC():
			retryTimer = nil
			pending = r.haveDesired
		}
	}
}

// sync pulls the full scene graph and stream status.
func (r *Reconciler) sync(ctx context.Context, conn compositor.Conn) error {
	callCtx, cancel := context.WithTimeout(ctx, compositor.CallTimeout)
	defer cancel()

	list, err := compositor.GetSceneList(callCtx, conn)
	if err != nil {
		return err
	}
	r.obs.ingestSceneList(list)

	statusCtx, cancelStatus := context.WithTimeout(ctx, compositor.CallTimeout)
	defer cancelStatus()
	status, err := compositor.GetStreamStatus(statusCtx, conn)
	if err != nil {
		return err
	}
	r.obs.Streaming = status.Active
	r.obs.FrameRate = status.FrameRate
	return nil
}

// reconcile computes and applies the current diff. Each applied command
// optimistically updates the observed copy; compositor events remain the
// final truth and trigger a re-diff.
func (r *Reconciler) reconcile(ctx context.Context, conn compositor.Conn) error {
	cmds := Diff(&r.obs, r.desired)
	for _, cmd := range cmds {
		if err := r.applyCommand(ctx, conn, cmd); err != nil {
			return err
		}
		metrics.ReconcilerCommand(r.host, cmd.Op)
	}
	return nil
}

func (r *Reconciler) applyCommand(ctx context.Context, conn compositor.Conn, cmd Command) error {
	callCtx, cancel := context.WithTimeout(ctx, compositor.CallTimeout)
	defer cancel()

	switch cmd.Op {
	case compositor.OpSetProgramScene:
		if err := compositor.SetProgramScene(callCtx, conn, cmd.Scene); err != nil {
			return err
		}
		r.obs.ProgramScene = cmd.Scene

	case compositor.OpSetInputSettings:
		if err := compositor.SetInputSettings(callCtx, conn, cmd.Input, cmd.Settings); err != nil {
			return err
		}
		if url, ok := cmd.Settings["url"].(string); ok {
			r.obs.setSourceURL(cmd.Input, url)
		}
		if text, ok := cmd.Settings["text"].(string); ok {
			r.obs.NameTexts[cmd.Input] = text
		}

	case compositor.OpSetInputMute:
		if err := compositor.SetInputMute(callCtx, conn, cmd.Input, cmd.Muted); err != nil {
			return err
		}
		r.obs.setSourceMuted(cmd.Input, cmd.Muted)

	case compositor.OpStartStream:
		if err := compositor.StartStream(callCtx, conn); err != nil {
			return err
		}
		r.obs.Streaming = true

	case compositor.OpStopStream:
		if err := compositor.StopStream(callCtx, conn); err != nil {
			return err
		}
		r.obs.Streaming = false
	}
	return nil
}

func (r *Reconciler) handleEvent(ev compositor.Event) {
	switch ev.Type {
	case compositor.EventProgramSceneChanged:
		var data compositor.ProgramSceneChanged
		if json.Unmarshal(ev.Data, &data) == nil {
			r.obs.ProgramScene = data.SceneName
		}
	case compositor.EventInputSettingsChanged:
		var data compositor.InputSettingsChanged
		if json.Unmarshal(ev.Data, &data) == nil {
			if url, ok := data.Settings["url"].(string); ok {
				r.obs.setSourceURL(data.Input, url)
			}
		}
	case compositor.EventStreamStateChanged:
		var data compositor.StreamStateChanged
		if json.Unmarshal(ev.Data, &data) == nil {
			r.obs.Streaming = data.Active
		}
	}
}

// reportStatus publishes the observed host state through the hub as a
// read-only status update.
func (r *Reconciler) reportStatus(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if _, err := r.hub.Apply(callCtx, hub.SetHostStatus{Host: r.obs.toHost(r.host, true)}); err != nil {
		logger := pkglog.L()
		logger.Debug().Err(err).Str(pkglog.FieldHost, r.host).Msg("host status report failed")
	}
}

func (r *Reconciler) reportDisconnected(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	host := r.obs.toHost(r.host, false)
	host.Streaming = false
	if _, err := r.hub.Apply(callCtx, hub.SetHostStatus{Host: host}); err != nil {
		logger := pkglog.L()
		logger.Debug().Err(err).Str(pkglog.FieldHost, r.host).Msg("host status report failed")
	}
}
