// Package slashcmd translates chat-bot slash commands into hub mutations.
// The bot transport itself is external; it hands commands to the adapter
// over a channel and receives structured reply text.
package slashcmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BrickBench/AutoMarathon/internal/domain"
	"github.com/BrickBench/AutoMarathon/internal/hub"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

// Command is one inbound bot command.
type Command struct {
	Author string
	Token  string
	Text   string
	Reply  func(string)
}

// Transport delivers commands from the external chat service.
type Transport interface {
	Commands() <-chan Command
}

// Adapter consumes commands, authenticates them against the session model,
// and applies the corresponding mutations.
type Adapter struct {
	hub       *hub.Hub
	transport Transport
	authorize func(token string) bool

	quit   chan struct{}
	doneCh chan struct{}
}

// New creates the adapter. authorize validates a command's session token.
func New(h *hub.Hub, transport Transport, authorize func(string) bool) *Adapter {
	return &Adapter{
		hub:       h,
		transport: transport,
		authorize: authorize,
		quit:      make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the command loop.
func (a *Adapter) Start(ctx context.Context) {
	go a.run(ctx)
}

// Stop signals shutdown; Done closes when the loop has exited.
func (a *Adapter) Stop()                 { close(a.quit) }
func (a *Adapter) Done() <-chan struct{} { return a.doneCh }

func (a *Adapter) run(ctx context.Context) {
	defer close(a.doneCh)
	if a.transport == nil {
		// Webhook-only mode: commands arrive through the gateway.
		select {
		case <-a.quit:
		case <-ctx.Done():
		}
		return
	}
	for {
		select {
		case <-a.quit:
			return
		case <-ctx.Done():
			return
		case cmd := <-a.transport.Commands():
			reply := a.Execute(ctx, cmd)
			if cmd.Reply != nil {
				cmd.Reply(reply)
			}
		}
	}
}

// Execute runs one command and returns the reply text.
func (a *Adapter) Execute(ctx context.Context, cmd Command) string {
	if a.authorize != nil && !a.authorize(cmd.Token) {
		return "error ERR_UNAUTHORIZED: invalid session"
	}

	reply, err := a.execute(ctx, cmd.Text)
	if err != nil {
		logger := pkglog.L()
		logger.Debug().Err(err).Str("author", cmd.Author).Str("command", cmd.Text).Msg("slash command failed")
		return fmt.Sprintf("error %s: %v", domain.Kind(err), err)
	}
	return reply
}

func (a *Adapter) execute(ctx context.Context, text string) (string, error) {
	p, err := parse(text)
	if err != nil {
		return "", err
	}

	snap, err := a.hub.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	switch p.name {
	case "assign":
		return a.assign(ctx, &snap, p.args, true)
	case "unassign":
		return a.assign(ctx, &snap, p.args, false)
	case "live":
		return a.setStreaming(ctx, p.args, true)
	case "offline":
		return a.setStreaming(ctx, p.args, false)
	case "switch":
		return a.switchSlot(ctx, &snap, p.args)
	case "toggle":
		return a.toggle(ctx, &snap, p.args)
	case "swap":
		return a.swap(ctx, &snap, p.args)
	case "layout":
		return a.layout(ctx, &snap, p.args)
	case "refresh":
		return a.refresh(ctx, &snap, p.args)
	case "set":
		return a.setField(ctx, p.args)
	case "audible":
		return a.audible(ctx, &snap, p.args)
	default:
		return "", fmt.Errorf("%w: unknown command /%s", domain.ErrBadRequest, p.name)
	}
}

func (a *Adapter) assign(ctx context.Context, snap *domain.AMState, args []string, add bool) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("%w: usage: /assign <runner> <event>", domain.ErrBadRequest)
	}
	runner, err := findRunner(snap, args[0])
	if err != nil {
		return "", err
	}
	ev, err := findEvent(snap, args[1])
	if err != nil {
		return "", err
	}

	if ev.RunnerState == nil {
		ev.RunnerState = make(map[int64]domain.RunnerEntry)
	}
	if add {
		ev.RunnerState[runner] = domain.RunnerEntry{Runner: runner}
	} else {
		delete(ev.RunnerState, runner)
	}
	if _, err := a.hub.Apply(ctx, hub.UpdateEvent{Event: ev}); err != nil {
		return "", err
	}
	verb := "assigned to"
	if !add {
		verb = "removed from"
	}
	return fmt.Sprintf("%s %s %s", args[0], verb, ev.Name), nil
}

func (a *Adapter) setStreaming(ctx context.Context, args []string, live bool) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: usage: /live <host>", domain.ErrBadRequest)
	}
	if _, err := a.hub.Apply(ctx, hub.SetStreaming{Host: args[0], Streaming: live}); err != nil {
		return "", err
	}
	if live {
		return fmt.Sprintf("%s is going live", args[0]), nil
	}
	return fmt.Sprintf("%s is going offline", args[0]), nil
}

func (a *Adapter) switchSlot(ctx context.Context, snap *domain.AMState, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", fmt.Errorf("%w: usage: /switch <slot> <runner> [event]", domain.ErrBadRequest)
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil || slot < 1 {
		return "", fmt.Errorf("%w: bad slot %q", domain.ErrBadRequest, args[0])
	}
	runner, err := findRunner(snap, args[1])
	if err != nil {
		return "", err
	}
	event, err := inferStreamedEvent(snap, optArg(args, 2))
	if err != nil {
		return "", err
	}

	stream := snap.Streams[event]
	updated := stream
	updated.StreamRunners = make(map[int]int64, len(stream.StreamRunners))
	for k, v := range stream.StreamRunners {
		if v != runner {
			updated.StreamRunners[k] = v
		}
	}
	updated.StreamRunners[slot] = runner
	if _, err := a.hub.Apply(ctx, hub.UpdateStream{Stream: updated}); err != nil {
		return "", err
	}
	return fmt.Sprintf("slot %d is now %s", slot, args[1]), nil
}

func (a *Adapter) toggle(ctx context.Context, snap *domain.AMState, args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", fmt.Errorf("%w: usage: /toggle <runner> [event]", domain.ErrBadRequest)
	}
	runner, err := findRunner(snap, args[0])
	if err != nil {
		return "", err
	}
	event, err := inferStreamedEvent(snap, optArg(args, 1))
	if err != nil {
		return "", err
	}

	stream := snap.Streams[event]
	if slot := stream.RunnerSlot(runner); slot != 0 {
		if _, err := a.hub.Apply(ctx, hub.StreamRemoveSlot{Event: event, Slot: slot}); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s removed from the stream", args[0]), nil
	}
	if _, err := a.hub.Apply(ctx, hub.StreamAddRunner{Event: event, Runner: runner}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s added to the stream", args[0]), nil
}

func (a *Adapter) swap(ctx context.Context, snap *domain.AMState, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", fmt.Errorf("%w: usage: /swap <runner> <runner> [event]", domain.ErrBadRequest)
	}
	r1, err := findRunner(snap, args[0])
	if err != nil {
		return "", err
	}
	r2, err := findRunner(snap, args[1])
	if err != nil {
		return "", err
	}
	if r1 == r2 {
		return "", fmt.Errorf("%w: cannot swap a runner with itself", domain.ErrBadRequest)
	}
	event, err := inferStreamedEvent(snap, optArg(args, 2))
	if err != nil {
		return "", err
	}

	stream := snap.Streams[event]
	s1, s2 := stream.RunnerSlot(r1), stream.RunnerSlot(r2)
	if s1 == 0 && s2 == 0 {
		return "", fmt.Errorf("%w: neither runner is on the stream", domain.ErrNotFound)
	}
	if s1 == 0 || s2 == 0 {
		// One side is off-stream: replace the on-stream one in place.
		slot, incoming := s1, r2
		if s1 == 0 {
			slot, incoming = s2, r1
		}
		updated := stream
		updated.StreamRunners = make(map[int]int64, len(stream.StreamRunners))
		for k, v := range stream.StreamRunners {
			updated.StreamRunners[k] = v
		}
		updated.StreamRunners[slot] = incoming
		if _, err := a.hub.Apply(ctx, hub.UpdateStream{Stream: updated}); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s and %s swapped", args[0], args[1]), nil
	}
	if _, err := a.hub.Apply(ctx, hub.StreamSwapSlots{Event: event, A: s1, B: s2}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s and %s swapped", args[0], args[1]), nil
}

func (a *Adapter) layout(ctx context.Context, snap *domain.AMState, args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", fmt.Errorf("%w: usage: /layout <scene> [event]", domain.ErrBadRequest)
	}
	event, err := inferStreamedEvent(snap, optArg(args, 1))
	if err != nil {
		return "", err
	}
	if _, err := a.hub.Apply(ctx, hub.SetStreamLayout{Event: event, Layout: args[0]}); err != nil {
		return "", err
	}
	return fmt.Sprintf("layout set to %s", args[0]), nil
}

func (a *Adapter) refresh(ctx context.Context, snap *domain.AMState, args []string) (string, error) {
	var targets []int64
	if len(args) > 0 {
		runner, err := findRunner(snap, args[0])
		if err != nil {
			return "", err
		}
		targets = []int64{runner}
	} else {
		for id := range snap.Runners {
			targets = append(targets, id)
		}
	}
	for _, id := range targets {
		if _, err := a.hub.Apply(ctx, hub.RefreshRunnerURLs{ID: id}); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("refreshing %d stream(s)", len(targets)), nil
}

func (a *Adapter) setField(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("%w: usage: /set <key> [value]", domain.ErrBadRequest)
	}
	value := strings.Join(args[1:], " ")
	if _, err := a.hub.Apply(ctx, hub.SetCustomField{Key: args[0], Value: value}); err != nil {
		return "", err
	}
	if value == "" {
		return fmt.Sprintf("%s cleared", args[0]), nil
	}
	return fmt.Sprintf("%s = %s", args[0], value), nil
}

func (a *Adapter) audible(ctx context.Context, snap *domain.AMState, args []string) (string, error) {
	if len(args) < 1 || len(args) > 2 {
		return "", fmt.Errorf("%w: usage: /audible <runner> [event]", domain.ErrBadRequest)
	}
	runner, err := findRunner(snap, args[0])
	if err != nil {
		return "", err
	}
	event, err := inferStreamedEvent(snap, optArg(args, 1))
	if err != nil {
		return "", err
	}
	if _, err := a.hub.Apply(ctx, hub.SetAudible{Event: event, Runner: &runner}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s is now audible", args[0]), nil
}

func optArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
