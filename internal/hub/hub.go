// Package hub implements the State Hub: the single writer over the domain
// model. Mutations arrive on a bounded queue, are validated, persisted,
// applied in memory, and broadcast as coalesced snapshots, in one serial
// loop, so every subscriber observes the same total order.
package hub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BrickBench/AutoMarathon/internal/domain"
	"github.com/BrickBench/AutoMarathon/internal/lock"
	"github.com/BrickBench/AutoMarathon/internal/metrics"
	"github.com/BrickBench/AutoMarathon/internal/store"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

const (
	requestQueueLen = 256
	refreshQueueLen = 64
	subBufferLen    = 1
)

type request struct {
	mut   Mutation
	reply chan applyResult
}

type applyResult struct {
	state domain.AMState
	err   error
}

// Hub owns the authoritative state.
type Hub struct {
	store *store.Store
	state domain.AMState
	clock func() int64

	reqs    chan request
	refresh chan int64
	quit    chan struct{}
	doneCh  chan struct{}

	mu          sync.Mutex
	stateSubs   map[*StateSub]struct{}
	lockSubs    map[*LockSub]struct{}
	hostChans   map[string]chan Desired
	lastDesired map[string]Desired
	streaming   map[string]*bool
}

// New loads the persisted state and returns a hub ready to Start.
// clock reports wall time in epoch milliseconds; pass nil for real time.
func New(st *store.Store, clock func() int64) (*Hub, error) {
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}
	state, err := st.LoadState()
	if err != nil {
		return nil, err
	}
	return &Hub{
		store:       st,
		state:       state,
		clock:       clock,
		reqs:        make(chan request, requestQueueLen),
		refresh:     make(chan int64, refreshQueueLen),
		quit:        make(chan struct{}),
		doneCh:      make(chan struct{}),
		stateSubs:   make(map[*StateSub]struct{}),
		lockSubs:    make(map[*LockSub]struct{}),
		hostChans:   make(map[string]chan Desired),
		lastDesired: make(map[string]Desired),
		streaming:   make(map[string]*bool),
	}, nil
}

// Start launches the hub loop.
func (h *Hub) Start(ctx context.Context) {
	go h.run(ctx)
}

// Stop asks the loop to finish its current mutation and exit.
func (h *Hub) Stop() { close(h.quit) }

// Done is closed once the loop has exited.
func (h *Hub) Done() <-chan struct{} { return h.doneCh }

func (h *Hub) run(ctx context.Context) {
	defer close(h.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.quit:
			return
		case req := <-h.reqs:
			err := h.apply(req.mut)
			res := applyResult{err: err}
			if err == nil {
				res.state = h.state.Clone()
			}
			req.reply <- res
		}
	}
}

// Apply submits a mutation and waits for the serialized result. The
// returned snapshot reflects the state immediately after this mutation.
func (h *Hub) Apply(ctx context.Context, m Mutation) (domain.AMState, error) {
	req := request{mut: m, reply: make(chan applyResult, 1)}
	select {
	case h.reqs <- req:
	case <-ctx.Done():
		return domain.AMState{}, fmt.Errorf("%w: hub queue", domain.ErrTimeout)
	}
	select {
	case res := <-req.reply:
		return res.state, res.err
	case <-ctx.Done():
		return domain.AMState{}, fmt.Errorf("%w: hub reply", domain.ErrTimeout)
	}
}

// Snapshot returns the current state through the serial loop, so it is
// ordered with respect to every mutation.
func (h *Hub) Snapshot(ctx context.Context) (domain.AMState, error) {
	return h.Apply(ctx, nop{})
}

type nop struct{}

func (nop) mutation() {}

// Subscribe registers a state-subscriber and primes it with the current
// snapshot.
func (h *Hub) Subscribe(ctx context.Context) *StateSub {
	sub := &StateSub{C: make(chan domain.AMState, subBufferLen), hub: h}
	snap, err := h.Snapshot(ctx)
	h.mu.Lock()
	h.stateSubs[sub] = struct{}{}
	h.mu.Unlock()
	if err == nil {
		offer(sub.C, snap)
	}
	return sub
}

// SubscribeLock registers a lock-subscriber primed with the current lock.
func (h *Hub) SubscribeLock(ctx context.Context) *LockSub {
	sub := &LockSub{C: make(chan domain.LockState, subBufferLen), hub: h}
	snap, err := h.Snapshot(ctx)
	h.mu.Lock()
	h.lockSubs[sub] = struct{}{}
	h.mu.Unlock()
	if err == nil {
		offer(sub.C, snap.Lock)
	}
	return sub
}

// HostCommands returns the coalesced desired-state channel for a host.
func (h *Hub) HostCommands(host string) <-chan Desired {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.hostChans[host]
	if !ok {
		ch = make(chan Desired, subBufferLen)
		h.hostChans[host] = ch
	}
	return ch
}

// RefreshRequests returns the queue of runner ids awaiting URL
// re-resolution, consumed by the resolver worker.
func (h *Hub) RefreshRequests() <-chan int64 { return h.refresh }

// apply runs one mutation: validate, persist, mutate memory, broadcast.
// A persistence failure leaves memory untouched.
func (h *Hub) apply(m Mutation) error {
	if _, ok := m.(nop); ok {
		return nil
	}

	lockBefore := h.state.Lock
	err := h.applyOne(m)
	metrics.MutationApplied(fmt.Sprintf("%T", m), err == nil)
	if err != nil {
		return err
	}

	h.state.Revision++
	h.broadcast(lockBefore)
	return nil
}

func (h *Hub) applyOne(m Mutation) error {
	switch m := m.(type) {
	case CreatePerson:
		p := m.Person
		p.ID = 0
		if err := h.store.SavePerson(&p); err != nil {
			return err
		}
		h.state.People[p.ID] = p

	case UpdatePerson:
		p := m.Person
		if _, ok := h.state.People[p.ID]; !ok {
			return fmt.Errorf("%w: person %d", domain.ErrNotFound, p.ID)
		}
		if err := h.store.SavePerson(&p); err != nil {
			return err
		}
		h.state.People[p.ID] = p

	case DeletePerson:
		if _, ok := h.state.People[m.ID]; !ok {
			return fmt.Errorf("%w: person %d", domain.ErrNotFound, m.ID)
		}
		if ev, used := domain.RunnerInUse(&h.state, m.ID); used {
			return fmt.Errorf("%w: runner %d is referenced by event %d", domain.ErrInUse, m.ID, ev)
		}
		if err := h.store.DeletePerson(m.ID); err != nil {
			return err
		}
		delete(h.state.People, m.ID)
		delete(h.state.Runners, m.ID)

	case CreateRunner:
		r := m.Runner
		if _, ok := h.state.People[r.Participant]; !ok {
			return fmt.Errorf("%w: person %d", domain.ErrNotFound, r.Participant)
		}
		if err := h.store.SaveRunner(&r); err != nil {
			return err
		}
		h.state.Runners[r.Participant] = r

	case UpdateRunner:
		r := m.Runner
		if _, ok := h.state.Runners[r.Participant]; !ok {
			return fmt.Errorf("%w: runner %d", domain.ErrNotFound, r.Participant)
		}
		if err := h.store.SaveRunner(&r); err != nil {
			return err
		}
		h.state.Runners[r.Participant] = r

	case DeleteRunner:
		if _, ok := h.state.Runners[m.ID]; !ok {
			return fmt.Errorf("%w: runner %d", domain.ErrNotFound, m.ID)
		}
		if ev, used := domain.RunnerInUse(&h.state, m.ID); used {
			return fmt.Errorf("%w: runner %d is referenced by event %d", domain.ErrInUse, m.ID, ev)
		}
		if err := h.store.DeleteRunner(m.ID); err != nil {
			return err
		}
		delete(h.state.Runners, m.ID)

	case SetRunnerURLs:
		r, ok := h.state.Runners[m.ID]
		if !ok {
			return fmt.Errorf("%w: runner %d", domain.ErrNotFound, m.ID)
		}
		r.ResolvedURLs = m.URLs
		if err := h.store.SaveRunner(&r); err != nil {
			return err
		}
		h.state.Runners[m.ID] = r

	case RefreshRunnerURLs:
		if _, ok := h.state.Runners[m.ID]; !ok {
			return fmt.Errorf("%w: runner %d", domain.ErrNotFound, m.ID)
		}
		select {
		case h.refresh <- m.ID:
		default:
			return fmt.Errorf("%w: resolver queue full", domain.ErrUpstream)
		}

	case CreateEvent:
		e := m.Event
		e.ID = 0
		if err := domain.ValidateEvent(&h.state, &e); err != nil {
			return err
		}
		if err := h.store.SaveEvent(&e); err != nil {
			return err
		}
		h.state.Events[e.ID] = e

	case UpdateEvent:
		e := m.Event
		if _, ok := h.state.Events[e.ID]; !ok {
			return fmt.Errorf("%w: event %d", domain.ErrNotFound, e.ID)
		}
		if err := domain.ValidateEvent(&h.state, &e); err != nil {
			return err
		}
		if st, ok := h.state.Streams[e.ID]; ok {
			for slot, runner := range st.StreamRunners {
				if !e.HasRunner(runner) {
					return domain.Invariantf("invariant 2: slot %d runner %d not in updated event", slot, runner)
				}
			}
		}
		if err := h.store.SaveEvent(&e); err != nil {
			return err
		}
		h.state.Events[e.ID] = e

	case DeleteEvent:
		if _, ok := h.state.Events[m.ID]; !ok {
			return fmt.Errorf("%w: event %d", domain.ErrNotFound, m.ID)
		}
		if err := h.store.DeleteEvent(m.ID); err != nil {
			return err
		}
		delete(h.state.Events, m.ID)
		delete(h.state.Streams, m.ID)

	case CreateStream:
		st := m.Stream
		if _, ok := h.state.Streams[st.Event]; ok {
			return domain.Invariantf("event %d already has a stream", st.Event)
		}
		if other, ok := h.state.StreamForHost(st.OBSHost); ok {
			return domain.Invariantf("host %q already streams event %d", st.OBSHost, other.Event)
		}
		if _, ok := h.state.Hosts[st.OBSHost]; !ok {
			return fmt.Errorf("%w: host %q", domain.ErrNotFound, st.OBSHost)
		}
		if st.StreamRunners == nil {
			st.StreamRunners = make(map[int]int64)
		}
		if err := domain.ValidateStream(&h.state, &st); err != nil {
			return err
		}
		if err := h.store.SaveStream(&st); err != nil {
			return err
		}
		h.state.Streams[st.Event] = st

	case UpdateStream:
		cur, ok := h.state.Streams[m.Stream.Event]
		if !ok {
			return fmt.Errorf("%w: stream for event %d", domain.ErrNotFound, m.Stream.Event)
		}
		st := m.Stream
		if st.OBSHost != cur.OBSHost {
			if other, inUse := h.state.StreamForHost(st.OBSHost); inUse {
				return domain.Invariantf("host %q already streams event %d", st.OBSHost, other.Event)
			}
			if _, known := h.state.Hosts[st.OBSHost]; !known {
				return fmt.Errorf("%w: host %q", domain.ErrNotFound, st.OBSHost)
			}
		}
		if err := domain.ValidateStream(&h.state, &st); err != nil {
			return err
		}
		if err := h.store.SaveStream(&st); err != nil {
			return err
		}
		h.state.Streams[st.Event] = st

	case DeleteStream:
		if _, ok := h.state.Streams[m.Event]; !ok {
			return fmt.Errorf("%w: stream for event %d", domain.ErrNotFound, m.Event)
		}
		if err := h.store.DeleteStream(m.Event); err != nil {
			return err
		}
		delete(h.state.Streams, m.Event)

	case StreamAddRunner:
		return h.mutateStream(m.Event, func(st *domain.Stream, host domain.Host, ev domain.Event) error {
			return domain.AddStreamRunner(st, host, ev, m.Runner)
		})

	case StreamRemoveSlot:
		return h.mutateStream(m.Event, func(st *domain.Stream, host domain.Host, ev domain.Event) error {
			return domain.RemoveStreamSlot(st, host, ev, m.Slot)
		})

	case StreamSwapSlots:
		return h.mutateStream(m.Event, func(st *domain.Stream, host domain.Host, ev domain.Event) error {
			return domain.SwapStreamSlots(st, host, m.A, m.B)
		})

	case SetAudible:
		return h.mutateStream(m.Event, func(st *domain.Stream, host domain.Host, ev domain.Event) error {
			st.AudibleRunner = m.Runner
			return nil
		})

	case SetStreamLayout:
		return h.mutateStream(m.Event, func(st *domain.Stream, host domain.Host, ev domain.Event) error {
			st.RequestedLayout = m.Layout
			return nil
		})

	case SetTimer:
		ev, ok := h.state.Events[m.Event]
		if !ok {
			return fmt.Errorf("%w: event %d", domain.ErrNotFound, m.Event)
		}
		if err := domain.ValidateTimer(m.Start, m.End); err != nil {
			return err
		}
		ev.TimerStartMs = m.Start
		ev.TimerEndMs = m.End
		if err := h.store.SaveEvent(&ev); err != nil {
			return err
		}
		h.state.Events[m.Event] = ev

	case SetCustomField:
		if m.Key == "" {
			return fmt.Errorf("%w: empty custom field key", domain.ErrBadRequest)
		}
		if err := h.store.SaveCustomField(m.Key, m.Value); err != nil {
			return err
		}
		if m.Value == "" {
			delete(h.state.CustomFields, m.Key)
		} else {
			h.state.CustomFields[m.Key] = m.Value
		}

	case SetVoiceGain:
		found := false
		for name, host := range h.state.Hosts {
			if u, ok := host.VoiceUsers[m.User]; ok {
				u.GainPercent = m.Gain
				host.VoiceUsers[m.User] = u
				h.state.Hosts[name] = host
				found = true
			}
		}
		if !found {
			return fmt.Errorf("%w: voice user %q", domain.ErrNotFound, m.User)
		}

	case SetStreaming:
		if _, ok := h.state.Hosts[m.Host]; !ok {
			return fmt.Errorf("%w: host %q", domain.ErrNotFound, m.Host)
		}
		v := m.Streaming
		h.mu.Lock()
		h.streaming[m.Host] = &v
		h.mu.Unlock()

	case ClaimLock:
		next, err := lock.Claim(h.state.Lock, m.Editor, h.clock())
		if err != nil {
			return err
		}
		if err := h.store.SaveLock(next); err != nil {
			return err
		}
		h.state.Lock = next

	case HeartbeatLock:
		next, err := lock.Heartbeat(h.state.Lock, m.Editor, h.clock())
		if err != nil {
			return err
		}
		if err := h.store.SaveLock(next); err != nil {
			return err
		}
		h.state.Lock = next

	case ReleaseLock:
		next, err := lock.Release(h.state.Lock, m.Editor)
		if err != nil {
			return err
		}
		if err := h.store.SaveLock(next); err != nil {
			return err
		}
		h.state.Lock = next

	case SetHostStatus:
		host := m.Host
		prev, known := h.state.Hosts[host.Name]
		if !known {
			return fmt.Errorf("%w: host %q", domain.ErrNotFound, host.Name)
		}
		// Voice users are owned by the voice bridge, not the reconciler.
		host.VoiceUsers = prev.VoiceUsers
		h.state.Hosts[host.Name] = host

	case SetHostVoiceUsers:
		host, known := h.state.Hosts[m.Host]
		if !known {
			return fmt.Errorf("%w: host %q", domain.ErrNotFound, m.Host)
		}
		merged := make(map[string]domain.VoiceUser, len(m.Users))
		for id, u := range m.Users {
			if prev, ok := host.VoiceUsers[id]; ok && u.GainPercent == 0 {
				u.GainPercent = prev.GainPercent
			}
			if u.GainPercent == 0 {
				u.GainPercent = 100
			}
			if u.Participant == nil {
				u.Participant = h.participantForVoiceUser(u.Name)
			}
			merged[id] = u
		}
		host.VoiceUsers = merged
		h.state.Hosts[m.Host] = host

	default:
		return fmt.Errorf("%w: unknown mutation %T", domain.ErrBadRequest, m)
	}
	return nil
}

// mutateStream runs op against a copy of the stream and commits on success.
func (h *Hub) mutateStream(event int64, op func(*domain.Stream, domain.Host, domain.Event) error) error {
	cur, ok := h.state.Streams[event]
	if !ok {
		return fmt.Errorf("%w: stream for event %d", domain.ErrNotFound, event)
	}
	ev, ok := h.state.Events[event]
	if !ok {
		return fmt.Errorf("%w: event %d", domain.ErrNotFound, event)
	}
	host, ok := h.state.Hosts[cur.OBSHost]
	if !ok {
		return fmt.Errorf("%w: host %q", domain.ErrNotFound, cur.OBSHost)
	}

	st := cur
	st.StreamRunners = make(map[int]int64, len(cur.StreamRunners))
	for k, v := range cur.StreamRunners {
		st.StreamRunners[k] = v
	}
	if cur.AudibleRunner != nil {
		a := *cur.AudibleRunner
		st.AudibleRunner = &a
	}

	if err := op(&st, host, ev); err != nil {
		return err
	}
	if err := domain.ValidateStream(&h.state, &st); err != nil {
		return err
	}
	if err := h.store.SaveStream(&st); err != nil {
		return err
	}
	h.state.Streams[event] = st
	return nil
}

// participantForVoiceUser matches a voice user name to a Person by
// discord id or name.
func (h *Hub) participantForVoiceUser(name string) *int64 {
	var ids []int64
	for id, p := range h.state.People {
		if (p.DiscordID != nil && *p.DiscordID == name) || p.Name == name {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &ids[0]
}

// broadcast fans the new snapshot out to every subscriber and recomputes
// per-host desired state.
func (h *Hub) broadcast(lockBefore domain.LockState) {
	snap := h.state.Clone()

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.stateSubs {
		offer(sub.C, snap)
	}
	metrics.SetStateSubscribers(len(h.stateSubs))

	if snap.Lock != lockBefore {
		for sub := range h.lockSubs {
			offer(sub.C, snap.Lock)
		}
		logger := pkglog.L()
		logger.Info().
			Str(pkglog.FieldEditor, snap.Lock.Editor).
			Msg("editor lock transition")
	}

	for host, ch := range h.hostChans {
		d := desiredFor(&h.state, host, h.streaming[host])
		if last, ok := h.lastDesired[host]; ok && last.Equal(d) {
			continue
		}
		h.lastDesired[host] = d
		offer(ch, d)
	}
}
