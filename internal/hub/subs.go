package hub

import "github.com/BrickBench/AutoMarathon/internal/domain"

// StateSub receives full AMState snapshots. Delivery is coalesced: at most
// one snapshot is pending per subscriber, and a slow consumer only ever
// skips intermediate snapshots, never reorders them.
type StateSub struct {
	C   chan domain.AMState
	hub *Hub
}

// Close unregisters the subscriber.
func (s *StateSub) Close() {
	s.hub.mu.Lock()
	delete(s.hub.stateSubs, s)
	s.hub.mu.Unlock()
}

// LockSub receives LockState transitions, coalesced the same way.
type LockSub struct {
	C   chan domain.LockState
	hub *Hub
}

// Close unregisters the subscriber.
func (s *LockSub) Close() {
	s.hub.mu.Lock()
	delete(s.hub.lockSubs, s)
	s.hub.mu.Unlock()
}

// offer replaces any pending value with the newest one. Only the hub loop
// calls this, so the drain-then-send pair cannot race another producer.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
