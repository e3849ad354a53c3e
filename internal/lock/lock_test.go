package lock

import (
	"errors"
	"testing"

	"github.com/BrickBench/AutoMarathon/internal/domain"
)

func TestClaimUnheld(t *testing.T) {
	got, err := Claim(domain.LockState{}, "alice", 1000)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got.Editor != "alice" || got.HeartbeatMs != 1000 {
		t.Errorf("lock = %+v", got)
	}
}

func TestClaimConflictWhileFresh(t *testing.T) {
	cur := domain.LockState{Editor: "alice", HeartbeatMs: 1000}

	// Bob claims within the takeover window while Alice heartbeats.
	_, err := Claim(cur, "bob", 1000+TakeoverAfterMs)
	if !errors.Is(err, domain.ErrNotLockHolder) {
		t.Fatalf("err = %v, want ErrNotLockHolder", err)
	}
}

func TestClaimIdleTakeover(t *testing.T) {
	cur := domain.LockState{Editor: "alice", HeartbeatMs: 1000}

	// After 61 s of silence the claim always succeeds.
	got, err := Claim(cur, "bob", 1000+TakeoverAfterMs+1)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got.Editor != "bob" {
		t.Errorf("editor = %q, want bob", got.Editor)
	}
}

func TestClaimReentrantRefreshesHeartbeat(t *testing.T) {
	cur := domain.LockState{Editor: "alice", HeartbeatMs: 1000}
	got, err := Claim(cur, "alice", 5000)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got.HeartbeatMs != 5000 {
		t.Errorf("heartbeat = %d, want 5000", got.HeartbeatMs)
	}
}

func TestHandOffScenario(t *testing.T) {
	// Alice claims; Bob fails while she heartbeats; after she goes
	// silent past the window, Bob's claim wins.
	now := int64(10_000)
	state, err := Claim(domain.LockState{}, "alice", now)
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}

	for i := 0; i < 3; i++ {
		now += HeartbeatEveryMs
		state, err = Heartbeat(state, "alice", now)
		if err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
		if _, err := Claim(state, "bob", now+1); !errors.Is(err, domain.ErrNotLockHolder) {
			t.Fatalf("bob claim should fail while alice heartbeats, got %v", err)
		}
	}

	now += TakeoverAfterMs + 1000
	state, err = Claim(state, "bob", now)
	if err != nil {
		t.Fatalf("bob takeover: %v", err)
	}
	if state.Editor != "bob" {
		t.Errorf("editor = %q, want bob", state.Editor)
	}
}

func TestHeartbeatRequiresHolder(t *testing.T) {
	cur := domain.LockState{Editor: "alice", HeartbeatMs: 1000}
	if _, err := Heartbeat(cur, "bob", 2000); !errors.Is(err, domain.ErrNotLockHolder) {
		t.Fatalf("err = %v, want ErrNotLockHolder", err)
	}
}

func TestReleaseRules(t *testing.T) {
	cur := domain.LockState{Editor: "alice", HeartbeatMs: 1000}

	if _, err := Release(cur, "bob"); !errors.Is(err, domain.ErrNotLockHolder) {
		t.Fatalf("release by non-holder: %v", err)
	}

	got, err := Release(cur, "alice")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got.Held() {
		t.Errorf("lock still held after release: %+v", got)
	}

	// Releasing an unheld lock is a no-op.
	if _, err := Release(domain.LockState{}, "carol"); err != nil {
		t.Fatalf("release unheld: %v", err)
	}
}

func TestHolderMayMutate(t *testing.T) {
	cur := domain.LockState{Editor: "alice", HeartbeatMs: 1000}
	if !HolderMayMutate(cur, "alice", 2000) {
		t.Error("holder with fresh heartbeat should pass")
	}
	if HolderMayMutate(cur, "bob", 2000) {
		t.Error("non-holder should fail")
	}
	if HolderMayMutate(cur, "alice", 1000+TakeoverAfterMs+1) {
		t.Error("stale holder should fail")
	}
	if HolderMayMutate(domain.LockState{}, "alice", 2000) {
		t.Error("unheld lock should fail")
	}
}
