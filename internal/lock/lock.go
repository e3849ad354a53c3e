// Package lock implements the dashboard editor's single-writer advisory
// lock: claims, heartbeats, and idle takeover.
package lock

import (
	"fmt"

	"github.com/BrickBench/AutoMarathon/internal/domain"
)

const (
	// TakeoverAfterMs is how long a holder may go silent before any
	// claimant may take the lock.
	TakeoverAfterMs = 60_000
	// HeartbeatEveryMs is the refresh cadence required of the holder.
	HeartbeatEveryMs = 20_000
)

// Claim attempts to acquire the lock for editor at nowMs. The claim wins
// when the lock is unheld, already held by the same editor, or the current
// holder's heartbeat is stale.
func Claim(cur domain.LockState, editor string, nowMs int64) (domain.LockState, error) {
	if editor == "" {
		return domain.LockState{}, fmt.Errorf("%w: empty editor name", domain.ErrBadRequest)
	}
	if cur.Held() && cur.Editor != editor && nowMs-cur.HeartbeatMs <= TakeoverAfterMs {
		return cur, fmt.Errorf("%w: dashboard is locked by %s", domain.ErrNotLockHolder, cur.Editor)
	}
	return domain.LockState{Editor: editor, HeartbeatMs: nowMs}, nil
}

// Heartbeat refreshes the holder's heartbeat. Only the holder may refresh.
func Heartbeat(cur domain.LockState, editor string, nowMs int64) (domain.LockState, error) {
	if cur.Editor != editor {
		return cur, fmt.Errorf("%w: %s does not hold the lock", domain.ErrNotLockHolder, editor)
	}
	cur.HeartbeatMs = nowMs
	return cur, nil
}

// Release clears the lock. Releasing a lock held by someone else fails;
// releasing an unheld lock is a no-op.
func Release(cur domain.LockState, editor string) (domain.LockState, error) {
	if !cur.Held() {
		return cur, nil
	}
	if cur.Editor != editor {
		return cur, fmt.Errorf("%w: %s does not hold the lock", domain.ErrNotLockHolder, editor)
	}
	return domain.LockState{}, nil
}

// HolderMayMutate reports whether editor currently satisfies the
// layout-mutation lock check.
func HolderMayMutate(cur domain.LockState, editor string, nowMs int64) bool {
	return cur.Held() && cur.Editor == editor && nowMs-cur.HeartbeatMs <= TakeoverAfterMs
}
