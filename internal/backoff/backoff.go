// Package backoff provides the shared retry policy: exponential growth
// with full jitter.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy computes retry delays. The zero value is unusable; use New.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// New returns the standard upstream-retry policy (500 ms base, 30 s cap).
func New() Policy {
	return Policy{Base: 500 * time.Millisecond, Cap: 30 * time.Second}
}

// Delay returns a full-jitter delay for the given attempt (0-based):
// uniform over [0, min(cap, base*2^attempt)].
func (p Policy) Delay(attempt int) time.Duration {
	ceiling := p.Cap
	if shifted := p.Base << uint(attempt); attempt < 16 && shifted < p.Cap {
		ceiling = shifted
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// Sleep waits for the attempt's delay or until the context ends.
// It reports false when the context ended first.
func (p Policy) Sleep(ctx context.Context, attempt int) bool {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
