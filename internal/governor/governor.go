// Package governor implements the rate-limit gate: it tracks the most
// recently observed rate-limit snapshot plus a count of reservations
// dispatched but not yet accounted for, and blocks callers until a unit of
// budget is available.
package governor

import (
	"context"
	"sync"
	"time"

	"repo-crawler/internal/model"
)

// Governor gates worker dispatch against a shared rate-limit budget. All
// three operations (Reserve, Observe, ReleaseWithoutCall) are mutually
// exclusive; Reserve's wait releases the lock while suspended, exactly like
// a condition variable.
type Governor struct {
	mu          sync.Mutex
	cond        *sync.Cond
	snapshot    model.RateLimitSnapshot
	outstanding int

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New builds a Governor initialized with a full budget of limit requests.
func New(limit int) *Governor {
	g := &Governor{
		snapshot: model.RateLimitSnapshot{Remaining: limit, Limit: limit, ResetAt: time.Now()},
		now:      time.Now,
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Snapshot returns the currently stored rate-limit snapshot.
func (g *Governor) Snapshot() model.RateLimitSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot
}

// Reserve blocks until a unit of budget is available, then holds it as
// outstanding until the caller later calls Observe or ReleaseWithoutCall.
// It returns early with ctx.Err() if the context is canceled while waiting.
func (g *Governor) Reserve(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if g.snapshot.Remaining-g.outstanding > 0 {
			g.outstanding++
			return nil
		}

		now := g.now()
		if !now.Before(g.snapshot.ResetAt) {
			g.snapshot.Remaining = g.snapshot.Limit
			continue
		}

		wait := g.snapshot.ResetAt.Sub(now)
		if g.waitFor(ctx, wait) {
			return ctx.Err()
		}
	}
}

// waitFor releases the lock for up to d, or until some other goroutine
// broadcasts on the condition variable (via Observe), or until ctx is
// canceled. It reacquires the lock before returning. The return value
// reports whether ctx was canceled.
func (g *Governor) waitFor(ctx context.Context, d time.Duration) bool {
	timer := time.AfterFunc(d, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer stop()

	g.cond.Wait()
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Observe folds a newly reported rate-limit snapshot into the stored state:
// if its reset deadline is strictly later, it replaces the stored snapshot
// wholesale; otherwise the stored reset deadline is kept but Remaining
// becomes the minimum of the two (conservative). Decrements the outstanding
// counter regardless of whether the call that produced snap succeeded.
func (g *Governor) Observe(snap model.RateLimitSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if snap.ResetAt.After(g.snapshot.ResetAt) {
		g.snapshot = snap
	} else if snap.Remaining < g.snapshot.Remaining {
		g.snapshot.Remaining = snap.Remaining
	}

	if g.outstanding > 0 {
		g.outstanding--
	}
	g.cond.Broadcast()
}

// ReleaseWithoutCall decrements the outstanding counter without touching the
// snapshot; used when a reservation was acquired but no call was ultimately
// issued (e.g. the queue closed mid-reservation).
func (g *Governor) ReleaseWithoutCall() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outstanding > 0 {
		g.outstanding--
	}
	g.cond.Broadcast()
}

// Outstanding reports the number of reservations held but not yet observed.
func (g *Governor) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outstanding
}
