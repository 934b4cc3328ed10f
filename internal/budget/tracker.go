// Package budget enforces a tokens-per-window ceiling ahead of job submission.
//
// The window is a fixed reset bucket, not a continuously sliding log: usage
// snaps back to zero the first time any access observes the window expired.
// That trades perfect smoothness for O(1) state and matches how providers
// publish fixed per-minute quotas.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/treesum-io/treesum/internal/common"
)

// Tracker is a sliding reset window counter. All operations are serialized by
// one mutex; every concurrent job both checks and later updates it, so an
// unsynchronized read-then-write here is the primary overshoot hazard.
type Tracker struct {
	mu          sync.Mutex
	capacity    int
	window      time.Duration
	windowStart time.Time
	used        int

	now func() time.Time
}

// NewTracker builds a tracker admitting at most capacity tokens per window.
func NewTracker(capacity int, window time.Duration) *Tracker {
	t := &Tracker{
		capacity: capacity,
		window:   window,
		now:      time.Now,
	}
	t.windowStart = t.now()
	return t
}

// maybeReset zeroes the window lazily once it has expired. Callers hold t.mu.
func (t *Tracker) maybeReset() {
	now := t.now()
	if now.Sub(t.windowStart) >= t.window {
		t.windowStart = now
		t.used = 0
	}
}

// CanUse reports whether estimate tokens fit in the current window.
func (t *Tracker) CanUse(estimate int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeReset()
	return t.used+estimate <= t.capacity
}

// Use records amount tokens against the current window. It never rejects and
// never clamps: recording an actual usage larger than the admitted estimate
// may push the window temporarily over capacity.
func (t *Tracker) Use(amount int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeReset()
	t.used += amount
}

// Remaining returns the unclaimed tokens in the current window, never negative.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeReset()
	if t.used >= t.capacity {
		return 0
	}
	return t.capacity - t.used
}

// Capacity returns the per-window ceiling.
func (t *Tracker) Capacity() int {
	return t.capacity
}

// Wait blocks until estimate tokens fit in the window, polling every poll
// interval, or fails once timeout elapses. The wait is a documented suspension
// point: cancellable via ctx, timer-driven rather than a busy sleep loop.
// A timeout means the configured TPM is structurally insufficient for the
// workload, so callers must treat it as fatal for the run.
func (t *Tracker) Wait(ctx context.Context, estimate int, poll, timeout time.Duration) error {
	if t.CanUse(estimate) {
		return nil
	}
	deadline := t.now().Add(timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.CanUse(estimate) {
				return nil
			}
			if t.now().After(deadline) {
				return common.NewAppError("BUDGET_TIMEOUT",
					fmt.Sprintf("estimate %d tokens did not fit within %s (capacity %d/window)", estimate, timeout, t.capacity),
					common.ErrBudgetTimeout)
			}
		}
	}
}
