package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treesum-io/treesum/internal/common"
)

func newTestTracker(capacity int, window time.Duration) (*Tracker, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t := NewTracker(capacity, window)
	t.now = func() time.Time { return now }
	t.windowStart = now
	return t, &now
}

func TestCanUseBoundary(t *testing.T) {
	tr, _ := newTestTracker(100, time.Minute)

	assert.True(t, tr.CanUse(100))
	assert.False(t, tr.CanUse(101))

	tr.Use(60)
	assert.True(t, tr.CanUse(40))
	assert.False(t, tr.CanUse(41))
	assert.Equal(t, 40, tr.Remaining())
}

func TestUseNeverClampsButRemainingDoes(t *testing.T) {
	tr, _ := newTestTracker(100, time.Minute)

	// Actual usage above the admitted estimate may overshoot the window.
	tr.Use(150)
	assert.Equal(t, 0, tr.Remaining())
	assert.False(t, tr.CanUse(1))
}

func TestWindowResetIdempotence(t *testing.T) {
	tr, now := newTestTracker(100, time.Minute)

	tr.Use(90)
	assert.Equal(t, 10, tr.Remaining())

	*now = now.Add(time.Minute)
	assert.Equal(t, 100, tr.Remaining())
	assert.True(t, tr.CanUse(100))

	// Repeated observation after expiry keeps reporting a fresh window.
	*now = now.Add(time.Second)
	assert.Equal(t, 100, tr.Remaining())
}

func TestResetIsLazyOnEveryOperation(t *testing.T) {
	tr, now := newTestTracker(50, time.Minute)

	tr.Use(50)
	assert.False(t, tr.CanUse(1))

	*now = now.Add(61 * time.Second)
	// CanUse observes the expiry and resets before checking.
	assert.True(t, tr.CanUse(50))
}

func TestWaitReturnsImmediatelyWhenRoomExists(t *testing.T) {
	tr := NewTracker(100, time.Minute)
	err := tr.Wait(context.Background(), 10, 5*time.Millisecond, 50*time.Millisecond)
	require.NoError(t, err)
}

func TestWaitTimesOut(t *testing.T) {
	tr := NewTracker(100, time.Hour)
	tr.Use(100)

	err := tr.Wait(context.Background(), 10, 5*time.Millisecond, 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrBudgetTimeout))
}

func TestWaitSucceedsAfterWindowRollover(t *testing.T) {
	tr := NewTracker(100, 30*time.Millisecond)
	tr.Use(100)

	err := tr.Wait(context.Background(), 10, 10*time.Millisecond, time.Second)
	require.NoError(t, err)
}

func TestWaitCancellable(t *testing.T) {
	tr := NewTracker(100, time.Hour)
	tr.Use(100)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	err := tr.Wait(ctx, 10, 5*time.Millisecond, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
