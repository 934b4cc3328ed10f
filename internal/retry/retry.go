// Package retry re-executes transient provider failures with classified
// backoff. This is the only place failures are downgraded to delayed retries;
// every other component treats a returned error as terminal for that call.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/treesum-io/treesum/constants"
	"github.com/treesum-io/treesum/internal/common"
	"github.com/treesum-io/treesum/internal/llm"
)

// Policy configures classified retries.
type Policy struct {
	// MaxAttempts is the number of re-executions after the first try,
	// so a function runs at most MaxAttempts+1 times.
	MaxAttempts int
	// BackoffCap bounds the exponential delay between attempts.
	BackoffCap time.Duration
	Logger     *slog.Logger

	// Sleep is swapped in tests to observe delays without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the production policy.
func DefaultPolicy(logger *slog.Logger) Policy {
	return Policy{
		MaxAttempts: constants.DefaultMaxRetryAttempts,
		BackoffCap:  constants.RetryBackoffCap,
		Logger:      logger,
	}
}

// Do executes fn, re-executing on rate-limit (429) and server (>=500) provider
// errors with backoff. Any other failure propagates immediately. Once attempts
// are exhausted the last error is returned wrapped as retries-exhausted.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	maxDelay := p.BackoffCap
	if maxDelay <= 0 {
		maxDelay = constants.RetryBackoffCap
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		delay, retryable := classify(err, attempt, maxDelay)
		if !retryable {
			return zero, err
		}
		if attempt == p.MaxAttempts+1 {
			break
		}

		logger.Warn("retry.backoff",
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", common.ErrRetriesExhausted, p.MaxAttempts+1, lastErr)
}

// classify maps a failure to its pre-retry delay. A provider retry-after hint
// takes precedence for 429; otherwise the delay doubles per attempt up to cap.
func classify(err error, attempt int, maxDelay time.Duration) (time.Duration, bool) {
	var perr *llm.ProviderError
	if !errors.As(err, &perr) {
		return 0, false
	}
	switch {
	case perr.Status == 429:
		if perr.RetryAfter > 0 {
			return perr.RetryAfter, true
		}
		return backoff(attempt, maxDelay), true
	case perr.Status >= 500:
		return backoff(attempt, maxDelay), true
	default:
		return 0, false
	}
}

func backoff(attempt int, maxDelay time.Duration) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
