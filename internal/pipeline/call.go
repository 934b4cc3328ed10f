package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/treesum-io/treesum/constants"
	"github.com/treesum-io/treesum/internal/budget"
	"github.com/treesum-io/treesum/internal/common"
	"github.com/treesum-io/treesum/internal/llm"
	"github.com/treesum-io/treesum/internal/queue"
	"github.com/treesum-io/treesum/internal/retry"
	"github.com/treesum-io/treesum/internal/token"
)

// caller owns the estimate → admit → submit → retry → record sequence shared by
// the map and reduce stages. Tracker and queue are per-run instances handed in
// by the summarizer; nothing here is process-global.
type caller struct {
	logger   *slog.Logger
	runID    uuid.UUID
	invoker  llm.Invoker
	tracker  *budget.Tracker
	queue    *queue.Queue
	policy   retry.Policy
	counter  token.Counter
	encoding constants.Encoding
	recorder Recorder

	temperature   float32
	poll          time.Duration
	budgetTimeout time.Duration
}

// admit reserves a token-budget slot for the prompt and returns the estimate
// that was checked. A prompt that can never fit the window capacity fails
// immediately as a configuration-class error: it is not worth waiting for.
func (c *caller) admit(ctx context.Context, phase constants.Phase, seq int, prompt string, outputCap int) (int, error) {
	promptTokens := c.counter.Count(prompt, c.encoding)
	estimate := promptTokens + outputCap

	if estimate > c.tracker.Capacity() {
		return 0, common.NewAppError("IMPOSSIBLE_ESTIMATE",
			fmt.Sprintf("%s call %d needs %d tokens (prompt %d + output cap %d) but window capacity is %d",
				phase, seq, estimate, promptTokens, outputCap, c.tracker.Capacity()),
			common.ErrConfig)
	}

	c.logger.Debug("admission.wait",
		"phase", phase, "seq", seq,
		"estimate_tokens", estimate,
		"remaining_tokens", c.tracker.Remaining(),
	)
	start := time.Now()
	if err := c.tracker.Wait(ctx, estimate, c.poll, c.budgetTimeout); err != nil {
		c.record(ctx, phase, seq, 0, estimate, nil, start, err)
		return 0, err
	}
	return estimate, nil
}

// invoke submits the admitted call through the retry policy. Each retry
// attempt is a fresh queue submission, so backoff never holds a worker slot
// and every remote attempt counts against the request-rate cap. On success
// the tracker is charged the provider-reported usage when present, falling
// back to the pre-admission estimate.
func (c *caller) invoke(ctx context.Context, phase constants.Phase, seq int, prompt string, estimate, outputCap int) (string, error) {
	start := time.Now()

	// The task runs on a worker goroutine and may still be in flight when a
	// cancelled wait abandons its future, so the bookkeeping it writes is
	// read back only under this mutex.
	var mu sync.Mutex
	attempts := 0
	var actual *int

	task := func(ctx context.Context) (string, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		resp, err := c.invoker.Invoke(ctx, prompt, llm.Options{
			MaxOutputTokens: outputCap,
			Temperature:     c.temperature,
		})
		if err != nil {
			return "", err
		}
		if resp.Content == "" {
			return "", common.ErrEmptyResponse
		}
		billed, ok := resp.Usage.Billed()
		if !ok {
			billed = estimate
		}
		c.tracker.Use(billed)
		mu.Lock()
		actual = &billed
		mu.Unlock()
		return resp.Content, nil
	}

	result, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		fut, serr := c.queue.Submit(ctx, task)
		if serr != nil {
			return "", serr
		}
		return fut.Wait(ctx)
	})

	mu.Lock()
	attemptCount, actualTokens := attempts, actual
	mu.Unlock()
	c.record(ctx, phase, seq, attemptCount, estimate, actualTokens, start, err)
	if err != nil {
		return "", err
	}
	return result, nil
}

func (c *caller) record(ctx context.Context, phase constants.Phase, seq, attempts, estimate int, actual *int, start time.Time, callErr error) {
	status := constants.CallStatusOK
	errMsg := ""
	if callErr != nil {
		status = constants.CallStatusFailed
		errMsg = callErr.Error()
	}
	rec := CallRecord{
		RunID:           c.runID,
		Phase:           phase,
		Seq:             seq,
		Attempts:        attempts,
		EstimatedTokens: estimate,
		ActualTokens:    actual,
		ElapsedMs:       time.Since(start).Milliseconds(),
		Status:          status,
		Error:           errMsg,
	}
	if err := c.recorder.RecordCall(ctx, rec); err != nil {
		c.logger.Warn("recorder.call_failed", "phase", phase, "seq", seq, "error", err)
	}
}
