package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/treesum-io/treesum/constants"
	"github.com/treesum-io/treesum/internal/budget"
	"github.com/treesum-io/treesum/internal/chunk"
	"github.com/treesum-io/treesum/internal/common"
	"github.com/treesum-io/treesum/internal/llm"
	"github.com/treesum-io/treesum/internal/queue"
	"github.com/treesum-io/treesum/internal/retry"
	"github.com/treesum-io/treesum/internal/token"
)

// Summarizer drives one hierarchical summarization run:
// Idle → Mapping → Reducing → Done, with either phase able to fail the run.
// Every run owns its own tracker and queue instance; two concurrent runs
// share nothing.
type Summarizer struct {
	logger   *slog.Logger
	cfg      common.RunConfig
	invoker  llm.Invoker
	counter  token.Counter
	encoding constants.Encoding
	temp     float32
	recorder Recorder
}

func NewSummarizer(
	logger *slog.Logger,
	cfg common.RunConfig,
	invoker llm.Invoker,
	counter token.Counter,
	encoding constants.Encoding,
	temperature float32,
	recorder Recorder,
) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Summarizer{
		logger:   logger,
		cfg:      cfg,
		invoker:  invoker,
		counter:  counter,
		encoding: encoding,
		temp:     temperature,
		recorder: recorder,
	}
}

// Run summarizes the ordered segments down to a single string, or fails with
// one terminal error carrying the phase and token numbers involved.
func (s *Summarizer) Run(ctx context.Context, segments []chunk.Segment) (string, error) {
	if len(segments) == 0 {
		return "", common.ConfigErrorf("no input segments")
	}

	// Callers may pin the run ID through the context (e.g. to export a
	// report afterwards); otherwise one is generated.
	runID := uuid.New()
	if rid := common.RunIDFromContext(ctx); rid != "" {
		if parsed, err := uuid.Parse(rid); err == nil {
			runID = parsed
		}
	}
	ctx = common.WithRunID(ctx, runID.String())
	logger := s.logger.With("run_id", runID.String())
	start := time.Now()

	if err := s.recorder.StartRun(ctx, runID, len(segments)); err != nil {
		logger.Warn("recorder.start_failed", "error", err)
	}

	tracker := budget.NewTracker(s.cfg.TokensPerMinute, s.cfg.TokenBudgetWindow)

	// The request-rate ceiling is configured per minute; scale it to the
	// queue's interval window so shorter windows smooth out burstiness.
	intervalCap := int(float64(s.cfg.RequestsPerMinute) * s.cfg.QueueInterval.Minutes())
	if intervalCap < 1 {
		intervalCap = 1
	}
	// Backlog sized to the workload: every segment plus its reduce rounds
	// fits without a submitter ever blocking on backpressure.
	q := queue.New(s.cfg.QueueConcurrency, intervalCap, s.cfg.QueueInterval, logger,
		queue.WithQueueSize(2*len(segments)))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		q.Shutdown(shutdownCtx)
	}()

	policy := retry.DefaultPolicy(logger)
	policy.MaxAttempts = s.cfg.MaxRetryAttempts

	c := &caller{
		logger:        logger,
		runID:         runID,
		invoker:       s.invoker,
		tracker:       tracker,
		queue:         q,
		policy:        policy,
		counter:       s.counter,
		encoding:      s.encoding,
		recorder:      s.recorder,
		temperature:   s.temp,
		poll:          s.cfg.BudgetPollInterval,
		budgetTimeout: s.cfg.TokenBudgetTimeout,
	}

	state := constants.RunStateMapping
	logger.Info("run.state", "state", state, "segments", len(segments))

	mapStage := NewMapStage(logger, c, s.cfg.MapOutputMaxTokens)
	partials, err := mapStage.Run(ctx, segments)
	if err != nil {
		return "", s.finish(ctx, logger, runID, start, "", err)
	}

	state = constants.RunStateReducing
	logger.Info("run.state", "state", state, "partials", len(partials))

	reduceStage := NewReduceStage(logger, c, s.cfg.HierarchyGroupSize, s.cfg.ReduceOutputMaxTokens)
	result, err := reduceStage.Run(ctx, partials)
	if err != nil {
		return "", s.finish(ctx, logger, runID, start, "", err)
	}

	return result, s.finish(ctx, logger, runID, start, result, nil)
}

func (s *Summarizer) finish(ctx context.Context, logger *slog.Logger, runID uuid.UUID, start time.Time, result string, runErr error) error {
	state := constants.RunStateDone
	errMsg := ""
	if runErr != nil {
		state = constants.RunStateFailed
		errMsg = runErr.Error()
	}
	// Finish records must land even when the run context was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := s.recorder.FinishRun(ctx, runID, state, len(result), errMsg); err != nil {
		logger.Warn("recorder.finish_failed", "error", err)
	}
	if runErr != nil {
		logger.Error("run.failed", "elapsed_ms", time.Since(start).Milliseconds(), "error", runErr)
		return runErr
	}
	logger.Info("run.done", "elapsed_ms", time.Since(start).Milliseconds(), "result_len", len(result))
	return nil
}
