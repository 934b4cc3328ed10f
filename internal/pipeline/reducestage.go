package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/treesum-io/treesum/constants"
	"github.com/treesum-io/treesum/internal/common"
	"github.com/treesum-io/treesum/internal/llm"
	"github.com/treesum-io/treesum/internal/reduce"
)

// ReduceStage collapses the surviving partial summaries into one result
// through grouped reduction rounds. Every combine call re-enters the same
// admission/retry pipeline as the map phase, against the reduce output cap.
type ReduceStage struct {
	logger    *slog.Logger
	caller    *caller
	groupSize int
	outputCap int
}

func NewReduceStage(logger *slog.Logger, caller *caller, groupSize, outputCap int) *ReduceStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReduceStage{logger: logger, caller: caller, groupSize: groupSize, outputCap: outputCap}
}

// Run reduces partials to a single string. Unlike the map phase there is no
// meaningful subset to drop from a reduction, so any terminal group failure
// is fatal for the run.
func (s *ReduceStage) Run(ctx context.Context, partials []string) (string, error) {
	var seq atomic.Int64

	out, err := reduce.Reduce(ctx, partials, s.groupSize, func(ctx context.Context, group []string) (string, error) {
		n := int(seq.Add(1)) - 1
		joined := strings.Join(group, constants.GroupJoinSeparator)
		prompt := llm.BuildReducePrompt(joined)

		estimate, err := s.caller.admit(ctx, constants.PhaseReduce, n, prompt, s.outputCap)
		if err != nil {
			return "", err
		}
		return s.caller.invoke(ctx, constants.PhaseReduce, n, prompt, estimate, s.outputCap)
	})
	if err != nil {
		// Budget timeouts and configuration errors keep their own kind;
		// everything else terminal here is a reduce failure.
		if errors.Is(err, common.ErrBudgetTimeout) || errors.Is(err, common.ErrConfig) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", common.NewAppError("REDUCE_FAILED", "reduce phase failed", errors.Join(common.ErrReduceFailed, err))
	}

	s.logger.Info("reduce.done", "combine_calls", seq.Load(), "result_len", len(out))
	return out, nil
}
