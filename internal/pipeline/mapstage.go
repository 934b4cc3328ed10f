package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/treesum-io/treesum/constants"
	"github.com/treesum-io/treesum/internal/chunk"
	"github.com/treesum-io/treesum/internal/common"
	"github.com/treesum-io/treesum/internal/llm"
)

// MapStage summarizes every segment independently. Admission happens in input
// order on the stage goroutine; the admitted calls run concurrently under the
// queue's caps and may complete out of order, so results are keyed by segment
// index and reassembled in original order afterwards.
type MapStage struct {
	logger    *slog.Logger
	caller    *caller
	outputCap int
}

func NewMapStage(logger *slog.Logger, caller *caller, outputCap int) *MapStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MapStage{logger: logger, caller: caller, outputCap: outputCap}
}

// Run maps each segment to a partial summary. A segment that exhausts retries
// or yields an empty response is logged and skipped; a budget timeout or an
// impossible estimate aborts the whole run. Zero surviving segments is a run
// failure.
func (s *MapStage) Run(ctx context.Context, segments []chunk.Segment) ([]string, error) {
	results := make([]string, len(segments))
	failures := make([]error, len(segments))

	mapCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, seg := range segments {
		prompt := llm.BuildMapPrompt(seg.Text)

		estimate, err := s.caller.admit(mapCtx, constants.PhaseMap, seg.Index, prompt, s.outputCap)
		if err != nil {
			// Admission failures are never segment-local: an impossible
			// estimate or a budget timeout dooms every later segment too.
			cancel()
			wg.Wait()
			s.logger.Error("map.admission.failed", "segment", seg.Index, "error", err)
			return nil, err
		}

		wg.Add(1)
		go func(idx, estimate int) {
			defer wg.Done()
			out, err := s.caller.invoke(mapCtx, constants.PhaseMap, idx, prompt, estimate, s.outputCap)
			if err != nil {
				failures[idx] = err
				return
			}
			results[idx] = out
		}(seg.Index, estimate)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	partials := make([]string, 0, len(segments))
	failed := 0
	for i := range segments {
		if failures[i] != nil {
			failed++
			s.logger.Warn("map.segment.skipped", "segment", i, "error", failures[i])
			continue
		}
		partials = append(partials, results[i])
	}

	s.logger.Info("map.done",
		"segments", len(segments),
		"succeeded", len(partials),
		"failed", failed,
	)
	if len(partials) == 0 {
		var last error
		for i := len(segments) - 1; i >= 0; i-- {
			if failures[i] != nil {
				last = failures[i]
				break
			}
		}
		if errors.Is(last, context.Canceled) || errors.Is(last, context.DeadlineExceeded) {
			return nil, last
		}
		return nil, common.NewAppError("NO_SEGMENTS",
			fmt.Sprintf("all %d segments failed, last error: %v", len(segments), last),
			common.ErrNoSegments)
	}
	return partials, nil
}
