package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/treesum-io/treesum/constants"
)

// CallRecord is the stored outcome of one admitted LLM call, after retries.
type CallRecord struct {
	RunID           uuid.UUID
	Phase           constants.Phase
	Seq             int
	Attempts        int
	EstimatedTokens int
	ActualTokens    *int // nil when the call never succeeded
	ElapsedMs       int64
	Status          constants.CallStatus
	Error           string
}

// Recorder persists run and call outcomes for post-hoc diagnosis of budget
// misconfiguration versus provider outage. Implementations must tolerate
// concurrent RecordCall invocations.
type Recorder interface {
	StartRun(ctx context.Context, runID uuid.UUID, segments int) error
	FinishRun(ctx context.Context, runID uuid.UUID, state constants.RunState, resultChars int, errMsg string) error
	RecordCall(ctx context.Context, rec CallRecord) error
}

// NopRecorder discards everything; used when no store DSN is configured.
type NopRecorder struct{}

func (NopRecorder) StartRun(context.Context, uuid.UUID, int) error { return nil }
func (NopRecorder) FinishRun(context.Context, uuid.UUID, constants.RunState, int, string) error {
	return nil
}
func (NopRecorder) RecordCall(context.Context, CallRecord) error { return nil }
