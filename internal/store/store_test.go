package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treesum-io/treesum/constants"
	"github.com/treesum-io/treesum/internal/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "treesum.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intp(n int) *int { return &n }

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := uuid.New()

	require.NoError(t, s.StartRun(ctx, runID, 5))

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runID.String(), run.ID)
	assert.Equal(t, 5, run.Segments)
	assert.Equal(t, string(constants.RunStateMapping), run.State)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, s.FinishRun(ctx, runID, constants.RunStateDone, 1234, ""))

	run, err = s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStateDone), run.State)
	assert.Equal(t, 1234, run.ResultChars)
	assert.NotNil(t, run.FinishedAt)
	assert.Empty(t, run.Error)
}

func TestFinishRunWithError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := uuid.New()

	require.NoError(t, s.StartRun(ctx, runID, 1))
	require.NoError(t, s.FinishRun(ctx, runID, constants.RunStateFailed, 0, "BUDGET_TIMEOUT: estimate did not fit"))

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.RunStateFailed), run.State)
	assert.Contains(t, run.Error, "BUDGET_TIMEOUT")
}

func TestRecordAndListCalls(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := uuid.New()
	require.NoError(t, s.StartRun(ctx, runID, 2))

	records := []pipeline.CallRecord{
		{RunID: runID, Phase: constants.PhaseReduce, Seq: 0, Attempts: 1, EstimatedTokens: 700, ActualTokens: intp(650), ElapsedMs: 40, Status: constants.CallStatusOK},
		{RunID: runID, Phase: constants.PhaseMap, Seq: 1, Attempts: 3, EstimatedTokens: 520, ActualTokens: nil, ElapsedMs: 900, Status: constants.CallStatusFailed, Error: "provider status 500"},
		{RunID: runID, Phase: constants.PhaseMap, Seq: 0, Attempts: 1, EstimatedTokens: 510, ActualTokens: intp(480), ElapsedMs: 120, Status: constants.CallStatusOK},
	}
	for _, rec := range records {
		require.NoError(t, s.RecordCall(ctx, rec))
	}

	calls, err := s.ListCalls(ctx, runID)
	require.NoError(t, err)
	require.Len(t, calls, 3)

	// Ordered by phase then sequence.
	assert.Equal(t, string(constants.PhaseMap), calls[0].Phase)
	assert.Equal(t, 0, calls[0].Seq)
	assert.Equal(t, string(constants.PhaseMap), calls[1].Phase)
	assert.Equal(t, 1, calls[1].Seq)
	assert.Equal(t, string(constants.PhaseReduce), calls[2].Phase)

	require.NotNil(t, calls[0].ActualTokens)
	assert.Equal(t, 480, *calls[0].ActualTokens)
	assert.Nil(t, calls[1].ActualTokens)
	assert.Equal(t, "provider status 500", calls[1].Error)
	assert.Equal(t, string(constants.CallStatusFailed), calls[1].Status)
}

func TestListCallsEmptyRun(t *testing.T) {
	s := openTestStore(t)
	calls, err := s.ListCalls(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestGetRunMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), uuid.New())
	require.Error(t, err)
}
