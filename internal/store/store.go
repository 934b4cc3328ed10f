// Package store persists run and call records so a failed run can be
// diagnosed after the fact: misconfigured budget versus provider outage.
// The DSN selects the backend: postgres:// goes through pgx, anything else is
// treated as a sqlite file path (or :memory:).
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/treesum-io/treesum/constants"
	"github.com/treesum-io/treesum/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMP NOT NULL,
	finished_at  TIMESTAMP,
	segments     INTEGER NOT NULL,
	state        TEXT NOT NULL,
	result_chars INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS llm_calls (
	id               TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL,
	phase            TEXT NOT NULL,
	seq              INTEGER NOT NULL,
	attempts         INTEGER NOT NULL,
	estimated_tokens INTEGER NOT NULL,
	actual_tokens    INTEGER,
	elapsed_ms       INTEGER NOT NULL,
	status           TEXT NOT NULL,
	error            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_llm_calls_run ON llm_calls (run_id, phase, seq);
`

// Run is one stored summarization run.
type Run struct {
	ID          string     `db:"id"`
	StartedAt   time.Time  `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
	Segments    int        `db:"segments"`
	State       string     `db:"state"`
	ResultChars int        `db:"result_chars"`
	Error       string     `db:"error"`
}

// Call is one stored LLM call outcome.
type Call struct {
	ID              string    `db:"id"`
	RunID           string    `db:"run_id"`
	Phase           string    `db:"phase"`
	Seq             int       `db:"seq"`
	Attempts        int       `db:"attempts"`
	EstimatedTokens int       `db:"estimated_tokens"`
	ActualTokens    *int      `db:"actual_tokens"`
	ElapsedMs       int64     `db:"elapsed_ms"`
	Status          string    `db:"status"`
	Error           string    `db:"error"`
	CreatedAt       time.Time `db:"created_at"`
}

// Store implements pipeline.Recorder over a SQL backend.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects, pings, and applies the schema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store (%s): %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply store schema: %w", err)
	}

	logger.Info("store.opened", "driver", driver)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts the run row in its initial state.
func (s *Store) StartRun(ctx context.Context, runID uuid.UUID, segments int) error {
	q := s.db.Rebind(`INSERT INTO runs (id, started_at, segments, state) VALUES (?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, runID.String(), time.Now().UTC(), segments, string(constants.RunStateMapping))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, state constants.RunState, resultChars int, errMsg string) error {
	q := s.db.Rebind(`UPDATE runs SET finished_at = ?, state = ?, result_chars = ?, error = ? WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, time.Now().UTC(), string(state), resultChars, errMsg, runID.String())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordCall appends one call outcome. Safe for concurrent use.
func (s *Store) RecordCall(ctx context.Context, rec pipeline.CallRecord) error {
	q := s.db.Rebind(`INSERT INTO llm_calls
		(id, run_id, phase, seq, attempts, estimated_tokens, actual_tokens, elapsed_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		uuid.New().String(), rec.RunID.String(), string(rec.Phase), rec.Seq,
		rec.Attempts, rec.EstimatedTokens, rec.ActualTokens, rec.ElapsedMs,
		string(rec.Status), rec.Error, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// GetRun loads one run row.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (Run, error) {
	var run Run
	q := s.db.Rebind(`SELECT * FROM runs WHERE id = ?`)
	if err := s.db.GetContext(ctx, &run, q, runID.String()); err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// ListCalls returns all calls of a run in phase/sequence order.
func (s *Store) ListCalls(ctx context.Context, runID uuid.UUID) ([]Call, error) {
	var calls []Call
	q := s.db.Rebind(`SELECT * FROM llm_calls WHERE run_id = ? ORDER BY phase, seq, created_at`)
	if err := s.db.SelectContext(ctx, &calls, q, runID.String()); err != nil {
		return nil, fmt.Errorf("list calls for run %s: %w", runID, err)
	}
	return calls, nil
}

var _ pipeline.Recorder = (*Store)(nil)
