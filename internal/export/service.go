package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/treesum-io/treesum/internal/store"
)

// Service is a tiny façade over the run store that produces XLSX bytes for
// run reports: one row per recorded LLM call, with estimated versus actual
// token usage side by side.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// ExportRunXLSX returns an XLSX workbook (as bytes) for one stored run.
func (s *Service) ExportRunXLSX(ctx context.Context, runID uuid.UUID) ([]byte, error) {
	start := time.Now()

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	calls, err := s.store.ListCalls(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Calls"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Phase",
		"Seq",
		"Attempts",
		"Estimated Tokens",
		"Actual Tokens",
		"Elapsed (ms)",
		"Status",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, c := range calls {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, c.Phase)
		write(2, c.Seq)
		write(3, c.Attempts)
		write(4, c.EstimatedTokens)
		if c.ActualTokens != nil {
			write(5, *c.ActualTokens)
		} else {
			write(5, "")
		}
		write(6, c.ElapsedMs)
		write(7, c.Status)
		write(8, truncate(c.Error, 140))

		row++
	}

	// Summary row for the run itself.
	summary := fmt.Sprintf("run %s: state=%s segments=%d result_chars=%d",
		run.ID, run.State, run.Segments, run.ResultChars)
	cell, _ := excelize.CoordinatesToCellName(1, row+1)
	_ = f.SetCellValue(sheet, cell, summary)

	_ = f.SetColWidth(sheet, "A", "A", 10)
	_ = f.SetColWidth(sheet, "D", "F", 16)
	_ = f.SetColWidth(sheet, "H", "H", 48)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export.run.ok",
		"run_id", run.ID,
		"calls", len(calls),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
