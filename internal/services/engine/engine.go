// Package engine implements the batch validation and deduplication pipeline.
package engine

import (
	"time"

	"go.uber.org/zap"

	"payroll-batch-engine/internal/models"
	"payroll-batch-engine/internal/utils"
)

// Engine validates whole batches of raw payment rows.
type Engine struct {
	maxRows int
	now     func() time.Time
}

// New creates a batch validation engine. maxRows bounds the accepted batch
// size; nowFn supplies the reference time for pay-date checks (nil means
// time.Now).
func New(maxRows int, nowFn func() time.Time) *Engine {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Engine{maxRows: maxRows, now: nowFn}
}

// CheckBatchShape rejects structurally invalid requests before any per-row
// validation runs. Bad row data is never an error here.
func (e *Engine) CheckBatchShape(rawRows []models.RawRow) error {
	if len(rawRows) == 0 {
		return models.ErrEmptyBatch
	}
	if e.maxRows > 0 && len(rawRows) > e.maxRows {
		return models.NewBatchTooLargeError(len(rawRows), e.maxRows)
	}
	return nil
}

// ValidateBatch runs per-row validation and duplicate detection across the
// whole input set, in original row order. The first occurrence of a
// duplicate key stays valid; all later occurrences are recorded as
// duplicates regardless of content. Callers must reject empty batches via
// CheckBatchShape first.
func (e *Engine) ValidateBatch(rawRows []models.RawRow, mapping models.ColumnMapping) *models.ValidationOutcome {
	now := e.now()
	outcome := &models.ValidationOutcome{}
	seen := make(map[string]int, len(rawRows))

	for i, raw := range rawRows {
		candidate := utils.ProjectRow(raw, mapping)

		row, errs := models.ValidateRow(candidate, now)
		if len(errs) > 0 {
			outcome.InvalidRows = append(outcome.InvalidRows, models.InvalidRow{
				RowIndex: i,
				RawData:  raw,
				Errors:   errs,
			})
			continue
		}

		key := row.DuplicateKey()
		if firstIndex, dup := seen[key]; dup {
			outcome.Duplicates = append(outcome.Duplicates, models.DuplicateRow{
				RowIndex:         i,
				RawData:          raw,
				DuplicateOfIndex: firstIndex,
			})
			continue
		}

		seen[key] = i
		outcome.ValidRows = append(outcome.ValidRows, models.ValidRow{
			RowIndex: i,
			Input:    raw,
			Row:      row,
		})
	}

	utils.GetLogger().Info("Batch validated",
		zap.Int("total", len(rawRows)),
		zap.Int("valid", len(outcome.ValidRows)),
		zap.Int("invalid", len(outcome.InvalidRows)),
		zap.Int("duplicates", len(outcome.Duplicates)),
	)

	return outcome
}
