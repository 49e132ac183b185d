// Package worker implements the asynchronous job processing state machine.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"payroll-batch-engine/internal/models"
	"payroll-batch-engine/internal/services/payments"
	"payroll-batch-engine/internal/utils"
)

// JobStore is the job persistence surface the processor depends on.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	MarkJobProcessing(ctx context.Context, id string, startedAt time.Time) error
	UpdateJobProgress(ctx context.Context, id string, processed, failed int) error
	FinalizeJob(ctx context.Context, id string, status models.JobStatus, completedAt time.Time) error
}

// RowStore is the row persistence surface the processor depends on.
type RowStore interface {
	ListRowsByJob(ctx context.Context, jobID string) ([]*models.Row, error)
	UpdateRowResult(ctx context.Context, row *models.Row) error
}

// Notifier is told when a job reaches a terminal state. Implementations
// must treat delivery as best effort.
type Notifier interface {
	NotifyJobFinished(ctx context.Context, job *models.Job) error
}

// Processor drives one job at a time through the payment pipeline. The
// dispatch layer guarantees at most one concurrent execution per job id.
type Processor struct {
	jobs        JobStore
	rows        RowStore
	adapter     payments.Adapter
	notifier    Notifier
	batchSize   int
	backoffBase time.Duration
}

// NewProcessor creates a job processor. notifier may be nil. batchSize
// defaults to 10 and backoffBase to 1s when non-positive.
func NewProcessor(jobs JobStore, rows RowStore, adapter payments.Adapter, notifier Notifier, batchSize int, backoffBase time.Duration) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &Processor{
		jobs:        jobs,
		rows:        rows,
		adapter:     adapter,
		notifier:    notifier,
		batchSize:   batchSize,
		backoffBase: backoffBase,
	}
}

// Process claims the job, attempts every pending row in sequential batches
// and finalizes the job status. Row-level payment failures never fail the
// job; infrastructure failures mark it FAILED and are propagated so the
// dispatch layer can apply its own retry policy.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	logger := utils.GetLogger()

	job, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		return &models.InternalError{Err: fmt.Errorf("failed to load job %s: %w", jobID, err)}
	}
	if job == nil {
		return &models.NotFoundError{Resource: "job", ID: jobID}
	}
	if job.Status.IsTerminal() {
		// Cancelled (or otherwise closed) before execution started.
		logger.Info("Skipping terminal job",
			zap.String("job_id", jobID),
			zap.String("status", string(job.Status)),
		)
		return nil
	}

	rows, err := p.rows.ListRowsByJob(ctx, jobID)
	if err != nil {
		return p.failJob(ctx, job, fmt.Errorf("failed to load rows for job %s: %w", jobID, err))
	}

	startedAt := time.Now().UTC()
	if err := p.jobs.MarkJobProcessing(ctx, jobID, startedAt); err != nil {
		return p.failJob(ctx, job, fmt.Errorf("failed to mark job %s processing: %w", jobID, err))
	}
	job.Status = models.JobStatusProcessing
	job.StartedAt = &startedAt

	logger.Info("Processing job",
		zap.String("job_id", jobID),
		zap.Int("rows", len(rows)),
		zap.Int("batch_size", p.batchSize),
	)

	for start := 0; start < len(rows); start += p.batchSize {
		end := start + p.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		if err := p.processBatch(ctx, rows[start:end]); err != nil {
			return p.failJob(ctx, job, err)
		}

		// Counters move only at batch boundaries, so readers never observe
		// a mid-batch partial state.
		processed, failed := countTerminal(rows)
		if err := p.jobs.UpdateJobProgress(ctx, jobID, processed, failed); err != nil {
			return p.failJob(ctx, job, fmt.Errorf("failed to update progress for job %s: %w", jobID, err))
		}
		job.ProcessedRowCount = processed
		job.FailedRowCount = failed
	}

	completedAt := time.Now().UTC()
	if err := p.jobs.FinalizeJob(ctx, jobID, models.JobStatusCompleted, completedAt); err != nil {
		return p.failJob(ctx, job, fmt.Errorf("failed to finalize job %s: %w", jobID, err))
	}
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &completedAt

	logger.Info("Job completed",
		zap.String("job_id", jobID),
		zap.Int("processed", job.ProcessedRowCount),
		zap.Int("failed", job.FailedRowCount),
	)

	p.notify(ctx, job)
	return nil
}

// processBatch attempts every non-terminal row of the batch concurrently
// and persists each row's result. Returns the first infrastructure error.
func (p *Processor) processBatch(ctx context.Context, batch []*models.Row) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, row := range batch {
		if row.Status.IsTerminal() {
			// Already settled by an earlier pass; never re-processed.
			continue
		}

		wg.Add(1)
		go func(row *models.Row) {
			defer wg.Done()
			if err := p.processRow(ctx, row); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(row)
	}

	wg.Wait()
	return firstErr
}

// processRow runs the per-row retry procedure: attempt the payment, back
// off exponentially between attempts, and settle the row as SUCCESS or
// FAILED. Adapter-reported failures stay inside this loop; only context
// cancellation and persistence failures escape as errors.
func (p *Processor) processRow(ctx context.Context, row *models.Row) error {
	for row.Attempts < row.MaxRetries {
		result, err := p.adapter.CreatePayment(ctx, row.Payment)
		row.Attempts++

		if err == nil && result.Success {
			row.Status = models.RowStatusSuccess
			row.ProviderResponse = result.RawResponse
			row.ErrorMessage = ""
			break
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			row.ErrorMessage = err.Error()
		} else {
			row.ErrorMessage = result.Error
			row.ProviderResponse = result.RawResponse
		}

		if row.Attempts < row.MaxRetries {
			if err := p.backoff(ctx, row.Attempts); err != nil {
				return err
			}
			continue
		}

		row.Status = models.RowStatusFailed
	}

	if err := p.rows.UpdateRowResult(ctx, row); err != nil {
		return fmt.Errorf("failed to persist row %d of job %s: %w", row.RowIndex, row.JobID, err)
	}
	return nil
}

// backoff waits 2^(attempts-1) base intervals, honoring cancellation.
func (p *Processor) backoff(ctx context.Context, attempts int) error {
	delay := p.backoffBase << uint(attempts-1)
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// failJob marks the job FAILED (best effort) and wraps the infrastructure
// error for the dispatch layer.
func (p *Processor) failJob(ctx context.Context, job *models.Job, cause error) error {
	completedAt := time.Now().UTC()
	if err := p.jobs.FinalizeJob(ctx, job.ID, models.JobStatusFailed, completedAt); err != nil {
		utils.GetLogger().Error("Failed to mark job FAILED",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	} else {
		job.Status = models.JobStatusFailed
		job.CompletedAt = &completedAt
		p.notify(ctx, job)
	}

	utils.GetLogger().Error("Job processing failed",
		zap.String("job_id", job.ID),
		zap.Error(cause),
	)
	return &models.InternalError{Err: cause}
}

// notify tells the notifier about a terminal job, logging delivery failures.
func (p *Processor) notify(ctx context.Context, job *models.Job) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyJobFinished(ctx, job); err != nil {
		utils.GetLogger().Warn("Failed to send job notification",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

// countTerminal tallies rows that reached a terminal state and, of those,
// the failures.
func countTerminal(rows []*models.Row) (processed, failed int) {
	for _, row := range rows {
		if row.Status.IsTerminal() {
			processed++
			if row.Status == models.RowStatusFailed {
				failed++
			}
		}
	}
	return processed, failed
}
