// Package handlers provides HTTP and Lambda handlers for the payroll batch engine.
package handlers

import (
	"context"

	"payroll-batch-engine/internal/models"
	"payroll-batch-engine/internal/services/worker"
	"payroll-batch-engine/internal/utils"
)

// Job listing bounds.
const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// JobStore is the persistence surface the job endpoints need.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListByUploader(ctx context.Context, uploaderID string, page, limit int) ([]models.JobSummary, int, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// RowLister loads the persisted rows of a job.
type RowLister interface {
	ListRowsByJob(ctx context.Context, jobID string) ([]*models.Row, error)
}

// JobManager implements the read, cancel, export and delete operations on
// jobs, scoped to the requesting uploader.
type JobManager struct {
	jobs     JobStore
	rows     RowLister
	dispatch worker.Dispatcher
}

// NewJobManager creates a job manager.
func NewJobManager(jobs JobStore, rows RowLister, dispatch worker.Dispatcher) *JobManager {
	return &JobManager{jobs: jobs, rows: rows, dispatch: dispatch}
}

// Get returns the job when it exists and belongs to the uploader. Jobs
// owned by other uploaders get the same not-found error as absent ones.
func (m *JobManager) Get(ctx context.Context, uploaderID, jobID string) (*models.Job, error) {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, &models.InternalError{Err: err}
	}
	if job == nil || job.UploaderID != uploaderID {
		return nil, models.ErrJobNotOwned
	}
	return job, nil
}

// List returns one page of the uploader's jobs, newest first.
func (m *JobManager) List(ctx context.Context, uploaderID string, page, limit int) (*models.JobPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	items, total, err := m.jobs.ListByUploader(ctx, uploaderID, page, limit)
	if err != nil {
		return nil, &models.InternalError{Err: err}
	}

	return &models.JobPage{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// Detail returns the job together with the per-row results.
func (m *JobManager) Detail(ctx context.Context, uploaderID, jobID string) (*models.Job, []models.RowSummary, error) {
	job, err := m.Get(ctx, uploaderID, jobID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := m.rows.ListRowsByJob(ctx, jobID)
	if err != nil {
		return nil, nil, &models.InternalError{Err: err}
	}

	summaries := make([]models.RowSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.ToSummary())
	}
	return job, summaries, nil
}

// Cancel withdraws a queued job and flips it to CANCELLED. Terminal jobs,
// and jobs that reach a terminal state while the request is in flight,
// report a conflict.
func (m *JobManager) Cancel(ctx context.Context, uploaderID, jobID string) (*models.Job, error) {
	job, err := m.Get(ctx, uploaderID, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		return nil, models.ErrCancelClosed
	}

	// Pull the job out of the queue first so a worker cannot pick it up
	// between the status update and the withdrawal.
	m.dispatch.Withdraw(jobID)

	cancelled, err := m.jobs.Cancel(ctx, jobID)
	if err != nil {
		return nil, &models.InternalError{Err: err}
	}
	if !cancelled {
		return nil, models.ErrCancelClosed
	}

	return m.Get(ctx, uploaderID, jobID)
}

// Export renders the job's rows as a CSV document.
func (m *JobManager) Export(ctx context.Context, uploaderID, jobID string) (string, error) {
	if _, err := m.Get(ctx, uploaderID, jobID); err != nil {
		return "", err
	}

	rows, err := m.rows.ListRowsByJob(ctx, jobID)
	if err != nil {
		return "", &models.InternalError{Err: err}
	}

	content, err := utils.ExportRows(rows)
	if err != nil {
		return "", &models.InternalError{Err: err}
	}
	return content, nil
}

// Delete removes a terminal job and, through the schema's cascade, its
// rows. Active jobs must be cancelled before deletion.
func (m *JobManager) Delete(ctx context.Context, uploaderID, jobID string) error {
	job, err := m.Get(ctx, uploaderID, jobID)
	if err != nil {
		return err
	}

	if !job.Status.IsTerminal() {
		return &models.ConflictError{Message: "job is still active"}
	}

	if err := m.jobs.Delete(ctx, jobID); err != nil {
		return &models.InternalError{Err: err}
	}
	return nil
}
