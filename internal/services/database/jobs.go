// Package database provides database operations for the payroll batch engine.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"payroll-batch-engine/internal/models"
)

// JobRepository handles job database operations.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `
	id, uploader_id, status, total_rows, valid_row_count, invalid_row_count,
	processed_row_count, failed_row_count, payload_snapshot, error_summary,
	created_at, started_at, completed_at`

// Create inserts a new job.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	snapshot, err := json.Marshal(job.PayloadSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal payload snapshot: %w", err)
	}
	summary, err := json.Marshal(job.ErrorSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal error summary: %w", err)
	}

	query := `
		INSERT INTO payroll_jobs (id, uploader_id, status, total_rows, valid_row_count,
			invalid_row_count, processed_row_count, failed_row_count,
			payload_snapshot, error_summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.UploaderID,
		string(job.Status),
		job.TotalRows,
		job.ValidRowCount,
		job.InvalidRowCount,
		job.ProcessedRowCount,
		job.FailedRowCount,
		string(snapshot),
		string(summary),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by id. Returns nil without error when absent.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT` + jobColumns + ` FROM payroll_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// MarkJobProcessing transitions a QUEUED job to PROCESSING and stamps
// started_at. A job no longer QUEUED is left untouched.
func (r *JobRepository) MarkJobProcessing(ctx context.Context, id string, startedAt time.Time) error {
	query := `
		UPDATE payroll_jobs
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`

	_, err := r.db.ExecContext(ctx, query, id,
		string(models.JobStatusProcessing), startedAt, string(models.JobStatusQueued))
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	return nil
}

// UpdateJobProgress persists the aggregate counters.
func (r *JobRepository) UpdateJobProgress(ctx context.Context, id string, processed, failed int) error {
	query := `
		UPDATE payroll_jobs
		SET processed_row_count = $2, failed_row_count = $3
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id, processed, failed)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	return nil
}

// FinalizeJob moves a non-terminal job into a terminal state and stamps
// completed_at. Terminal jobs are never updated again.
func (r *JobRepository) FinalizeJob(ctx context.Context, id string, status models.JobStatus, completedAt time.Time) error {
	query := `
		UPDATE payroll_jobs
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status IN ($4, $5)`

	_, err := r.db.ExecContext(ctx, query, id, string(status), completedAt,
		string(models.JobStatusQueued), string(models.JobStatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	return nil
}

// Cancel transitions a QUEUED or PROCESSING job to CANCELLED. The returned
// flag reports whether the transition happened; a false result on an
// existing job means the job was already terminal.
func (r *JobRepository) Cancel(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE payroll_jobs
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status IN ($4, $5)`

	affected, err := r.db.ExecContext(ctx, query, id,
		string(models.JobStatusCancelled), time.Now().UTC(),
		string(models.JobStatusQueued), string(models.JobStatusProcessing))
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}

	return affected > 0, nil
}

// ListByUploader returns one page of jobs for the uploader, newest first,
// along with the total job count for that uploader.
func (r *JobRepository) ListByUploader(ctx context.Context, uploaderID string, page, limit int) ([]models.JobSummary, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM payroll_jobs WHERE uploader_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, uploaderID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := `SELECT` + jobColumns + `
		FROM payroll_jobs
		WHERE uploader_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, uploaderID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.JobSummary, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job: %w", err)
		}
		summaries = append(summaries, job.ToSummary())
	}

	return summaries, total, nil
}

// Delete removes a job; its rows cascade.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM payroll_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// scanJob reads one job row, decoding the JSON snapshot columns.
func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	var status string
	var snapshot, summary []byte

	err := row.Scan(
		&job.ID,
		&job.UploaderID,
		&status,
		&job.TotalRows,
		&job.ValidRowCount,
		&job.InvalidRowCount,
		&job.ProcessedRowCount,
		&job.FailedRowCount,
		&snapshot,
		&summary,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &job.PayloadSnapshot); err != nil {
			return nil, fmt.Errorf("failed to decode payload snapshot: %w", err)
		}
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &job.ErrorSummary); err != nil {
			return nil, fmt.Errorf("failed to decode error summary: %w", err)
		}
	}

	return &job, nil
}
