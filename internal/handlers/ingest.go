// Package handlers provides HTTP and Lambda handlers for the payroll batch engine.
package handlers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"payroll-batch-engine/internal/models"
	"payroll-batch-engine/internal/services/engine"
	"payroll-batch-engine/internal/services/worker"
	"payroll-batch-engine/internal/utils"
)

// snapshotPreviewRows bounds the raw rows kept in the job's payload snapshot.
const snapshotPreviewRows = 3

// JobCreator persists new jobs.
type JobCreator interface {
	Create(ctx context.Context, job *models.Job) error
}

// RowCreator persists the rows of a new job.
type RowCreator interface {
	BulkInsert(ctx context.Context, rows []*models.Row) error
}

// Ingestor turns a raw batch into a persisted, enqueued job. It is shared
// by the HTTP upload endpoint and the S3 event handler.
type Ingestor struct {
	engine     *engine.Engine
	jobs       JobCreator
	rows       RowCreator
	dispatch   worker.Dispatcher
	maxRetries int
}

// NewIngestor creates an ingestor. maxRetries is applied to every
// persisted row (default 3 when non-positive).
func NewIngestor(eng *engine.Engine, jobs JobCreator, rows RowCreator, dispatch worker.Dispatcher, maxRetries int) *Ingestor {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Ingestor{
		engine:     eng,
		jobs:       jobs,
		rows:       rows,
		dispatch:   dispatch,
		maxRetries: maxRetries,
	}
}

// IngestCSV parses CSV content and ingests it as one batch.
func (in *Ingestor) IngestCSV(ctx context.Context, content, uploaderID string) (*models.UploadResult, error) {
	headers, raws, err := utils.ParseCSV(content)
	if err != nil {
		return nil, &models.ValidationError{Message: err.Error()}
	}
	return in.Ingest(ctx, headers, raws, uploaderID)
}

// IngestRows ingests a pre-parsed array of row objects. Header order is
// taken from the first row's keys, sorted for determinism.
func (in *Ingestor) IngestRows(ctx context.Context, raws []models.RawRow, uploaderID string) (*models.UploadResult, error) {
	var headers []string
	if len(raws) > 0 {
		for column := range raws[0] {
			headers = append(headers, column)
		}
		sort.Strings(headers)
	}
	return in.Ingest(ctx, headers, raws, uploaderID)
}

// Ingest validates the batch, persists the job and its valid rows, and
// enqueues the job for processing.
func (in *Ingestor) Ingest(ctx context.Context, headers []string, raws []models.RawRow, uploaderID string) (*models.UploadResult, error) {
	if err := in.engine.CheckBatchShape(raws); err != nil {
		return nil, err
	}

	mapping := utils.DetectMapping(headers)
	outcome := in.engine.ValidateBatch(raws, mapping)

	preview := raws
	if len(preview) > snapshotPreviewRows {
		preview = preview[:snapshotPreviewRows]
	}

	job := &models.Job{
		ID:              uuid.NewString(),
		UploaderID:      uploaderID,
		Status:          models.JobStatusQueued,
		TotalRows:       len(raws),
		ValidRowCount:   len(outcome.ValidRows),
		InvalidRowCount: len(outcome.InvalidRows) + len(outcome.Duplicates),
		PayloadSnapshot: &models.PayloadSnapshot{
			Headers: headers,
			Mapping: mapping,
			Preview: preview,
		},
		ErrorSummary: models.BuildErrorSummary(outcome),
		CreatedAt:    time.Now().UTC(),
	}

	rows := make([]*models.Row, len(outcome.ValidRows))
	for i, valid := range outcome.ValidRows {
		rows[i] = &models.Row{
			ID:            uuid.NewString(),
			JobID:         job.ID,
			RowIndex:      i, // dense within the valid partition
			InputSnapshot: valid.Input,
			Payment:       valid.Row,
			Status:        models.RowStatusPending,
			MaxRetries:    in.maxRetries,
		}
	}

	if err := in.jobs.Create(ctx, job); err != nil {
		return nil, &models.InternalError{Err: fmt.Errorf("failed to create job: %w", err)}
	}
	if err := in.rows.BulkInsert(ctx, rows); err != nil {
		return nil, &models.InternalError{Err: fmt.Errorf("failed to insert rows: %w", err)}
	}

	item := worker.WorkItem{JobID: job.ID, UploaderID: uploaderID}
	if err := in.dispatch.Enqueue(ctx, item); err != nil {
		return nil, &models.InternalError{Err: fmt.Errorf("failed to enqueue job: %w", err)}
	}

	utils.GetLogger().Info("Batch ingested",
		zap.String("job_id", job.ID),
		zap.String("uploader_id", uploaderID),
		zap.Int("total", job.TotalRows),
		zap.Int("valid", job.ValidRowCount),
		zap.Int("invalid", job.InvalidRowCount),
	)

	return &models.UploadResult{
		JobID:           job.ID,
		TotalRows:       job.TotalRows,
		ValidRowCount:   job.ValidRowCount,
		InvalidRowCount: job.InvalidRowCount,
		ErrorSummary:    job.ErrorSummary,
	}, nil
}
