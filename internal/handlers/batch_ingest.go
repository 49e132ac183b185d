// Package handlers provides HTTP and Lambda handlers for the payroll batch engine.
package handlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"payroll-batch-engine/internal/services/storage"
	"payroll-batch-engine/internal/utils"
)

// BatchIngestHandler handles S3 events for uploaded batch payloads.
type BatchIngestHandler struct {
	s3Client *s3.Client
	ingestor *Ingestor
}

// NewBatchIngestHandler creates a new S3 event handler around an ingestor.
func NewBatchIngestHandler(ctx context.Context, ingestor *Ingestor) (*BatchIngestHandler, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &BatchIngestHandler{
		s3Client: s3.NewFromConfig(awsCfg),
		ingestor: ingestor,
	}, nil
}

// IngestResult is the result of processing one uploaded payload.
type IngestResult struct {
	Message         string `json:"message"`
	JobID           string `json:"job_id,omitempty"`
	TotalRows       int    `json:"total_rows"`
	ValidRowCount   int    `json:"valid_row_count"`
	InvalidRowCount int    `json:"invalid_row_count"`
}

// Handle ingests the CSV payload referenced by the S3 event and archives
// the object once a job has been created.
func (h *BatchIngestHandler) Handle(ctx context.Context, s3Event events.S3Event) (IngestResult, error) {
	logger := utils.GetLogger()

	if len(s3Event.Records) == 0 {
		return IngestResult{Message: "No records to process"}, nil
	}

	record := s3Event.Records[0]
	bucket := record.S3.Bucket.Name
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to decode S3 key: %w", err)
	}

	logger.Info("Processing uploaded payload",
		utils.String("bucket", bucket),
		utils.String("key", key))

	store := storage.NewWithClient(h.s3Client, bucket)
	content, err := store.Download(ctx, key)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to download payload: %w", err)
	}

	result, err := h.ingestor.IngestCSV(ctx, string(content), uploaderFromKey(key))
	if err != nil {
		logger.Error("Failed to ingest payload", utils.Error(err))
		return IngestResult{}, fmt.Errorf("failed to ingest payload: %w", err)
	}

	if err := store.Archive(ctx, key); err != nil {
		logger.Warn("Failed to archive payload", utils.Error(err))
	}

	return IngestResult{
		Message:         "Batch ingested successfully",
		JobID:           result.JobID,
		TotalRows:       result.TotalRows,
		ValidRowCount:   result.ValidRowCount,
		InvalidRowCount: result.InvalidRowCount,
	}, nil
}

// uploaderFromKey extracts the uploader from keys shaped like
// uploads/<uploader>/<file>. Payloads outside that layout are attributed
// to the bucket drop-box user.
func uploaderFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) >= 3 && parts[0] == "uploads" && parts[1] != "" {
		return parts[1]
	}
	return "s3-dropbox"
}
