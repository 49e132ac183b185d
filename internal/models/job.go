// Package models defines the data structures for the payroll batch engine.
package models

import (
	"fmt"
	"sort"
	"time"
)

// JobStatus represents the lifecycle state of a batch job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// ValidJobStatuses returns all valid job status values.
func ValidJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusQueued,
		JobStatusProcessing,
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusCancelled,
	}
}

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo reports whether the state machine permits moving to next.
// Transitions out of a terminal state are never permitted.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusCancelled
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	default:
		return false
	}
}

// ErrorSummaryLimit caps the number of row errors reported on upload.
const ErrorSummaryLimit = 20

// PayloadSnapshot captures the shape of the raw upload for later inspection.
type PayloadSnapshot struct {
	Headers []string      `json:"headers"`
	Mapping ColumnMapping `json:"mapping"`
	Preview []RawRow      `json:"preview,omitempty"`
}

// RowErrorSummary is one entry in a job's bounded error summary.
type RowErrorSummary struct {
	RowIndex int    `json:"row_index"`
	Reason   string `json:"reason"`
}

// Job represents one batch upload and its processing lifecycle.
// ValidRowCount and InvalidRowCount are fixed at creation; the processed
// and failed counters are mutated only by the job processor.
type Job struct {
	ID                string            `json:"id" db:"id"`
	UploaderID        string            `json:"uploader_id" db:"uploader_id"`
	Status            JobStatus         `json:"status" db:"status"`
	TotalRows         int               `json:"total_rows" db:"total_rows"`
	ValidRowCount     int               `json:"valid_row_count" db:"valid_row_count"`
	InvalidRowCount   int               `json:"invalid_row_count" db:"invalid_row_count"`
	ProcessedRowCount int               `json:"processed_row_count" db:"processed_row_count"`
	FailedRowCount    int               `json:"failed_row_count" db:"failed_row_count"`
	PayloadSnapshot   *PayloadSnapshot  `json:"payload_snapshot,omitempty" db:"payload_snapshot"`
	ErrorSummary      []RowErrorSummary `json:"error_summary,omitempty" db:"error_summary"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty" db:"started_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// JobSummary is a lightweight view of a job for listings.
type JobSummary struct {
	ID                string     `json:"id"`
	Status            JobStatus  `json:"status"`
	TotalRows         int        `json:"total_rows"`
	ValidRowCount     int        `json:"valid_row_count"`
	InvalidRowCount   int        `json:"invalid_row_count"`
	ProcessedRowCount int        `json:"processed_row_count"`
	FailedRowCount    int        `json:"failed_row_count"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// ToSummary converts a Job to JobSummary.
func (j *Job) ToSummary() JobSummary {
	return JobSummary{
		ID:                j.ID,
		Status:            j.Status,
		TotalRows:         j.TotalRows,
		ValidRowCount:     j.ValidRowCount,
		InvalidRowCount:   j.InvalidRowCount,
		ProcessedRowCount: j.ProcessedRowCount,
		FailedRowCount:    j.FailedRowCount,
		CreatedAt:         j.CreatedAt,
		CompletedAt:       j.CompletedAt,
	}
}

// JobPage is one page of a job listing.
type JobPage struct {
	Items []JobSummary `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
	Pages int          `json:"pages"`
}

// UploadResult summarizes the outcome of a batch upload.
// InvalidRowCount includes duplicates.
type UploadResult struct {
	JobID           string            `json:"job_id"`
	TotalRows       int               `json:"total_rows"`
	ValidRowCount   int               `json:"valid_row_count"`
	InvalidRowCount int               `json:"invalid_row_count"`
	ErrorSummary    []RowErrorSummary `json:"error_summary,omitempty"`
}

// BuildErrorSummary collapses the invalid and duplicate partitions into a
// bounded per-row error list, in ascending row-index order.
func BuildErrorSummary(outcome *ValidationOutcome) []RowErrorSummary {
	summary := make([]RowErrorSummary, 0, len(outcome.InvalidRows)+len(outcome.Duplicates))
	for _, inv := range outcome.InvalidRows {
		reason := ""
		for i, fe := range inv.Errors {
			if i > 0 {
				reason += "; "
			}
			reason += fe.String()
		}
		summary = append(summary, RowErrorSummary{RowIndex: inv.RowIndex, Reason: reason})
	}
	for _, dup := range outcome.Duplicates {
		summary = append(summary, RowErrorSummary{
			RowIndex: dup.RowIndex,
			Reason:   fmt.Sprintf("duplicate of row %d", dup.DuplicateOfIndex),
		})
	}
	sort.Slice(summary, func(i, j int) bool {
		return summary[i].RowIndex < summary[j].RowIndex
	})
	if len(summary) > ErrorSummaryLimit {
		summary = summary[:ErrorSummaryLimit]
	}
	return summary
}
