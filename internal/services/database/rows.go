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

// RowRepository handles persisted payment row operations.
type RowRepository struct {
	db *DB
}

// NewRowRepository creates a new row repository.
func NewRowRepository(db *DB) *RowRepository {
	return &RowRepository{db: db}
}

// BulkInsert inserts all rows of a job in one transaction.
func (r *RowRepository) BulkInsert(ctx context.Context, rows []*models.Row) error {
	if len(rows) == 0 {
		return nil
	}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, row := range rows {
			input, err := json.Marshal(row.InputSnapshot)
			if err != nil {
				return fmt.Errorf("failed to marshal input snapshot: %w", err)
			}
			payment, err := json.Marshal(row.Payment)
			if err != nil {
				return fmt.Errorf("failed to marshal payment: %w", err)
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO payroll_rows (id, job_id, row_index, input_snapshot, payment,
					status, attempts, max_retries, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
				row.ID,
				row.JobID,
				row.RowIndex,
				string(input),
				string(payment),
				string(row.Status),
				row.Attempts,
				row.MaxRetries,
				time.Now().UTC(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert row %d: %w", row.RowIndex, err)
			}
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("bulk insert failed: %w", err)
	}

	return nil
}

// ListRowsByJob retrieves all rows of a job ordered by row index.
func (r *RowRepository) ListRowsByJob(ctx context.Context, jobID string) ([]*models.Row, error) {
	query := `
		SELECT id, job_id, row_index, input_snapshot, payment, status, attempts,
			max_retries, provider_response, error_message, created_at, updated_at
		FROM payroll_rows
		WHERE job_id = $1
		ORDER BY row_index`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var result []*models.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, row)
	}

	return result, nil
}

// UpdateRowResult persists the processing outcome of one row.
func (r *RowRepository) UpdateRowResult(ctx context.Context, row *models.Row) error {
	response, err := json.Marshal(row.ProviderResponse)
	if err != nil {
		return fmt.Errorf("failed to marshal provider response: %w", err)
	}

	query := `
		UPDATE payroll_rows
		SET status = $2, attempts = $3, provider_response = $4,
			error_message = $5, updated_at = $6
		WHERE id = $1`

	_, err = r.db.ExecContext(ctx, query,
		row.ID,
		string(row.Status),
		row.Attempts,
		string(response),
		row.ErrorMessage,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update row: %w", err)
	}

	return nil
}

// scanRow reads one persisted row, decoding the JSON columns.
func scanRow(row pgx.Row) (*models.Row, error) {
	var result models.Row
	var status string
	var input, payment, response []byte
	var errorMessage *string

	err := row.Scan(
		&result.ID,
		&result.JobID,
		&result.RowIndex,
		&input,
		&payment,
		&status,
		&result.Attempts,
		&result.MaxRetries,
		&response,
		&errorMessage,
		&result.CreatedAt,
		&result.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	result.Status = models.RowStatus(status)
	if errorMessage != nil {
		result.ErrorMessage = *errorMessage
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &result.InputSnapshot); err != nil {
			return nil, fmt.Errorf("failed to decode input snapshot: %w", err)
		}
	}
	if len(payment) > 0 {
		if err := json.Unmarshal(payment, &result.Payment); err != nil {
			return nil, fmt.Errorf("failed to decode payment: %w", err)
		}
	}
	if len(response) > 0 && string(response) != "null" {
		if err := json.Unmarshal(response, &result.ProviderResponse); err != nil {
			return nil, fmt.Errorf("failed to decode provider response: %w", err)
		}
	}

	return &result, nil
}
