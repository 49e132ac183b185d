// Package models defines the data structures for the payroll batch engine.
package models

import (
	"fmt"
	"time"
)

// Canonical field names for a payment instruction row.
const (
	FieldEmployeeID        = "employee_id"
	FieldEmployeeEmail     = "employee_email"
	FieldAmount            = "amount"
	FieldCurrency          = "currency"
	FieldPayDate           = "pay_date"
	FieldDescription       = "description"
	FieldExternalReference = "external_reference"
)

// CanonicalFields lists the seven canonical fields in their fixed order.
var CanonicalFields = []string{
	FieldEmployeeID,
	FieldEmployeeEmail,
	FieldAmount,
	FieldCurrency,
	FieldPayDate,
	FieldDescription,
	FieldExternalReference,
}

// RawRow maps input column names to raw string values, one per input line.
type RawRow map[string]string

// ColumnMapping maps canonical field names to input column names.
// A field absent from the map is unmapped.
type ColumnMapping map[string]string

// PaymentRow is one validated, normalized payment instruction.
// Currency is upper-case, PayDate is a calendar date. Treated as immutable
// once constructed by ValidateRow.
type PaymentRow struct {
	EmployeeID        string    `json:"employee_id,omitempty"`
	EmployeeEmail     string    `json:"employee_email,omitempty"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"currency"`
	PayDate           time.Time `json:"pay_date"`
	Description       string    `json:"description,omitempty"`
	ExternalReference string    `json:"external_reference,omitempty"`
}

// AmountString returns the amount normalized to two decimal places.
func (p *PaymentRow) AmountString() string {
	return fmt.Sprintf("%.2f", p.Amount)
}

// PayDateString returns the pay date in YYYY-MM-DD form.
func (p *PaymentRow) PayDateString() string {
	return p.PayDate.Format("2006-01-02")
}

// Identifier returns the employee identifier, preferring the id over the
// email. Identifiers of different kinds are never cross-resolved.
func (p *PaymentRow) Identifier() string {
	if p.EmployeeID != "" {
		return p.EmployeeID
	}
	return p.EmployeeEmail
}

// DuplicateKey builds the within-batch deduplication key.
func (p *PaymentRow) DuplicateKey() string {
	return p.Identifier() + ":" + p.AmountString() + ":" + p.PayDateString()
}

// FieldError describes one validation rule violation. Field is empty for
// row-level (cross-field) violations.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// String renders the error as "field: message" or just the message.
func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidRow is a validated row together with its original input position
// and the raw values it was built from.
type ValidRow struct {
	RowIndex int         `json:"row_index"`
	Input    RawRow      `json:"input"`
	Row      *PaymentRow `json:"row"`
}

// InvalidRow is a row rejected by validation, with all collected errors.
type InvalidRow struct {
	RowIndex int          `json:"row_index"`
	RawData  RawRow       `json:"raw_data"`
	Errors   []FieldError `json:"errors"`
}

// DuplicateRow is a valid row removed because an earlier row in the same
// batch shares its duplicate key.
type DuplicateRow struct {
	RowIndex         int    `json:"row_index"`
	RawData          RawRow `json:"raw_data"`
	DuplicateOfIndex int    `json:"duplicate_of_index"`
}

// ValidationOutcome partitions a batch into valid, invalid and duplicate
// rows. Every input row index appears in exactly one partition.
type ValidationOutcome struct {
	ValidRows   []ValidRow     `json:"valid_rows"`
	InvalidRows []InvalidRow   `json:"invalid_rows"`
	Duplicates  []DuplicateRow `json:"duplicates"`
}

// RowStatus represents the processing state of a persisted row.
type RowStatus string

const (
	RowStatusPending RowStatus = "PENDING"
	RowStatusSuccess RowStatus = "SUCCESS"
	RowStatusFailed  RowStatus = "FAILED"
)

// IsTerminal reports whether the row has finished processing.
func (s RowStatus) IsTerminal() bool {
	return s == RowStatusSuccess || s == RowStatusFailed
}

// Row is one persisted PaymentRow under processing. RowIndex is dense and
// 0-based within the valid partition of its job, not the original input
// index. Rows are owned by their job and deleted with it.
type Row struct {
	ID               string                 `json:"id" db:"id"`
	JobID            string                 `json:"job_id" db:"job_id"`
	RowIndex         int                    `json:"row_index" db:"row_index"`
	InputSnapshot    RawRow                 `json:"input_snapshot" db:"input_snapshot"`
	Payment          *PaymentRow            `json:"payment" db:"payment"`
	Status           RowStatus              `json:"status" db:"status"`
	Attempts         int                    `json:"attempts" db:"attempts"`
	MaxRetries       int                    `json:"max_retries" db:"max_retries"`
	ProviderResponse map[string]interface{} `json:"provider_response,omitempty" db:"provider_response"`
	ErrorMessage     string                 `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at" db:"updated_at"`
}

// RowSummary is the per-row view returned with job details.
type RowSummary struct {
	RowIndex         int                    `json:"row_index"`
	Status           RowStatus              `json:"status"`
	Attempts         int                    `json:"attempts"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	ProviderResponse map[string]interface{} `json:"provider_response,omitempty"`
}

// ToSummary converts a Row to RowSummary.
func (r *Row) ToSummary() RowSummary {
	return RowSummary{
		RowIndex:         r.RowIndex,
		Status:           r.Status,
		Attempts:         r.Attempts,
		ErrorMessage:     r.ErrorMessage,
		ProviderResponse: r.ProviderResponse,
	}
}
