// Package models defines the data structures for the payroll batch engine.
package models

import (
	"errors"
	"fmt"
)

// ValidationError signals a structurally invalid request (empty batch, batch
// too large, malformed payload). Bad row data is never an error: it is
// returned inside a ValidationOutcome.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError signals a referenced job or row that is absent or not owned
// by the caller.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError signals an operation invalid for the current state, such as
// cancelling a job that is already terminal.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// UnauthorizedError signals a missing or invalid credential.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// InternalError wraps repository or dispatch failures.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Common request-shape errors.
var (
	ErrEmptyBatch    = &ValidationError{Message: "batch contains no rows"}
	ErrNoIdentifier  = errors.New("either employee_id or employee_email is required")
	ErrJobNotOwned   = &NotFoundError{Resource: "job", ID: "requested"}
	ErrCancelClosed  = &ConflictError{Message: "job is already in a terminal state"}
	ErrNoCredentials = &UnauthorizedError{Message: "missing or invalid credentials"}
)

// NewBatchTooLargeError builds the ValidationError for an oversized upload.
func NewBatchTooLargeError(rows, limit int) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf("batch has %d rows, limit is %d", rows, limit)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}
