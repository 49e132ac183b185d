// Package payments defines the payment provider contract and ships the
// deterministic reference implementation used for testing and demos.
package payments

import (
	"context"

	"payroll-batch-engine/internal/models"
)

// PaymentResult is the outcome of a single payment attempt. Ordinary
// payment failures are reported through Success/Error, never as a Go error.
type PaymentResult struct {
	Success     bool                   `json:"success"`
	ProviderID  string                 `json:"provider_id,omitempty"`
	Error       string                 `json:"error,omitempty"`
	RawResponse map[string]interface{} `json:"raw_response,omitempty"`
}

// Adapter performs one payment attempt for one validated row. The call may
// suspend on network latency but must resolve to a PaymentResult for any
// ordinary payment failure; a Go error signals adapter misconfiguration or
// infrastructure trouble only.
type Adapter interface {
	CreatePayment(ctx context.Context, row *models.PaymentRow) (*PaymentResult, error)
}
