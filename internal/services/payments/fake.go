// Package payments defines the payment provider contract and ships the
// deterministic reference implementation used for testing and demos.
package payments

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"payroll-batch-engine/internal/models"
)

// failureReasons is the fixed set of plausible provider error strings the
// fake adapter selects from.
var failureReasons = []string{
	"insufficient funds",
	"invalid account",
	"daily limit exceeded",
	"temporarily unavailable",
	"invalid currency",
}

// FakeAdapter is a deterministic payment provider. Two adapters built with
// the same seed produce identical outcomes for the same row; latency
// affects timing only, never the outcome.
type FakeAdapter struct {
	seed        int64
	successRate float64
	latency     time.Duration
}

// NewFakeAdapter creates a fake adapter with the given seed, success rate
// in [0,1] and simulated per-call latency.
func NewFakeAdapter(seed int64, successRate float64, latency time.Duration) *FakeAdapter {
	return &FakeAdapter{
		seed:        seed,
		successRate: successRate,
		latency:     latency,
	}
}

// CreatePayment simulates one payment attempt for the row.
func (a *FakeAdapter) CreatePayment(ctx context.Context, row *models.PaymentRow) (*PaymentResult, error) {
	if a.latency > 0 {
		select {
		case <-time.After(a.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	key := row.DuplicateKey()
	draw, h := a.draw(key)

	if draw < a.successRate {
		return &PaymentResult{
			Success:    true,
			ProviderID: fmt.Sprintf("fake_%016x", h),
			RawResponse: map[string]interface{}{
				"provider": "fake",
				"status":   "completed",
				"amount":   row.AmountString(),
				"currency": row.Currency,
			},
		}, nil
	}

	// Second reproducible draw over the same key, suffixed to vary the
	// selector, picks the failure reason.
	_, eh := a.draw(key + "|error")
	reason := failureReasons[eh%uint64(len(failureReasons))]

	return &PaymentResult{
		Success: false,
		Error:   reason,
		RawResponse: map[string]interface{}{
			"provider": "fake",
			"status":   "failed",
			"reason":   reason,
		},
	}, nil
}

// draw derives a reproducible pseudo-random value in [0,1) from the seed
// combined with key, returning the underlying hash as well.
func (a *FakeAdapter) draw(key string) (float64, uint64) {
	h := fnv.New64a()
	h.Write([]byte(strconv.FormatInt(a.seed, 10)))
	h.Write([]byte(":"))
	h.Write([]byte(key))
	sum := h.Sum64()
	return float64(sum>>11) / float64(1<<53), sum
}
