package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payroll-batch-engine/internal/models"
)

func paymentRow(id string, amount float64) *models.PaymentRow {
	return &models.PaymentRow{
		EmployeeID: id,
		Amount:     amount,
		Currency:   "USD",
		PayDate:    time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestFakeAdapter_Deterministic(t *testing.T) {
	a := NewFakeAdapter(42, 0.5, 0)
	b := NewFakeAdapter(42, 0.5, 0)

	for i := 0; i < 50; i++ {
		row := paymentRow("EMP001", float64(i)+0.25)

		resA, errA := a.CreatePayment(context.Background(), row)
		resB, errB := b.CreatePayment(context.Background(), row)

		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, resA.Success, resB.Success)
		assert.Equal(t, resA.ProviderID, resB.ProviderID)
		assert.Equal(t, resA.Error, resB.Error, "failure reason must be reproducible")
	}
}

func TestFakeAdapter_SeedChangesOutcomes(t *testing.T) {
	a := NewFakeAdapter(1, 0.5, 0)
	b := NewFakeAdapter(2, 0.5, 0)

	differs := false
	for i := 0; i < 100; i++ {
		row := paymentRow("EMP001", float64(i)+1)

		resA, err := a.CreatePayment(context.Background(), row)
		require.NoError(t, err)
		resB, err := b.CreatePayment(context.Background(), row)
		require.NoError(t, err)

		if resA.Success != resB.Success {
			differs = true
			break
		}
	}
	assert.True(t, differs, "different seeds should diverge within 100 rows")
}

func TestFakeAdapter_SuccessRateExtremes(t *testing.T) {
	always := NewFakeAdapter(42, 1.0, 0)
	never := NewFakeAdapter(42, 0.0, 0)

	for i := 0; i < 20; i++ {
		row := paymentRow("EMP001", float64(i)+1)

		res, err := always.CreatePayment(context.Background(), row)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.NotEmpty(t, res.ProviderID)
		assert.Equal(t, "completed", res.RawResponse["status"])

		res, err = never.CreatePayment(context.Background(), row)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
		assert.Contains(t, failureReasons, res.Error)
		assert.Equal(t, "failed", res.RawResponse["status"])
	}
}

func TestFakeAdapter_LatencyCancellation(t *testing.T) {
	a := NewFakeAdapter(42, 1.0, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.CreatePayment(ctx, paymentRow("EMP001", 100))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "cancellation must not wait out the latency")
}
