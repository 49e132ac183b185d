package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payroll-batch-engine/internal/models"
	"payroll-batch-engine/internal/services/payments"
)

// fakeJobStore keeps one job in memory and records progress updates.
type fakeJobStore struct {
	mu              sync.Mutex
	job             *models.Job
	progressUpdates [][2]int
	finalizeErr     error
	progressErr     error
}

func (s *fakeJobStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil || s.job.ID != id {
		return nil, nil
	}
	copied := *s.job
	return &copied, nil
}

func (s *fakeJobStore) MarkJobProcessing(ctx context.Context, id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Status = models.JobStatusProcessing
	s.job.StartedAt = &startedAt
	return nil
}

func (s *fakeJobStore) UpdateJobProgress(ctx context.Context, id string, processed, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progressErr != nil {
		return s.progressErr
	}
	s.job.ProcessedRowCount = processed
	s.job.FailedRowCount = failed
	s.progressUpdates = append(s.progressUpdates, [2]int{processed, failed})
	return nil
}

func (s *fakeJobStore) FinalizeJob(ctx context.Context, id string, status models.JobStatus, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	s.job.Status = status
	s.job.CompletedAt = &completedAt
	return nil
}

// fakeRowStore serves and persists rows in memory.
type fakeRowStore struct {
	mu      sync.Mutex
	rows    []*models.Row
	updates int
	listErr error
}

func (s *fakeRowStore) ListRowsByJob(ctx context.Context, jobID string) ([]*models.Row, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.rows, nil
}

func (s *fakeRowStore) UpdateRowResult(ctx context.Context, row *models.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	return nil
}

// scriptedAdapter returns canned results per employee id.
type scriptedAdapter struct {
	mu       sync.Mutex
	calls    map[string]int
	failFor  map[string]bool
	errAfter map[string]int
}

func newScriptedAdapter() *scriptedAdapter {
	return &scriptedAdapter{
		calls:    make(map[string]int),
		failFor:  make(map[string]bool),
		errAfter: make(map[string]int),
	}
}

func (a *scriptedAdapter) CreatePayment(ctx context.Context, row *models.PaymentRow) (*payments.PaymentResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[row.EmployeeID]++

	if a.errAfter[row.EmployeeID] > 0 && a.calls[row.EmployeeID] >= a.errAfter[row.EmployeeID] {
		return nil, errors.New("provider unreachable")
	}
	if a.failFor[row.EmployeeID] {
		return &payments.PaymentResult{Success: false, Error: "insufficient funds"}, nil
	}
	return &payments.PaymentResult{
		Success:    true,
		ProviderID: "prov_" + row.EmployeeID,
	}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []*models.Job
}

func (n *recordingNotifier) NotifyJobFinished(ctx context.Context, job *models.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return nil
}

func makeRows(jobID string, count, maxRetries int) []*models.Row {
	rows := make([]*models.Row, count)
	for i := range rows {
		rows[i] = &models.Row{
			ID:         fmt.Sprintf("row-%d", i),
			JobID:      jobID,
			RowIndex:   i,
			Status:     models.RowStatusPending,
			MaxRetries: maxRetries,
			Payment: &models.PaymentRow{
				EmployeeID: fmt.Sprintf("EMP%03d", i),
				Amount:     100,
				Currency:   "USD",
				PayDate:    time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
			},
		}
	}
	return rows
}

func newTestJob(id string, validRows int) *models.Job {
	return &models.Job{
		ID:            id,
		UploaderID:    "uploader-1",
		Status:        models.JobStatusQueued,
		TotalRows:     validRows,
		ValidRowCount: validRows,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestProcessor_AllRowsSucceed(t *testing.T) {
	jobs := &fakeJobStore{job: newTestJob("job-1", 12)}
	rows := &fakeRowStore{rows: makeRows("job-1", 12, 3)}
	notifier := &recordingNotifier{}

	p := NewProcessor(jobs, rows, newScriptedAdapter(), notifier, 10, time.Millisecond)
	err := p.Process(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, jobs.job.Status)
	assert.Equal(t, 12, jobs.job.ProcessedRowCount)
	assert.Equal(t, 0, jobs.job.FailedRowCount)
	assert.NotNil(t, jobs.job.CompletedAt)

	// 12 rows with batch size 10 means two batch-boundary updates.
	require.Len(t, jobs.progressUpdates, 2)
	assert.Equal(t, [2]int{10, 0}, jobs.progressUpdates[0])
	assert.Equal(t, [2]int{12, 0}, jobs.progressUpdates[1])

	for _, row := range rows.rows {
		assert.Equal(t, models.RowStatusSuccess, row.Status)
		assert.Equal(t, 1, row.Attempts)
	}
	assert.Equal(t, 12, rows.updates)

	require.Len(t, notifier.jobs, 1)
	assert.Equal(t, models.JobStatusCompleted, notifier.jobs[0].Status)
}

func TestProcessor_RowFailuresDoNotFailJob(t *testing.T) {
	jobs := &fakeJobStore{job: newTestJob("job-1", 3)}
	rows := &fakeRowStore{rows: makeRows("job-1", 3, 3)}
	adapter := newScriptedAdapter()
	adapter.failFor["EMP001"] = true

	p := NewProcessor(jobs, rows, adapter, nil, 10, time.Millisecond)
	err := p.Process(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, jobs.job.Status)
	assert.Equal(t, 3, jobs.job.ProcessedRowCount)
	assert.Equal(t, 1, jobs.job.FailedRowCount)

	failed := rows.rows[1]
	assert.Equal(t, models.RowStatusFailed, failed.Status)
	assert.Equal(t, 3, failed.Attempts, "failing row exhausts all retries")
	assert.Equal(t, "insufficient funds", failed.ErrorMessage)

	assert.Equal(t, 1, rows.rows[0].Attempts, "successful rows settle on the first attempt")
}

func TestProcessor_InfrastructureErrorFailsJob(t *testing.T) {
	jobs := &fakeJobStore{job: newTestJob("job-1", 2)}
	rows := &fakeRowStore{rows: makeRows("job-1", 2, 3), listErr: errors.New("connection reset")}
	notifier := &recordingNotifier{}

	p := NewProcessor(jobs, rows, newScriptedAdapter(), notifier, 10, time.Millisecond)
	err := p.Process(context.Background(), "job-1")

	require.Error(t, err)
	var internal *models.InternalError
	assert.ErrorAs(t, err, &internal)
	assert.Equal(t, models.JobStatusFailed, jobs.job.Status)

	require.Len(t, notifier.jobs, 1)
	assert.Equal(t, models.JobStatusFailed, notifier.jobs[0].Status)
}

func TestProcessor_ProgressPersistFailureFailsJob(t *testing.T) {
	jobs := &fakeJobStore{job: newTestJob("job-1", 1), progressErr: errors.New("disk full")}
	rows := &fakeRowStore{rows: makeRows("job-1", 1, 3)}

	p := NewProcessor(jobs, rows, newScriptedAdapter(), nil, 10, time.Millisecond)
	err := p.Process(context.Background(), "job-1")

	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, jobs.job.Status)
}

func TestProcessor_MissingJob(t *testing.T) {
	p := NewProcessor(&fakeJobStore{}, &fakeRowStore{}, newScriptedAdapter(), nil, 10, time.Millisecond)

	err := p.Process(context.Background(), "nope")

	assert.True(t, models.IsNotFound(err))
}

func TestProcessor_SkipsTerminalJob(t *testing.T) {
	job := newTestJob("job-1", 2)
	job.Status = models.JobStatusCancelled
	jobs := &fakeJobStore{job: job}
	rows := &fakeRowStore{rows: makeRows("job-1", 2, 3)}

	p := NewProcessor(jobs, rows, newScriptedAdapter(), nil, 10, time.Millisecond)
	err := p.Process(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, jobs.job.Status)
	assert.Equal(t, 0, rows.updates, "no row is touched on a terminal job")
}

func TestProcessor_SkipsSettledRows(t *testing.T) {
	jobs := &fakeJobStore{job: newTestJob("job-1", 2)}
	allRows := makeRows("job-1", 2, 3)
	allRows[0].Status = models.RowStatusSuccess
	allRows[0].Attempts = 1
	rows := &fakeRowStore{rows: allRows}
	adapter := newScriptedAdapter()

	p := NewProcessor(jobs, rows, adapter, nil, 10, time.Millisecond)
	err := p.Process(context.Background(), "job-1")

	require.NoError(t, err)
	assert.Equal(t, 0, adapter.calls["EMP000"], "settled row is never re-attempted")
	assert.Equal(t, 1, adapter.calls["EMP001"])
	assert.Equal(t, 1, rows.updates)
}

func TestProcessor_RetriesThenSucceeds(t *testing.T) {
	jobs := &fakeJobStore{job: newTestJob("job-1", 1)}
	rows := &fakeRowStore{rows: makeRows("job-1", 1, 3)}

	attempts := 0
	adapter := adapterFunc(func(ctx context.Context, row *models.PaymentRow) (*payments.PaymentResult, error) {
		attempts++
		if attempts < 3 {
			return &payments.PaymentResult{Success: false, Error: "temporarily unavailable"}, nil
		}
		return &payments.PaymentResult{Success: true, ProviderID: "prov_1"}, nil
	})

	p := NewProcessor(jobs, rows, adapter, nil, 10, time.Millisecond)
	err := p.Process(context.Background(), "job-1")

	require.NoError(t, err)
	row := rows.rows[0]
	assert.Equal(t, models.RowStatusSuccess, row.Status)
	assert.Equal(t, 3, row.Attempts)
	assert.Empty(t, row.ErrorMessage, "error from earlier attempts is cleared on success")
	assert.Equal(t, 0, jobs.job.FailedRowCount)
}

func TestProcessor_ContextCancellationPropagates(t *testing.T) {
	jobs := &fakeJobStore{job: newTestJob("job-1", 1)}
	rows := &fakeRowStore{rows: makeRows("job-1", 1, 3)}

	ctx, cancel := context.WithCancel(context.Background())
	adapter := adapterFunc(func(ctx context.Context, row *models.PaymentRow) (*payments.PaymentResult, error) {
		cancel()
		return nil, ctx.Err()
	})

	p := NewProcessor(jobs, rows, adapter, nil, 10, time.Millisecond)
	err := p.Process(ctx, "job-1")

	require.Error(t, err)
	assert.ErrorIs(t, errors.Unwrap(err), context.Canceled)
}

// adapterFunc adapts a function to the payments.Adapter interface.
type adapterFunc func(ctx context.Context, row *models.PaymentRow) (*payments.PaymentResult, error)

func (f adapterFunc) CreatePayment(ctx context.Context, row *models.PaymentRow) (*payments.PaymentResult, error) {
	return f(ctx, row)
}
