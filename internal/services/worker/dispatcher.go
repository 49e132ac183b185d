// Package worker implements the asynchronous job processing state machine.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"payroll-batch-engine/internal/utils"
)

// Dispatcher errors
var (
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
	ErrQueueFull        = errors.New("dispatch queue is full")
)

// WorkItem is one unit of work: process a single job on behalf of its
// uploader. Delivery is at-least-once with a bounded number of attempts.
type WorkItem struct {
	JobID      string `json:"job_id"`
	UploaderID string `json:"uploader_id"`
}

// ProcessFunc executes one work item.
type ProcessFunc func(ctx context.Context, item WorkItem) error

// Dispatcher accepts work items and runs them on background workers.
type Dispatcher interface {
	Enqueue(ctx context.Context, item WorkItem) error
	Withdraw(jobID string) bool
	Shutdown(ctx context.Context) error
}

// MemoryDispatcher is the in-process reference Dispatcher: a bounded queue
// drained by a fixed worker pool. At most one worker executes a given job
// id at a time because each job is enqueued exactly once per upload.
type MemoryDispatcher struct {
	queue       chan WorkItem
	process     ProcessFunc
	maxAttempts int

	mu        sync.Mutex
	pending   map[string]int
	withdrawn map[string]bool
	closed    bool

	wg sync.WaitGroup
}

// NewMemoryDispatcher starts workers goroutines draining a queue of the
// given depth. Each dequeued item is attempted up to maxAttempts times
// (minimum 1) before being dropped with an error log.
func NewMemoryDispatcher(workers, queueDepth, maxAttempts int, process ProcessFunc) *MemoryDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	d := &MemoryDispatcher{
		queue:       make(chan WorkItem, queueDepth),
		process:     process,
		maxAttempts: maxAttempts,
		pending:     make(map[string]int),
		withdrawn:   make(map[string]bool),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}

	return d
}

// Enqueue submits one work item. It fails fast when the queue is full or
// the dispatcher has shut down. The send happens under the mutex so it
// cannot race with Shutdown closing the queue.
func (d *MemoryDispatcher) Enqueue(ctx context.Context, item WorkItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- item:
		d.pending[item.JobID]++
		delete(d.withdrawn, item.JobID)
		return nil
	default:
		return ErrQueueFull
	}
}

// Withdraw removes a not-yet-started unit of work for the job. It reports
// whether a queued, not-already-withdrawn unit existed; an
// already-executing unit runs to completion and cannot be withdrawn.
func (d *MemoryDispatcher) Withdraw(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[jobID] > 0 && !d.withdrawn[jobID] {
		d.withdrawn[jobID] = true
		return true
	}
	return false
}

// Shutdown stops accepting new work and waits for in-flight units to
// finish or the context deadline to pass.
func (d *MemoryDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is one worker loop.
func (d *MemoryDispatcher) run() {
	defer d.wg.Done()
	logger := utils.GetLogger()

	for item := range d.queue {
		if d.claim(item.JobID) {
			logger.Info("Dropping withdrawn work item", zap.String("job_id", item.JobID))
			continue
		}

		var err error
		for attempt := 1; attempt <= d.maxAttempts; attempt++ {
			err = d.process(context.Background(), item)
			if err == nil {
				break
			}
			logger.Warn("Work item attempt failed",
				zap.String("job_id", item.JobID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		if err != nil {
			logger.Error("Work item exhausted all attempts",
				zap.String("job_id", item.JobID),
				zap.Int("attempts", d.maxAttempts),
				zap.Error(err),
			)
		}
	}
}

// claim marks the item as no longer queued and reports whether it had
// been withdrawn.
func (d *MemoryDispatcher) claim(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[jobID]--
	if d.pending[jobID] <= 0 {
		delete(d.pending, jobID)
	}
	if d.withdrawn[jobID] {
		delete(d.withdrawn, jobID)
		return true
	}
	return false
}
