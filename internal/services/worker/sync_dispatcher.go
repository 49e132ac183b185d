package worker

import "context"

// SyncDispatcher runs each work item inline on the enqueueing goroutine.
// It exists for single-invocation environments like Lambda, where the
// process must not outlive the request.
type SyncDispatcher struct {
	process ProcessFunc
}

// NewSyncDispatcher creates a dispatcher that processes inline.
func NewSyncDispatcher(process ProcessFunc) *SyncDispatcher {
	return &SyncDispatcher{process: process}
}

// Enqueue runs the item to completion before returning.
func (d *SyncDispatcher) Enqueue(ctx context.Context, item WorkItem) error {
	return d.process(ctx, item)
}

// Withdraw always reports false: inline work is never queued.
func (d *SyncDispatcher) Withdraw(jobID string) bool {
	return false
}

// Shutdown is a no-op.
func (d *SyncDispatcher) Shutdown(ctx context.Context) error {
	return nil
}
