package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDispatcher_ProcessesEnqueuedItems(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	done := make(chan struct{}, 3)

	d := NewMemoryDispatcher(2, 16, 1, func(ctx context.Context, item WorkItem) error {
		mu.Lock()
		seen[item.JobID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Enqueue(context.Background(), WorkItem{JobID: id, UploaderID: "u1"}))
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for work items")
		}
	}

	require.NoError(t, d.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestMemoryDispatcher_WithdrawQueuedItem(t *testing.T) {
	release := make(chan struct{})
	var processed atomic.Int32

	// Single worker held on the first item so the second stays queued.
	d := NewMemoryDispatcher(1, 16, 1, func(ctx context.Context, item WorkItem) error {
		if item.JobID == "blocker" {
			<-release
			return nil
		}
		processed.Add(1)
		return nil
	})

	require.NoError(t, d.Enqueue(context.Background(), WorkItem{JobID: "blocker"}))
	time.Sleep(50 * time.Millisecond) // let the worker claim the blocker
	require.NoError(t, d.Enqueue(context.Background(), WorkItem{JobID: "victim"}))

	assert.True(t, d.Withdraw("victim"))
	assert.False(t, d.Withdraw("victim"), "second withdrawal finds nothing queued")
	assert.False(t, d.Withdraw("unknown"))

	close(release)
	require.NoError(t, d.Shutdown(context.Background()))

	assert.Equal(t, int32(0), processed.Load(), "withdrawn item must never run")
}

func TestMemoryDispatcher_EnqueueAfterShutdown(t *testing.T) {
	d := NewMemoryDispatcher(1, 16, 1, func(ctx context.Context, item WorkItem) error {
		return nil
	})

	require.NoError(t, d.Shutdown(context.Background()))

	err := d.Enqueue(context.Background(), WorkItem{JobID: "late"})
	assert.ErrorIs(t, err, ErrDispatcherClosed)

	// Repeated shutdown is a no-op.
	assert.NoError(t, d.Shutdown(context.Background()))
}

func TestMemoryDispatcher_EnqueueDuringShutdown(t *testing.T) {
	d := NewMemoryDispatcher(2, 4, 1, func(ctx context.Context, item WorkItem) error {
		return nil
	})

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				err := d.Enqueue(context.Background(), WorkItem{JobID: "j", UploaderID: "u1"})
				if errors.Is(err, ErrDispatcherClosed) {
					return
				}
			}
		}()
	}

	close(start)
	require.NoError(t, d.Shutdown(context.Background()))
	wg.Wait()

	err := d.Enqueue(context.Background(), WorkItem{JobID: "late"})
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestMemoryDispatcher_QueueFull(t *testing.T) {
	release := make(chan struct{})
	d := NewMemoryDispatcher(1, 1, 1, func(ctx context.Context, item WorkItem) error {
		<-release
		return nil
	})
	defer func() {
		close(release)
		d.Shutdown(context.Background())
	}()

	require.NoError(t, d.Enqueue(context.Background(), WorkItem{JobID: "running"}))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, d.Enqueue(context.Background(), WorkItem{JobID: "queued"}))

	err := d.Enqueue(context.Background(), WorkItem{JobID: "overflow"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMemoryDispatcher_RetriesFailedItems(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan struct{})

	d := NewMemoryDispatcher(1, 16, 3, func(ctx context.Context, item WorkItem) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	require.NoError(t, d.Enqueue(context.Background(), WorkItem{JobID: "flaky"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for retries")
	}

	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestMemoryDispatcher_ShutdownDeadline(t *testing.T) {
	release := make(chan struct{})
	d := NewMemoryDispatcher(1, 16, 1, func(ctx context.Context, item WorkItem) error {
		<-release
		return nil
	})

	require.NoError(t, d.Enqueue(context.Background(), WorkItem{JobID: "slow"}))
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestSyncDispatcher(t *testing.T) {
	var ran bool
	d := NewSyncDispatcher(func(ctx context.Context, item WorkItem) error {
		ran = true
		return nil
	})

	require.NoError(t, d.Enqueue(context.Background(), WorkItem{JobID: "inline"}))
	assert.True(t, ran, "sync dispatcher runs inline")
	assert.False(t, d.Withdraw("inline"))
	assert.NoError(t, d.Shutdown(context.Background()))
}
