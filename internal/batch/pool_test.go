package batch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/devocr/internal/document"
)

func TestPool_RunsAllTasks(t *testing.T) {
	pool := NewPool(context.Background(), 3, 10)

	for i := 0; i < 10; i++ {
		i := i
		pool.Submit(i, func(ctx context.Context) (document.BatchResult, error) {
			return document.BatchResult{Index: i, Start: i * 2}, nil
		})
	}

	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		task := <-pool.Completed()
		require.NoError(t, task.Err)
		assert.Equal(t, task.ID*2, task.Result.Start)
		seen[task.ID] = true
	}
	pool.Close()

	assert.Len(t, seen, 10)
	_, open := <-pool.Completed()
	assert.False(t, open, "Completed should be closed after Close")
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(context.Background(), 2, 8)
	var running, peak atomic.Int32

	for i := 0; i < 8; i++ {
		pool.Submit(i, func(ctx context.Context) (document.BatchResult, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return document.BatchResult{}, nil
		})
	}
	pool.Close()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 2, pool.Workers())
}

func TestPool_RecoversPanic(t *testing.T) {
	pool := NewPool(context.Background(), 1, 1)
	task := pool.Submit(7, func(ctx context.Context) (document.BatchResult, error) {
		panic("boom")
	})
	<-task.Done()
	pool.Close()

	var perr *PanicError
	require.ErrorAs(t, task.Err, &perr)
	assert.Equal(t, "boom", perr.Value)
	assert.NotEmpty(t, perr.Stack)
}

func TestPool_CancelSkipsPending(t *testing.T) {
	pool := NewPool(context.Background(), 1, 3)
	release := make(chan struct{})
	started := make(chan struct{})

	first := pool.Submit(0, func(ctx context.Context) (document.BatchResult, error) {
		close(started)
		<-release
		return document.BatchResult{}, nil
	})
	second := pool.Submit(1, func(ctx context.Context) (document.BatchResult, error) {
		t.Error("cancelled task should not run")
		return document.BatchResult{}, nil
	})

	<-started
	pool.Cancel()
	close(release)
	pool.Close()

	assert.NoError(t, first.Err)
	assert.True(t, second.Skipped)
	assert.ErrorIs(t, second.Err, context.Canceled)
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := NewPool(context.Background(), 1, 1)
	pool.Close()

	task := pool.Submit(0, func(ctx context.Context) (document.BatchResult, error) {
		return document.BatchResult{}, nil
	})
	assert.ErrorIs(t, task.Err, ErrPoolClosed)
	<-task.Done()
}
