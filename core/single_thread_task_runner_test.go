package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSingleThreadTaskRunner_ExecutionOrder tests execution order
// Main test items:
// 1. Submit multiple tasks to SingleThreadTaskRunner
// 2. Verify tasks execute in submission order (FIFO)
// 3. All tasks are executed correctly
func TestSingleThreadTaskRunner_ExecutionOrder(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	var order []int
	for i := 0; i < 10; i++ {
		id := i
		runner.PostTask(func(ctx context.Context) {
			order = append(order, id)
		})
	}
	require.NoError(t, runner.WaitIdle(context.Background()))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

// TestSingleThreadTaskRunner_ThreadAffinity tests thread affinity
// Main test items:
// 1. All tasks execute on the same goroutine
// 2. BelongsToCurrentThread is true inside tasks and false outside
// 3. The task context carries the runner
func TestSingleThreadTaskRunner_ThreadAffinity(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	ids := make(map[uint64]bool)
	var belongs atomic.Int32
	for i := 0; i < 5; i++ {
		runner.PostTask(func(ctx context.Context) {
			ids[currentGoroutineID()] = true
			if runner.BelongsToCurrentThread() && GetCurrentTaskRunner(ctx) == TaskRunner(runner) {
				belongs.Add(1)
			}
		})
	}
	require.NoError(t, runner.WaitIdle(context.Background()))

	assert.Len(t, ids, 1)
	assert.Equal(t, int32(5), belongs.Load())
	assert.False(t, runner.BelongsToCurrentThread())
}

// TestSingleThreadTaskRunner_DelayedTask verifies PostDelayedTask
func TestSingleThreadTaskRunner_DelayedTask(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	start := time.Now()
	done := make(chan time.Duration, 1)
	runner.PostDelayedTask(func(ctx context.Context) {
		done <- time.Since(start)
	}, 30*time.Millisecond)

	select {
	case elapsed := <-done:
		assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("delayed task did not run")
	}
}

// TestSingleThreadTaskRunner_PostTaskAfterShutdown verifies rejection after Shutdown
// Given: A runner that was shut down
// When: Tasks are posted
// Then: They never run and are counted as rejected
func TestSingleThreadTaskRunner_PostTaskAfterShutdown(t *testing.T) {
	runner := NewSingleThreadTaskRunner(WithRunnerName("closed"))
	runner.Shutdown()
	runner.Shutdown() // idempotent

	var ran atomic.Bool
	runner.PostTask(func(ctx context.Context) { ran.Store(true) })
	runner.Stop()

	assert.False(t, ran.Load())
	assert.True(t, runner.IsClosed())
	assert.Equal(t, int64(1), runner.Stats().Rejected)
	assert.ErrorIs(t, runner.WaitIdle(context.Background()), ErrRunnerClosed)
}

// TestSingleThreadTaskRunner_PanicRecovery verifies a panicking task does not kill the loop
func TestSingleThreadTaskRunner_PanicRecovery(t *testing.T) {
	panics := NewTestPanicHandler()
	runner := NewSingleThreadTaskRunner(WithRunnerName("ui-test"), WithRunnerPanicHandler(panics))
	defer runner.Stop()

	runner.PostTask(func(ctx context.Context) { panic("ui boom") })
	var after atomic.Bool
	runner.PostTask(func(ctx context.Context) { after.Store(true) })
	require.NoError(t, runner.WaitIdle(context.Background()))

	assert.True(t, after.Load())
	calls := panics.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "ui-test", calls[0].RunnerName)
	assert.Equal(t, -1, calls[0].WorkerID)
}

// TestSingleThreadTaskRunner_ConcurrentPostTask verifies concurrent producers
func TestSingleThreadTaskRunner_ConcurrentPostTask(t *testing.T) {
	runner := NewSingleThreadTaskRunner(WithQueueSize(16))
	defer runner.Stop()

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				runner.PostTask(func(ctx context.Context) { counter++ })
			}
		}()
	}
	wg.Wait()
	require.NoError(t, runner.WaitIdle(context.Background()))

	assert.Equal(t, 1000, counter)
}

// TestRunOrPost verifies inline execution on the runner goroutine
// Main test items:
// 1. From outside, the task is posted and runs later on the runner
// 2. From inside a runner task, the task runs inline before the caller continues
func TestRunOrPost(t *testing.T) {
	runner := NewSingleThreadTaskRunner()
	defer runner.Stop()

	var trace []string
	runner.PostTask(func(ctx context.Context) {
		RunOrPost(runner, func(ctx context.Context) {
			trace = append(trace, "inline")
			assert.NotNil(t, GetCurrentTaskRunner(ctx))
		})
		trace = append(trace, "after")
	})

	posted := make(chan bool, 1)
	RunOrPost(runner, func(ctx context.Context) { posted <- runner.BelongsToCurrentThread() })
	require.NoError(t, runner.WaitIdle(context.Background()))

	assert.Equal(t, []string{"inline", "after"}, trace)
	assert.True(t, <-posted)
}
