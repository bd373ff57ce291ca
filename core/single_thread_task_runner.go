package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const defaultWorkQueueSize = 1024

// SingleThreadTaskRunner binds a dedicated Goroutine to execute tasks sequentially.
// It guarantees that all tasks submitted to it run on the same Goroutine (Thread Affinity).
//
// In this module it plays the role of the UI thread: every piece of state that
// must never be touched concurrently (blocking counters, task lists, the
// foreground task) is mutated only from tasks running here.
type SingleThreadTaskRunner struct {
	workQueue chan Task

	ctx    context.Context
	cancel context.CancelFunc

	stopped      chan struct{}
	once         sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	// goroutine id of runLoop, 0 until the loop started
	loopID atomic.Uint64

	lastTaskAt atomic.Int64
	executed   atomic.Int64
	rejected   atomic.Int64

	name         string
	panicHandler PanicHandler
	logger       Logger
}

// SingleThreadRunnerOption configures a SingleThreadTaskRunner.
type SingleThreadRunnerOption func(*SingleThreadTaskRunner)

// WithRunnerName sets the name used in logs, metrics and panic reports.
func WithRunnerName(name string) SingleThreadRunnerOption {
	return func(r *SingleThreadTaskRunner) { r.name = name }
}

// WithQueueSize sets the buffer size of the work queue.
func WithQueueSize(size int) SingleThreadRunnerOption {
	return func(r *SingleThreadTaskRunner) {
		if size > 0 {
			r.workQueue = make(chan Task, size)
		}
	}
}

// WithRunnerPanicHandler routes task panics to h.
func WithRunnerPanicHandler(h PanicHandler) SingleThreadRunnerOption {
	return func(r *SingleThreadTaskRunner) {
		if h != nil {
			r.panicHandler = h
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l Logger) SingleThreadRunnerOption {
	return func(r *SingleThreadTaskRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewSingleThreadTaskRunner creates and starts a new SingleThreadTaskRunner.
// It immediately spawns a dedicated goroutine for task execution.
func NewSingleThreadTaskRunner(opts ...SingleThreadRunnerOption) *SingleThreadTaskRunner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &SingleThreadTaskRunner{
		workQueue:    make(chan Task, defaultWorkQueueSize),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
		name:         "ui",
		logger:       NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.panicHandler == nil {
		r.panicHandler = &DefaultPanicHandler{Logger: r.logger}
	}

	started := make(chan struct{})
	go r.runLoop(started)
	<-started

	return r
}

// Name returns the name of the task runner
func (r *SingleThreadTaskRunner) Name() string {
	return r.name
}

// BelongsToCurrentThread reports whether the caller runs on this runner's goroutine.
func (r *SingleThreadTaskRunner) BelongsToCurrentThread() bool {
	id := r.loopID.Load()
	return id != 0 && id == currentGoroutineID()
}

// PostTask submits a task for execution. Tasks posted after Shutdown are dropped.
func (r *SingleThreadTaskRunner) PostTask(task Task) {
	if r.closed.Load() {
		r.rejected.Add(1)
		return
	}

	select {
	case <-r.ctx.Done():
		r.rejected.Add(1)
	case r.workQueue <- task:
	}
}

// PostDelayedTask posts task after delay.
func (r *SingleThreadTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	if r.closed.Load() {
		return
	}
	time.AfterFunc(delay, func() {
		r.PostTask(task)
	})
}

// Shutdown marks the runner as closed and signals shutdown waiters.
//
// After calling Shutdown():
// - WaitShutdown() will return
// - IsClosed() will return true
// - New tasks posted will be ignored
// - Call Stop() to release the goroutine
func (r *SingleThreadTaskRunner) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
		close(r.shutdownChan)
	})
}

// IsClosed returns true if the runner has been stopped
func (r *SingleThreadTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// Stop stops the runner and waits for the current task to complete.
// Must not be called from the runner's own goroutine.
func (r *SingleThreadTaskRunner) Stop() {
	r.once.Do(func() {
		r.Shutdown()
		<-r.stopped
	})
}

// runLoop is the core of this runner, it occupies a dedicated goroutine
func (r *SingleThreadTaskRunner) runLoop(started chan<- struct{}) {
	defer close(r.stopped)

	r.loopID.Store(currentGoroutineID())
	close(started)

	runCtx := context.WithValue(r.ctx, taskRunnerKey, r)

	for {
		select {
		case task := <-r.workQueue:
			r.runTask(runCtx, task)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *SingleThreadTaskRunner) runTask(ctx context.Context, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panicHandler.HandlePanic(ctx, r.name, -1, rec, debug.Stack())
		}
	}()
	task(ctx)
	r.executed.Add(1)
	r.lastTaskAt.Store(time.Now().UnixNano())
}

// Stats returns a snapshot of the runner state.
func (r *SingleThreadTaskRunner) Stats() RunnerStats {
	stats := RunnerStats{
		Name:     r.name,
		Type:     "single_thread",
		Pending:  len(r.workQueue),
		Executed: r.executed.Load(),
		Rejected: r.rejected.Load(),
		Closed:   r.closed.Load(),
	}
	if ns := r.lastTaskAt.Load(); ns != 0 {
		stats.LastTaskAt = time.Unix(0, ns)
	}
	return stats
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all currently queued tasks have completed execution.
// This is implemented by posting a barrier task and waiting for it to execute.
//
// Note: Tasks posted after WaitIdle is called are not waited for.
// Calling WaitIdle from the runner's own goroutine would deadlock, so it returns immediately.
func (r *SingleThreadTaskRunner) WaitIdle(ctx context.Context) error {
	if r.IsClosed() {
		return ErrRunnerClosed
	}
	if r.BelongsToCurrentThread() {
		return nil
	}

	done := make(chan struct{})
	r.PostTask(func(taskCtx context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.shutdownChan:
		return ErrRunnerClosed
	}
}

// FlushAsync posts a barrier task that executes the callback when all prior tasks complete.
func (r *SingleThreadTaskRunner) FlushAsync(callback func()) {
	r.PostTask(func(ctx context.Context) {
		callback()
	})
}

// WaitShutdown blocks until Shutdown() is called on this runner.
func (r *SingleThreadTaskRunner) WaitShutdown(ctx context.Context) error {
	select {
	case <-r.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
