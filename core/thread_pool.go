package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// ThreadPoolConfig sizes a GoroutineThreadPool.
type ThreadPoolConfig struct {
	// CorePoolSize workers are kept alive while idle.
	CorePoolSize int
	// MaxPoolSize bounds the number of concurrently running workers.
	MaxPoolSize int
	// KeepAlive is how long a worker above CorePoolSize may stay idle.
	KeepAlive time.Duration

	PanicHandler        PanicHandler
	Metrics             Metrics
	RejectedTaskHandler RejectedTaskHandler
	Logger              Logger
}

// DefaultThreadPoolConfig returns 3 core workers, up to 10 workers and a one
// second keep-alive.
func DefaultThreadPoolConfig() ThreadPoolConfig {
	return ThreadPoolConfig{
		CorePoolSize: 3,
		MaxPoolSize:  10,
		KeepAlive:    time.Second,
	}
}

// Validate checks the pool sizes.
func (c ThreadPoolConfig) Validate() error {
	if c.CorePoolSize < 0 || c.MaxPoolSize <= 0 || c.MaxPoolSize < c.CorePoolSize {
		return fmt.Errorf("%w: core=%d max=%d", ErrInvalidPoolSize, c.CorePoolSize, c.MaxPoolSize)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("%w: negative keep-alive %s", ErrInvalidPoolSize, c.KeepAlive)
	}
	return nil
}

// GoroutineThreadPool is an elastic worker pool over an unbounded FIFO queue.
//
// Workers are started lazily by Execute: a new worker is spawned while fewer
// than CorePoolSize exist, or when no worker is idle and MaxPoolSize is not
// reached. Workers above CorePoolSize exit after KeepAlive without work.
type GoroutineThreadPool struct {
	id        string
	cfg       ThreadPoolConfig
	scheduler *TaskScheduler
	logger    Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	workers      int
	idle         int
	largest      int
	nextWorkerID int
	shutdown     bool

	terminated    chan struct{}
	terminateOnce sync.Once
}

// NewGoroutineThreadPool creates a pool. No worker runs until the first Execute.
func NewGoroutineThreadPool(id string, cfg ThreadPoolConfig) (*GoroutineThreadPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &DefaultPanicHandler{Logger: cfg.Logger}
	}
	if cfg.RejectedTaskHandler == nil {
		cfg.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: cfg.Logger}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineThreadPool{
		id:  id,
		cfg: cfg,
		scheduler: NewFIFOTaskScheduler(id, cfg.MaxPoolSize, &TaskSchedulerConfig{
			PanicHandler:        cfg.PanicHandler,
			Metrics:             cfg.Metrics,
			RejectedTaskHandler: cfg.RejectedTaskHandler,
		}),
		logger:     cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
		terminated: make(chan struct{}),
	}, nil
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// Execute queues task. It never blocks and returns ErrPoolShutdown after Shutdown.
func (tg *GoroutineThreadPool) Execute(task Task) error {
	tg.mu.Lock()
	defer tg.mu.Unlock()

	if tg.shutdown {
		// scheduler reports the rejection
		return tg.scheduler.Post(task)
	}
	if err := tg.scheduler.Post(task); err != nil {
		return err
	}
	if tg.workers < tg.cfg.CorePoolSize || (tg.idle == 0 && tg.workers < tg.cfg.MaxPoolSize) {
		tg.startWorkerLocked()
	}
	return nil
}

func (tg *GoroutineThreadPool) startWorkerLocked() {
	id := tg.nextWorkerID
	tg.nextWorkerID++
	tg.workers++
	if tg.workers > tg.largest {
		tg.largest = tg.workers
	}
	tg.wg.Add(1)
	go tg.workerLoop(id)
}

// workerLoop is the main loop for each worker
func (tg *GoroutineThreadPool) workerLoop(id int) {
	retired, stopped := false, false
	defer func() {
		tg.mu.Lock()
		if !retired {
			tg.workers--
		}
		if !retired && !stopped && tg.ctx.Err() == nil &&
			(!tg.shutdown || tg.scheduler.QueuedTaskCount() > 0) {
			// a task called runtime.Goexit
			tg.logger.Warn("worker exited inside a task, replacing it", F("pool", tg.id), F("worker_id", id))
			tg.startWorkerLocked()
		}
		tg.mu.Unlock()
		tg.wg.Done()
	}()

	for {
		task, result := tg.getTask()
		switch result {
		case workRetired:
			retired = true
			tg.logger.Debug("worker retired after keep-alive", F("pool", tg.id), F("worker_id", id))
			return
		case workStopped:
			stopped = true
			return
		}
		tg.runTask(id, task)
	}
}

type workResult int

const (
	workReady workResult = iota
	workStopped
	workRetired
)

func (tg *GoroutineThreadPool) getTask() (Task, workResult) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if tg.ctx.Err() != nil {
			return nil, workStopped
		}
		if task, ok := tg.scheduler.TryGetWork(); ok {
			return task, workReady
		}

		tg.mu.Lock()
		if tg.shutdown {
			tg.mu.Unlock()
			return nil, workStopped
		}
		timed := tg.workers > tg.cfg.CorePoolSize
		tg.idle++
		tg.mu.Unlock()

		var timeout <-chan time.Time
		if timed {
			if timer == nil {
				timer = time.NewTimer(tg.cfg.KeepAlive)
			} else {
				timer.Reset(tg.cfg.KeepAlive)
			}
			timeout = timer.C
		}

		select {
		case <-tg.scheduler.Signal():
			tg.markBusy()
		case <-tg.scheduler.Done():
			tg.markBusy()
		case <-tg.ctx.Done():
			tg.markBusy()
			return nil, workStopped
		case <-timeout:
			tg.mu.Lock()
			tg.idle--
			if tg.workers > tg.cfg.CorePoolSize && tg.scheduler.QueuedTaskCount() == 0 {
				tg.workers--
				tg.mu.Unlock()
				return nil, workRetired
			}
			tg.mu.Unlock()
		}
	}
}

func (tg *GoroutineThreadPool) markBusy() {
	tg.mu.Lock()
	tg.idle--
	tg.mu.Unlock()
}

func (tg *GoroutineThreadPool) runTask(id int, task Task) {
	tg.scheduler.OnTaskStart()
	start := time.Now()
	metrics := tg.scheduler.GetMetrics()

	defer func() {
		tg.scheduler.OnTaskEnd()
		metrics.RecordTaskDuration(tg.id, time.Since(start))
		if r := recover(); r != nil {
			metrics.RecordTaskPanic(tg.id, r)
			tg.scheduler.GetPanicHandler().HandlePanic(tg.ctx, tg.id, id, r, debug.Stack())
		}
	}()
	task(tg.ctx)
}

// Shutdown stops accepting work. Queued and running tasks still complete.
func (tg *GoroutineThreadPool) Shutdown() {
	tg.mu.Lock()
	if !tg.shutdown {
		tg.shutdown = true
		tg.scheduler.Shutdown()
		tg.logger.Debug("thread pool shutting down", F("pool", tg.id), F("queued", tg.scheduler.QueuedTaskCount()))
	}
	tg.mu.Unlock()
	tg.watchTermination()
}

// ShutdownNow stops accepting work, cancels the context handed to running
// tasks and returns the tasks that never started.
func (tg *GoroutineThreadPool) ShutdownNow() []Task {
	tg.mu.Lock()
	tg.shutdown = true
	dropped := tg.scheduler.ShutdownNow()
	tg.mu.Unlock()

	tg.cancel()
	tg.logger.Debug("thread pool shut down now", F("pool", tg.id), F("dropped", len(dropped)))
	tg.watchTermination()
	return dropped
}

func (tg *GoroutineThreadPool) watchTermination() {
	tg.terminateOnce.Do(func() {
		go func() {
			tg.wg.Wait()
			close(tg.terminated)
		}()
	})
}

// AwaitTermination blocks until every worker exited after a shutdown.
func (tg *GoroutineThreadPool) AwaitTermination(ctx context.Context) error {
	select {
	case <-tg.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StopGraceful shuts the pool down and waits up to timeout for queued tasks.
// On timeout the remaining work is cancelled and the dropped tasks are returned
// together with the context error.
func (tg *GoroutineThreadPool) StopGraceful(timeout time.Duration) ([]Task, error) {
	tg.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := tg.AwaitTermination(ctx); err != nil {
		dropped := tg.ShutdownNow()
		<-tg.terminated
		return dropped, err
	}
	return nil, nil
}

// IsShutdown reports whether Shutdown or ShutdownNow was called.
func (tg *GoroutineThreadPool) IsShutdown() bool {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.shutdown
}

// IsTerminated reports whether the pool is shut down and all workers exited.
func (tg *GoroutineThreadPool) IsTerminated() bool {
	select {
	case <-tg.terminated:
		return true
	default:
		return false
	}
}

// WorkerCount returns the number of live workers
func (tg *GoroutineThreadPool) WorkerCount() int {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.workers
}

func (tg *GoroutineThreadPool) QueuedTaskCount() int {
	return tg.scheduler.QueuedTaskCount()
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return tg.scheduler.ActiveTaskCount()
}

// Stats returns a snapshot of the pool state.
func (tg *GoroutineThreadPool) Stats() PoolStats {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return PoolStats{
		ID:       tg.id,
		Workers:  tg.workers,
		Idle:     tg.idle,
		Queued:   tg.scheduler.QueuedTaskCount(),
		Active:   tg.scheduler.ActiveTaskCount(),
		Largest:  tg.largest,
		Core:     tg.cfg.CorePoolSize,
		Max:      tg.cfg.MaxPoolSize,
		Running:  !tg.shutdown,
		Shutdown: tg.shutdown,
	}
}
