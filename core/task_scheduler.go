package core

import (
	"sync"
	"sync/atomic"
)

// TaskScheduler owns the pool backlog: the queue, the wake-up signal and the
// handlers invoked for rejected or panicking jobs. Workers pull from it.
type TaskScheduler struct {
	name   string
	queue  TaskQueue
	signal chan struct{}

	done     chan struct{}
	doneOnce sync.Once

	metricQueued int32 // Waiting in queue
	metricActive int32 // Executing in Worker

	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	shuttingDown atomic.Bool
}

// TaskSchedulerConfig holds configuration options for TaskScheduler.
// All handlers are optional; if not provided, default implementations will be used.
type TaskSchedulerConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultTaskSchedulerConfig returns a config with default handlers.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	return &TaskSchedulerConfig{
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
	}
}

// NewFIFOTaskScheduler creates a scheduler backed by an unbounded FIFO queue.
func NewFIFOTaskScheduler(name string, signalSize int, config *TaskSchedulerConfig) *TaskScheduler {
	if signalSize <= 0 {
		signalSize = 1
	}
	s := &TaskScheduler{
		name:   name,
		queue:  NewFIFOTaskQueue(),
		signal: make(chan struct{}, signalSize),
		done:   make(chan struct{}),
	}

	if config != nil {
		s.panicHandler = config.PanicHandler
		s.metrics = config.Metrics
		s.rejectedTaskHandler = config.RejectedTaskHandler
	}

	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}

	return s
}

// Post queues task and wakes one waiting worker.
func (s *TaskScheduler) Post(task Task) error {
	if s.shuttingDown.Load() {
		s.rejectedTaskHandler.HandleRejectedTask(s.name, "shutting down")
		s.metrics.RecordTaskRejected(s.name, "shutting down")
		return ErrPoolShutdown
	}

	s.queue.Push(task)
	depth := atomic.AddInt32(&s.metricQueued, 1)
	s.metrics.RecordQueueDepth(s.name, int(depth))

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
		// This is not an error, just a optimization hint
	}
	return nil
}

// TryGetWork pops the next task without blocking.
func (s *TaskScheduler) TryGetWork() (Task, bool) {
	task, ok := s.queue.Pop()
	if !ok {
		return nil, false
	}
	depth := atomic.AddInt32(&s.metricQueued, -1)
	s.metrics.RecordQueueDepth(s.name, int(depth))
	return task, true
}

// Signal is ready whenever a task was posted since the last receive.
func (s *TaskScheduler) Signal() <-chan struct{} { return s.signal }

// Done is closed once Shutdown or ShutdownNow ran.
func (s *TaskScheduler) Done() <-chan struct{} { return s.done }

// Shutdown stops accepting new tasks; queued tasks stay available to workers.
func (s *TaskScheduler) Shutdown() {
	s.shuttingDown.Store(true)
	s.doneOnce.Do(func() { close(s.done) })
}

// ShutdownNow stops accepting new tasks and returns the ones never started.
func (s *TaskScheduler) ShutdownNow() []Task {
	s.Shutdown()
	drained := s.queue.Drain()
	atomic.AddInt32(&s.metricQueued, -int32(len(drained)))
	s.metrics.RecordQueueDepth(s.name, s.QueuedTaskCount())
	return drained
}

// IsShuttingDown reports whether Shutdown was called.
func (s *TaskScheduler) IsShuttingDown() bool { return s.shuttingDown.Load() }

// Metrics
func (s *TaskScheduler) QueuedTaskCount() int { return int(atomic.LoadInt32(&s.metricQueued)) }
func (s *TaskScheduler) ActiveTaskCount() int { return int(atomic.LoadInt32(&s.metricActive)) }

func (s *TaskScheduler) OnTaskStart() {
	atomic.AddInt32(&s.metricActive, 1)
}

func (s *TaskScheduler) OnTaskEnd() {
	atomic.AddInt32(&s.metricActive, -1)
}

// GetPanicHandler returns the panic handler for this scheduler
func (s *TaskScheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}

// GetMetrics returns the metrics collector for this scheduler
func (s *TaskScheduler) GetMetrics() Metrics {
	return s.metrics
}
