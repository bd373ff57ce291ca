package core

import (
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// TaskQueue defines the interface for the pool's backlog.
type TaskQueue interface {
	Push(t Task)
	Pop() (Task, bool)
	Drain() []Task
	Len() int
	IsEmpty() bool
}

// =============================================================================
// FIFOTaskQueue: unbounded FIFO backlog
// =============================================================================

type FIFOTaskQueue struct {
	mu    sync.Mutex
	tasks []Task
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{
		tasks: make([]Task, 0, defaultQueueCap),
	}
}

func (q *FIFOTaskQueue) Push(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

func (q *FIFOTaskQueue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return t, true
}

// Drain removes and returns every queued task in FIFO order.
func (q *FIFOTaskQueue) Drain() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}
	drained := q.tasks
	q.tasks = make([]Task, 0, defaultQueueCap)
	return drained
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

func (q *FIFOTaskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]Task, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := n * 2
	if newCap < defaultQueueCap {
		newCap = defaultQueueCap
	}
	compacted := make([]Task, n, newCap)
	copy(compacted, q.tasks)
	q.tasks = compacted
}
