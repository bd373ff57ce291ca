package core

import (
	"context"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================

// TaskRunner accepts closures for asynchronous execution.
type TaskRunner interface {
	PostTask(task Task)
}

// SequenceChecker reports whether the caller is running on a runner's own
// goroutine. The UI-confined runner implements it so that callers can decide
// between running inline and posting.
type SequenceChecker interface {
	BelongsToCurrentThread() bool
}

// Executor is the submission side of a worker pool.
// Execute never blocks; it returns ErrPoolShutdown once the pool stopped accepting work.
type Executor interface {
	Execute(task Task) error
}

// ThreadTaskRunner is a TaskRunner bound to one goroutine.
type ThreadTaskRunner interface {
	TaskRunner
	SequenceChecker
}

// RunOrPost runs task inline when the caller already is on runner's goroutine,
// otherwise it posts the task to runner.
func RunOrPost(runner ThreadTaskRunner, task Task) {
	if runner.BelongsToCurrentThread() {
		task(context.WithValue(context.Background(), taskRunnerKey, runner))
		return
	}
	runner.PostTask(task)
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

// GetCurrentTaskRunner returns the runner executing the task that owns ctx.
func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}
