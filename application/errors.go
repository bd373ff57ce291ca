package application

import (
	"errors"
	"fmt"
)

var (
	// ErrScopeNone is returned when an InputBlocker is asked to block or
	// unblock a task whose scope is ScopeNone.
	ErrScopeNone = errors.New("input blocker invoked with blocking scope NONE")

	// ErrUnknownScope is returned for a BlockingScope outside the known set.
	ErrUnknownScope = errors.New("unknown blocking scope")

	// ErrNotOnUIThread is returned when UI-confined state is touched from another goroutine.
	ErrNotOnUIThread = errors.New("must run on the UI goroutine")

	// ErrUnbalancedUnblock is returned by an unblock without a matching block.
	ErrUnbalancedUnblock = errors.New("unblock without matching block")

	// ErrMissingAction is returned when a task with scope ACTION has no action to block.
	ErrMissingAction = errors.New("blocking scope ACTION requires an action")

	// ErrNoInputBlocker is returned when a blocking task has no InputBlocker.
	ErrNoInputBlocker = errors.New("task blocks input but has no input blocker")

	// ErrTaskNotPending is returned when a task is executed twice or after it started.
	ErrTaskNotPending = errors.New("task is not pending")

	// ErrEventObjectAlreadySet is returned by a second SetEventObject call.
	ErrEventObjectAlreadySet = errors.New("event object must be set once only")

	// ErrProgressOutOfRange is returned for a progress value outside 0..100.
	ErrProgressOutOfRange = errors.New("progress must be in range 0..100")

	// ErrNoResources is returned when a resource lookup is requested on a task without a provider.
	ErrNoResources = errors.New("task has no resource provider")

	// ErrNoBackgroundFunc is returned by TaskBuilder.Build without a background function.
	ErrNoBackgroundFunc = errors.New("the background operation must be specified")

	// ErrTaskCancelled is returned by Task.Get for a cancelled task.
	ErrTaskCancelled = errors.New("task was cancelled")

	// ErrTaskPanicked is wrapped by Task.Get when the background function panicked.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrTaskExited is the interruption cause of a background function that
	// called runtime.Goexit.
	ErrTaskExited = errors.New("task background function exited")
)

// ExecutionError wraps the failure of a task body. Task.Get returns it;
// the failed callback receives the unwrapped cause.
type ExecutionError struct {
	Title string
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("task failed: %v", e.Err)
	}
	return fmt.Sprintf("task %q failed: %v", e.Title, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// unwrapExecution strips any ExecutionError layers from err.
func unwrapExecution(err error) error {
	for {
		var execErr *ExecutionError
		if !errors.As(err, &execErr) || execErr.Err == nil {
			return err
		}
		err = execErr.Err
	}
}
