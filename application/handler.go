package application

import "context"

// Handler is the background part of a Task. DoInBackground runs on a pool
// worker; ctx is cancelled when the task is cancelled or the pool is shut
// down with ShutdownNow.
//
// A Handler may additionally implement any of Processor, SucceededHandler,
// CancelledHandler, FailedHandler, InterruptedHandler and FinishedHandler.
// Those callbacks run on the UI goroutine.
type Handler interface {
	DoInBackground(ctx context.Context, task *Task) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task *Task) (any, error)

func (f HandlerFunc) DoInBackground(ctx context.Context, task *Task) (any, error) {
	return f(ctx, task)
}

// Processor receives chunks published by the background function. Chunks
// published in quick succession are coalesced into one call.
type Processor interface {
	Process(task *Task, chunks []any)
}

// SucceededHandler is called when the background function returned without error.
type SucceededHandler interface {
	Succeeded(task *Task, result any)
}

// CancelledHandler is called when the task was cancelled.
type CancelledHandler interface {
	Cancelled(task *Task)
}

// FailedHandler is called with the cause when the background function failed.
// Without it the error goes to Application.HandleError.
type FailedHandler interface {
	Failed(task *Task, err error)
}

// InterruptedHandler is called when the pool interrupted a task that was not
// cancelled itself.
type InterruptedHandler interface {
	Interrupted(task *Task, err error)
}

// FinishedHandler is called after the outcome callback, whatever the outcome.
type FinishedHandler interface {
	Finished(task *Task)
}
