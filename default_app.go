package uitask

import (
	"context"
	"sync"
)

var (
	defaultApp *Application
	defaultMu  sync.Mutex
)

// InitDefault creates the process-wide Application. Later calls are no-ops
// until ShutdownDefault.
func InitDefault(opts ...Option) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultApp != nil {
		return nil
	}
	app, err := NewApplication(opts...)
	if err != nil {
		return err
	}
	defaultApp = app
	return nil
}

// Default returns the process-wide Application.
// It panics if InitDefault has not been called.
func Default() *Application {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultApp == nil {
		panic("default application not initialized. Call InitDefault() first.")
	}
	return defaultApp
}

// ShutdownDefault shuts the process-wide Application down and forgets it.
func ShutdownDefault(ctx context.Context) error {
	defaultMu.Lock()
	app := defaultApp
	defaultApp = nil
	defaultMu.Unlock()

	if app == nil {
		return nil
	}
	return app.Shutdown(ctx)
}

// Execute executes task on the process-wide Application.
func Execute(task *Task) error {
	return Default().Execute(task)
}

// ExecuteEvent executes task on the process-wide Application with evt as its
// event object.
func ExecuteEvent(evt EventObject, task *Task) error {
	return Default().ExecuteEvent(evt, task)
}
