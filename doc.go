// Package uitask runs long operations in the background while the part of the
// user interface they affect is disabled, and re-enables it when they are done.
//
// All UI state lives on one goroutine, the UI runner. Task bodies run on a
// bounded worker pool. Property changes, published chunks and the terminal
// callbacks of a task are delivered back on the UI runner.
//
// # Quick Start
//
// Initialize the default application at startup:
//
//	if err := uitask.InitDefault(); err != nil {
//		log.Fatal(err)
//	}
//	defer uitask.ShutdownDefault(context.Background())
//
// Build and execute a task that disables the window of the clicked button:
//
//	task, err := uitask.NewTaskBuilder[string, int]().
//		Title("Loading %s", name).
//		BlockWindow().
//		InBackgroundSupply(func(ctx context.Context, p *uitask.Publisher[int]) (string, error) {
//			return load(ctx, name)
//		}).
//		OnSucceeded(func(tc *uitask.TaskContext, result string) {
//			show(result)
//		}).
//		Execute(uitask.Default(), uitask.NewEvent(button))
//
// # Key Concepts
//
// BlockingScope: which part of the UI a task disables (NONE, ACTION,
// COMPONENT, WINDOW, APPLICATION). A scope whose target is missing blocks
// the whole application.
//
// BlockingRegistry: reference counts blocks per target so overlapping tasks
// restore the original enabled state only after the last one is done.
//
// TaskService: executes tasks on the worker pool and keeps the list of tasks
// that are not done yet.
//
// TaskMonitor: tracks one foreground task for status bars and progress
// dialogs and republishes its events.
//
// # Thread Safety
//
// Targets, the registry and the input blocker are confined to the UI runner.
// Task getters and setters may be called from any goroutine; listeners always
// run on the UI runner once the task is executed.
package uitask
