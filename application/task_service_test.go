package application

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-ui-tasks/core"
)

// TestTaskService_TasksEvents verifies the task list and its "tasks" events
// Main test items:
// 1. Execute adds the task with one event carrying old and new lists
// 2. DONE removes the task with one more event
func TestTaskService_TasksEvents(t *testing.T) {
	app := newTestApp(t)
	service := app.TaskService()
	var events eventLog
	service.AddPropertyChangeListener(PropertyTasks, events.listener())
	g := newGate()
	task := NewTask(ScopeNone, HandlerFunc(g.body(nil)))

	require.NoError(t, service.Execute(task))
	waitClosed(t, g.started, "task body")
	assert.Equal(t, []*Task{task}, service.Tasks())

	g.open()
	waitDone(t, task)
	onUI(t, app, func() {})

	evts := events.all()
	require.Len(t, evts, 2)
	assert.Empty(t, evts[0].OldValue)
	assert.Equal(t, []*Task{task}, evts[0].NewValue)
	assert.Equal(t, []*Task{task}, evts[1].OldValue)
	assert.Empty(t, evts[1].NewValue)
	assert.Same(t, service, evts[0].Source)
	assert.Empty(t, service.Tasks())
}

// TestTaskService_ExecuteNotPending verifies a task can only be executed once
// and a refused task never reaches the pool.
func TestTaskService_ExecuteNotPending(t *testing.T) {
	app := newTestApp(t)
	service := app.TaskService()
	task := NewTask(ScopeNone, HandlerFunc(returning(nil, nil)))

	require.NoError(t, service.Execute(task))
	waitDone(t, task)
	onUI(t, app, func() {})
	before := service.Stats()

	err := service.Execute(task)
	assert.ErrorIs(t, err, ErrTaskNotPending)
	assert.Equal(t, before.Queued, service.Stats().Queued)
	assert.Empty(t, service.Tasks())
}

// TestTaskService_ExecuteTwiceWhilePending verifies a second submission is
// refused before the first one started.
func TestTaskService_ExecuteTwiceWhilePending(t *testing.T) {
	app := newTestApp(t, singleWorker())
	g := newGate()
	busy := NewTask(ScopeNone, HandlerFunc(g.body(nil)))
	require.NoError(t, app.Execute(busy))
	waitClosed(t, g.started, "busy body")

	var runs atomic.Int32
	task := NewTask(ScopeNone, HandlerFunc(func(context.Context, *Task) (any, error) {
		runs.Add(1)
		return nil, nil
	}))
	require.NoError(t, app.Execute(task))
	assert.ErrorIs(t, app.Execute(task), ErrTaskNotPending)

	g.open()
	waitDone(t, task)
	assert.Equal(t, int32(1), runs.Load())
}

// TestTaskService_MissingAction verifies ACTION scope without action fails synchronously.
func TestTaskService_MissingAction(t *testing.T) {
	app := newTestApp(t)
	task := NewTask(ScopeAction, HandlerFunc(returning(nil, nil)))

	err := app.Execute(task)

	assert.ErrorIs(t, err, ErrMissingAction)
	assert.Equal(t, StatePending, task.State())
	assert.Empty(t, app.TaskService().Tasks())

	task.SetAction(NewWidget("save"))
	require.NoError(t, app.Execute(task), "the task is still pending")
	waitDone(t, task)
}

// TestTaskService_MissingComponentExpands verifies a COMPONENT task without
// component blocks the application and logs a warning.
func TestTaskService_MissingComponentExpands(t *testing.T) {
	logger := &recordingLogger{}
	app := newTestApp(t, WithLogger(logger))
	g := newGate()
	task := NewTask(ScopeComponent, HandlerFunc(g.body(nil)))

	require.NoError(t, app.Execute(task))
	waitClosed(t, g.started, "task body")
	onUI(t, app, func() {
		assert.False(t, app.Root().Enabled())
	})
	g.open()
	waitDone(t, task)

	assert.Len(t, logger.find("blocking target missing, application will be blocked"), 1)
	assert.True(t, app.Root().Enabled())
}

// TestTaskService_TwoApplicationTasks verifies overlapping APPLICATION tasks
// Main test items:
// 1. Both running: root counter 2, root disabled
// 2. First done: still disabled
// 3. Both done: counter 0, root enabled
func TestTaskService_TwoApplicationTasks(t *testing.T) {
	app := newTestApp(t)
	g1, g2 := newGate(), newGate()
	first := NewTask(ScopeApplication, HandlerFunc(g1.body(nil)))
	second := NewTask(ScopeApplication, HandlerFunc(g2.body(nil)))

	require.NoError(t, app.Execute(first))
	require.NoError(t, app.Execute(second))
	waitClosed(t, g1.started, "first body")
	waitClosed(t, g2.started, "second body")
	onUI(t, app, func() {
		assert.Equal(t, 2, app.Registry().Counter(app.Root()))
		assert.False(t, app.Root().Enabled())
	})

	g1.open()
	waitDone(t, first)
	onUI(t, app, func() {
		assert.Equal(t, 1, app.Registry().Counter(app.Root()))
		assert.False(t, app.Root().Enabled())
	})

	g2.open()
	waitDone(t, second)
	onUI(t, app, func() {
		assert.Equal(t, 0, app.Registry().Counter(app.Root()))
		assert.True(t, app.Root().Enabled())
	})
}

// TestTaskService_ConcurrentSubmitters verifies tasks executed from many
// goroutines all finish and release every block.
func TestTaskService_ConcurrentSubmitters(t *testing.T) {
	metrics := &recordingMetrics{}
	app := newTestApp(t, WithMetrics(metrics))
	window := NewWindow("editor")
	button := NewWidget("run", InWindow(window))

	const submitters, perSubmitter = 8, 25
	tasks := make([][]*Task, submitters)
	var eg errgroup.Group
	for i := 0; i < submitters; i++ {
		eg.Go(func() error {
			for j := 0; j < perSubmitter; j++ {
				scope := []BlockingScope{ScopeNone, ScopeComponent, ScopeWindow, ScopeApplication}[(i+j)%4]
				task := NewTask(scope, HandlerFunc(returning(j, nil)))
				if err := app.ExecuteEvent(NewEvent(button), task); err != nil {
					return err
				}
				tasks[i] = append(tasks[i], task)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	for _, list := range tasks {
		for _, task := range list {
			waitDone(t, task)
		}
	}
	onUI(t, app, func() {
		assert.Equal(t, 0, app.Registry().Len())
		assert.True(t, app.Root().Enabled())
		assert.True(t, window.Enabled())
		assert.True(t, button.Enabled())
	})
	assert.Empty(t, app.TaskService().Tasks())
	assert.Len(t, metrics.Outcomes(), submitters*perSubmitter)
}

// TestTaskService_RejectedAfterShutdown verifies a task executed after
// Shutdown fails with ErrPoolShutdown and releases its block.
func TestTaskService_RejectedAfterShutdown(t *testing.T) {
	app := newTestApp(t)
	app.TaskService().Shutdown()
	h := newRecordingHandler(returning(nil, nil))
	task := NewTask(ScopeApplication, h)

	require.NoError(t, app.Execute(task))
	waitDone(t, task)

	assert.ErrorIs(t, h.err, core.ErrPoolShutdown)
	assert.Equal(t, []string{"failed:thread pool is shut down", "finished"}, h.Calls())
	assert.True(t, app.Root().Enabled())
	assert.True(t, app.TaskService().IsShutdown())
}

// TestTaskService_ShutdownNowCancelsQueued verifies queued tasks finish as
// cancelled when the service is shut down now.
func TestTaskService_ShutdownNowCancelsQueued(t *testing.T) {
	app := newTestApp(t, singleWorker())
	g := newGate()
	running := newRecordingHandler(g.body(nil))
	queued := newRecordingHandler(returning(nil, nil))
	runningTask := NewTask(ScopeApplication, running)
	queuedTask := NewTask(ScopeApplication, queued)

	require.NoError(t, app.Execute(runningTask))
	waitClosed(t, g.started, "running body")
	require.NoError(t, app.Execute(queuedTask))
	onUI(t, app, func() {})

	dropped := app.TaskService().ShutdownNow()
	waitDone(t, runningTask)
	waitDone(t, queuedTask)

	assert.Equal(t, 1, dropped)
	assert.Equal(t, []string{"interrupted", "finished"}, running.Calls())
	assert.Equal(t, []string{"cancelled", "finished"}, queued.Calls())
	assert.True(t, queuedTask.IsCancelled())
	assert.True(t, app.Root().Enabled())

	require.NoError(t, app.TaskService().AwaitTermination(context.Background()))
	assert.True(t, app.TaskService().IsTerminated())
}
