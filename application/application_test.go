package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-ui-tasks/config"
	"github.com/Swind/go-ui-tasks/core"
)

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.MaxSize = 1
	cfg.Pool.CoreSize = 4

	app, err := New(WithConfig(cfg))

	assert.Error(t, err)
	assert.Nil(t, app)
}

func TestNew_Defaults(t *testing.T) {
	app := newTestApp(t)

	assert.NotNil(t, app.Root())
	assert.Equal(t, "application", app.Root().Name())
	assert.IsType(t, &DefaultInputBlocker{}, app.DefaultInputBlocker())
	assert.Same(t, app.Registry(), app.DefaultInputBlocker().(*DefaultInputBlocker).Registry())
	assert.NotNil(t, app.TaskService())
	assert.NotNil(t, app.TaskMonitor())
	assert.Equal(t, 4, app.PoolStats().Max)
	assert.Equal(t, "ui", app.UI().Name())
}

func TestNew_WithRootAndRunner(t *testing.T) {
	ui := core.NewSingleThreadTaskRunner(core.WithRunnerName("main-ui"))
	t.Cleanup(ui.Stop)
	root := NewWindow("shell")

	app := newTestApp(t, WithUIRunner(ui), WithRootTarget(root))
	require.NoError(t, app.Shutdown(context.Background()))

	assert.Same(t, root, app.Root())
	assert.Same(t, ui, app.UI())
	assert.False(t, ui.IsClosed(), "a supplied runner is not stopped")
}

// fakeBlocker counts calls.
type fakeBlocker struct {
	blocks, unblocks int
}

func (b *fakeBlocker) Block(*Task) error   { b.blocks++; return nil }
func (b *fakeBlocker) Unblock(*Task) error { b.unblocks++; return nil }

// TestApplication_DefaultInputBlocker verifies replacing the default blocker
// fires an event and applies to tasks executed afterwards.
func TestApplication_DefaultInputBlocker(t *testing.T) {
	app := newTestApp(t)
	var events eventLog
	app.AddPropertyChangeListener(PropertyDefaultInputBlocker, events.listener())
	blocker := &fakeBlocker{}

	app.SetDefaultInputBlocker(blocker)
	onUI(t, app, func() {})
	task := NewTask(ScopeApplication, HandlerFunc(returning(nil, nil)))
	require.NoError(t, app.Execute(task))
	waitDone(t, task)

	assert.Equal(t, []any{blocker}, events.newValues(PropertyDefaultInputBlocker))
	assert.Same(t, blocker, task.InputBlocker())
	assert.Equal(t, 1, blocker.blocks)
	assert.Equal(t, 1, blocker.unblocks)
	assert.True(t, app.Root().Enabled(), "the registry was not used")
}

// TestApplication_TaskBlocker verifies a task keeps its own blocker.
func TestApplication_TaskBlocker(t *testing.T) {
	app := newTestApp(t)
	blocker := &fakeBlocker{}
	task := NewTask(ScopeWindow, HandlerFunc(returning(nil, nil)), WithInputBlocker(blocker))

	require.NoError(t, app.Execute(task))
	waitDone(t, task)

	assert.Equal(t, 1, blocker.blocks)
	assert.Equal(t, 1, blocker.unblocks)
}

// TestApplication_WithDefaultInputBlocker verifies the option replaces the
// blocker used by tasks without their own.
func TestApplication_WithDefaultInputBlocker(t *testing.T) {
	blocker := &fakeBlocker{}
	app := newTestApp(t, WithDefaultInputBlocker(blocker))
	task := NewTask(ScopeApplication, HandlerFunc(returning(nil, nil)))

	require.NoError(t, app.Execute(task))
	waitDone(t, task)

	assert.Same(t, blocker, app.DefaultInputBlocker())
	assert.Same(t, blocker, task.InputBlocker())
	assert.Equal(t, 1, blocker.blocks)
	assert.Equal(t, 1, blocker.unblocks)
}

// TestApplication_ExecuteEventRetry verifies a failed ExecuteEvent can be retried
// Main test items:
// 1. ACTION task without action fails with ErrMissingAction
// 2. The event object and component are taken back
// 3. After SetAction the same call succeeds
func TestApplication_ExecuteEventRetry(t *testing.T) {
	app := newTestApp(t)
	window := NewWindow("main")
	button := NewWidget("save", InWindow(window))
	preset := NewWidget("preset")
	task := NewTask(ScopeAction, HandlerFunc(returning(nil, nil)))
	task.SetComponent(preset)
	evt := NewEvent(button)

	err := app.ExecuteEvent(evt, task)

	assert.ErrorIs(t, err, ErrMissingAction)
	assert.Nil(t, task.EventObject())
	assert.Same(t, preset, task.Component())
	assert.Equal(t, StatePending, task.State())

	task.SetAction(button)
	require.NoError(t, app.ExecuteEvent(evt, task))
	waitDone(t, task)
	assert.Same(t, evt, task.EventObject())
	assert.Same(t, button, task.Component())
}

// unbalancedBlocker fails every unblock.
type unbalancedBlocker struct{}

func (unbalancedBlocker) Block(*Task) error { return nil }
func (unbalancedBlocker) Unblock(*Task) error {
	return fmt.Errorf("unblock: %w", ErrUnbalancedUnblock)
}

// TestApplication_UnblockErrorHandled verifies an unblock error is routed to
// HandleError and the task still completes.
func TestApplication_UnblockErrorHandled(t *testing.T) {
	handled := make(chan error, 1)
	logger := &recordingLogger{}
	app := newTestApp(t, WithLogger(logger), WithErrorHandler(func(err error, title string) { handled <- err }))
	h := newRecordingHandler(returning(nil, nil))
	task := NewTask(ScopeApplication, h, WithInputBlocker(unbalancedBlocker{}))

	require.NoError(t, app.Execute(task))
	waitDone(t, task)

	select {
	case err := <-handled:
		assert.ErrorIs(t, err, ErrUnbalancedUnblock)
	default:
		t.Fatal("unblock error not handled")
	}
	assert.Equal(t, []string{"succeeded", "finished"}, h.Calls())
	entries := logger.find("task error")
	require.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0].level)
}

// TestApplication_Metrics verifies outcomes, blocking depth and registered
// task counts are reported.
func TestApplication_Metrics(t *testing.T) {
	metrics := &recordingMetrics{}
	app := newTestApp(t, WithMetrics(metrics))

	ok := NewTask(ScopeApplication, HandlerFunc(returning(nil, nil)))
	bad := NewTask(ScopeNone, HandlerFunc(returning(nil, errors.New("x"))))
	require.NoError(t, app.Execute(ok))
	waitDone(t, ok)
	require.NoError(t, app.Execute(bad))
	waitDone(t, bad)

	assert.Equal(t, []Outcome{OutcomeSucceeded, OutcomeFailed}, metrics.Outcomes())
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []int{1, 0}, metrics.depths)
	assert.Equal(t, []int{1, 0, 1, 0}, metrics.registered)
}

// TestApplication_Shutdown verifies running tasks finish and the UI runner stops.
func TestApplication_Shutdown(t *testing.T) {
	app := newTestApp(t)
	h := newRecordingHandler(func(ctx context.Context, task *Task) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "late", nil
	})
	task := NewTask(ScopeApplication, h)
	require.NoError(t, app.Execute(task))

	require.NoError(t, app.Shutdown(context.Background()))

	assert.Equal(t, []string{"succeeded", "finished"}, h.Calls())
	assert.True(t, app.TaskService().IsTerminated())
	assert.True(t, app.UI().IsClosed())
	assert.ErrorIs(t, app.Execute(NewTask(ScopeNone, noop())), core.ErrRunnerClosed)
	assert.NoError(t, app.Shutdown(context.Background()), "second shutdown")
}

// TestApplication_ShutdownTimeout verifies a task ignoring the deadline is interrupted.
func TestApplication_ShutdownTimeout(t *testing.T) {
	app := newTestApp(t)
	g := newGate()
	h := newRecordingHandler(g.body(nil))
	task := NewTask(ScopeApplication, h)
	require.NoError(t, app.Execute(task))
	waitClosed(t, g.started, "task body")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := app.Shutdown(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	waitDone(t, task)
	assert.Equal(t, []string{"interrupted", "finished"}, h.Calls())
}
