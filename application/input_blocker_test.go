package application

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-ui-tasks/core"
)

type blockerFixture struct {
	ui      *core.SingleThreadTaskRunner
	root    *Widget
	logger  *recordingLogger
	metrics *recordingMetrics
	blocker *DefaultInputBlocker
}

func newBlockerFixture(t *testing.T, opts ...BlockerOption) *blockerFixture {
	t.Helper()
	f := &blockerFixture{
		ui:      core.NewSingleThreadTaskRunner(core.WithRunnerName("ui-test")),
		root:    NewWindow("root"),
		logger:  &recordingLogger{},
		metrics: &recordingMetrics{},
	}
	t.Cleanup(f.ui.Stop)
	opts = append([]BlockerOption{WithBlockerLogger(f.logger), WithBlockerMetrics(f.metrics)}, opts...)
	f.blocker = NewDefaultInputBlocker(NewBlockingRegistry(), f.root, f.ui, opts...)
	return f
}

// run executes fn on the fixture's UI goroutine.
func (f *blockerFixture) run(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	f.ui.PostTask(func(context.Context) {
		defer close(done)
		fn()
	})
	waitClosed(t, done, "UI task")
}

func noop() Handler { return HandlerFunc(returning(nil, nil)) }

// TestDefaultInputBlocker_ResolveTarget verifies the target per scope
// Main test items:
// 1. ACTION, COMPONENT, WINDOW and APPLICATION resolve to their targets
// 2. Missing component or window expands to the root with a warning
// 3. NONE and ACTION without action fail
func TestDefaultInputBlocker_ResolveTarget(t *testing.T) {
	f := newBlockerFixture(t)
	window := NewWindow("main")
	button := NewWidget("button", InWindow(window))
	action := NewWidget("save-action")

	withAction := NewTask(ScopeAction, noop())
	withAction.SetAction(action)
	withComponent := NewTask(ScopeComponent, noop())
	require.NoError(t, withComponent.SetEventObject(NewEvent(button)))
	withWindow := NewTask(ScopeWindow, noop())
	require.NoError(t, withWindow.SetEventObject(NewEvent(button)))

	tests := []struct {
		name      string
		task      *Task
		target    Target
		scope     BlockingScope
		wantErr   error
		expansion bool
	}{
		{name: "action", task: withAction, target: action, scope: ScopeAction},
		{name: "component", task: withComponent, target: button, scope: ScopeComponent},
		{name: "window", task: withWindow, target: window, scope: ScopeWindow},
		{name: "application", task: NewTask(ScopeApplication, noop()), target: f.root, scope: ScopeApplication},
		{name: "component missing", task: NewTask(ScopeComponent, noop()), target: f.root, scope: ScopeApplication, expansion: true},
		{name: "window missing", task: NewTask(ScopeWindow, noop()), target: f.root, scope: ScopeApplication, expansion: true},
		{name: "none", task: NewTask(ScopeNone, noop()), wantErr: ErrScopeNone},
		{name: "action missing", task: NewTask(ScopeAction, noop()), wantErr: ErrMissingAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(f.logger.find("blocking scope expanded"))

			target, scope, err := f.blocker.ResolveTarget(tt.task)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Same(t, tt.target, target)
			assert.Equal(t, tt.scope, scope)
			after := len(f.logger.find("blocking scope expanded"))
			assert.Equal(t, tt.expansion, after > before)
		})
	}
}

// TestDefaultInputBlocker_RequiresUIGoroutine verifies calls from other
// goroutines are refused without touching the registry.
func TestDefaultInputBlocker_RequiresUIGoroutine(t *testing.T) {
	f := newBlockerFixture(t)
	task := NewTask(ScopeApplication, noop())

	assert.ErrorIs(t, f.blocker.Block(task), ErrNotOnUIThread)
	assert.ErrorIs(t, f.blocker.Unblock(task), ErrNotOnUIThread)
	assert.True(t, f.root.Enabled())
	assert.Equal(t, 0, f.blocker.Registry().Len())
}

// TestDefaultInputBlocker_TwoApplicationTasks verifies two APPLICATION tasks
// share the root counter.
func TestDefaultInputBlocker_TwoApplicationTasks(t *testing.T) {
	f := newBlockerFixture(t)
	first := NewTask(ScopeApplication, noop())
	second := NewTask(ScopeApplication, noop())

	f.run(t, func() {
		assert.NoError(t, f.blocker.Block(first))
		assert.NoError(t, f.blocker.Block(second))
		assert.Equal(t, 2, f.blocker.Registry().Counter(f.root))
		assert.False(t, f.root.Enabled())

		assert.NoError(t, f.blocker.Unblock(first))
		assert.False(t, f.root.Enabled())
		assert.NoError(t, f.blocker.Unblock(second))
		assert.True(t, f.root.Enabled())

		err := f.blocker.Unblock(second)
		assert.ErrorIs(t, err, ErrUnbalancedUnblock)
	})

	f.metrics.mu.Lock()
	defer f.metrics.mu.Unlock()
	assert.Equal(t, []int{1, 2, 1, 0}, f.metrics.depths)
}

// TestDefaultInputBlocker_LogLevel verifies block lines use the configured level.
func TestDefaultInputBlocker_LogLevel(t *testing.T) {
	f := newBlockerFixture(t, WithBlockerLogLevel(slog.LevelInfo))
	task := NewTask(ScopeApplication, noop())
	task.SetTitle("Saving")

	f.run(t, func() {
		assert.NoError(t, f.blocker.Block(task))
	})
	f.blocker.SetLogLevel(slog.LevelWarn)
	f.run(t, func() {
		assert.NoError(t, f.blocker.Unblock(task))
	})

	blocked := f.logger.find("blocked")
	require.Len(t, blocked, 1)
	assert.Equal(t, "info", blocked[0].level)
	assert.Equal(t, "Saving", blocked[0].fields["task"])
	assert.Equal(t, "root", blocked[0].fields["target"])
	assert.Equal(t, 1, blocked[0].fields["counter"])

	unblocked := f.logger.find("unblocked")
	require.Len(t, unblocked, 1)
	assert.Equal(t, "warn", unblocked[0].level)
	assert.Equal(t, slog.LevelWarn, f.blocker.LogLevel())
}
