package application

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Swind/go-ui-tasks/core"
)

// InputBlocker disables the UI part a task is scoped to while it runs.
// Both methods must be called on the UI goroutine.
type InputBlocker interface {
	Block(task *Task) error
	Unblock(task *Task) error
}

// DefaultInputBlocker resolves a task's target from its scope and blocks it
// through a BlockingRegistry. COMPONENT and WINDOW tasks without a target
// are expanded to the application root.
type DefaultInputBlocker struct {
	registry *BlockingRegistry
	root     Target
	ui       core.SequenceChecker
	logger   core.Logger
	metrics  Metrics
	logLevel atomic.Int64
}

// BlockerOption configures a DefaultInputBlocker.
type BlockerOption func(*DefaultInputBlocker)

// WithBlockerLogger sets the logger for block, unblock and scope expansion lines.
func WithBlockerLogger(l core.Logger) BlockerOption {
	return func(b *DefaultInputBlocker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBlockerMetrics reports blocking depth to m.
func WithBlockerMetrics(m Metrics) BlockerOption {
	return func(b *DefaultInputBlocker) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithBlockerLogLevel sets the level of block and unblock lines. Defaults to debug.
func WithBlockerLogLevel(level slog.Level) BlockerOption {
	return func(b *DefaultInputBlocker) { b.logLevel.Store(int64(level)) }
}

// NewDefaultInputBlocker creates a blocker over registry. root is the
// APPLICATION scope target and ui the goroutine that owns the registry.
func NewDefaultInputBlocker(registry *BlockingRegistry, root Target, ui core.SequenceChecker, opts ...BlockerOption) *DefaultInputBlocker {
	b := &DefaultInputBlocker{
		registry: registry,
		root:     root,
		ui:       ui,
		logger:   core.NewNoOpLogger(),
		metrics:  NilMetrics{},
	}
	b.logLevel.Store(int64(slog.LevelDebug))
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LogLevel returns the level used for block and unblock lines.
func (b *DefaultInputBlocker) LogLevel() slog.Level {
	return slog.Level(b.logLevel.Load())
}

// SetLogLevel changes the level used for block and unblock lines.
func (b *DefaultInputBlocker) SetLogLevel(level slog.Level) {
	b.logLevel.Store(int64(level))
}

// Registry returns the registry this blocker counts in.
func (b *DefaultInputBlocker) Registry() *BlockingRegistry {
	return b.registry
}

// ResolveTarget returns the target and effective scope for task.
func (b *DefaultInputBlocker) ResolveTarget(task *Task) (Target, BlockingScope, error) {
	scope := task.BlockingScope()
	switch scope {
	case ScopeNone:
		return nil, scope, ErrScopeNone
	case ScopeAction:
		if action := task.Action(); action != nil {
			return action, scope, nil
		}
		return nil, scope, ErrMissingAction
	case ScopeComponent:
		if component := task.Component(); component != nil {
			return component, scope, nil
		}
	case ScopeWindow:
		if window := task.Window(); window != nil {
			return window, scope, nil
		}
	case ScopeApplication:
		return b.root, scope, nil
	default:
		return nil, scope, fmt.Errorf("%w: %d", ErrUnknownScope, int(scope))
	}

	b.logger.Warn("blocking scope expanded",
		core.F("task", task.Title()),
		core.F("task_id", task.ID()),
		core.F("from", scope.String()),
		core.F("to", ScopeApplication.String()),
		core.F("target", b.root.Name()))
	return b.root, ScopeApplication, nil
}

// Block disables the task's target.
func (b *DefaultInputBlocker) Block(task *Task) error {
	if !b.ui.BelongsToCurrentThread() {
		return fmt.Errorf("block: %w", ErrNotOnUIThread)
	}
	target, scope, err := b.ResolveTarget(task)
	if err != nil {
		return fmt.Errorf("block: %w", err)
	}

	old := b.registry.Block(target)
	core.LogAt(b.logger, b.LogLevel(), "blocked",
		core.F("task", task.Title()),
		core.F("scope", scope.String()),
		core.F("target", target.Name()),
		core.F("counter", old+1))
	b.metrics.RecordBlockingDepth(scope, old+1)
	return nil
}

// Unblock re-enables the task's target once its last block is released.
func (b *DefaultInputBlocker) Unblock(task *Task) error {
	if !b.ui.BelongsToCurrentThread() {
		return fmt.Errorf("unblock: %w", ErrNotOnUIThread)
	}
	target, scope, err := b.ResolveTarget(task)
	if err != nil {
		return fmt.Errorf("unblock: %w", err)
	}

	n, err := b.registry.Unblock(target)
	if err != nil {
		return fmt.Errorf("unblock task %q: %w", task.Title(), err)
	}
	core.LogAt(b.logger, b.LogLevel(), "unblocked",
		core.F("task", task.Title()),
		core.F("scope", scope.String()),
		core.F("target", target.Name()),
		core.F("counter", n))
	b.metrics.RecordBlockingDepth(scope, n)
	return nil
}
