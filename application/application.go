// Package application runs long operations off a UI-confined goroutine and
// disables the part of the UI they affect while they run.
//
// An Application owns the UI goroutine, the BlockingRegistry, the default
// InputBlocker, a TaskService with its worker pool and a TaskMonitor.
//
//	app, err := application.New(application.WithConfig(cfg))
//	if err != nil {
//		return err
//	}
//	defer app.Shutdown(context.Background())
//
//	task := application.NewTask(application.ScopeWindow, handler)
//	err = app.ExecuteEvent(application.NewEvent(button), task)
package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Swind/go-ui-tasks/config"
	"github.com/Swind/go-ui-tasks/core"
	"github.com/Swind/go-ui-tasks/logging"
)

// interruptGrace bounds the wait for interrupted task bodies during Shutdown.
const interruptGrace = time.Second

// PropertyDefaultInputBlocker is fired when the default blocker changes.
const PropertyDefaultInputBlocker = "defaultInputBlocker"

// ErrorHandler receives task failures that have no FailedHandler and
// invariant violations such as an unbalanced unblock.
type ErrorHandler func(err error, title string)

// Application is the handle shared by tasks, the service and the monitor.
type Application struct {
	cfg          config.Config
	ui           *core.SingleThreadTaskRunner
	ownsUI       bool
	registry     *BlockingRegistry
	root         Target
	props        *propertySupport
	logger       core.Logger
	metrics      Metrics
	poolMetrics  core.Metrics
	panicHandler core.PanicHandler
	errorHandler ErrorHandler

	mu             sync.Mutex
	defaultBlocker InputBlocker

	service      *TaskService
	monitor      *TaskMonitor
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures an Application.
type Option func(*Application)

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(a *Application) { a.cfg = cfg }
}

// WithLogger sets the logger shared by all components.
func WithLogger(l core.Logger) Option {
	return func(a *Application) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSlogLogger logs through l.
func WithSlogLogger(l *slog.Logger) Option {
	return WithLogger(core.NewSlogLogger(l))
}

// WithMetrics reports task metrics to m. When m also implements
// core.Metrics it receives the worker pool metrics as well.
func WithMetrics(m Metrics) Option {
	return func(a *Application) {
		if m == nil {
			return
		}
		a.metrics = m
		if pm, ok := m.(core.Metrics); ok && a.poolMetrics == nil {
			a.poolMetrics = pm
		}
	}
}

// WithPoolMetrics reports worker pool metrics to m.
func WithPoolMetrics(m core.Metrics) Option {
	return func(a *Application) { a.poolMetrics = m }
}

// WithRootTarget sets the target blocked by ScopeApplication.
func WithRootTarget(root Target) Option {
	return func(a *Application) { a.root = root }
}

// WithDefaultInputBlocker replaces the DefaultInputBlocker.
func WithDefaultInputBlocker(b InputBlocker) Option {
	return func(a *Application) { a.defaultBlocker = b }
}

// WithUIRunner uses r as UI goroutine. The application does not stop it on Shutdown.
func WithUIRunner(r *core.SingleThreadTaskRunner) Option {
	return func(a *Application) { a.ui = r }
}

// WithErrorHandler receives errors in addition to the error log.
func WithErrorHandler(h ErrorHandler) Option {
	return func(a *Application) { a.errorHandler = h }
}

// WithPanicHandler handles panics of task bodies and UI callbacks.
func WithPanicHandler(h core.PanicHandler) Option {
	return func(a *Application) { a.panicHandler = h }
}

// New creates and starts an Application.
func New(opts ...Option) (*Application, error) {
	a := &Application{
		cfg:     config.Default(),
		logger:  core.NewNoOpLogger(),
		metrics: NilMetrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := config.Validate(&a.cfg); err != nil {
		return nil, err
	}
	a.props = newPropertySupport(a)

	if a.root == nil {
		a.root = NewWindow("application")
	}
	if a.panicHandler == nil {
		a.panicHandler = &core.DefaultPanicHandler{Logger: a.logger}
	}
	if a.ui == nil {
		a.ui = core.NewSingleThreadTaskRunner(
			core.WithRunnerName(a.cfg.UI.Name),
			core.WithQueueSize(a.cfg.UI.QueueSize),
			core.WithRunnerLogger(a.logger),
			core.WithRunnerPanicHandler(a.panicHandler),
		)
		a.ownsUI = true
	}

	a.registry = NewBlockingRegistry()
	if a.defaultBlocker == nil {
		level, _ := logging.ParseLevel(a.cfg.Blocker.LogLevel)
		a.defaultBlocker = NewDefaultInputBlocker(a.registry, a.root, a.ui,
			WithBlockerLogger(a.logger),
			WithBlockerMetrics(a.metrics),
			WithBlockerLogLevel(level))
	}

	pool, err := core.NewGoroutineThreadPool(a.cfg.UI.Name+"-tasks", core.ThreadPoolConfig{
		CorePoolSize: a.cfg.Pool.CoreSize,
		MaxPoolSize:  a.cfg.Pool.MaxSize,
		KeepAlive:    a.cfg.Pool.KeepAlive,
		PanicHandler: a.panicHandler,
		Metrics:      a.poolMetrics,
		Logger:       a.logger,
	})
	if err != nil {
		if a.ownsUI {
			a.ui.Stop()
		}
		return nil, err
	}

	a.service = newTaskService(a, pool)
	a.monitor = NewTaskMonitor(a)

	a.logger.Info("application started",
		core.F("ui", a.ui.Name()),
		core.F("pool_core", a.cfg.Pool.CoreSize),
		core.F("pool_max", a.cfg.Pool.MaxSize))
	return a, nil
}

// UI returns the UI goroutine.
func (a *Application) UI() *core.SingleThreadTaskRunner { return a.ui }

// Registry returns the registry of the default blocker.
func (a *Application) Registry() *BlockingRegistry { return a.registry }

// Root returns the target blocked by ScopeApplication.
func (a *Application) Root() Target { return a.root }

func (a *Application) Logger() core.Logger { return a.logger }

func (a *Application) Config() config.Config { return a.cfg }

func (a *Application) TaskService() *TaskService { return a.service }

func (a *Application) TaskMonitor() *TaskMonitor { return a.monitor }

// PoolStats returns the state of the task worker pool.
func (a *Application) PoolStats() core.PoolStats { return a.service.Stats() }

// DefaultInputBlocker is assigned to executed tasks without own blocker.
func (a *Application) DefaultInputBlocker() InputBlocker {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.defaultBlocker
}

func (a *Application) SetDefaultInputBlocker(b InputBlocker) {
	a.mu.Lock()
	old := a.defaultBlocker
	a.defaultBlocker = b
	a.mu.Unlock()
	core.RunOrPost(a.ui, func(context.Context) {
		a.props.fireEvent(PropertyChangeEvent{Source: a, Property: PropertyDefaultInputBlocker, OldValue: old, NewValue: b})
	})
}

// AddPropertyChangeListener registers l for property, or every property when "".
func (a *Application) AddPropertyChangeListener(property string, l PropertyChangeListener) (remove func()) {
	return a.props.add(property, l)
}

// Execute executes task on the task service.
func (a *Application) Execute(task *Task) error {
	return a.service.Execute(task)
}

// ExecuteEvent records evt as the task's event object and executes it.
// A nil evt executes the task unchanged. When Execute fails the event object
// is taken back, so the call may be retried.
func (a *Application) ExecuteEvent(evt EventObject, task *Task) error {
	if evt == nil {
		return a.service.Execute(task)
	}
	undo, err := task.setEventObject(evt)
	if err != nil {
		return err
	}
	if err := a.service.Execute(task); err != nil {
		undo()
		return err
	}
	return nil
}

// HandleError logs err at error level and passes it to the error handler.
func (a *Application) HandleError(err error, title string) {
	a.logger.Error("task error", core.F("task", title), core.F("error", err))
	if a.errorHandler != nil {
		a.errorHandler(err, title)
	}
}

// Shutdown lets queued and running tasks finish until ctx is done, then
// interrupts the rest. It waits for the done callbacks and stops the UI
// goroutine unless it was supplied with WithUIRunner. It must not be called
// on the UI goroutine.
func (a *Application) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		var errs []error
		// flush executions posted before the shutdown
		if err := a.ui.WaitIdle(ctx); err != nil {
			errs = append(errs, err)
		}
		a.service.Shutdown()
		if err := a.service.AwaitTermination(ctx); err != nil {
			a.logger.Warn("tasks still running, interrupting", core.F("error", err))
			a.service.ShutdownNow()
			errs = append(errs, err)

			grace, cancel := context.WithTimeout(context.Background(), interruptGrace)
			if err := a.service.AwaitTermination(grace); err != nil {
				a.logger.Error("tasks ignored the interruption", core.F("tasks", len(a.service.Tasks())))
			}
			cancel()
		}
		a.monitor.Close()
		if err := a.ui.WaitIdle(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, err)
		}
		if a.ownsUI {
			a.ui.Stop()
		}
		a.shutdownErr = errors.Join(errs...)
		a.logger.Info("application stopped")
	})
	return a.shutdownErr
}
