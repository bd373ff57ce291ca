package application

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/Swind/go-ui-tasks/core"
)

// PropertyTasks is fired by TaskService and TaskMonitor with the old and new
// task lists.
const PropertyTasks = "tasks"

// TaskService executes tasks on a worker pool and keeps the list of tasks
// that are not DONE yet. The list is modified on the UI goroutine only.
type TaskService struct {
	app     *Application
	pool    *core.GoroutineThreadPool
	props   *propertySupport
	logger  core.Logger
	metrics Metrics

	tasks atomic.Pointer[[]*Task]
}

func newTaskService(app *Application, pool *core.GoroutineThreadPool) *TaskService {
	s := &TaskService{
		app:     app,
		pool:    pool,
		logger:  app.logger,
		metrics: app.metrics,
	}
	s.props = newPropertySupport(s)
	s.tasks.Store(&[]*Task{})
	return s
}

// Tasks returns a snapshot of the tasks that were executed and are not DONE.
func (s *TaskService) Tasks() []*Task {
	return slices.Clone(*s.tasks.Load())
}

// AddPropertyChangeListener registers l for property, or every property when "".
// Events are delivered on the UI goroutine.
func (s *TaskService) AddPropertyChangeListener(property string, l PropertyChangeListener) (remove func()) {
	return s.props.add(property, l)
}

// Execute starts task. The task must be pending and must not have been
// executed before; otherwise ErrTaskNotPending is returned and the pool is
// not touched. A task with ScopeAction and no action fails with
// ErrMissingAction.
//
// Registration, blocking and submission happen on the UI goroutine; when
// called elsewhere they are posted there and Execute returns immediately.
func (s *TaskService) Execute(task *Task) error {
	if task == nil {
		panic("application: Execute with nil task")
	}
	if task.State() != StatePending {
		return fmt.Errorf("%w: %s", ErrTaskNotPending, task)
	}
	expanded, err := task.checkValidBlocking()
	if err != nil {
		return err
	}
	if s.app.ui.IsClosed() {
		return fmt.Errorf("execute %s: %w", task, core.ErrRunnerClosed)
	}
	if !task.submitted.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrTaskNotPending, task)
	}
	if expanded {
		s.logger.Warn("blocking target missing, application will be blocked",
			core.F("task", task.Title()),
			core.F("task_id", task.ID()),
			core.F("scope", task.BlockingScope().String()))
	}

	task.attach(s.app)
	core.RunOrPost(s.app.ui, func(context.Context) {
		s.register(task)
		task.enqueue(s.pool)
	})
	return nil
}

func (s *TaskService) register(task *Task) {
	var remove func()
	remove = task.AddPropertyChangeListener(PropertyState, func(evt PropertyChangeEvent) {
		if evt.NewValue == StateDone {
			remove()
			s.unregister(task)
		}
	})

	old := *s.tasks.Load()
	next := append(slices.Clone(old), task)
	s.tasks.Store(&next)

	s.logger.Debug("task registered",
		core.F("task", task.Title()),
		core.F("task_id", task.ID()),
		core.F("tasks", len(next)))
	s.metrics.RecordRegisteredTasks(len(next))
	s.props.fire(PropertyTasks, old, next)
}

func (s *TaskService) unregister(task *Task) {
	old := *s.tasks.Load()
	i := slices.Index(old, task)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(old), i, i+1)
	s.tasks.Store(&next)

	s.logger.Debug("task unregistered",
		core.F("task", task.Title()),
		core.F("task_id", task.ID()),
		core.F("tasks", len(next)))
	s.metrics.RecordRegisteredTasks(len(next))
	s.props.fire(PropertyTasks, old, next)
}

// Shutdown stops accepting tasks. Queued and running tasks complete.
func (s *TaskService) Shutdown() {
	s.pool.Shutdown()
}

// ShutdownNow stops accepting tasks and cancels the context of running task
// bodies. Tasks that never reached a worker finish as cancelled, so their
// blocks are released and their callbacks still run. It returns the number
// of such tasks.
func (s *TaskService) ShutdownNow() int {
	dropped := s.pool.ShutdownNow()
	if len(dropped) == 0 {
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, job := range dropped {
		job(ctx)
	}
	s.logger.Info("task service shut down now", core.F("dropped", len(dropped)))
	return len(dropped)
}

// AwaitTermination blocks until all task bodies completed after a shutdown.
func (s *TaskService) AwaitTermination(ctx context.Context) error {
	return s.pool.AwaitTermination(ctx)
}

func (s *TaskService) IsShutdown() bool   { return s.pool.IsShutdown() }
func (s *TaskService) IsTerminated() bool { return s.pool.IsTerminated() }

// Stats returns the worker pool state.
func (s *TaskService) Stats() core.PoolStats {
	return s.pool.Stats()
}
