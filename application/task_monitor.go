package application

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/Swind/go-ui-tasks/core"
)

// TaskMonitor property names. The task lifecycle names are fired with the
// foreground task as source and false/true as old and new value.
const (
	PropertyForegroundTask           = "foregroundTask"
	PropertyAutoUpdateForegroundTask = "autoUpdateForegroundTask"
	PropertyPending                  = "pending"
	PropertyStarted                  = "started"
	PropertyBackgroundDone           = "backgroundDone"
	PropertyDone                     = "done"
)

// TaskMonitor follows the tasks of a TaskService and tracks one of them as
// the foreground task, typically the one shown in a status bar. Property
// events of the foreground task are republished with the monitor as source.
type TaskMonitor struct {
	service *TaskService
	ui      *core.SingleThreadTaskRunner
	logger  core.Logger
	props   *propertySupport

	// UI goroutine only
	queue          []*Task
	foreground     *Task
	explicit       bool
	autoUpdate     bool
	stopForeground func()

	foregroundSnap atomic.Pointer[Task]
	queueSnap      atomic.Pointer[[]*Task]
	autoUpdateSnap atomic.Bool

	stopService func()
}

// NewTaskMonitor creates a monitor for the tasks of app's service with
// auto-update of the foreground task enabled.
func NewTaskMonitor(app *Application) *TaskMonitor {
	m := &TaskMonitor{
		service:    app.TaskService(),
		ui:         app.ui,
		logger:     app.logger,
		autoUpdate: true,
	}
	m.props = newPropertySupport(m)
	m.queueSnap.Store(&[]*Task{})
	m.autoUpdateSnap.Store(true)

	m.stopService = m.service.AddPropertyChangeListener(PropertyTasks, func(evt PropertyChangeEvent) {
		oldTasks, _ := evt.OldValue.([]*Task)
		newTasks, _ := evt.NewValue.([]*Task)
		m.updateTasks(oldTasks, newTasks)
	})
	core.RunOrPost(m.ui, func(context.Context) {
		m.updateTasks(nil, m.service.Tasks())
	})
	return m
}

// Close stops following the service.
func (m *TaskMonitor) Close() {
	m.stopService()
	core.RunOrPost(m.ui, func(context.Context) { m.setForegroundTask(nil) })
}

// AddPropertyChangeListener registers l for property, or every property when "".
// Events are delivered on the UI goroutine.
func (m *TaskMonitor) AddPropertyChangeListener(property string, l PropertyChangeListener) (remove func()) {
	return m.props.add(property, l)
}

// Tasks returns the monitored tasks, oldest first.
func (m *TaskMonitor) Tasks() []*Task {
	return slices.Clone(*m.queueSnap.Load())
}

// ForegroundTask returns the foreground task or nil.
func (m *TaskMonitor) ForegroundTask() *Task {
	return m.foregroundSnap.Load()
}

// IsAutoUpdateForegroundTask reports whether the foreground task is elected
// automatically.
func (m *TaskMonitor) IsAutoUpdateForegroundTask() bool {
	return m.autoUpdateSnap.Load()
}

// SetForegroundTask makes task the foreground task until it is done. Newer
// tasks do not replace it. A nil task hands the choice back to auto-update.
func (m *TaskMonitor) SetForegroundTask(task *Task) {
	core.RunOrPost(m.ui, func(context.Context) {
		m.explicit = task != nil
		m.setForegroundTask(task)
		m.electForegroundTask()
	})
}

// SetAutoUpdateForegroundTask enables or disables the election of the most
// recently added live task while no foreground task was set explicitly.
func (m *TaskMonitor) SetAutoUpdateForegroundTask(autoUpdate bool) {
	core.RunOrPost(m.ui, func(context.Context) {
		old := m.autoUpdate
		m.autoUpdate = autoUpdate
		m.autoUpdateSnap.Store(autoUpdate)
		m.props.fire(PropertyAutoUpdateForegroundTask, old, autoUpdate)
		m.electForegroundTask()
	})
}

func (m *TaskMonitor) updateTasks(oldTasks, newTasks []*Task) {
	before := m.queue
	queue := slices.Clone(m.queue)

	for _, t := range oldTasks {
		if !slices.Contains(newTasks, t) {
			queue = slices.DeleteFunc(queue, func(q *Task) bool { return q == t })
		}
	}
	for _, t := range newTasks {
		if !slices.Contains(oldTasks, t) && !slices.Contains(queue, t) {
			queue = append(queue, t)
		}
	}
	queue = slices.DeleteFunc(queue, (*Task).IsDone)

	if !slices.Equal(before, queue) {
		m.queue = queue
		m.queueSnap.Store(&queue)
		m.logger.Debug("monitor tasks updated", core.F("tasks", len(queue)))
		m.props.fire(PropertyTasks, before, slices.Clone(queue))
	}
	m.electForegroundTask()
}

// electForegroundTask makes the most recently added task that is not DONE the
// foreground task, unless one was set explicitly.
func (m *TaskMonitor) electForegroundTask() {
	if !m.autoUpdate || (m.explicit && m.foreground != nil) {
		return
	}
	for i := len(m.queue) - 1; i >= 0; i-- {
		if !m.queue[i].IsDone() {
			m.setForegroundTask(m.queue[i])
			return
		}
	}
}

func (m *TaskMonitor) setForegroundTask(task *Task) {
	old := m.foreground
	if old == task {
		return
	}
	if m.stopForeground != nil {
		m.stopForeground()
		m.stopForeground = nil
	}

	m.foreground = task
	m.foregroundSnap.Store(task)
	if task != nil {
		m.stopForeground = task.AddPropertyChangeListener("", m.foregroundTaskChanged)
	}
	m.props.fireEvent(PropertyChangeEvent{
		Source:   m,
		Property: PropertyForegroundTask,
		OldValue: old,
		NewValue: task,
	})

	if task != nil && task.IsPending() {
		m.fireLifecycle(task, PropertyPending)
	}
}

func (m *TaskMonitor) foregroundTaskChanged(evt PropertyChangeEvent) {
	task, ok := evt.Source.(*Task)
	if !ok || task != m.foreground {
		return
	}

	m.props.fireEvent(PropertyChangeEvent{
		Source:   m,
		Property: evt.Property,
		OldValue: evt.OldValue,
		NewValue: evt.NewValue,
	})

	switch evt.Property {
	case PropertyState:
		switch evt.NewValue {
		case StateStarted:
			m.fireLifecycle(task, PropertyStarted)
		case StateDone:
			m.fireLifecycle(task, PropertyDone)
			m.explicit = false
			m.setForegroundTask(nil)
			m.electForegroundTask()
		}
	case PropertyExtendedState:
		if evt.NewValue == BackgroundDone {
			m.fireLifecycle(task, PropertyBackgroundDone)
		}
	}
}

func (m *TaskMonitor) fireLifecycle(task *Task, property string) {
	m.props.fireEvent(PropertyChangeEvent{
		Source:   task,
		Property: property,
		OldValue: false,
		NewValue: true,
	})
}
