package uitask

import (
	"github.com/Swind/go-ui-tasks/application"
	"github.com/Swind/go-ui-tasks/config"
	"github.com/Swind/go-ui-tasks/core"
)

// Re-export commonly used types from the application package so most
// programs only import uitask.

type Application = application.Application

type Task = application.Task

// TaskService executes tasks and tracks the ones not done yet.
type TaskService = application.TaskService

// TaskMonitor tracks the foreground task.
type TaskMonitor = application.TaskMonitor

type TaskBuilder[T, V any] = application.TaskBuilder[T, V]
type Publisher[V any] = application.Publisher[V]
type TaskContext = application.TaskContext

// Handler is the background part of a task plus optional UI callbacks.
type Handler = application.Handler
type HandlerFunc = application.HandlerFunc

type BlockingScope = application.BlockingScope

// Blocking scopes
const (
	ScopeNone        = application.ScopeNone
	ScopeAction      = application.ScopeAction
	ScopeComponent   = application.ScopeComponent
	ScopeWindow      = application.ScopeWindow
	ScopeApplication = application.ScopeApplication
)

type InputBlocker = application.InputBlocker
type BlockingRegistry = application.BlockingRegistry

// Target is a UI element that can be enabled and disabled.
type Target = application.Target
type Widget = application.Widget
type EventObject = application.EventObject

type PropertyChangeEvent = application.PropertyChangeEvent
type PropertyChangeListener = application.PropertyChangeListener

type Option = application.Option

// Config is the application configuration.
type Config = config.Config

// UIRunner is the goroutine all UI state is confined to.
type UIRunner = core.SingleThreadTaskRunner

// Convenience constructors
var (
	NewTask         = application.NewTask
	NewWidget       = application.NewWidget
	NewWindow       = application.NewWindow
	InWindow        = application.InWindow
	OnEnabledChange = application.OnEnabledChange
	NewEvent        = application.NewEvent

	WithConfig       = application.WithConfig
	WithSlogLogger   = application.WithSlogLogger
	WithMetrics      = application.WithMetrics
	WithRootTarget   = application.WithRootTarget
	WithErrorHandler = application.WithErrorHandler

	LoadConfig    = config.Load
	DefaultConfig = config.Default
)

// NewTaskBuilder returns a builder for a task producing T and publishing V.
func NewTaskBuilder[T, V any]() *TaskBuilder[T, V] {
	return application.NewTaskBuilder[T, V]()
}

// NewApplication creates and starts an Application.
func NewApplication(opts ...Option) (*Application, error) {
	return application.New(opts...)
}
