package application

import (
	"context"
	"fmt"
	"time"
)

type builderCall uint16

const (
	callBlock builderCall = 1 << iota
	callProgress
	callTitle
	callDescription
	callMessage
	callOnInit
	callSleep
	callBackground
	callProcessor
	callOnSucceeded
	callOnCancelled
	callOnFailed
	callOnFinished
)

var builderCallNames = map[builderCall]string{
	callBlock:       "Block",
	callProgress:    "ProgressDeterminate or ProgressIndeterminate",
	callTitle:       "Title",
	callDescription: "Description",
	callMessage:     "Message",
	callOnInit:      "OnInit",
	callSleep:       "Sleep",
	callBackground:  "InBackgroundDo or InBackgroundSupply",
	callProcessor:   "Processor",
	callOnSucceeded: "OnSucceeded",
	callOnCancelled: "OnCancelled",
	callOnFailed:    "OnFailed",
	callOnFinished:  "OnFinished",
}

// TaskBuilder configures a Task from functions. T is the result type of the
// background function and V the type of published chunks.
//
//	application.NewTaskBuilder[string, int]().
//		Title("Loading").
//		BlockWindow().
//		InBackgroundSupply(load).
//		OnSucceeded(show).
//		Execute(app, evt)
//
// Every configuration method may be called once; a second call panics.
type TaskBuilder[T, V any] struct {
	called builderCall

	scope                 BlockingScope
	action                Target
	progressIndeterminate bool
	title                 string
	description           string
	message               string
	onInit                func(*Task)
	delay                 time.Duration
	background            func(ctx context.Context, p *Publisher[V]) (T, error)
	processor             func(tc *TaskContext, chunks []V)
	onSucceeded           func(tc *TaskContext, result T)
	onCancelled           func(tc *TaskContext)
	onFailed              func(tc *TaskContext, err error)
	onFinished            func(tc *TaskContext)
}

// NewTaskBuilder returns a builder for an indeterminate task blocking the application.
func NewTaskBuilder[T, V any]() *TaskBuilder[T, V] {
	return &TaskBuilder[T, V]{
		scope:                 ScopeApplication,
		progressIndeterminate: true,
	}
}

func (b *TaskBuilder[T, V]) once(c builderCall) {
	if b.called&c != 0 {
		panic(fmt.Sprintf("taskbuilder: %s must be called once only", builderCallNames[c]))
	}
	b.called |= c
}

// Block sets the blocking scope.
func (b *TaskBuilder[T, V]) Block(scope BlockingScope) *TaskBuilder[T, V] {
	b.once(callBlock)
	if !scope.Valid() {
		panic(fmt.Sprintf("taskbuilder: invalid blocking scope %s", scope))
	}
	b.scope = scope
	return b
}

func (b *TaskBuilder[T, V]) BlockApplication() *TaskBuilder[T, V] { return b.Block(ScopeApplication) }
func (b *TaskBuilder[T, V]) BlockNothing() *TaskBuilder[T, V]     { return b.Block(ScopeNone) }
func (b *TaskBuilder[T, V]) BlockWindow() *TaskBuilder[T, V]      { return b.Block(ScopeWindow) }
func (b *TaskBuilder[T, V]) BlockComponent() *TaskBuilder[T, V]   { return b.Block(ScopeComponent) }

// BlockAction blocks action while the task runs.
func (b *TaskBuilder[T, V]) BlockAction(action Target) *TaskBuilder[T, V] {
	if action == nil {
		panic("taskbuilder: action to be blocked must not be nil")
	}
	b.Block(ScopeAction)
	b.action = action
	return b
}

func (b *TaskBuilder[T, V]) ProgressIndeterminate(indeterminate bool) *TaskBuilder[T, V] {
	b.once(callProgress)
	b.progressIndeterminate = indeterminate
	return b
}

func (b *TaskBuilder[T, V]) ProgressDeterminate() *TaskBuilder[T, V] {
	return b.ProgressIndeterminate(false)
}

// Title sets the task title, formatted with fmt.Sprintf when args are given.
func (b *TaskBuilder[T, V]) Title(format string, args ...any) *TaskBuilder[T, V] {
	b.once(callTitle)
	b.title = sprintf(format, args)
	return b
}

func (b *TaskBuilder[T, V]) Description(format string, args ...any) *TaskBuilder[T, V] {
	b.once(callDescription)
	b.description = sprintf(format, args)
	return b
}

// Message sets the message shown when the background function starts.
func (b *TaskBuilder[T, V]) Message(format string, args ...any) *TaskBuilder[T, V] {
	b.once(callMessage)
	b.message = sprintf(format, args)
	return b
}

// OnInit is called with the new task at the end of Build.
func (b *TaskBuilder[T, V]) OnInit(fn func(*Task)) *TaskBuilder[T, V] {
	b.once(callOnInit)
	b.onInit = fn
	return b
}

// Sleep delays the background function by d. Cancelling the task ends the sleep.
func (b *TaskBuilder[T, V]) Sleep(d time.Duration) *TaskBuilder[T, V] {
	b.once(callSleep)
	b.delay = d
	return b
}

// InBackgroundDo sets a background function without result.
func (b *TaskBuilder[T, V]) InBackgroundDo(fn func(ctx context.Context, p *Publisher[V]) error) *TaskBuilder[T, V] {
	return b.InBackgroundSupply(func(ctx context.Context, p *Publisher[V]) (T, error) {
		var zero T
		return zero, fn(ctx, p)
	})
}

// InBackgroundSupply sets the background function.
func (b *TaskBuilder[T, V]) InBackgroundSupply(fn func(ctx context.Context, p *Publisher[V]) (T, error)) *TaskBuilder[T, V] {
	b.once(callBackground)
	b.background = fn
	return b
}

// Processor receives published chunks on the UI goroutine.
func (b *TaskBuilder[T, V]) Processor(fn func(tc *TaskContext, chunks []V)) *TaskBuilder[T, V] {
	b.once(callProcessor)
	b.processor = fn
	return b
}

func (b *TaskBuilder[T, V]) OnSucceeded(fn func(tc *TaskContext, result T)) *TaskBuilder[T, V] {
	b.once(callOnSucceeded)
	b.onSucceeded = fn
	return b
}

func (b *TaskBuilder[T, V]) OnCancelled(fn func(tc *TaskContext)) *TaskBuilder[T, V] {
	b.once(callOnCancelled)
	b.onCancelled = fn
	return b
}

// OnFailed replaces the default failure handling, which reports to
// Application.HandleError.
func (b *TaskBuilder[T, V]) OnFailed(fn func(tc *TaskContext, err error)) *TaskBuilder[T, V] {
	b.once(callOnFailed)
	b.onFailed = fn
	return b
}

func (b *TaskBuilder[T, V]) OnFinished(fn func(tc *TaskContext)) *TaskBuilder[T, V] {
	b.once(callOnFinished)
	b.onFinished = fn
	return b
}

// Build creates the task. It fails with ErrNoBackgroundFunc when no
// background function was set.
func (b *TaskBuilder[T, V]) Build() (*Task, error) {
	if b.background == nil {
		return nil, ErrNoBackgroundFunc
	}

	h := &builtTask[T, V]{
		message:     b.message,
		delay:       b.delay,
		background:  b.background,
		processor:   b.processor,
		onSucceeded: b.onSucceeded,
		onCancelled: b.onCancelled,
		onFailed:    b.onFailed,
		onFinished:  b.onFinished,
	}
	task := NewTask(b.scope, h)
	h.context = &TaskContext{task: task, handler: h}

	task.title = b.title
	task.description = b.description
	task.progressIndeterminate = b.progressIndeterminate
	task.action = b.action
	if b.onInit != nil {
		b.onInit(task)
	}
	return task, nil
}

// Execute builds the task and executes it on app with evt as event object.
func (b *TaskBuilder[T, V]) Execute(app *Application, evt EventObject) (*Task, error) {
	task, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := app.ExecuteEvent(evt, task); err != nil {
		return nil, err
	}
	return task, nil
}

func sprintf(format string, args []any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// builtTask is the Handler of a task created by a TaskBuilder.
type builtTask[T, V any] struct {
	context *TaskContext

	message     string
	delay       time.Duration
	background  func(ctx context.Context, p *Publisher[V]) (T, error)
	processor   func(tc *TaskContext, chunks []V)
	onSucceeded func(tc *TaskContext, result T)
	onCancelled func(tc *TaskContext)
	onFailed    func(tc *TaskContext, err error)
	onFinished  func(tc *TaskContext)
}

func (h *builtTask[T, V]) DoInBackground(ctx context.Context, task *Task) (any, error) {
	if h.message != "" {
		task.SetMessage(h.message)
	}
	if h.delay > 0 {
		timer := time.NewTimer(h.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return h.background(ctx, &Publisher[V]{task: task, ctx: ctx})
}

func (h *builtTask[T, V]) Process(task *Task, chunks []any) {
	if h.processor == nil {
		return
	}
	typed := make([]V, 0, len(chunks))
	for _, c := range chunks {
		v, _ := c.(V)
		typed = append(typed, v)
	}
	h.processor(h.context, typed)
}

func (h *builtTask[T, V]) Succeeded(task *Task, result any) {
	if h.onSucceeded == nil {
		return
	}
	value, _ := result.(T)
	h.onSucceeded(h.context, value)
}

func (h *builtTask[T, V]) Cancelled(task *Task) {
	if h.onCancelled != nil {
		h.onCancelled(h.context)
	}
}

func (h *builtTask[T, V]) Failed(task *Task, err error) {
	if h.onFailed != nil {
		h.onFailed(h.context, err)
		return
	}
	task.defaultFailed(err)
}

func (h *builtTask[T, V]) Interrupted(task *Task, err error) {}

func (h *builtTask[T, V]) Finished(task *Task) {
	if h.onFinished != nil {
		h.onFinished(h.context)
	}
}

// Publisher is handed to the background function of a built task.
type Publisher[V any] struct {
	task *Task
	ctx  context.Context
}

// Publish sends chunks to the builder's Processor.
func (p *Publisher[V]) Publish(chunks ...V) {
	values := make([]any, len(chunks))
	for i, c := range chunks {
		values[i] = c
	}
	p.task.Publish(values...)
}

// SetMessage sets the task message, formatted with fmt.Sprintf when args are given.
func (p *Publisher[V]) SetMessage(format string, args ...any) {
	p.task.SetMessage(sprintf(format, args))
}

func (p *Publisher[V]) SetProgress(progress int) error {
	return p.task.SetProgress(progress)
}

func (p *Publisher[V]) SetProgressIndeterminate(indeterminate bool) {
	p.task.SetProgressIndeterminate(indeterminate)
}

// IsCancelled reports whether the task was cancelled or the pool interrupted it.
func (p *Publisher[V]) IsCancelled() bool {
	return p.ctx.Err() != nil
}

// Task returns the task being executed.
func (p *Publisher[V]) Task() *Task { return p.task }

// TaskContext is handed to the UI callbacks of a built task.
type TaskContext struct {
	task    *Task
	handler FailedHandler
}

func (tc *TaskContext) Task() *Task              { return tc.task }
func (tc *TaskContext) Component() Target        { return tc.task.Component() }
func (tc *TaskContext) EventObject() EventObject { return tc.task.EventObject() }

// Fail reports err through the task's failure handling.
func (tc *TaskContext) Fail(err error) {
	tc.handler.Failed(tc.task, err)
}
