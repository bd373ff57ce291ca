package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Swind/go-ui-tasks/core"
)

// State is the lifecycle state of a Task. It only moves forward.
type State int32

const (
	StatePending State = iota
	StateStarted
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateStarted:
		return "STARTED"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ExtendedState is fired as PropertyExtendedState.
type ExtendedState int

// BackgroundDone fires once, right before the outcome callback.
const BackgroundDone ExtendedState = iota

func (e ExtendedState) String() string {
	if e == BackgroundDone {
		return "BACKGROUND_DONE"
	}
	return fmt.Sprintf("ExtendedState(%d)", int(e))
}

// Task property names.
const (
	PropertyTitle                 = "title"
	PropertyDescription           = "description"
	PropertyMessage               = "message"
	PropertyCancelAllowed         = "cancelAllowed"
	PropertyProgress              = "progress"
	PropertyProgressIndeterminate = "progressIndeterminate"
	PropertyInputBlocker          = "inputBlocker"
	PropertyExtendedState         = "extendedState"
	PropertyState                 = "state"
)

type backgroundResult struct {
	value       any
	err         error
	interrupted bool
	panicked    bool
	panicValue  any
}

// Task is a cancellable unit of background work with a lifecycle
// PENDING → STARTED → DONE, descriptive properties and a blocking scope.
//
// Property events are delivered on the UI goroutine once the task was
// executed. The outcome callbacks of the Handler run there too, followed by
// Finished, then the task switches to DONE.
type Task struct {
	id      uuid.UUID
	scope   BlockingScope
	handler Handler
	props   *propertySupport

	mu                    sync.Mutex
	title                 string
	description           string
	message               string
	cancelAllowed         bool
	progress              int
	progressIndeterminate bool
	startTime             time.Time
	doneTime              time.Time
	messageTime           time.Time
	inputBlocker          InputBlocker
	action                Target
	component             Target
	window                Target
	eventObject           EventObject
	resourcePrefix        string
	resources             ResourceProvider
	cancelled             bool
	bodyFinished          bool
	outcome               Outcome
	result                backgroundResult

	state     atomic.Int32
	submitted atomic.Bool
	enqueued  atomic.Bool
	app       atomic.Pointer[Application]

	// UI goroutine only
	blocked bool

	ctx    context.Context
	cancel context.CancelFunc

	chunkMu      sync.Mutex
	chunks       []any
	flushPending bool

	resultReady chan struct{}
	doneCh      chan struct{}
}

// TaskOption configures a Task at construction.
type TaskOption func(*Task)

// WithResources initialises title, description and message from
// "<prefix>.title", "<prefix>.description" and "<prefix>.message".
func WithResources(prefix string, provider ResourceProvider) TaskOption {
	return func(t *Task) {
		t.resourcePrefix = prefix
		t.resources = provider
	}
}

// WithInputBlocker sets the blocker instead of the application default.
func WithInputBlocker(b InputBlocker) TaskOption {
	return func(t *Task) { t.inputBlocker = b }
}

// NewTask creates a pending task. It panics on a nil handler or an unknown scope.
func NewTask(scope BlockingScope, handler Handler, opts ...TaskOption) *Task {
	if handler == nil {
		panic("application: NewTask with nil handler")
	}
	if !scope.Valid() {
		panic(fmt.Sprintf("application: NewTask with %s", scope))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		id:                    uuid.New(),
		scope:                 scope,
		handler:               handler,
		progressIndeterminate: true,
		ctx:                   ctx,
		cancel:                cancel,
		resultReady:           make(chan struct{}),
		doneCh:                make(chan struct{}),
	}
	t.props = newPropertySupport(t)
	for _, opt := range opts {
		opt(t)
	}

	if t.resources != nil {
		t.title, _ = t.resources.String(t.ResourceName(PropertyTitle))
		t.description, _ = t.resources.String(t.ResourceName(PropertyDescription))
		if msg, ok := t.resources.String(t.ResourceName(PropertyMessage)); ok {
			t.message = msg
			t.messageTime = time.Now()
		}
	}
	return t
}

// ID returns the unique task id.
func (t *Task) ID() uuid.UUID { return t.id }

// BlockingScope returns the scope fixed at construction.
func (t *Task) BlockingScope() BlockingScope { return t.scope }

// Handler returns the background handler.
func (t *Task) Handler() Handler { return t.handler }

// ResourceName returns "<prefix>.<suffix>".
func (t *Task) ResourceName(suffix string) string {
	return t.resourcePrefix + "." + suffix
}

func (t *Task) String() string {
	return fmt.Sprintf("Task[%s %q %s]", t.id, t.Title(), t.State())
}

// AddPropertyChangeListener registers l for property, or for every property
// when property is "". The returned func removes the listener.
func (t *Task) AddPropertyChangeListener(property string, l PropertyChangeListener) (remove func()) {
	return t.props.add(property, l)
}

// firePropertyChange delivers on the UI goroutine once the task is attached
// to an application, on the caller's goroutine before that.
func (t *Task) firePropertyChange(property string, oldValue, newValue any) {
	app := t.app.Load()
	if app == nil {
		t.props.fire(property, oldValue, newValue)
		return
	}
	core.RunOrPost(app.ui, func(context.Context) {
		t.props.fire(property, oldValue, newValue)
	})
}

// =============================================================================
// Properties
// =============================================================================

func (t *Task) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title
}

func (t *Task) SetTitle(title string) {
	t.mu.Lock()
	old := t.title
	t.title = title
	t.mu.Unlock()
	t.firePropertyChange(PropertyTitle, old, title)
}

func (t *Task) Description() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.description
}

func (t *Task) SetDescription(description string) {
	t.mu.Lock()
	old := t.description
	t.description = description
	t.mu.Unlock()
	t.firePropertyChange(PropertyDescription, old, description)
}

func (t *Task) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

// SetMessage changes the message and records the message time.
func (t *Task) SetMessage(message string) {
	t.mu.Lock()
	old := t.message
	t.message = message
	t.messageTime = time.Now()
	t.mu.Unlock()
	t.firePropertyChange(PropertyMessage, old, message)
}

// MessageKey sets the message from the resource "<prefix>.<suffix>".
func (t *Task) MessageKey(suffix string, args ...any) error {
	if t.resources == nil {
		return ErrNoResources
	}
	key := t.ResourceName(suffix)
	msg, ok := t.resources.String(key, args...)
	if !ok {
		return fmt.Errorf("missing resource %q", key)
	}
	t.SetMessage(msg)
	return nil
}

func (t *Task) IsCancelAllowed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelAllowed
}

func (t *Task) SetCancelAllowed(allowed bool) {
	t.mu.Lock()
	old := t.cancelAllowed
	t.cancelAllowed = allowed
	t.mu.Unlock()
	t.firePropertyChange(PropertyCancelAllowed, old, allowed)
}

func (t *Task) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// SetProgress sets the progress in percent and makes the progress determinate.
func (t *Task) SetProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("%w: %d", ErrProgressOutOfRange, progress)
	}
	t.mu.Lock()
	old := t.progress
	t.progress = progress
	t.progressIndeterminate = false
	t.mu.Unlock()
	t.firePropertyChange(PropertyProgress, old, progress)
	return nil
}

func (t *Task) IsProgressIndeterminate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressIndeterminate
}

func (t *Task) SetProgressIndeterminate(indeterminate bool) {
	t.mu.Lock()
	old := t.progressIndeterminate
	t.progressIndeterminate = indeterminate
	t.mu.Unlock()
	t.firePropertyChange(PropertyProgressIndeterminate, old, indeterminate)
}

// StartTime is zero until the task started.
func (t *Task) StartTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTime
}

// DoneTime is zero until the done callback ran.
func (t *Task) DoneTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneTime
}

// MessageTime is zero until a message was set.
func (t *Task) MessageTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messageTime
}

// ExecutionDuration is zero before the start, the elapsed time while running
// and the final duration once done.
func (t *Task) ExecutionDuration() time.Duration {
	t.mu.Lock()
	start, done := t.startTime, t.doneTime
	t.mu.Unlock()

	var d time.Duration
	switch {
	case start.IsZero():
		return 0
	case done.IsZero():
		d = time.Since(start)
	default:
		d = done.Sub(start)
	}
	return max(d, 0)
}

// MessageDuration is the time since the last message change.
func (t *Task) MessageDuration() time.Duration {
	t.mu.Lock()
	at := t.messageTime
	t.mu.Unlock()
	if at.IsZero() {
		return 0
	}
	return max(time.Since(at), 0)
}

func (t *Task) InputBlocker() InputBlocker {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputBlocker
}

func (t *Task) SetInputBlocker(b InputBlocker) {
	t.mu.Lock()
	old := t.inputBlocker
	t.inputBlocker = b
	t.mu.Unlock()
	t.firePropertyChange(PropertyInputBlocker, old, b)
}

func (t *Task) Action() Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.action
}

// SetAction sets the action blocked by ScopeAction.
func (t *Task) SetAction(action Target) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.action = action
}

func (t *Task) Component() Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.component
}

// SetComponent sets the component blocked by ScopeComponent.
func (t *Task) SetComponent(component Target) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.component = component
}

// Window returns the window blocked by ScopeWindow: the one derived from the
// event object, else the window of the component.
func (t *Task) Window() Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.window != nil {
		return t.window
	}
	if wp, ok := t.component.(WindowProvider); ok {
		return wp.Window()
	}
	return nil
}

func (t *Task) EventObject() EventObject {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eventObject
}

// SetEventObject records the triggering event and derives component and
// window from its source. It may be called once.
func (t *Task) SetEventObject(evt EventObject) error {
	_, err := t.setEventObject(evt)
	return err
}

// setEventObject is SetEventObject returning an undo func. The undo restores
// the previous component and window unless the task was submitted meanwhile.
func (t *Task) setEventObject(evt EventObject) (undo func(), err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.eventObject != nil {
		return nil, ErrEventObjectAlreadySet
	}
	component, window := t.component, t.window
	t.eventObject = evt
	t.component = componentFor(evt)
	t.window = windowFor(evt)

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.submitted.Load() {
			return
		}
		t.eventObject = nil
		t.component, t.window = component, window
	}, nil
}

// =============================================================================
// Lifecycle
// =============================================================================

func (t *Task) State() State { return State(t.state.Load()) }

func (t *Task) IsPending() bool { return t.State() == StatePending }
func (t *Task) IsDone() bool    { return t.State() == StateDone }

// IsCancelled reports whether Cancel succeeded.
func (t *Task) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done is closed after the terminal callbacks ran and the task is DONE.
func (t *Task) Done() <-chan struct{} { return t.doneCh }

// Cancel requests cooperative cancellation. The context handed to the
// background function is cancelled; a task that did not start yet finishes
// as cancelled without running its body. It returns false when the body
// already completed or the task was cancelled before.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	if t.cancelled || t.bodyFinished {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	t.mu.Unlock()

	t.cancel()
	if t.enqueued.Load() && t.claim() {
		t.complete(backgroundResult{})
	}
	return true
}

// Get waits for the background function and returns its result. A failure is
// returned as *ExecutionError, a cancelled task as ErrTaskCancelled.
func (t *Task) Get(ctx context.Context) (any, error) {
	select {
	case <-t.resultReady:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.mu.Lock()
	outcome, res, title := t.outcome, t.result, t.title
	t.mu.Unlock()

	switch outcome {
	case OutcomeSucceeded:
		return res.value, nil
	case OutcomeCancelled:
		return nil, ErrTaskCancelled
	case OutcomePanicked:
		return nil, &ExecutionError{Title: title, Err: fmt.Errorf("%w: %v", ErrTaskPanicked, res.panicValue)}
	default:
		return nil, &ExecutionError{Title: title, Err: res.err}
	}
}

// attach binds the task to app when it is executed.
func (t *Task) attach(app *Application) {
	t.mu.Lock()
	if t.inputBlocker == nil {
		t.inputBlocker = app.DefaultInputBlocker()
	}
	t.mu.Unlock()
	t.app.Store(app)
}

// checkValidBlocking fails for ACTION scope without action. It reports whether
// a COMPONENT or WINDOW task lacks its target and will be expanded.
func (t *Task) checkValidBlocking() (expanded bool, err error) {
	switch t.scope {
	case ScopeAction:
		if t.Action() == nil {
			return false, fmt.Errorf("%w: task %q", ErrMissingAction, t.Title())
		}
	case ScopeComponent:
		return t.Component() == nil, nil
	case ScopeWindow:
		return t.Window() == nil, nil
	}
	return false, nil
}

// enqueue blocks the task's target and hands the body to pool. UI goroutine only.
func (t *Task) enqueue(pool core.Executor) {
	if t.scope != ScopeNone {
		blocker := t.InputBlocker()
		if blocker == nil {
			t.finishUnstarted(fmt.Errorf("%w: task %q", ErrNoInputBlocker, t.Title()))
			return
		}
		if err := blocker.Block(t); err != nil {
			t.finishUnstarted(err)
			return
		}
		t.blocked = true
	}

	t.enqueued.Store(true)
	if err := pool.Execute(t.run); err != nil {
		t.finishUnstarted(err)
	}
}

// finishUnstarted completes a task that never reached a worker as failed.
func (t *Task) finishUnstarted(err error) {
	if t.claim() {
		t.complete(backgroundResult{err: err})
	}
}

// claim moves PENDING to STARTED. Exactly one of the worker, Cancel or a
// rejection path wins.
func (t *Task) claim() bool {
	if !t.state.CompareAndSwap(int32(StatePending), int32(StateStarted)) {
		return false
	}
	t.mu.Lock()
	t.startTime = time.Now()
	t.mu.Unlock()
	t.firePropertyChange(PropertyState, StatePending, StateStarted)
	return true
}

// run is the job executed by the pool.
func (t *Task) run(workerCtx context.Context) {
	if !t.claim() {
		return
	}
	if workerCtx.Err() != nil {
		// dropped by ShutdownNow before it started
		t.mu.Lock()
		t.cancelled = true
		t.mu.Unlock()
		t.cancel()
	}
	if t.IsCancelled() {
		t.complete(backgroundResult{})
		return
	}

	ctx, cancel := context.WithCancel(workerCtx)
	stop := context.AfterFunc(t.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	panicking := true
	defer func() {
		if !panicking {
			return
		}
		rec := recover()
		if rec == nil {
			// runtime.Goexit in the body; let it unwind the worker.
			t.complete(backgroundResult{err: ErrTaskExited, interrupted: true})
			return
		}
		t.complete(backgroundResult{panicked: true, panicValue: rec})
		panic(rec)
	}()

	value, err := t.handler.DoInBackground(ctx, t)
	panicking = false
	t.complete(backgroundResult{
		value:       value,
		err:         err,
		interrupted: err != nil && workerCtx.Err() != nil,
	})
}

// complete records the background result and schedules done on the UI goroutine.
func (t *Task) complete(res backgroundResult) {
	t.mu.Lock()
	t.bodyFinished = true
	switch {
	case t.cancelled:
		t.outcome = OutcomeCancelled
	case res.panicked:
		t.outcome = OutcomePanicked
	case res.interrupted:
		t.outcome = OutcomeInterrupted
	case res.err != nil:
		t.outcome = OutcomeFailed
	default:
		t.outcome = OutcomeSucceeded
	}
	t.result = res
	outcome := t.outcome
	t.mu.Unlock()
	close(t.resultReady)

	app := t.app.Load()
	core.RunOrPost(app.ui, func(context.Context) {
		t.done(outcome, res)
	})
}

// done runs on the UI goroutine: unblock, BACKGROUND_DONE, one outcome
// callback, Finished, then DONE.
func (t *Task) done(outcome Outcome, res backgroundResult) {
	app := t.app.Load()
	defer func() {
		if !t.state.CompareAndSwap(int32(StateStarted), int32(StateDone)) {
			panic(fmt.Sprintf("application: illegal transition %s -> DONE for task %s", t.State(), t.id))
		}
		t.props.fire(PropertyState, StateStarted, StateDone)
		close(t.doneCh)
	}()

	t.mu.Lock()
	t.doneTime = time.Now()
	t.mu.Unlock()

	if t.blocked {
		t.blocked = false
		if err := t.InputBlocker().Unblock(t); err != nil {
			app.HandleError(err, t.Title())
		}
	}
	app.metrics.RecordTaskOutcome(outcome, t.scope, t.ExecutionDuration())

	defer t.finished()
	t.props.fire(PropertyExtendedState, nil, BackgroundDone)

	switch outcome {
	case OutcomeSucceeded:
		if h, ok := t.handler.(SucceededHandler); ok {
			h.Succeeded(t, res.value)
		}
	case OutcomeCancelled:
		if h, ok := t.handler.(CancelledHandler); ok {
			h.Cancelled(t)
		}
	case OutcomeInterrupted:
		if h, ok := t.handler.(InterruptedHandler); ok {
			h.Interrupted(t, res.err)
		}
	case OutcomeFailed:
		t.failed(unwrapExecution(res.err))
	case OutcomePanicked:
		app.logger.Error("task panicked",
			core.F("task", t.Title()),
			core.F("task_id", t.id),
			core.F("panic", res.panicValue))
	}
}

// failed dispatches err to the handler's Failed or to the application.
func (t *Task) failed(err error) {
	if h, ok := t.handler.(FailedHandler); ok {
		h.Failed(t, err)
		return
	}
	t.defaultFailed(err)
}

func (t *Task) defaultFailed(err error) {
	if app := t.app.Load(); app != nil {
		app.HandleError(err, t.Title())
	}
}

func (t *Task) finished() {
	if h, ok := t.handler.(FinishedHandler); ok {
		h.Finished(t)
	}
}

// =============================================================================
// Chunk publishing
// =============================================================================

// Publish hands chunks to the handler's Processor on the UI goroutine.
// Chunks published before the previous batch was delivered are merged.
func (t *Task) Publish(chunks ...any) {
	app := t.app.Load()
	if len(chunks) == 0 || app == nil {
		return
	}

	t.chunkMu.Lock()
	t.chunks = append(t.chunks, chunks...)
	schedule := !t.flushPending
	t.flushPending = true
	t.chunkMu.Unlock()

	if schedule {
		core.RunOrPost(app.ui, t.flushChunks)
	}
}

func (t *Task) flushChunks(ctx context.Context) {
	t.chunkMu.Lock()
	chunks := t.chunks
	t.chunks = nil
	t.flushPending = false
	t.chunkMu.Unlock()

	if p, ok := t.handler.(Processor); ok && len(chunks) > 0 {
		p.Process(t, chunks)
	}
}
