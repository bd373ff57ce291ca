package application

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Target is anything a task can disable: an action, a component, a window or
// the application root. Targets are identified by ID, never by value, so two
// targets that look alike are still blocked independently.
type Target interface {
	ID() uuid.UUID
	Name() string
	Enabled() bool
	SetEnabled(enabled bool)
}

// WindowProvider is implemented by targets that live inside a window.
type WindowProvider interface {
	Window() Target
}

// EventObject is the event that triggered a task. Its source is used to find
// the component and window to block.
type EventObject interface {
	Source() any
}

// Event is a minimal EventObject.
type Event struct {
	source any
}

// NewEvent returns an event originating from source.
func NewEvent(source any) *Event {
	return &Event{source: source}
}

// Source returns the object the event originated from.
func (e *Event) Source() any {
	return e.source
}

// Widget is an in-memory Target. It can stand in for an action, a component,
// a window or the application root.
type Widget struct {
	id      uuid.UUID
	name    string
	enabled atomic.Bool
	window  Target

	onEnabled func(enabled bool)
}

// WidgetOption configures a Widget.
type WidgetOption func(*Widget)

// InWindow places the widget inside window.
func InWindow(window Target) WidgetOption {
	return func(w *Widget) { w.window = window }
}

// OnEnabledChange registers fn to be called on every SetEnabled.
func OnEnabledChange(fn func(enabled bool)) WidgetOption {
	return func(w *Widget) { w.onEnabled = fn }
}

// NewWidget creates an enabled widget with a fresh identity.
func NewWidget(name string, opts ...WidgetOption) *Widget {
	w := &Widget{id: uuid.New(), name: name}
	w.enabled.Store(true)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewWindow creates a widget that is its own window.
func NewWindow(name string, opts ...WidgetOption) *Widget {
	w := NewWidget(name, opts...)
	w.window = w
	return w
}

func (w *Widget) ID() uuid.UUID  { return w.id }
func (w *Widget) Name() string   { return w.name }
func (w *Widget) Enabled() bool  { return w.enabled.Load() }
func (w *Widget) Window() Target { return w.window }

func (w *Widget) SetEnabled(enabled bool) {
	w.enabled.Store(enabled)
	if w.onEnabled != nil {
		w.onEnabled(enabled)
	}
}

func (w *Widget) String() string {
	return w.name
}

// componentFor returns the source of evt when it is a Target.
func componentFor(evt EventObject) Target {
	if evt == nil {
		return nil
	}
	target, _ := evt.Source().(Target)
	return target
}

// windowFor returns the window containing the source of evt.
func windowFor(evt EventObject) Target {
	if evt == nil {
		return nil
	}
	provider, ok := evt.Source().(WindowProvider)
	if !ok {
		return nil
	}
	return provider.Window()
}
