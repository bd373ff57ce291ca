package application

import (
	"sync"
)

// PropertyChangeEvent describes a change of a named property.
type PropertyChangeEvent struct {
	// Source is the object whose property changed.
	Source any
	// Property is the property name.
	Property string
	// OldValue is the previous value (may be nil).
	OldValue any
	// NewValue is the new value.
	NewValue any
}

// PropertyChangeListener is called for each property change.
type PropertyChangeListener func(evt PropertyChangeEvent)

type listenerEntry struct {
	id       uint64
	property string
	listener PropertyChangeListener
}

// propertySupport keeps the listeners of one bean. Listeners are called
// synchronously, in registration order, on the goroutine that fires.
type propertySupport struct {
	mu        sync.Mutex
	source    any
	listeners []listenerEntry
	nextID    uint64
}

func newPropertySupport(source any) *propertySupport {
	return &propertySupport{source: source}
}

// add registers listener for property, or for every property when property is "".
// The returned func removes the listener and may be called more than once.
func (s *propertySupport) add(property string, listener PropertyChangeListener) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: id, property: property, listener: listener})

	return func() { s.remove(id) }
}

func (s *propertySupport) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.listeners {
		if entry.id == id {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *propertySupport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// fire notifies listeners unless old and new are equal comparable values.
func (s *propertySupport) fire(property string, oldValue, newValue any) {
	if oldValue != nil && newValue != nil && isComparable(oldValue) && isComparable(newValue) && oldValue == newValue {
		return
	}
	s.fireEvent(PropertyChangeEvent{Source: s.source, Property: property, OldValue: oldValue, NewValue: newValue})
}

// fireEvent notifies listeners unconditionally.
func (s *propertySupport) fireEvent(evt PropertyChangeEvent) {
	s.mu.Lock()
	snapshot := make([]listenerEntry, len(s.listeners))
	copy(snapshot, s.listeners)
	s.mu.Unlock()

	for _, entry := range snapshot {
		if entry.property == "" || entry.property == evt.Property {
			entry.listener(evt)
		}
	}
}

func isComparable(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, BlockingScope, State, ExtendedState:
		return true
	default:
		return false
	}
}
