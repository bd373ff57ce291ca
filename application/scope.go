package application

import (
	"fmt"
	"strings"
)

// BlockingScope selects which part of the UI a task disables while it runs.
type BlockingScope int

const (
	// ScopeNone blocks nothing.
	ScopeNone BlockingScope = iota
	// ScopeAction disables the task's action.
	ScopeAction
	// ScopeComponent disables the component that triggered the task.
	ScopeComponent
	// ScopeWindow disables the window containing the triggering component.
	ScopeWindow
	// ScopeApplication disables the application root.
	ScopeApplication
)

var scopeNames = [...]string{
	ScopeNone:        "NONE",
	ScopeAction:      "ACTION",
	ScopeComponent:   "COMPONENT",
	ScopeWindow:      "WINDOW",
	ScopeApplication: "APPLICATION",
}

// String returns the scope name.
func (s BlockingScope) String() string {
	if s < 0 || int(s) >= len(scopeNames) {
		return fmt.Sprintf("BlockingScope(%d)", int(s))
	}
	return scopeNames[s]
}

// Valid reports whether s is one of the declared scopes.
func (s BlockingScope) Valid() bool {
	return s >= ScopeNone && s <= ScopeApplication
}

// ParseBlockingScope parses a scope name, ignoring case.
func ParseBlockingScope(name string) (BlockingScope, error) {
	for i, n := range scopeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return BlockingScope(i), nil
		}
	}
	return ScopeNone, fmt.Errorf("%w: %q", ErrUnknownScope, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s BlockingScope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownScope, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *BlockingScope) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockingScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
