package application

import "fmt"

// ResourceProvider looks up localized strings. Format arguments are applied
// with fmt.Sprintf semantics.
type ResourceProvider interface {
	String(key string, args ...any) (string, bool)
}

// MapResources is a ResourceProvider backed by a map.
type MapResources map[string]string

// String returns the formatted value for key.
func (m MapResources) String(key string, args ...any) (string, bool) {
	format, ok := m[key]
	if !ok {
		return "", false
	}
	if len(args) == 0 {
		return format, true
	}
	return fmt.Sprintf(format, args...), true
}
