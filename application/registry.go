package application

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// BlockingRegistry reference-counts blocks per target and remembers the
// enabled state each target had before its first block.
//
// A target has a saved state iff its counter is positive. The registry is not
// synchronized: it is owned by the UI goroutine, the DefaultInputBlocker
// enforces that.
type BlockingRegistry struct {
	counters     map[uuid.UUID]int
	savedEnabled map[uuid.UUID]bool
	targets      map[uuid.UUID]Target
}

// BlockedTarget is one entry of Outstanding.
type BlockedTarget struct {
	Target  Target
	Counter int
}

// NewBlockingRegistry creates an empty registry.
func NewBlockingRegistry() *BlockingRegistry {
	return &BlockingRegistry{
		counters:     make(map[uuid.UUID]int),
		savedEnabled: make(map[uuid.UUID]bool),
		targets:      make(map[uuid.UUID]Target),
	}
}

// Block increments the counter of target and disables it. The enabled state is
// captured on the first block only. It returns the counter before the increment.
func (r *BlockingRegistry) Block(target Target) int {
	id := target.ID()
	old := r.counters[id]
	r.counters[id] = old + 1
	if old == 0 {
		r.savedEnabled[id] = target.Enabled()
		r.targets[id] = target
	}
	target.SetEnabled(false)
	return old
}

// Unblock decrements the counter of target. On zero the saved enabled state is
// restored and forgotten. Without an outstanding block it returns
// ErrUnbalancedUnblock and changes nothing.
func (r *BlockingRegistry) Unblock(target Target) (int, error) {
	id := target.ID()
	old, ok := r.counters[id]
	if !ok || old <= 0 {
		return 0, fmt.Errorf("%w: target %q", ErrUnbalancedUnblock, target.Name())
	}

	n := old - 1
	if n > 0 {
		r.counters[id] = n
		return n, nil
	}

	enabled := r.savedEnabled[id]
	delete(r.counters, id)
	delete(r.savedEnabled, id)
	delete(r.targets, id)
	target.SetEnabled(enabled)
	return 0, nil
}

// Counter returns the outstanding blocks on target.
func (r *BlockingRegistry) Counter(target Target) int {
	return r.counters[target.ID()]
}

// SavedEnabled returns the state captured at the first block of target.
func (r *BlockingRegistry) SavedEnabled(target Target) (enabled, ok bool) {
	enabled, ok = r.savedEnabled[target.ID()]
	return enabled, ok
}

// Outstanding lists every blocked target sorted by name.
func (r *BlockingRegistry) Outstanding() []BlockedTarget {
	out := make([]BlockedTarget, 0, len(r.counters))
	for id, n := range r.counters {
		out = append(out, BlockedTarget{Target: r.targets[id], Counter: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Target.Name() < out[j].Target.Name()
	})
	return out
}

// Len returns the number of blocked targets.
func (r *BlockingRegistry) Len() int {
	return len(r.counters)
}
