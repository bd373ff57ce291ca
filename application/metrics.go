package application

import "time"

// Outcome labels the terminal path a task took.
type Outcome string

const (
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeFailed      Outcome = "failed"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomePanicked    Outcome = "panicked"
)

// Metrics receives task level measurements. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	// RecordTaskOutcome is called once per task from its done callback.
	RecordTaskOutcome(outcome Outcome, scope BlockingScope, executionDuration time.Duration)

	// RecordBlockingDepth is called after every block and unblock with the
	// counter of the affected target.
	RecordBlockingDepth(scope BlockingScope, depth int)

	// RecordRegisteredTasks is called whenever the service task list changes.
	RecordRegisteredTasks(count int)
}

// NilMetrics discards everything.
type NilMetrics struct{}

func (NilMetrics) RecordTaskOutcome(outcome Outcome, scope BlockingScope, d time.Duration) {}
func (NilMetrics) RecordBlockingDepth(scope BlockingScope, depth int)                     {}
func (NilMetrics) RecordRegisteredTasks(count int)                                        {}
