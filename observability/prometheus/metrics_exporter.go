package prometheus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Swind/go-ui-tasks/application"
	"github.com/Swind/go-ui-tasks/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics and application.Metrics to Prometheus
// collectors. Pass it to application.WithMetrics to get both.
type MetricsExporter struct {
	jobDurationSeconds  *prom.HistogramVec
	jobPanicTotal       *prom.CounterVec
	jobRejectedTotal    *prom.CounterVec
	queueDepth          *prom.GaugeVec
	taskOutcomeTotal    *prom.CounterVec
	taskDurationSeconds *prom.HistogramVec
	blockingDepth       *prom.GaugeVec
	registeredTasks     prom.Gauge
}

var (
	_ core.Metrics        = (*MetricsExporter)(nil)
	_ application.Metrics = (*MetricsExporter)(nil)
)

// NewMetricsExporter creates and registers the collectors. Registering twice
// on the same registry reuses the existing collectors.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "uitask"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	jobDuration := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Worker job execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"runner"})
	jobPanic := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_panic_total",
		Help:      "Total number of worker job panics.",
	}, []string{"runner"})
	jobRejected := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_rejected_total",
		Help:      "Total number of rejected worker jobs.",
	}, []string{"runner", "reason"})
	queueDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current worker queue depth.",
	}, []string{"runner"})
	outcome := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_outcome_total",
		Help:      "Finished tasks by outcome and blocking scope.",
	}, []string{"outcome", "scope"})
	taskDuration := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_execution_seconds",
		Help:      "Time from task start to its done callback.",
		Buckets:   buckets,
	}, []string{"scope"})
	blocking := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "blocking_depth",
		Help:      "Block counter of the most recently changed target per scope.",
	}, []string{"scope"})
	registered := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "registered_tasks",
		Help:      "Tasks executed and not yet done.",
	})

	var err error
	if jobDuration, err = registerCollector(reg, jobDuration); err != nil {
		return nil, err
	}
	if jobPanic, err = registerCollector(reg, jobPanic); err != nil {
		return nil, err
	}
	if jobRejected, err = registerCollector(reg, jobRejected); err != nil {
		return nil, err
	}
	if queueDepth, err = registerCollector(reg, queueDepth); err != nil {
		return nil, err
	}
	if outcome, err = registerCollector(reg, outcome); err != nil {
		return nil, err
	}
	if taskDuration, err = registerCollector(reg, taskDuration); err != nil {
		return nil, err
	}
	if blocking, err = registerCollector(reg, blocking); err != nil {
		return nil, err
	}
	if registered, err = registerCollector(reg, registered); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		jobDurationSeconds:  jobDuration,
		jobPanicTotal:       jobPanic,
		jobRejectedTotal:    jobRejected,
		queueDepth:          queueDepth,
		taskOutcomeTotal:    outcome,
		taskDurationSeconds: taskDuration,
		blockingDepth:       blocking,
		registeredTasks:     registered,
	}, nil
}

// RecordTaskDuration records worker job duration.
func (m *MetricsExporter) RecordTaskDuration(runnerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDurationSeconds.WithLabelValues(normalizeLabel(runnerName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records worker job panics.
func (m *MetricsExporter) RecordTaskPanic(runnerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.jobPanicTotal.WithLabelValues(normalizeLabel(runnerName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(runnerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(runnerName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records worker job rejections.
func (m *MetricsExporter) RecordTaskRejected(runnerName string, reason string) {
	if m == nil {
		return
	}
	m.jobRejectedTotal.WithLabelValues(normalizeLabel(runnerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordTaskOutcome counts a finished task and observes its execution time.
func (m *MetricsExporter) RecordTaskOutcome(outcome application.Outcome, scope application.BlockingScope, executionDuration time.Duration) {
	if m == nil {
		return
	}
	label := scopeLabel(scope)
	m.taskOutcomeTotal.WithLabelValues(normalizeLabel(string(outcome), "unknown"), label).Inc()
	if executionDuration > 0 {
		m.taskDurationSeconds.WithLabelValues(label).Observe(executionDuration.Seconds())
	}
}

// RecordBlockingDepth records the block counter of the changed target.
func (m *MetricsExporter) RecordBlockingDepth(scope application.BlockingScope, depth int) {
	if m == nil {
		return
	}
	m.blockingDepth.WithLabelValues(scopeLabel(scope)).Set(float64(depth))
}

// RecordRegisteredTasks records the size of the service task list.
func (m *MetricsExporter) RecordRegisteredTasks(count int) {
	if m == nil {
		return
	}
	m.registeredTasks.Set(float64(count))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func scopeLabel(scope application.BlockingScope) string {
	if !scope.Valid() {
		return "unknown"
	}
	return strings.ToLower(scope.String())
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
