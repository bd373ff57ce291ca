package application

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Swind/go-ui-tasks/config"
	"github.com/Swind/go-ui-tasks/core"
)

const testTimeout = 5 * time.Second

func newTestApp(t *testing.T, opts ...Option) *Application {
	t.Helper()
	cfg := config.Default()
	cfg.Pool = config.PoolConfig{CoreSize: 2, MaxSize: 4, KeepAlive: 100 * time.Millisecond}

	app, err := New(append([]Option{WithConfig(cfg)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
	return app
}

// onUI runs fn on the UI goroutine and waits for it.
func onUI(t *testing.T, app *Application, fn func()) {
	t.Helper()
	done := make(chan struct{})
	app.UI().PostTask(func(context.Context) {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("UI goroutine did not run the task")
	}
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(testTimeout):
		t.Fatalf("task %s did not finish", task)
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// eventLog records property events.
type eventLog struct {
	mu     sync.Mutex
	events []PropertyChangeEvent
}

func (l *eventLog) listener() PropertyChangeListener {
	return func(evt PropertyChangeEvent) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, evt)
	}
}

func (l *eventLog) all() []PropertyChangeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

func (l *eventLog) names() []string {
	var names []string
	for _, evt := range l.all() {
		names = append(names, evt.Property)
	}
	return names
}

func (l *eventLog) newValues(property string) []any {
	var values []any
	for _, evt := range l.all() {
		if evt.Property == property {
			values = append(values, evt.NewValue)
		}
	}
	return values
}

// recordingHandler runs body and records every callback it receives.
type recordingHandler struct {
	body func(ctx context.Context, task *Task) (any, error)

	mu     sync.Mutex
	calls  []string
	result any
	err    error
	chunks [][]any
}

func newRecordingHandler(body func(ctx context.Context, task *Task) (any, error)) *recordingHandler {
	return &recordingHandler{body: body}
}

func (h *recordingHandler) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *recordingHandler) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.calls)
}

func (h *recordingHandler) DoInBackground(ctx context.Context, task *Task) (any, error) {
	return h.body(ctx, task)
}

func (h *recordingHandler) Process(task *Task, chunks []any) {
	h.mu.Lock()
	h.chunks = append(h.chunks, chunks)
	h.mu.Unlock()
	h.record("process")
}

func (h *recordingHandler) Succeeded(task *Task, result any) {
	h.mu.Lock()
	h.result = result
	h.mu.Unlock()
	h.record("succeeded")
}

func (h *recordingHandler) Cancelled(task *Task) { h.record("cancelled") }

func (h *recordingHandler) Failed(task *Task, err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.record(fmt.Sprintf("failed:%v", err))
}

func (h *recordingHandler) Interrupted(task *Task, err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.record("interrupted")
}

func (h *recordingHandler) Finished(task *Task) { h.record("finished") }

// gate holds a task body until released.
type gate struct {
	started     chan struct{}
	release     chan struct{}
	startedOnce sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) body(result any) func(ctx context.Context, task *Task) (any, error) {
	return func(ctx context.Context, task *Task) (any, error) {
		g.startedOnce.Do(func() { close(g.started) })
		select {
		case <-g.release:
			return result, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (g *gate) open() { close(g.release) }

func returning(result any, err error) func(ctx context.Context, task *Task) (any, error) {
	return func(context.Context, *Task) (any, error) { return result, err }
}

// recordingLogger keeps every log line.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]any
}

func (l *recordingLogger) add(level, msg string, fields []core.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: m})
}

func (l *recordingLogger) Debug(msg string, fields ...core.Field) { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...core.Field)  { l.add("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...core.Field)  { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...core.Field) { l.add("error", msg, fields) }

func (l *recordingLogger) find(msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// recordingMetrics keeps task level measurements.
type recordingMetrics struct {
	mu         sync.Mutex
	outcomes   []Outcome
	depths     []int
	registered []int
}

func (m *recordingMetrics) RecordTaskOutcome(outcome Outcome, scope BlockingScope, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordBlockingDepth(scope BlockingScope, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = append(m.depths, depth)
}

func (m *recordingMetrics) RecordRegisteredTasks(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, count)
}

func (m *recordingMetrics) Outcomes() []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.outcomes)
}
