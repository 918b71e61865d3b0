// Package tracing records the stages of a request and how long each took.
// Stages are reported through slog; there is no exporter.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Stage is one completed step of a trace.
type Stage struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Trace collects the stages of one request. It is safe for concurrent use.
// A disabled Trace records nothing.
type Trace struct {
	name    string
	start   time.Time
	enabled bool

	mu     sync.Mutex
	stages []Stage
}

// NewTrace creates a trace for the named operation.
func NewTrace(name string, enabled bool) *Trace {
	return &Trace{
		name:    name,
		start:   time.Now(),
		enabled: enabled,
	}
}

// Start begins a stage and returns the function that ends it.
//
//	end := trace.Start("resolve")
//	res, err := resolve()
//	end(err)
func (t *Trace) Start(name string) func(err error) {
	if t == nil || !t.enabled {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		t.mu.Lock()
		t.stages = append(t.stages, Stage{Name: name, Duration: time.Since(start), Err: err})
		t.mu.Unlock()
	}
}

// Run wraps fn in a stage.
func (t *Trace) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	end := t.Start(name)
	err := fn(ctx)
	end(err)
	return err
}

// Stages returns the completed stages in completion order.
func (t *Trace) Stages() []Stage {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Stage(nil), t.stages...)
}

// Attr renders the trace as a log group: total and per-stage milliseconds,
// plus the first failing stage if any.
func (t *Trace) Attr() slog.Attr {
	if t == nil {
		return slog.Attr{}
	}
	stages := t.Stages()
	attrs := make([]any, 0, len(stages)+2)
	attrs = append(attrs, slog.Int64("total_ms", time.Since(t.start).Milliseconds()))
	failed := ""
	for _, s := range stages {
		attrs = append(attrs, slog.Int64(s.Name+"_ms", s.Duration.Milliseconds()))
		if s.Err != nil && failed == "" {
			failed = s.Name
		}
	}
	if failed != "" {
		attrs = append(attrs, slog.String("failed_stage", failed))
	}
	return slog.Group(t.name, attrs...)
}

type traceKey struct{}

// ToContext stores the trace in ctx.
func ToContext(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// FromContext returns the trace in ctx, or a disabled one.
func FromContext(ctx context.Context) *Trace {
	if t, ok := ctx.Value(traceKey{}).(*Trace); ok {
		return t
	}
	return &Trace{}
}
