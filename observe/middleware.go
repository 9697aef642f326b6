package observe

import (
	"context"
	"time"
)

// CallFunc is one hook or process call on a node.
type CallFunc func(ctx context.Context) error

// Middleware wraps node calls with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the span is carried in the ctx passed to the wrapped call.
//   - Errors: errors from the wrapped call are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// Invoke runs fn as operation op on the node. Failures are logged at warn
// level.
func (m *Middleware) Invoke(ctx context.Context, meta NodeMeta, op string, fn CallFunc) error {
	return m.invoke(ctx, meta, op, fn, false)
}

// InvokeFatal is Invoke for calls whose failure aborts the node's execution.
// A failure is logged once, at error level.
func (m *Middleware) InvokeFatal(ctx context.Context, meta NodeMeta, op string, fn CallFunc) error {
	return m.invoke(ctx, meta, op, fn, true)
}

func (m *Middleware) invoke(ctx context.Context, meta NodeMeta, op string, fn CallFunc, fatal bool) error {
	ctx, span := m.tracer.StartSpan(ctx, meta, op)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	m.tracer.EndSpan(span, err)
	m.metrics.RecordCall(ctx, meta, op, duration, err)

	log := m.logger.WithNode(meta)
	fields := []Field{
		{Key: "op", Value: op},
		{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
	}
	switch {
	case err != nil && fatal:
		log.Error(ctx, "node execution aborted", append(fields, Field{Key: "error", Value: err})...)
	case err != nil:
		log.Warn(ctx, "node call failed", append(fields, Field{Key: "error", Value: err})...)
	default:
		log.Debug(ctx, "node call completed", fields...)
	}
	return err
}
