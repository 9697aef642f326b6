package observe

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// NodeMeta identifies a plugin node for telemetry purposes.
type NodeMeta struct {
	PluginID string // owning plugin (required)
	NodeID   uint32
	NodeType string // factory type id (optional)
	Stage    string // pipeline stage (optional)
}

// SpanName returns the span name for op on this node: node.<op>.
func (m NodeMeta) SpanName(op string) string {
	return "node." + op
}

// String renders the node as <plugin>/<node>.
func (m NodeMeta) String() string {
	return m.PluginID + "/" + strconv.FormatUint(uint64(m.NodeID), 10)
}

// Validate reports whether the metadata can label telemetry.
func (m NodeMeta) Validate() error {
	if m.PluginID == "" {
		return ErrMissingPluginID
	}
	return nil
}

func (m NodeMeta) attributes(op string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("plugin.id", m.PluginID),
		attribute.Int64("node.id", int64(m.NodeID)),
		attribute.String("node.op", op),
	}
	if m.NodeType != "" {
		attrs = append(attrs, attribute.String("node.type", m.NodeType))
	}
	if m.Stage != "" {
		attrs = append(attrs, attribute.String("node.stage", m.Stage))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with node-scoped span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for op on the node.
	StartSpan(ctx context.Context, meta NodeMeta, op string) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NewNoopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta NodeMeta, op string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(op),
		trace.WithAttributes(meta.attributes(op)...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("node.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NewNoopTracer returns a tracer that records nothing.
func NewNoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta NodeMeta, op string) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName(op))
}

func (t *noopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}
