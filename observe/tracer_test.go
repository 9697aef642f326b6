package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingTracer() (Tracer, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return NewTracer(tp.Tracer("test")), sr
}

func spanAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNodeMeta(t *testing.T) {
	m := NodeMeta{PluginID: "usd", NodeID: 4}
	if got := m.SpanName("before_execution"); got != "node.before_execution" {
		t.Errorf("SpanName = %q", got)
	}
	if got := m.String(); got != "usd/4" {
		t.Errorf("String = %q", got)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate = %v", err)
	}
	if err := (NodeMeta{NodeID: 1}).Validate(); !errors.Is(err, ErrMissingPluginID) {
		t.Errorf("Validate = %v, want ErrMissingPluginID", err)
	}
}

func TestTracer_SpanAttributes(t *testing.T) {
	tracer, sr := recordingTracer()
	meta := NodeMeta{PluginID: "usd", NodeID: 4, NodeType: "usd.loader", Stage: "load"}

	_, span := tracer.StartSpan(context.Background(), meta, "process")
	tracer.EndSpan(span, nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "node.process" {
		t.Errorf("name = %q", s.Name())
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}

	want := map[string]attribute.Value{
		"plugin.id":  attribute.StringValue("usd"),
		"node.id":    attribute.Int64Value(4),
		"node.op":    attribute.StringValue("process"),
		"node.type":  attribute.StringValue("usd.loader"),
		"node.stage": attribute.StringValue("load"),
	}
	for key, v := range want {
		got, ok := spanAttr(s.Attributes(), key)
		if !ok || got != v {
			t.Errorf("attribute %s = %v, want %v", key, got.Emit(), v.Emit())
		}
	}
}

func TestTracer_OptionalAttributesOmitted(t *testing.T) {
	tracer, sr := recordingTracer()
	_, span := tracer.StartSpan(context.Background(), NodeMeta{PluginID: "math"}, "process")
	tracer.EndSpan(span, nil)

	attrs := sr.Ended()[0].Attributes()
	for _, key := range []string{"node.type", "node.stage"} {
		if _, ok := spanAttr(attrs, key); ok {
			t.Errorf("attribute %s should be omitted", key)
		}
	}
}

func TestTracer_ErrorStatus(t *testing.T) {
	tracer, sr := recordingTracer()
	_, span := tracer.StartSpan(context.Background(), NodeMeta{PluginID: "math"}, "before_execution")
	tracer.EndSpan(span, errors.New("missing input"))

	s := sr.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "missing input" {
		t.Errorf("status = %+v", s.Status())
	}
	if v, ok := spanAttr(s.Attributes(), "node.error"); !ok || !v.AsBool() {
		t.Error("node.error attribute should be true")
	}
	if len(s.Events()) == 0 {
		t.Error("error should be recorded as an event")
	}
}

func TestNoopTracer(t *testing.T) {
	tracer := NewNoopTracer()
	_, span := tracer.StartSpan(context.Background(), NodeMeta{PluginID: "noop"}, "process")
	tracer.EndSpan(span, errors.New("ignored"))

	if _, ok := NewTracer(nil).(*noopTracer); !ok {
		t.Error("NewTracer(nil) should return the noop tracer")
	}
}
