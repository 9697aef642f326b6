package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/nodecache/cache"
)

// Metrics records node operation metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one hook or process call with its duration and outcome.
	RecordCall(ctx context.Context, meta NodeMeta, op string, duration time.Duration, err error)
}

type metricsImpl struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates node call metrics on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	calls, err := meter.Int64Counter(
		"nodecache.node.calls",
		metric.WithDescription("Hook and process calls per node operation"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"nodecache.node.failures",
		metric.WithDescription("Hook and process calls that returned an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"nodecache.node.duration_ms",
		metric.WithDescription("Hook and process call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{calls: calls, failures: failures, duration: duration}, nil
}

func (m *metricsImpl) RecordCall(ctx context.Context, meta NodeMeta, op string, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("plugin.id", meta.PluginID),
		attribute.String("node.op", op),
	)

	m.calls.Add(ctx, 1, opt)
	if err != nil {
		m.failures.Add(ctx, 1, opt)
	}
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

type noopMetrics struct{}

// NewNoopMetrics returns metrics that record nothing.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) RecordCall(context.Context, NodeMeta, string, time.Duration, error) {}

// CacheMetrics exports store activity as OpenTelemetry counters. It satisfies
// cache.Recorder; pass it to a store with cache.WithRecorder.
type CacheMetrics struct {
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	invalidations metric.Int64Counter
	storeErrors   metric.Int64Counter
}

// NewCacheMetrics creates cache counters on meter.
func NewCacheMetrics(meter metric.Meter) (*CacheMetrics, error) {
	m := &CacheMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.hits, "nodecache.cache.hits", "Store lookups that found a value", "{hit}"},
		{&m.misses, "nodecache.cache.misses", "Store lookups that found nothing", "{miss}"},
		{&m.invalidations, "nodecache.cache.invalidations", "Entries removed by invalidation", "{entry}"},
		{&m.storeErrors, "nodecache.cache.store_errors", "Inserts rejected by the store", "{error}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

func pluginAttr(pluginID string) metric.AddOption {
	return metric.WithAttributes(attribute.String("plugin.id", pluginID))
}

// RecordHit implements cache.Recorder.
func (m *CacheMetrics) RecordHit(ctx context.Context, pluginID string) {
	m.hits.Add(ctx, 1, pluginAttr(pluginID))
}

// RecordMiss implements cache.Recorder.
func (m *CacheMetrics) RecordMiss(ctx context.Context, pluginID string) {
	m.misses.Add(ctx, 1, pluginAttr(pluginID))
}

// RecordInvalidation implements cache.Recorder.
func (m *CacheMetrics) RecordInvalidation(ctx context.Context, pluginID string, removed int) {
	m.invalidations.Add(ctx, int64(removed), pluginAttr(pluginID))
}

// RecordStoreError implements cache.Recorder.
func (m *CacheMetrics) RecordStoreError(ctx context.Context, pluginID string, _ error) {
	m.storeErrors.Add(ctx, 1, pluginAttr(pluginID))
}

var _ cache.Recorder = (*CacheMetrics)(nil)
