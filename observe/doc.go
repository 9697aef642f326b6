// Package observe provides observability primitives for node execution and
// cache activity.
//
// It wires OpenTelemetry tracing and metrics and zap-backed structured logging.
// CacheMetrics plugs into a cache.Store as its cache.Recorder; Middleware wraps
// hook and process calls with a span, metrics, and a log line.
package observe
