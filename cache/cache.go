package cache

import (
	"context"
	"errors"

	"github.com/jonwraymond/nodecache/value"
)

// Sentinel errors for cache operations.
var (
	ErrNilStore      = errors.New("cache: store is nil")
	ErrNilValue      = errors.New("cache: value is nil")
	ErrSerialization = errors.New("cache: value could not be serialized")
	ErrInvalidConfig = errors.New("cache: invalid store configuration")
)

// Store is the host-owned keyed storage shared by all plugins.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use. For a single
// key, Insert, Get, Take, Contains and any Invalidate that could affect it are
// mutually atomic. No cross-key snapshot is promised.
// - Errors: only Insert fails, and only on host-side resource or serialization
// problems. Overwriting an existing key is legal. Lookups and invalidation never
// fail; absence and zero are valid results.
// - Ownership: the store owns the payload for the key's lifetime. Values returned
// by Get and Take are independent of the stored copy.
type Store interface {
	// Insert stores v under key, replacing any previous value.
	Insert(ctx context.Context, key Key, v value.Value) error

	// Get returns the current value for key.
	Get(ctx context.Context, key Key) (value.Value, bool)

	// Take returns and removes the value for key in one atomic step.
	Take(ctx context.Context, key Key) (value.Value, bool)

	// Contains reports whether key is present.
	Contains(ctx context.Context, key Key) bool

	// Invalidate removes every entry matching pattern and returns how many were removed.
	Invalidate(ctx context.Context, pattern Pattern) int

	// ClearPlugin is Invalidate(ByPlugin(pluginID)).
	ClearPlugin(ctx context.Context, pluginID string) int

	// PluginStatistics returns aggregate statistics for the plugin.
	PluginStatistics(ctx context.Context, pluginID string) Statistics

	// PluginKeys lists the plugin's live keys, for inspection only.
	PluginKeys(ctx context.Context, pluginID string) []Key
}

// Sizer reports store-wide occupancy.
type Sizer interface {
	// Len returns the number of live entries across all plugins.
	Len() int

	// EstimatedBytes returns the total encoded payload size across all plugins.
	EstimatedBytes() int64
}

// Ranger iterates over live entries.
type Ranger interface {
	// Range calls fn for each live entry until fn returns false. Iteration
	// order is unspecified and entries written concurrently may be missed.
	Range(ctx context.Context, fn func(Key, value.Value) bool)
}

// Recorder receives cache activity signals, typically to export metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic and must return quickly.
type Recorder interface {
	RecordHit(ctx context.Context, pluginID string)
	RecordMiss(ctx context.Context, pluginID string)
	RecordInvalidation(ctx context.Context, pluginID string, removed int)
	RecordStoreError(ctx context.Context, pluginID string, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordHit(context.Context, string)               {}
func (noopRecorder) RecordMiss(context.Context, string)              {}
func (noopRecorder) RecordInvalidation(context.Context, string, int) {}
func (noopRecorder) RecordStoreError(context.Context, string, error) {}

// Option configures a Store implementation.
type Option func(*options)

type options struct {
	shards     int
	maxEntries int
	maxBytes   int64
	recorder   Recorder
}

func buildOptions(opts []Option) options {
	o := options{
		shards:   DefaultShards,
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DefaultShards is the MemoryStore shard count when none is configured.
const DefaultShards = 16

// WithShards sets the MemoryStore shard count. It is rounded up to a power of two.
func WithShards(n int) Option {
	return func(o *options) {
		o.shards = n
	}
}

// WithMaxEntries bounds LRUStore and TinyLFUStore by entry count.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

// WithMaxBytes bounds TinyLFUStore by total encoded payload size.
func WithMaxBytes(n int64) Option {
	return func(o *options) {
		o.maxBytes = n
	}
}

// WithRecorder routes hit, miss, invalidation and error signals to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}
