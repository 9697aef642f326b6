package cache

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/maypok86/otter/v2"

	"github.com/jonwraymond/nodecache/value"
)

// TinyLFUStore is a Store backed by an otter W-TinyLFU cache, bounded either
// by total encoded bytes (WithMaxBytes) or by entry count (WithMaxEntries).
//
// Eviction is decided by the admission policy and may lag Insert slightly, so
// an inserted key is not guaranteed to survive under memory pressure.
type TinyLFUStore struct {
	cache   *otter.Cache[Key, []byte]
	tracker *tracker
}

// NewTinyLFUStore creates a TinyLFU store. WithMaxBytes takes precedence over
// WithMaxEntries; one of them is required.
func NewTinyLFUStore(opts ...Option) (*TinyLFUStore, error) {
	o := buildOptions(opts)

	oo := &otter.Options[Key, []byte]{}
	switch {
	case o.maxBytes > 0:
		oo.MaximumWeight = uint64(o.maxBytes)
		oo.Weigher = weighPayload
	case o.maxEntries > 0:
		oo.MaximumSize = o.maxEntries
	default:
		return nil, fmt.Errorf("%w: tinylfu store needs max bytes or max entries > 0", ErrInvalidConfig)
	}

	c, err := otter.New(oo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &TinyLFUStore{cache: c, tracker: newTracker(o.recorder)}, nil
}

func weighPayload(_ Key, payload []byte) uint32 {
	if len(payload) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(len(payload))
}

// Insert stores v under key.
func (s *TinyLFUStore) Insert(ctx context.Context, key Key, v value.Value) error {
	payload, err := s.tracker.encode(ctx, key, v)
	if err != nil {
		return err
	}
	s.cache.Set(key, payload)
	return nil
}

// Get returns the value for key.
func (s *TinyLFUStore) Get(ctx context.Context, key Key) (value.Value, bool) {
	payload, ok := s.cache.GetIfPresent(key)
	return s.tracker.decode(ctx, key, payload, ok)
}

// Take returns and removes the value for key.
func (s *TinyLFUStore) Take(ctx context.Context, key Key) (value.Value, bool) {
	payload, ok := s.cache.Invalidate(key)
	return s.tracker.decode(ctx, key, payload, ok)
}

// Contains reports whether key is present.
func (s *TinyLFUStore) Contains(_ context.Context, key Key) bool {
	_, ok := s.cache.GetIfPresent(key)
	return ok
}

// Invalidate removes every entry matching pattern.
func (s *TinyLFUStore) Invalidate(ctx context.Context, pattern Pattern) int {
	removed := 0
	if pattern.Kind() == PatternExact {
		if _, ok := s.cache.Invalidate(pattern.exact); ok {
			removed = 1
		}
	} else {
		var matched []Key
		for key := range s.cache.All() {
			if pattern.Matches(key) {
				matched = append(matched, key)
			}
		}
		for _, key := range matched {
			if _, ok := s.cache.Invalidate(key); ok {
				removed++
			}
		}
	}
	s.tracker.invalidated(ctx, pattern.PluginID(), removed)
	return removed
}

// ClearPlugin removes every entry owned by the plugin.
func (s *TinyLFUStore) ClearPlugin(ctx context.Context, pluginID string) int {
	return s.Invalidate(ctx, ByPlugin(pluginID))
}

// PluginStatistics returns aggregate statistics for the plugin.
func (s *TinyLFUStore) PluginStatistics(_ context.Context, pluginID string) Statistics {
	stats := s.tracker.statistics(pluginID)
	for key, payload := range s.cache.All() {
		if key.PluginID == pluginID {
			stats.count(key, len(payload))
		}
	}
	return stats
}

// PluginKeys returns the plugin's live keys in CompareKeys order.
func (s *TinyLFUStore) PluginKeys(_ context.Context, pluginID string) []Key {
	var keys []Key
	for key := range s.cache.All() {
		if key.PluginID == pluginID {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, CompareKeys)
	return keys
}

// Len returns the approximate number of live entries.
func (s *TinyLFUStore) Len() int {
	return s.cache.EstimatedSize()
}

// EstimatedBytes returns the total encoded payload size.
func (s *TinyLFUStore) EstimatedBytes() int64 {
	var n int64
	for _, payload := range s.cache.All() {
		n += int64(len(payload))
	}
	return n
}

// Range calls fn for each live entry until fn returns false.
func (s *TinyLFUStore) Range(_ context.Context, fn func(Key, value.Value) bool) {
	for key, payload := range s.cache.All() {
		v, err := value.Unmarshal(payload)
		if err != nil {
			continue
		}
		if !fn(key, v) {
			return
		}
	}
}

// Ensure TinyLFUStore implements Store, Sizer and Ranger.
var (
	_ Store  = (*TinyLFUStore)(nil)
	_ Sizer  = (*TinyLFUStore)(nil)
	_ Ranger = (*TinyLFUStore)(nil)
)
