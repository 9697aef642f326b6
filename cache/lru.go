package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/jonwraymond/nodecache/value"
)

// LRUStore is a Store bounded by entry count with least-recently-used
// eviction.
//
// Evictions happen on Insert without notifying any Manager, so a plugin's
// managed key set can list keys the store has already dropped.
type LRUStore struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[Key, []byte]
	bytes   int64
	tracker *tracker
}

// NewLRUStore creates an LRU store. WithMaxEntries is required.
func NewLRUStore(opts ...Option) (*LRUStore, error) {
	o := buildOptions(opts)
	if o.maxEntries <= 0 {
		return nil, fmt.Errorf("%w: lru store needs max entries > 0", ErrInvalidConfig)
	}

	s := &LRUStore{tracker: newTracker(o.recorder)}
	l, err := simplelru.NewLRU[Key, []byte](o.maxEntries, s.evicted)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.lru = l
	return s, nil
}

// evicted runs under s.mu for every entry leaving the list.
func (s *LRUStore) evicted(_ Key, payload []byte) {
	s.bytes -= int64(len(payload))
}

// Insert stores v under key, evicting the least recently used entry when full.
func (s *LRUStore) Insert(ctx context.Context, key Key, v value.Value) error {
	payload, err := s.tracker.encode(ctx, key, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.lru.Peek(key); ok {
		s.bytes -= int64(len(old))
	}
	s.lru.Add(key, payload)
	s.bytes += int64(len(payload))
	return nil
}

// Get returns the value for key and marks it recently used.
func (s *LRUStore) Get(ctx context.Context, key Key) (value.Value, bool) {
	s.mu.Lock()
	payload, ok := s.lru.Get(key)
	s.mu.Unlock()
	return s.tracker.decode(ctx, key, payload, ok)
}

// Take returns and removes the value for key.
func (s *LRUStore) Take(ctx context.Context, key Key) (value.Value, bool) {
	s.mu.Lock()
	payload, ok := s.lru.Peek(key)
	if ok {
		s.lru.Remove(key)
	}
	s.mu.Unlock()
	return s.tracker.decode(ctx, key, payload, ok)
}

// Contains reports whether key is present without touching recency.
func (s *LRUStore) Contains(_ context.Context, key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Contains(key)
}

// Invalidate removes every entry matching pattern.
func (s *LRUStore) Invalidate(ctx context.Context, pattern Pattern) int {
	s.mu.Lock()
	removed := 0
	for _, key := range s.lru.Keys() {
		if pattern.Matches(key) && s.lru.Remove(key) {
			removed++
		}
	}
	s.mu.Unlock()

	s.tracker.invalidated(ctx, pattern.PluginID(), removed)
	return removed
}

// ClearPlugin removes every entry owned by the plugin.
func (s *LRUStore) ClearPlugin(ctx context.Context, pluginID string) int {
	return s.Invalidate(ctx, ByPlugin(pluginID))
}

// PluginStatistics returns aggregate statistics for the plugin.
func (s *LRUStore) PluginStatistics(_ context.Context, pluginID string) Statistics {
	stats := s.tracker.statistics(pluginID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.lru.Keys() {
		if key.PluginID != pluginID {
			continue
		}
		if payload, ok := s.lru.Peek(key); ok {
			stats.count(key, len(payload))
		}
	}
	return stats
}

// PluginKeys returns the plugin's live keys in CompareKeys order.
func (s *LRUStore) PluginKeys(_ context.Context, pluginID string) []Key {
	s.mu.Lock()
	all := s.lru.Keys()
	s.mu.Unlock()

	keys := slices.DeleteFunc(all, func(k Key) bool { return k.PluginID != pluginID })
	slices.SortFunc(keys, CompareKeys)
	return keys
}

// Len returns the number of live entries.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// EstimatedBytes returns the total encoded payload size.
func (s *LRUStore) EstimatedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Range calls fn for each live entry, oldest first, until fn returns false.
func (s *LRUStore) Range(_ context.Context, fn func(Key, value.Value) bool) {
	s.mu.Lock()
	keys := s.lru.Keys()
	payloads := make([][]byte, 0, len(keys))
	for _, k := range keys {
		p, _ := s.lru.Peek(k)
		payloads = append(payloads, p)
	}
	s.mu.Unlock()

	for i, k := range keys {
		v, err := value.Unmarshal(payloads[i])
		if err != nil {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}

// Ensure LRUStore implements Store, Sizer and Ranger.
var (
	_ Store  = (*LRUStore)(nil)
	_ Sizer  = (*LRUStore)(nil)
	_ Ranger = (*LRUStore)(nil)
)
