package cache

import (
	"context"
	"encoding/binary"
	"math/bits"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/jonwraymond/nodecache/value"
)

// MemoryStore is an unbounded in-memory Store sharded by key hash.
//
// Each shard is guarded by its own RWMutex, so single-key operations on
// different shards never contend. Pattern invalidation locks one shard at a
// time; a concurrent reader may observe some matching keys removed and others
// not yet removed.
type MemoryStore struct {
	shards  []*shard
	mask    uint64
	tracker *tracker
}

type shard struct {
	mu      sync.RWMutex
	entries map[Key][]byte
}

// NewMemoryStore creates a sharded in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	n := o.shards
	if n <= 0 {
		n = DefaultShards
	}
	n = 1 << bits.Len(uint(n-1))

	s := &MemoryStore{
		shards:  make([]*shard, n),
		mask:    uint64(n - 1),
		tracker: newTracker(o.recorder),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[Key][]byte)}
	}
	return s
}

func (s *MemoryStore) shardFor(key Key) *shard {
	return s.shards[hashKey(key)&s.mask]
}

func hashKey(key Key) uint64 {
	var buf [12]byte
	d := xxhash.New()
	_, _ = d.WriteString(key.PluginID)
	binary.LittleEndian.PutUint32(buf[0:4], key.NodeID)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(key.Port))
	_, _ = d.Write(buf[:])
	if stage, ok := key.Stage(); ok {
		_, _ = d.Write([]byte{1})
		_, _ = d.WriteString(stage)
	}
	return d.Sum64()
}

// Insert stores v under key, replacing any previous value.
func (s *MemoryStore) Insert(ctx context.Context, key Key, v value.Value) error {
	payload, err := s.tracker.encode(ctx, key, v)
	if err != nil {
		return err
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.entries[key] = payload
	sh.mu.Unlock()
	return nil
}

// Get returns the value for key. Returns (nil, false) on miss.
func (s *MemoryStore) Get(ctx context.Context, key Key) (value.Value, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	payload, ok := sh.entries[key]
	sh.mu.RUnlock()
	return s.tracker.decode(ctx, key, payload, ok)
}

// Take returns and removes the value for key.
func (s *MemoryStore) Take(ctx context.Context, key Key) (value.Value, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	payload, ok := sh.entries[key]
	delete(sh.entries, key)
	sh.mu.Unlock()
	return s.tracker.decode(ctx, key, payload, ok)
}

// Contains reports whether key is present.
func (s *MemoryStore) Contains(_ context.Context, key Key) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	_, ok := sh.entries[key]
	sh.mu.RUnlock()
	return ok
}

// Invalidate removes every entry matching pattern.
func (s *MemoryStore) Invalidate(ctx context.Context, pattern Pattern) int {
	if pattern.Kind() == PatternExact {
		sh := s.shardFor(pattern.exact)
		sh.mu.Lock()
		_, ok := sh.entries[pattern.exact]
		delete(sh.entries, pattern.exact)
		sh.mu.Unlock()
		if !ok {
			return 0
		}
		s.tracker.invalidated(ctx, pattern.PluginID(), 1)
		return 1
	}

	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key := range sh.entries {
			if pattern.Matches(key) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	s.tracker.invalidated(ctx, pattern.PluginID(), removed)
	return removed
}

// ClearPlugin removes every entry owned by the plugin.
func (s *MemoryStore) ClearPlugin(ctx context.Context, pluginID string) int {
	return s.Invalidate(ctx, ByPlugin(pluginID))
}

// PluginStatistics returns aggregate statistics for the plugin.
func (s *MemoryStore) PluginStatistics(_ context.Context, pluginID string) Statistics {
	stats := s.tracker.statistics(pluginID)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for key, payload := range sh.entries {
			if key.PluginID == pluginID {
				stats.count(key, len(payload))
			}
		}
		sh.mu.RUnlock()
	}
	return stats
}

// PluginKeys returns the plugin's live keys in CompareKeys order.
func (s *MemoryStore) PluginKeys(_ context.Context, pluginID string) []Key {
	var keys []Key
	for _, sh := range s.shards {
		sh.mu.RLock()
		for key := range sh.entries {
			if key.PluginID == pluginID {
				keys = append(keys, key)
			}
		}
		sh.mu.RUnlock()
	}
	slices.SortFunc(keys, CompareKeys)
	return keys
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// EstimatedBytes returns the total encoded payload size.
func (s *MemoryStore) EstimatedBytes() int64 {
	var n int64
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, payload := range sh.entries {
			n += int64(len(payload))
		}
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn for each live entry until fn returns false.
func (s *MemoryStore) Range(_ context.Context, fn func(Key, value.Value) bool) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		entries := make(map[Key][]byte, len(sh.entries))
		for k, p := range sh.entries {
			entries[k] = p
		}
		sh.mu.RUnlock()

		for k, p := range entries {
			v, err := value.Unmarshal(p)
			if err != nil {
				continue
			}
			if !fn(k, v) {
				return
			}
		}
	}
}

// Ensure MemoryStore implements Store, Sizer and Ranger.
var (
	_ Store  = (*MemoryStore)(nil)
	_ Sizer  = (*MemoryStore)(nil)
	_ Ranger = (*MemoryStore)(nil)
)
