package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/nodecache/value"
)

// tracker holds the per-plugin access counters every Store implementation
// reports in Statistics. Entry counts and memory are derived from live entries
// at read time and are not tracked here.
type tracker struct {
	mu       sync.RWMutex
	plugins  map[string]*counters
	recorder Recorder
}

type counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

func newTracker(r Recorder) *tracker {
	return &tracker{
		plugins:  make(map[string]*counters),
		recorder: r,
	}
}

func (t *tracker) forPlugin(pluginID string) *counters {
	t.mu.RLock()
	c, ok := t.plugins[pluginID]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.plugins[pluginID]; ok {
		return c
	}
	c = &counters{}
	t.plugins[pluginID] = c
	return c
}

func (t *tracker) hit(ctx context.Context, pluginID string) {
	t.forPlugin(pluginID).hits.Add(1)
	t.recorder.RecordHit(ctx, pluginID)
}

func (t *tracker) miss(ctx context.Context, pluginID string) {
	t.forPlugin(pluginID).misses.Add(1)
	t.recorder.RecordMiss(ctx, pluginID)
}

func (t *tracker) invalidated(ctx context.Context, pluginID string, n int) {
	if n == 0 {
		return
	}
	t.forPlugin(pluginID).invalidations.Add(int64(n))
	t.recorder.RecordInvalidation(ctx, pluginID, n)
}

func (t *tracker) storeError(ctx context.Context, pluginID string, err error) {
	t.recorder.RecordStoreError(ctx, pluginID, err)
}

// statistics seeds a Statistics value with the plugin's access counters.
func (t *tracker) statistics(pluginID string) Statistics {
	s := Statistics{PluginID: pluginID}
	t.mu.RLock()
	c, ok := t.plugins[pluginID]
	t.mu.RUnlock()
	if ok {
		s.Hits = c.hits.Load()
		s.Misses = c.misses.Load()
		s.Invalidations = c.invalidations.Load()
	}
	return s
}

// encode serializes v for storage, reporting failures to the tracker.
func (t *tracker) encode(ctx context.Context, key Key, v value.Value) ([]byte, error) {
	if v == nil {
		t.storeError(ctx, key.PluginID, ErrNilValue)
		return nil, ErrNilValue
	}
	payload, err := value.Marshal(v)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrSerialization, key, err)
		t.storeError(ctx, key.PluginID, err)
		return nil, err
	}
	return payload, nil
}

// decode turns a stored payload into a fresh Value, recording a hit or miss.
// A payload that no longer decodes is reported as a miss.
func (t *tracker) decode(ctx context.Context, key Key, payload []byte, ok bool) (value.Value, bool) {
	if !ok {
		t.miss(ctx, key.PluginID)
		return nil, false
	}
	v, err := value.Unmarshal(payload)
	if err != nil {
		t.storeError(ctx, key.PluginID, err)
		t.miss(ctx, key.PluginID)
		return nil, false
	}
	t.hit(ctx, key.PluginID)
	return v, true
}
