package cache

import (
	"context"
	"slices"
	"sync"

	"github.com/jonwraymond/nodecache/value"
)

// Manager is a plugin-local view over a shared Store.
//
// It builds keys scoped to one plugin id and keeps an ordered, duplicate-free
// set of the keys it has stored. The set mirrors what the plugin believes is
// live; the Store remains the source of truth and may drop entries on its own.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Ownership: the managed key set holds identities only, never payloads.
type Manager struct {
	pluginID string

	mu    sync.Mutex
	keys  []Key
	index map[Key]struct{}
}

// NewManager creates a Manager for pluginID.
func NewManager(pluginID string) *Manager {
	return &Manager{
		pluginID: pluginID,
		index:    make(map[Key]struct{}),
	}
}

// PluginID returns the plugin the manager is scoped to.
func (m *Manager) PluginID() string {
	return m.pluginID
}

// CreateKey builds a single-stage key for this plugin.
func (m *Manager) CreateKey(nodeID uint32, port int) Key {
	return NewKey(m.pluginID, nodeID, port)
}

// CreateStageKey builds a staged key for this plugin.
func (m *Manager) CreateStageKey(nodeID uint32, stage string, port int) Key {
	return NewStageKey(m.pluginID, nodeID, stage, port)
}

// Store inserts v into s and records key only if the insert succeeded.
func (m *Manager) Store(ctx context.Context, s Store, key Key, v value.Value) error {
	if s == nil {
		return ErrNilStore
	}
	if err := s.Insert(ctx, key, v); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[key]; !ok {
		m.index[key] = struct{}{}
		m.keys = append(m.keys, key)
	}
	return nil
}

// Get fetches key from s. It does not consult or alter the managed key set.
func (m *Manager) Get(ctx context.Context, s Store, key Key) (value.Value, bool) {
	if s == nil {
		return nil, false
	}
	return s.Get(ctx, key)
}

// InvalidateNode removes every entry of nodeID from s and prunes the matching
// managed keys. It returns the store's removal count.
func (m *Manager) InvalidateNode(ctx context.Context, s Store, nodeID uint32) int {
	return m.invalidate(ctx, s, ByNode(m.pluginID, nodeID))
}

// InvalidateStage removes every entry of one stage of nodeID from s and prunes
// the matching managed keys. It returns the store's removal count.
func (m *Manager) InvalidateStage(ctx context.Context, s Store, nodeID uint32, stage string) int {
	return m.invalidate(ctx, s, ByStage(m.pluginID, nodeID, stage))
}

func (m *Manager) invalidate(ctx context.Context, s Store, p Pattern) int {
	removed := 0
	if s != nil {
		removed = s.Invalidate(ctx, p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = slices.DeleteFunc(m.keys, func(k Key) bool {
		if p.Matches(k) {
			delete(m.index, k)
			return true
		}
		return false
	})
	return removed
}

// ClearAll clears every entry of the plugin from s and empties the managed key
// set. The returned count comes from the store and can differ from the number
// of keys the manager was tracking.
func (m *Manager) ClearAll(ctx context.Context, s Store) int {
	removed := 0
	if s != nil {
		removed = s.ClearPlugin(ctx, m.pluginID)
	}

	m.mu.Lock()
	m.keys = nil
	clear(m.index)
	m.mu.Unlock()
	return removed
}

// Statistics returns the store's statistics for this plugin.
func (m *Manager) Statistics(ctx context.Context, s Store) Statistics {
	if s == nil {
		return Statistics{PluginID: m.pluginID}
	}
	return s.PluginStatistics(ctx, m.pluginID)
}

// ManagedKeyCount returns the number of keys in the managed set.
func (m *Manager) ManagedKeyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// ManagedKeys returns a copy of the managed set in insertion order.
func (m *Manager) ManagedKeys() []Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.keys)
}
