package cache

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/nodecache/value"
)

// ComputeFunc produces a value on a cache miss.
type ComputeFunc func(ctx context.Context) (value.Value, error)

// SingleStage caches one output per node port.
//
// It is built only on Manager's public methods.
type SingleStage struct {
	manager *Manager
	group   singleflight.Group
}

// NewSingleStage creates a single-stage strategy for pluginID.
func NewSingleStage(pluginID string) *SingleStage {
	return &SingleStage{manager: NewManager(pluginID)}
}

// Manager returns the underlying manager.
func (s *SingleStage) Manager() *Manager {
	return s.manager
}

// GetCached returns the cached output for nodeID and port.
func (s *SingleStage) GetCached(ctx context.Context, st Store, nodeID uint32, port int) (value.Value, bool) {
	return s.manager.Get(ctx, st, s.manager.CreateKey(nodeID, port))
}

// StoreResult caches v as the output for nodeID and port.
func (s *SingleStage) StoreResult(ctx context.Context, st Store, nodeID uint32, port int, v value.Value) error {
	return s.manager.Store(ctx, st, s.manager.CreateKey(nodeID, port), v)
}

// Invalidate drops every cached output of nodeID.
func (s *SingleStage) Invalidate(ctx context.Context, st Store, nodeID uint32) int {
	return s.manager.InvalidateNode(ctx, st, nodeID)
}

// GetOrCompute returns the cached output for nodeID and port, calling compute
// on a miss. Concurrent misses for the same key share one compute call.
// A failed insert leaves the value uncached and is not reported as an error;
// a nil result from compute is reported as ErrNilValue.
func (s *SingleStage) GetOrCompute(ctx context.Context, st Store, nodeID uint32, port int, compute ComputeFunc) (value.Value, error) {
	key := s.manager.CreateKey(nodeID, port)
	return getOrCompute(ctx, &s.group, s.manager, st, key, compute)
}

// MultiStage caches each named stage of a node pipeline independently.
//
// Invalidating one stage never touches another; callers that need downstream
// stages dropped call InvalidateStage for each of them or InvalidateAllStages.
type MultiStage struct {
	manager *Manager
	group   singleflight.Group
}

// NewMultiStage creates a multi-stage strategy for pluginID.
func NewMultiStage(pluginID string) *MultiStage {
	return &MultiStage{manager: NewManager(pluginID)}
}

// Manager returns the underlying manager.
func (s *MultiStage) Manager() *Manager {
	return s.manager
}

// GetStageCached returns the cached output of stage for nodeID and port.
func (s *MultiStage) GetStageCached(ctx context.Context, st Store, nodeID uint32, stage string, port int) (value.Value, bool) {
	return s.manager.Get(ctx, st, s.manager.CreateStageKey(nodeID, stage, port))
}

// StoreStageResult caches v as the output of stage for nodeID and port.
func (s *MultiStage) StoreStageResult(ctx context.Context, st Store, nodeID uint32, stage string, port int, v value.Value) error {
	return s.manager.Store(ctx, st, s.manager.CreateStageKey(nodeID, stage, port), v)
}

// InvalidateStage drops every cached port of one stage of nodeID.
func (s *MultiStage) InvalidateStage(ctx context.Context, st Store, nodeID uint32, stage string) int {
	return s.manager.InvalidateStage(ctx, st, nodeID, stage)
}

// InvalidateAllStages drops every cached stage of nodeID.
func (s *MultiStage) InvalidateAllStages(ctx context.Context, st Store, nodeID uint32) int {
	return s.manager.InvalidateNode(ctx, st, nodeID)
}

// GetOrComputeStage is GetOrCompute for one stage.
func (s *MultiStage) GetOrComputeStage(ctx context.Context, st Store, nodeID uint32, stage string, port int, compute ComputeFunc) (value.Value, error) {
	key := s.manager.CreateStageKey(nodeID, stage, port)
	return getOrCompute(ctx, &s.group, s.manager, st, key, compute)
}

func getOrCompute(ctx context.Context, g *singleflight.Group, m *Manager, st Store, key Key, compute ComputeFunc) (value.Value, error) {
	if v, ok := m.Get(ctx, st, key); ok {
		return v, nil
	}

	res, err, shared := g.Do(key.String(), func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, ErrNilValue
		}
		// Storage failure means uncached, not failed.
		_ = m.Store(ctx, st, key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}

	v, _ := res.(value.Value)
	if shared && v != nil {
		if c, cerr := value.Clone(v); cerr == nil {
			v = c
		}
	}
	return v, nil
}
