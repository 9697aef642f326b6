// Package multiply is a single-stage cached plugin: one node type that scales
// a Float input by a factor parameter and caches the product per node.
//
// The cached product depends on the input and the factor, but its key only
// names the node and port, so the node's hooks invalidate it whenever either
// may have changed: a new input value, an edited factor, or a rewired input.
package multiply

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/hooks"
	"github.com/jonwraymond/nodecache/plugin"
	"github.com/jonwraymond/nodecache/value"
)

const (
	PluginID    = "math"
	NodeType    = "math.multiply"
	InputPort   = "value"
	OutputPort  = "result"
	ParamFactor = "factor"

	resultPort = 0
)

// Plugin registers the multiply node type.
type Plugin struct{}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{}
}

func (*Plugin) Info() plugin.Info {
	return plugin.Info{
		Name:              PluginID,
		Version:           "1.0.0",
		Author:            "nodecache",
		Description:       "Cached scalar multiplication",
		CompatibleVersion: "0.1",
	}
}

func (*Plugin) RegisterNodes(r plugin.Registrar) error {
	return r.RegisterNodeFactory(factory{})
}

type factory struct{}

func (factory) Metadata() plugin.NodeMetadata {
	return plugin.NodeMetadata{
		TypeID:      NodeType,
		DisplayName: "Multiply",
		Description: "Multiplies the input by the factor parameter",
		Category:    []string{"Math"},
		Inputs:      []plugin.Port{{Name: InputPort, Kind: value.KindFloat, Optional: true}},
		Outputs:     []plugin.Port{{Name: OutputPort, Kind: value.KindFloat}},
	}
}

func (factory) CreateNode(env plugin.Env) (plugin.Node, error) {
	if env.Store == nil {
		return nil, plugin.NewError(plugin.KindInit, "%s node %d has no cache store", NodeType, env.NodeID)
	}
	return &Node{env: env, cache: cache.NewSingleStage(env.PluginID), factor: 1}, nil
}

// Node is one multiply node.
type Node struct {
	env   plugin.Env
	cache *cache.SingleStage

	mu     sync.RWMutex
	factor float32

	computations atomic.Int64
}

// Process returns input × factor, from cache when possible. A missing input
// counts as zero.
func (n *Node) Process(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error) {
	in, _ := inputs[InputPort].(value.Float)
	factor := n.Factor()

	v, err := n.cache.GetOrCompute(ctx, n.env.Store, n.env.NodeID, resultPort, func(context.Context) (value.Value, error) {
		n.computations.Add(1)
		return value.Float(float32(in) * factor), nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]value.Value{OutputPort: v}, nil
}

// Factor returns the current factor.
func (n *Node) Factor() float32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.factor
}

// Computations returns how many times the product was actually computed.
func (n *Node) Computations() int64 {
	return n.computations.Load()
}

func (n *Node) Parameter(name string) (value.Value, bool) {
	if name != ParamFactor {
		return nil, false
	}
	return value.Float(n.Factor()), true
}

func (n *Node) SetParameter(name string, v value.Value) error {
	if name != ParamFactor {
		return fmt.Errorf("%s: unknown parameter %q", NodeType, name)
	}
	f, ok := v.(value.Float)
	if !ok {
		return fmt.Errorf("%s: parameter %q must be Float, got %s", NodeType, name, kindOf(v))
	}
	n.mu.Lock()
	n.factor = float32(f)
	n.mu.Unlock()
	return nil
}

func (n *Node) ExecutionHooks() hooks.Hooks {
	return &Hooks{cache: n.cache, store: n.env.Store}
}

func kindOf(v value.Value) value.Kind {
	if v == nil {
		return value.KindNone
	}
	return v.Kind()
}

// Hooks keeps a multiply node's cached product coherent with its inputs.
type Hooks struct {
	hooks.Base

	cache *cache.SingleStage
	store cache.Store

	last    float32
	hasLast bool
}

// BeforeExecution rejects non-Float input and drops the cached product when
// the input value changed since the last execution.
func (h *Hooks) BeforeExecution(ctx context.Context, nodeID uint32, inputs map[string]value.Value) error {
	in, ok := inputs[InputPort]
	if !ok {
		in = value.Float(0)
	}
	f, ok := in.(value.Float)
	if !ok {
		return fmt.Errorf("input %q must be Float, got %s", InputPort, kindOf(in))
	}
	if h.hasLast && float32(f) != h.last {
		h.cache.Invalidate(ctx, h.store, nodeID)
	}
	h.last, h.hasLast = float32(f), true
	return nil
}

func (h *Hooks) OnParameterChanged(ctx context.Context, nodeID uint32, name string, _, _ value.Value) error {
	if name == ParamFactor {
		h.cache.Invalidate(ctx, h.store, nodeID)
	}
	return nil
}

func (h *Hooks) OnInputConnectionAdded(ctx context.Context, nodeID uint32, _ string, _ uint32) error {
	h.cache.Invalidate(ctx, h.store, nodeID)
	return nil
}

func (h *Hooks) OnInputConnectionRemoved(ctx context.Context, nodeID uint32, _ string, _ uint32) error {
	h.cache.Invalidate(ctx, h.store, nodeID)
	h.hasLast = false
	return nil
}

func (h *Hooks) OnNodeRemoved(ctx context.Context, nodeID uint32) error {
	h.cache.Invalidate(ctx, h.store, nodeID)
	return nil
}

// Duplicate returns a copy that shares the node's cache but tracks inputs on
// its own.
func (h *Hooks) Duplicate() hooks.Hooks {
	dup := *h
	return &dup
}

var (
	_ plugin.Plugin       = (*Plugin)(nil)
	_ plugin.HookProvider = (*Node)(nil)
	_ hooks.Hooks         = (*Hooks)(nil)
)
