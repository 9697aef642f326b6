package hooks

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/nodecache/observe"
	"github.com/jonwraymond/nodecache/value"
)

// ProcessFunc computes a node's outputs from its inputs.
type ProcessFunc func(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error)

// WarningFunc receives non-fatal hook failures.
type WarningFunc func(ctx context.Context, err *HookError)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMiddleware wraps every hook and process call with m.
func WithMiddleware(m *observe.Middleware) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.mw = m
		}
	}
}

// WithWarningHandler registers fn to receive non-fatal hook failures.
func WithWarningHandler(fn WarningFunc) Option {
	return func(d *Dispatcher) {
		d.onWarning = fn
	}
}

// slot holds the hooks of one node. mu serializes every call for the node.
type slot struct {
	mu      sync.Mutex
	meta    observe.NodeMeta
	reg     Registration
	hooks   Hooks
	removed bool
}

// Dispatcher delivers lifecycle events to registered node hooks.
//
// Contract:
//   - Concurrency: safe for concurrent use. Calls for one node are serialized;
//     calls for different nodes run concurrently.
//   - Ownership: Register keeps a duplicate of the hooks it is given.
//   - Errors: only Execute and Run return hook failures, and only BeforeExecution
//     failures among them.
type Dispatcher struct {
	mw        *observe.Middleware
	onWarning WarningFunc

	mu    sync.RWMutex
	nodes map[uint32]*slot
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mw:    observe.NopMiddleware(),
		nodes: make(map[uint32]*slot),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register attaches h to nodeID. A nil h registers Default.
func (d *Dispatcher) Register(pluginID string, nodeID uint32, reg Registration, h Hooks) error {
	if pluginID == "" {
		return ErrMissingPluginID
	}
	if h == nil {
		h = Default{}
	}

	s := &slot{
		meta:  observe.NodeMeta{PluginID: pluginID, NodeID: nodeID, NodeType: reg.NodeTypeID},
		reg:   reg,
		hooks: h.Duplicate(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.nodes[nodeID]; ok {
		return fmt.Errorf("%w: %d", ErrNodeRegistered, nodeID)
	}
	d.nodes[nodeID] = s
	return nil
}

// Unregister detaches nodeID without calling OnNodeRemoved. It reports whether
// the node was registered.
func (d *Dispatcher) Unregister(nodeID uint32) bool {
	d.mu.Lock()
	s, ok := d.nodes[nodeID]
	delete(d.nodes, nodeID)
	d.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	s.removed = true
	s.mu.Unlock()
	return true
}

// Registration returns the registration of nodeID.
func (d *Dispatcher) Registration(nodeID uint32) (Registration, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.nodes[nodeID]
	if !ok {
		return Registration{}, false
	}
	return s.reg, true
}

// Nodes returns the registered node ids in ascending order.
func (d *Dispatcher) Nodes() []uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.nodes))
}

// Len returns the number of registered nodes.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}

// lock returns the slot of nodeID locked, or nil if it is not registered.
func (d *Dispatcher) lock(nodeID uint32) *slot {
	d.mu.RLock()
	s, ok := d.nodes[nodeID]
	d.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return nil
	}
	return s
}

// Execute runs one execution of nodeID: BeforeExecution, process, then
// AfterExecution. A BeforeExecution failure aborts the execution and is
// returned as a *HookError. An AfterExecution failure is a warning; the
// outputs are still returned.
func (d *Dispatcher) Execute(ctx context.Context, nodeID uint32, inputs map[string]value.Value, process ProcessFunc) (map[string]value.Value, error) {
	return d.Run(ctx, nodeID, func() (map[string]value.Value, error) { return inputs, nil }, process)
}

// Run is Execute with the inputs gathered by gather once the node's slot is
// held, so they cannot predate a change delivered through Mutate.
func (d *Dispatcher) Run(ctx context.Context, nodeID uint32, gather func() (map[string]value.Value, error), process ProcessFunc) (map[string]value.Value, error) {
	if process == nil {
		return nil, ErrNilProcess
	}
	s := d.lock(nodeID)
	if s == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, nodeID)
	}
	defer s.mu.Unlock()

	inputs, err := gather()
	if err != nil {
		return nil, err
	}

	err = d.mw.InvokeFatal(ctx, s.meta, EventBeforeExecution.String(), func(ctx context.Context) error {
		return s.hooks.BeforeExecution(ctx, nodeID, inputs)
	})
	if err != nil {
		return nil, &HookError{Event: EventBeforeExecution, NodeID: nodeID, Err: err}
	}

	var outputs map[string]value.Value
	err = d.mw.Invoke(ctx, s.meta, "process", func(ctx context.Context) error {
		var perr error
		outputs, perr = process(ctx, inputs)
		return perr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: node %d: %w", ErrProcessFailed, nodeID, err)
	}

	d.call(ctx, s, EventAfterExecution, func(ctx context.Context) error {
		return s.hooks.AfterExecution(ctx, nodeID, outputs)
	})
	return outputs, nil
}

// NodeRemoved delivers OnNodeRemoved and unregisters the node whether or not
// the hook fails.
func (d *Dispatcher) NodeRemoved(ctx context.Context, nodeID uint32) {
	s := d.lock(nodeID)
	if s == nil {
		return
	}
	d.call(ctx, s, EventNodeRemoved, func(ctx context.Context) error {
		return s.hooks.OnNodeRemoved(ctx, nodeID)
	})
	s.removed = true
	s.mu.Unlock()

	d.mu.Lock()
	if d.nodes[nodeID] == s {
		delete(d.nodes, nodeID)
	}
	d.mu.Unlock()
}

// RemoveNodes delivers NodeRemoved to each node concurrently and waits.
func (d *Dispatcher) RemoveNodes(ctx context.Context, nodeIDs []uint32) {
	var g errgroup.Group
	for _, id := range nodeIDs {
		g.Go(func() error {
			d.NodeRemoved(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

// InputConnectionAdded delivers OnInputConnectionAdded to nodeID.
func (d *Dispatcher) InputConnectionAdded(ctx context.Context, nodeID uint32, inputPort string, sourceNodeID uint32) {
	d.notify(ctx, nodeID, EventInputConnectionAdded, func(ctx context.Context, h Hooks) error {
		return h.OnInputConnectionAdded(ctx, nodeID, inputPort, sourceNodeID)
	})
}

// InputConnectionRemoved delivers OnInputConnectionRemoved to nodeID.
func (d *Dispatcher) InputConnectionRemoved(ctx context.Context, nodeID uint32, inputPort string, sourceNodeID uint32) {
	d.notify(ctx, nodeID, EventInputConnectionRemoved, func(ctx context.Context, h Hooks) error {
		return h.OnInputConnectionRemoved(ctx, nodeID, inputPort, sourceNodeID)
	})
}

// ParameterChanged delivers OnParameterChanged to nodeID.
func (d *Dispatcher) ParameterChanged(ctx context.Context, nodeID uint32, name string, oldValue, newValue value.Value) {
	d.notify(ctx, nodeID, EventParameterChanged, func(ctx context.Context, h Hooks) error {
		return h.OnParameterChanged(ctx, nodeID, name, oldValue, newValue)
	})
}

// Mutate applies a change to nodeID and delivers ev for it in one step: no
// execution of the node runs between apply and the hook. When apply fails the
// hook is skipped and apply's error is returned. Hook failures are warnings.
func (d *Dispatcher) Mutate(ctx context.Context, nodeID uint32, ev Event, apply func() error, deliver func(context.Context, Hooks) error) error {
	s := d.lock(nodeID)
	if s == nil {
		return fmt.Errorf("%w: %d", ErrUnknownNode, nodeID)
	}
	defer s.mu.Unlock()

	if err := apply(); err != nil {
		return err
	}
	d.call(ctx, s, ev, func(ctx context.Context) error { return deliver(ctx, s.hooks) })
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, nodeID uint32, ev Event, fn func(context.Context, Hooks) error) {
	s := d.lock(nodeID)
	if s == nil {
		return
	}
	defer s.mu.Unlock()
	d.call(ctx, s, ev, func(ctx context.Context) error { return fn(ctx, s.hooks) })
}

// call runs a non-fatal callback. s must be locked.
func (d *Dispatcher) call(ctx context.Context, s *slot, ev Event, fn observe.CallFunc) {
	err := d.mw.Invoke(ctx, s.meta, ev.String(), fn)
	if err != nil && d.onWarning != nil {
		d.onWarning(ctx, &HookError{Event: ev, NodeID: s.meta.NodeID, Err: err})
	}
}
