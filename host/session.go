package host

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/hooks"
	"github.com/jonwraymond/nodecache/observe"
	"github.com/jonwraymond/nodecache/plugin"
	"github.com/jonwraymond/nodecache/registry"
	"github.com/jonwraymond/nodecache/value"
)

// Version is the host version plugins are checked against.
const Version = "0.1.0"

// Config configures a Session.
type Config struct {
	// Store is the shared cache. Required.
	Store cache.Store

	// Logger receives session events. Default: no-op.
	Logger observe.Logger

	// Middleware wraps hook and process calls. Default: no-op.
	Middleware *observe.Middleware

	// Workers bounds ExecuteAll concurrency. Default: GOMAXPROCS.
	Workers int

	// HostVersion overrides Version in compatibility checks.
	HostVersion string
}

type loadedPlugin struct {
	plugin plugin.Plugin
	info   plugin.Info
}

type nodeEntry struct {
	id       uint32
	pluginID string
	typeID   string
	node     plugin.Node

	mu      sync.Mutex
	outputs map[string]value.Value
}

// Edge connects an output port of From to an input port of To.
type Edge struct {
	From     uint32 `json:"from"`
	FromPort string `json:"from_port"`
	To       uint32 `json:"to"`
	ToPort   string `json:"to_port"`
}

// Result is the outcome of executing one node.
type Result struct {
	NodeID  uint32
	Outputs map[string]value.Value
	Err     error
}

// Session is one graph session.
//
// Contract:
//   - Concurrency: safe for concurrent use. Lifecycle events for one node are
//     serialized by the dispatcher.
//   - Ownership: the session owns the store for its lifetime; Close clears the
//     entries of every loaded plugin.
type Session struct {
	id         uuid.UUID
	store      cache.Store
	logger     observe.Logger
	dispatcher *hooks.Dispatcher
	factories  *plugin.FactoryRegistry
	plugins    *registry.Table[*loadedPlugin]
	nodes      *registry.Table[*nodeEntry]
	workers    int
	version    string

	mu       sync.RWMutex
	byName   map[string]registry.Handle
	byNode   map[uint32]registry.Handle
	edges    []Edge
	nextNode uint32
	warnings int
	closed   bool
}

// New creates a Session.
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Middleware == nil {
		cfg.Middleware = observe.NewMiddleware(nil, nil, cfg.Logger)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.HostVersion == "" {
		cfg.HostVersion = Version
	}

	s := &Session{
		id:        uuid.New(),
		store:     cfg.Store,
		logger:    cfg.Logger,
		factories: plugin.NewFactoryRegistry(),
		plugins:   registry.NewTable[*loadedPlugin](),
		nodes:     registry.NewTable[*nodeEntry](),
		workers:   cfg.Workers,
		version:   cfg.HostVersion,
		byName:    make(map[string]registry.Handle),
		byNode:    make(map[uint32]registry.Handle),
		nextNode:  1,
	}
	s.dispatcher = hooks.NewDispatcher(
		hooks.WithMiddleware(cfg.Middleware),
		hooks.WithWarningHandler(s.onWarning),
	)
	return s, nil
}

func (s *Session) onWarning(_ context.Context, _ *hooks.HookError) {
	s.mu.Lock()
	s.warnings++
	s.mu.Unlock()
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Store returns the shared cache.
func (s *Session) Store() cache.Store { return s.store }

// Dispatcher returns the session's hook dispatcher.
func (s *Session) Dispatcher() *hooks.Dispatcher { return s.dispatcher }

// Warnings returns how many non-fatal hook failures the session has seen.
func (s *Session) Warnings() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warnings
}

// LoadPlugin checks compatibility, registers the plugin's node factories and
// runs its OnLoad. The plugin id is Info().Name.
func (s *Session) LoadPlugin(ctx context.Context, p plugin.Plugin) (registry.Handle, error) {
	info := p.Info()
	if info.Name == "" {
		return 0, plugin.NewError(plugin.KindLoad, "plugin has no name")
	}
	if err := plugin.CheckCompatibility(s.version, info); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSessionClosed
	}
	if _, ok := s.byName[info.Name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrPluginLoaded, info.Name)
	}

	if err := p.RegisterNodes(s.factories.For(info.Name)); err != nil {
		s.factories.RemovePlugin(info.Name)
		return 0, plugin.WrapError(plugin.KindRegistration, err, info.Name)
	}
	if l, ok := p.(plugin.Loader); ok {
		if err := l.OnLoad(ctx); err != nil {
			s.factories.RemovePlugin(info.Name)
			return 0, plugin.WrapError(plugin.KindInit, err, info.Name)
		}
	}

	h := s.plugins.Insert(&loadedPlugin{plugin: p, info: info})
	s.byName[info.Name] = h
	s.logger.Info(ctx, "plugin loaded",
		observe.Field{Key: "plugin.id", Value: info.Name},
		observe.Field{Key: "version", Value: info.Version},
	)
	return h, nil
}

// Plugin returns the plugin behind h.
func (s *Session) Plugin(h registry.Handle) (plugin.Info, bool) {
	lp, ok := s.plugins.Get(h)
	if !ok {
		return plugin.Info{}, false
	}
	return lp.info, true
}

// Plugins returns the metadata of every loaded plugin, sorted by name.
func (s *Session) Plugins() []plugin.Info {
	var out []plugin.Info
	s.plugins.Range(func(_ registry.Handle, lp *loadedPlugin) bool {
		out = append(out, lp.info)
		return true
	})
	slices.SortFunc(out, func(a, b plugin.Info) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// NodeTypes returns every registered node type id.
func (s *Session) NodeTypes() []string {
	return s.factories.NodeTypes()
}

// UnloadPlugin removes every node of the plugin, clears its cache entries, and
// runs its OnUnload. It returns how many entries were cleared.
func (s *Session) UnloadPlugin(ctx context.Context, h registry.Handle) (int, error) {
	lp, ok := s.plugins.Get(h)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPlugin, h)
	}
	name := lp.info.Name

	var ids []uint32
	s.nodes.Range(func(_ registry.Handle, n *nodeEntry) bool {
		if n.pluginID == name {
			ids = append(ids, n.id)
		}
		return true
	})
	for _, id := range ids {
		_ = s.RemoveNode(ctx, id)
	}

	s.mu.Lock()
	lp, err := s.plugins.Take(h)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %w", ErrUnknownPlugin, err)
	}
	delete(s.byName, name)
	s.factories.RemovePlugin(name)
	s.mu.Unlock()

	cleared := s.store.ClearPlugin(ctx, name)

	var unloadErr error
	if u, ok := lp.plugin.(plugin.Unloader); ok {
		if err := u.OnUnload(ctx); err != nil {
			unloadErr = plugin.WrapError(plugin.KindOther, err, name+" unload")
		}
	}
	s.logger.Info(ctx, "plugin unloaded",
		observe.Field{Key: "plugin.id", Value: name},
		observe.Field{Key: "cleared", Value: cleared},
	)
	return cleared, unloadErr
}

// CreateNode instantiates typeID and registers its hooks. It returns the new
// node id.
func (s *Session) CreateNode(ctx context.Context, typeID string) (uint32, error) {
	factory, pluginID, err := s.factories.Lookup(typeID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if _, ok := s.byName[pluginID]; !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrUnknownPlugin, pluginID)
	}
	id := s.nextNode
	s.nextNode++
	s.mu.Unlock()

	node, err := factory.CreateNode(plugin.Env{
		PluginID: pluginID,
		NodeID:   id,
		Store:    s.store,
		Logger:   s.logger,
	})
	if err != nil {
		return 0, err
	}

	// Entries under a fresh id can only be leftovers, e.g. from a restored
	// snapshot, and were not produced by this node.
	if stale := s.store.Invalidate(ctx, cache.ByNode(pluginID, id)); stale > 0 {
		s.logger.Warn(ctx, "dropped stale entries for new node",
			observe.Field{Key: "plugin.id", Value: pluginID},
			observe.Field{Key: "node.id", Value: id},
			observe.Field{Key: "removed", Value: stale},
		)
	}

	reg := hooks.NewRegistration(typeID, factory.Metadata().Description)
	if err := s.dispatcher.Register(pluginID, id, reg, plugin.HooksOf(node)); err != nil {
		return 0, err
	}

	h := s.nodes.Insert(&nodeEntry{id: id, pluginID: pluginID, typeID: typeID, node: node})
	s.mu.Lock()
	s.byNode[id] = h
	s.mu.Unlock()

	s.logger.WithNode(observe.NodeMeta{PluginID: pluginID, NodeID: id, NodeType: typeID}).Debug(ctx, "node created")
	return id, nil
}

func (s *Session) node(id uint32) (*nodeEntry, error) {
	s.mu.RLock()
	h, ok := s.byNode[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	n, ok := s.nodes.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return n, nil
}

// Nodes returns every node id in ascending order.
func (s *Session) Nodes() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.byNode))
}

// Node returns the node instance with id.
func (s *Session) Node(id uint32) (plugin.Node, bool) {
	n, err := s.node(id)
	if err != nil {
		return nil, false
	}
	return n.node, true
}

// NodeType returns the type id of node id.
func (s *Session) NodeType(id uint32) (string, bool) {
	n, err := s.node(id)
	if err != nil {
		return "", false
	}
	return n.typeID, true
}

// inputs gathers the last outputs of the nodes connected to id.
func (s *Session) inputs(id uint32) (map[string]value.Value, error) {
	s.mu.RLock()
	var in []Edge
	for _, e := range s.edges {
		if e.To == id {
			in = append(in, e)
		}
	}
	s.mu.RUnlock()

	inputs := make(map[string]value.Value, len(in))
	for _, e := range in {
		src, err := s.node(e.From)
		if err != nil {
			return nil, err
		}
		src.mu.Lock()
		v, ok := src.outputs[e.FromPort]
		src.mu.Unlock()
		if ok {
			inputs[e.ToPort] = v
		}
	}
	return inputs, nil
}

// Execute runs node id once with the outputs its upstream nodes last produced.
// A before_execution hook failure aborts the run and is returned as a
// *hooks.HookError.
func (s *Session) Execute(ctx context.Context, id uint32) (map[string]value.Value, error) {
	n, err := s.node(id)
	if err != nil {
		return nil, err
	}

	outputs, err := s.dispatcher.Run(ctx, id, func() (map[string]value.Value, error) {
		return s.inputs(id)
	}, n.node.Process)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.outputs = outputs
	n.mu.Unlock()
	return outputs, nil
}

// ExecuteAll runs the given nodes concurrently on at most Workers goroutines.
// The nodes should not depend on each other; results are in argument order.
func (s *Session) ExecuteAll(ctx context.Context, ids []uint32) []Result {
	results := make([]Result, len(ids))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			out, err := s.Execute(ctx, id)
			results[i] = Result{NodeID: id, Outputs: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Outputs returns the outputs of the last successful execution of id.
func (s *Session) Outputs(id uint32) (map[string]value.Value, bool) {
	n, err := s.node(id)
	if err != nil {
		return nil, false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return maps.Clone(n.outputs), n.outputs != nil
}

// SetParameter edits a parameter and delivers on_parameter_changed with the
// old and new values. A parameter that was never set reads as None. No
// execution of the node sees the new value before the hook has run.
func (s *Session) SetParameter(ctx context.Context, id uint32, name string, v value.Value) error {
	n, err := s.node(id)
	if err != nil {
		return err
	}
	var old value.Value
	return s.dispatcher.Mutate(ctx, id, hooks.EventParameterChanged, func() error {
		prev, ok := n.node.Parameter(name)
		if !ok || prev == nil {
			prev = value.None{}
		}
		old = prev
		return n.node.SetParameter(name, v)
	}, func(ctx context.Context, h hooks.Hooks) error {
		return h.OnParameterChanged(ctx, id, name, old, v)
	})
}

// Connect adds an edge and delivers on_input_connection_added to the target.
func (s *Session) Connect(ctx context.Context, e Edge) error {
	if e.From == e.To {
		return ErrSelfEdge
	}
	if _, err := s.node(e.From); err != nil {
		return err
	}
	if _, err := s.node(e.To); err != nil {
		return err
	}

	return s.dispatcher.Mutate(ctx, e.To, hooks.EventInputConnectionAdded, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, x := range s.edges {
			if x.To == e.To && x.ToPort == e.ToPort {
				return fmt.Errorf("%w: %d.%s", ErrPortInUse, e.To, e.ToPort)
			}
		}
		s.edges = append(s.edges, e)
		return nil
	}, func(ctx context.Context, h hooks.Hooks) error {
		return h.OnInputConnectionAdded(ctx, e.To, e.ToPort, e.From)
	})
}

// Disconnect removes an edge and delivers on_input_connection_removed.
func (s *Session) Disconnect(ctx context.Context, e Edge) error {
	err := s.dispatcher.Mutate(ctx, e.To, hooks.EventInputConnectionRemoved, func() error {
		return s.removeEdge(e)
	}, func(ctx context.Context, h hooks.Hooks) error {
		return h.OnInputConnectionRemoved(ctx, e.To, e.ToPort, e.From)
	})
	if errors.Is(err, hooks.ErrUnknownNode) {
		return ErrNoEdge
	}
	return err
}

func (s *Session) removeEdge(e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.edges, e)
	if i < 0 {
		return ErrNoEdge
	}
	s.edges = slices.Delete(s.edges, i, i+1)
	return nil
}

// Edges returns a copy of the current edges.
func (s *Session) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.edges)
}

// RemoveNode disconnects the node, delivers on_input_connection_removed to its
// downstream nodes and on_node_removed to the node itself, then drops it.
// Removal proceeds whatever the hooks return.
func (s *Session) RemoveNode(ctx context.Context, id uint32) error {
	s.mu.Lock()
	h, ok := s.byNode[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool { return e.To == id })
	downstream := s.outgoing(id)
	s.mu.Unlock()

	// Each downstream edge goes away together with its hook, so a downstream
	// execution sees either the old input or the invalidated cache.
	for _, e := range downstream {
		err := s.dispatcher.Mutate(ctx, e.To, hooks.EventInputConnectionRemoved, func() error {
			return s.removeEdge(e)
		}, func(ctx context.Context, h hooks.Hooks) error {
			return h.OnInputConnectionRemoved(ctx, e.To, e.ToPort, e.From)
		})
		if errors.Is(err, hooks.ErrUnknownNode) {
			_ = s.removeEdge(e)
		}
	}

	s.mu.Lock()
	delete(s.byNode, id)
	late := s.outgoing(id)
	s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool { return e.From == id || e.To == id })
	s.mu.Unlock()

	for _, e := range late {
		s.dispatcher.InputConnectionRemoved(ctx, e.To, e.ToPort, e.From)
	}
	s.dispatcher.NodeRemoved(ctx, id)
	_, _ = s.nodes.Take(h)
	return nil
}

// outgoing returns the edges leaving id. s.mu must be held.
func (s *Session) outgoing(id uint32) []Edge {
	var out []Edge
	for _, e := range s.edges {
		if e.From == id && e.To != id {
			out = append(out, e)
		}
	}
	return out
}

// Statistics returns the store statistics of pluginID.
func (s *Session) Statistics(ctx context.Context, pluginID string) cache.Statistics {
	return s.store.PluginStatistics(ctx, pluginID)
}

// Close removes every node and unloads every plugin.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ids := slices.Collect(maps.Keys(s.byNode))
	handles := slices.Collect(maps.Values(s.byName))
	clear(s.byNode)
	s.edges = nil
	s.mu.Unlock()
	s.dispatcher.RemoveNodes(ctx, ids)

	var nodeHandles []registry.Handle
	s.nodes.Range(func(h registry.Handle, _ *nodeEntry) bool {
		nodeHandles = append(nodeHandles, h)
		return true
	})
	for _, h := range nodeHandles {
		_, _ = s.nodes.Take(h)
	}

	var errs []error
	for _, h := range handles {
		if _, err := s.UnloadPlugin(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
