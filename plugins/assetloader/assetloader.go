// Package assetloader is a multi-stage cached plugin. Its file reader node
// loads a prim listing from disk (stage "load") and filters it (stage
// "process"); each stage is cached on its own.
//
// Invalidation is selective: a new file_path drops every stage, a new filter
// drops only "process", and node removal drops everything. With a watcher the
// node also drops every stage when its file changes on disk.
package assetloader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/hooks"
	"github.com/jonwraymond/nodecache/observe"
	"github.com/jonwraymond/nodecache/plugin"
	"github.com/jonwraymond/nodecache/value"
	"github.com/jonwraymond/nodecache/watch"
)

const (
	PluginID      = "usd"
	NodeType      = "usd.file_reader"
	OutputPort    = "stage"
	ParamFilePath = "file_path"
	ParamFilter   = "filter"

	StageLoad    = "load"
	StageProcess = "process"

	stagePort = 0
)

// Plugin registers the file reader node type.
type Plugin struct {
	watcher *watch.Watcher
}

// Option configures the plugin.
type Option func(*Plugin)

// WithWatcher makes nodes invalidate their stages when their file changes.
func WithWatcher(w *watch.Watcher) Option {
	return func(p *Plugin) { p.watcher = w }
}

// New creates the plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (*Plugin) Info() plugin.Info {
	return plugin.Info{
		Name:              PluginID,
		Version:           "1.0.0",
		Author:            "nodecache",
		Description:       "Multi-stage cached stage reader",
		CompatibleVersion: "0.1",
	}
}

func (p *Plugin) RegisterNodes(r plugin.Registrar) error {
	return r.RegisterNodeFactory(&factory{watcher: p.watcher})
}

type factory struct {
	watcher *watch.Watcher
}

func (*factory) Metadata() plugin.NodeMetadata {
	return plugin.NodeMetadata{
		TypeID:      NodeType,
		DisplayName: "Stage Reader",
		Description: "Loads a stage prim listing and filters its prims",
		Category:    []string{"3D", "USD"},
		Outputs:     []plugin.Port{{Name: OutputPort, Kind: value.KindStage}},
	}
}

func (f *factory) CreateNode(env plugin.Env) (plugin.Node, error) {
	if env.Store == nil {
		return nil, plugin.NewError(plugin.KindInit, "%s node %d has no cache store", NodeType, env.NodeID)
	}
	if env.Logger == nil {
		env.Logger = observe.NopLogger()
	}
	return &Node{
		env:     env,
		cache:   cache.NewMultiStage(env.PluginID),
		watcher: f.watcher,
	}, nil
}

// Node is one file reader node.
type Node struct {
	env     plugin.Env
	cache   *cache.MultiStage
	watcher *watch.Watcher

	mu       sync.Mutex
	filePath string
	filter   string
	unwatch  func()

	loads     atomic.Int64
	processes atomic.Int64
}

// Process returns the filtered stage, computing only the stages that are not
// cached.
func (n *Node) Process(ctx context.Context, _ map[string]value.Value) (map[string]value.Value, error) {
	n.mu.Lock()
	path, filter := n.filePath, n.filter
	n.mu.Unlock()

	store, id := n.env.Store, n.env.NodeID
	loaded, err := n.cache.GetOrComputeStage(ctx, store, id, StageLoad, stagePort, func(context.Context) (value.Value, error) {
		n.loads.Add(1)
		return loadStage(path)
	})
	if err != nil {
		return nil, err
	}
	stage, ok := loaded.(value.Stage)
	if !ok {
		return nil, fmt.Errorf("%s: cached %s stage holds %s", NodeType, StageLoad, loaded.Kind())
	}

	processed, err := n.cache.GetOrComputeStage(ctx, store, id, StageProcess, stagePort, func(context.Context) (value.Value, error) {
		n.processes.Add(1)
		return filterStage(stage, filter), nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]value.Value{OutputPort: processed}, nil
}

// loadStage reads a prim listing: one prim path per line, blank lines and
// lines starting with # ignored.
func loadStage(path string) (value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: load %s: %w", NodeType, path, err)
	}

	prims := []string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prims = append(prims, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", NodeType, path, err)
	}
	return value.Stage{Identifier: filepath.Base(path), FilePath: path, Prims: prims}, nil
}

func filterStage(s value.Stage, filter string) value.Stage {
	out := value.Stage{Identifier: s.Identifier, FilePath: s.FilePath, Prims: []string{}}
	for _, p := range s.Prims {
		if filter == "" || strings.Contains(p, filter) {
			out.Prims = append(out.Prims, p)
		}
	}
	return out
}

// Loads returns how many times the load stage was computed.
func (n *Node) Loads() int64 { return n.loads.Load() }

// Processes returns how many times the process stage was computed.
func (n *Node) Processes() int64 { return n.processes.Load() }

// FilePath returns the current file_path parameter.
func (n *Node) FilePath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.filePath
}

func (n *Node) Parameter(name string) (value.Value, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch name {
	case ParamFilePath:
		return value.String(n.filePath), true
	case ParamFilter:
		return value.String(n.filter), true
	default:
		return nil, false
	}
}

func (n *Node) SetParameter(name string, v value.Value) error {
	s, ok := v.(value.String)
	if !ok {
		return fmt.Errorf("%s: parameter %q must be String", NodeType, name)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	switch name {
	case ParamFilePath:
		if n.filePath == string(s) {
			return nil
		}
		n.filePath = string(s)
		return n.rewatch()
	case ParamFilter:
		n.filter = string(s)
		return nil
	default:
		return fmt.Errorf("%s: unknown parameter %q", NodeType, name)
	}
}

// rewatch moves the file subscription to the current path. n.mu must be held.
func (n *Node) rewatch() error {
	if n.unwatch != nil {
		n.unwatch()
		n.unwatch = nil
	}
	if n.watcher == nil || n.filePath == "" {
		return nil
	}

	store, id := n.env.Store, n.env.NodeID
	cancel, err := n.watcher.Watch(n.filePath, func(path string) {
		ctx := context.Background()
		removed := n.cache.InvalidateAllStages(ctx, store, id)
		n.env.Logger.WithNode(n.env.NodeMeta(NodeType)).Debug(ctx, "source file changed",
			observe.Field{Key: "file", Value: path},
			observe.Field{Key: "invalidated", Value: removed},
		)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", NodeType, err)
	}
	n.unwatch = cancel
	return nil
}

// stopWatching drops the file subscription.
func (n *Node) stopWatching() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.unwatch != nil {
		n.unwatch()
		n.unwatch = nil
	}
}

func (n *Node) ExecutionHooks() hooks.Hooks {
	return &Hooks{node: n}
}

// Hooks applies the reader's stage invalidation rules.
type Hooks struct {
	hooks.Base
	node *Node
}

// BeforeExecution refuses to run without a file_path.
func (h *Hooks) BeforeExecution(context.Context, uint32, map[string]value.Value) error {
	if h.node.FilePath() == "" {
		return fmt.Errorf("parameter %q is not set", ParamFilePath)
	}
	return nil
}

// OnParameterChanged drops every stage for a new file and only the process
// stage for a new filter.
func (h *Hooks) OnParameterChanged(ctx context.Context, nodeID uint32, name string, _, _ value.Value) error {
	store := h.node.env.Store
	switch name {
	case ParamFilePath:
		h.node.cache.InvalidateAllStages(ctx, store, nodeID)
	case ParamFilter:
		h.node.cache.InvalidateStage(ctx, store, nodeID, StageProcess)
	}
	return nil
}

func (h *Hooks) OnNodeRemoved(ctx context.Context, nodeID uint32) error {
	h.node.stopWatching()
	h.node.cache.InvalidateAllStages(ctx, h.node.env.Store, nodeID)
	return nil
}

func (h *Hooks) Duplicate() hooks.Hooks {
	return &Hooks{node: h.node}
}

var (
	_ plugin.Plugin       = (*Plugin)(nil)
	_ plugin.HookProvider = (*Node)(nil)
	_ hooks.Hooks         = (*Hooks)(nil)
)
