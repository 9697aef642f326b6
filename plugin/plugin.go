package plugin

import (
	"context"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/hooks"
	"github.com/jonwraymond/nodecache/observe"
	"github.com/jonwraymond/nodecache/value"
)

// Info is plugin metadata.
type Info struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Author      string `json:"author,omitempty" yaml:"author,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// CompatibleVersion is the host version range the plugin was built for,
	// either "X.Y[.Z]" (same major, at least this version) or ">=X.Y[.Z]".
	// Empty means any host.
	CompatibleVersion string `json:"compatible_version,omitempty" yaml:"compatible_version,omitempty"`
}

// Plugin is a unit of node types loaded into a host session.
//
// Contract:
//   - Identity: Info().Name is the plugin id used in every cache key the
//     plugin's nodes create.
//   - Errors: RegisterNodes failures abort the load.
type Plugin interface {
	Info() Info
	RegisterNodes(r Registrar) error
}

// Loader is implemented by plugins that need setup after registration.
type Loader interface {
	OnLoad(ctx context.Context) error
}

// Unloader is implemented by plugins that need teardown on unload.
type Unloader interface {
	OnUnload(ctx context.Context) error
}

// Registrar collects the node factories of a plugin.
type Registrar interface {
	RegisterNodeFactory(f NodeFactory) error
	NodeTypes() []string
	HasNodeType(typeID string) bool
}

// Port describes one input or output of a node type.
type Port struct {
	Name        string     `json:"name"`
	Kind        value.Kind `json:"kind"`
	Optional    bool       `json:"optional,omitempty"`
	Description string     `json:"description,omitempty"`
}

// NodeMetadata describes a node type.
type NodeMetadata struct {
	TypeID      string   `json:"type_id"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Category    []string `json:"category,omitempty"`
	Inputs      []Port   `json:"inputs,omitempty"`
	Outputs     []Port   `json:"outputs,omitempty"`
}

// NodeFactory creates nodes of one type.
type NodeFactory interface {
	Metadata() NodeMetadata
	CreateNode(env Env) (Node, error)
}

// Node is one instance of a node type in the graph.
//
// Contract:
//   - Concurrency: the host never calls Process concurrently for one node,
//     but Parameter may be read while Process runs.
//   - Ownership: Process must not retain or mutate inputs.
type Node interface {
	Process(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error)
	Parameter(name string) (value.Value, bool)
	SetParameter(name string, v value.Value) error
}

// HookProvider is implemented by nodes that handle lifecycle events.
type HookProvider interface {
	ExecutionHooks() hooks.Hooks
}

// Env is what the host hands a factory when it creates a node.
type Env struct {
	PluginID string
	NodeID   uint32
	Store    cache.Store
	Logger   observe.Logger
}

// NodeMeta returns the telemetry identity of the node.
func (e Env) NodeMeta(nodeType string) observe.NodeMeta {
	return observe.NodeMeta{PluginID: e.PluginID, NodeID: e.NodeID, NodeType: nodeType}
}

// HooksOf returns the hooks of n, or hooks.Default if it provides none.
func HooksOf(n Node) hooks.Hooks {
	if hp, ok := n.(HookProvider); ok {
		if h := hp.ExecutionHooks(); h != nil {
			return h
		}
	}
	return hooks.Default{}
}
