// Package constant is a source node plugin: each node outputs the Float held
// in its "value" parameter. Its nodes keep no cache and register no hooks.
package constant

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonwraymond/nodecache/plugin"
	"github.com/jonwraymond/nodecache/value"
)

const (
	PluginID   = "const"
	NodeType   = "const.float"
	OutputPort = "value"
	ParamValue = "value"
)

// Plugin registers the constant node type.
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
		Description:       "Constant Float source",
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
		DisplayName: "Constant",
		Description: "Outputs a fixed Float",
		Category:    []string{"Math"},
		Outputs:     []plugin.Port{{Name: OutputPort, Kind: value.KindFloat}},
	}
}

func (factory) CreateNode(plugin.Env) (plugin.Node, error) {
	return &Node{}, nil
}

// Node is one constant node. The value defaults to 0.
type Node struct {
	mu sync.RWMutex
	v  value.Float
}

func (n *Node) Process(context.Context, map[string]value.Value) (map[string]value.Value, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return map[string]value.Value{OutputPort: n.v}, nil
}

func (n *Node) Parameter(name string) (value.Value, bool) {
	if name != ParamValue {
		return nil, false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.v, true
}

func (n *Node) SetParameter(name string, v value.Value) error {
	if name != ParamValue {
		return fmt.Errorf("%s: unknown parameter %q", NodeType, name)
	}
	f, ok := v.(value.Float)
	if !ok {
		return fmt.Errorf("%s: parameter %q must be Float", NodeType, name)
	}
	n.mu.Lock()
	n.v = f
	n.mu.Unlock()
	return nil
}
