package hooks

import (
	"context"

	"github.com/jonwraymond/nodecache/value"
)

// Hooks is the lifecycle callback surface of a plugin node.
//
// Contract:
//   - Concurrency: the host never calls two methods for the same node id
//     concurrently; implementations shared across nodes must be safe for
//     concurrent use.
//   - Errors: only BeforeExecution errors change what the host does.
//   - Ownership: maps passed in are owned by the host and must not be retained
//     or mutated.
type Hooks interface {
	// BeforeExecution runs immediately before the node computes, with the
	// current input values by port name.
	BeforeExecution(ctx context.Context, nodeID uint32, inputs map[string]value.Value) error

	// AfterExecution runs immediately after a successful computation, with the
	// output values by port name.
	AfterExecution(ctx context.Context, nodeID uint32, outputs map[string]value.Value) error

	// OnNodeRemoved runs when the node is deleted from the graph.
	OnNodeRemoved(ctx context.Context, nodeID uint32) error

	// OnInputConnectionAdded runs when a new edge from sourceNodeID targets
	// inputPort on this node.
	OnInputConnectionAdded(ctx context.Context, nodeID uint32, inputPort string, sourceNodeID uint32) error

	// OnInputConnectionRemoved runs when an edge targeting inputPort is removed.
	OnInputConnectionRemoved(ctx context.Context, nodeID uint32, inputPort string, sourceNodeID uint32) error

	// OnParameterChanged runs when a parameter value is edited.
	OnParameterChanged(ctx context.Context, nodeID uint32, name string, oldValue, newValue value.Value) error

	// Duplicate returns a new, independent instance with equivalent behavior.
	Duplicate() Hooks
}

// Base implements every callback as a no-op. Embed it and override the
// callbacks you need; Duplicate is left to the embedding type.
type Base struct{}

func (Base) BeforeExecution(context.Context, uint32, map[string]value.Value) error { return nil }
func (Base) AfterExecution(context.Context, uint32, map[string]value.Value) error  { return nil }
func (Base) OnNodeRemoved(context.Context, uint32) error                           { return nil }

func (Base) OnInputConnectionAdded(context.Context, uint32, string, uint32) error {
	return nil
}

func (Base) OnInputConnectionRemoved(context.Context, uint32, string, uint32) error {
	return nil
}

func (Base) OnParameterChanged(context.Context, uint32, string, value.Value, value.Value) error {
	return nil
}

// Default is the hook set of a node that needs no lifecycle handling.
type Default struct {
	Base
}

// Duplicate returns a new Default.
func (Default) Duplicate() Hooks {
	return Default{}
}

var _ Hooks = Default{}

// Registration describes the node type a hook set belongs to.
type Registration struct {
	NodeTypeID  string
	Description string
}

// NewRegistration creates a Registration.
func NewRegistration(nodeTypeID, description string) Registration {
	return Registration{NodeTypeID: nodeTypeID, Description: description}
}
