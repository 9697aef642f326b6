package hooks

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatcher.
var (
	ErrUnknownNode     = errors.New("hooks: unknown node")
	ErrNodeRegistered  = errors.New("hooks: node already registered")
	ErrMissingPluginID = errors.New("hooks: plugin id is required")
	ErrNilProcess      = errors.New("hooks: process function is nil")
	ErrProcessFailed   = errors.New("hooks: process failed")
)

// Event names one lifecycle callback.
type Event int

const (
	EventBeforeExecution Event = iota
	EventAfterExecution
	EventNodeRemoved
	EventInputConnectionAdded
	EventInputConnectionRemoved
	EventParameterChanged
)

func (e Event) String() string {
	switch e {
	case EventBeforeExecution:
		return "before_execution"
	case EventAfterExecution:
		return "after_execution"
	case EventNodeRemoved:
		return "on_node_removed"
	case EventInputConnectionAdded:
		return "on_input_connection_added"
	case EventInputConnectionRemoved:
		return "on_input_connection_removed"
	case EventParameterChanged:
		return "on_parameter_changed"
	default:
		return "unknown"
	}
}

// Fatal reports whether a failure of this event aborts the node's execution.
func (e Event) Fatal() bool {
	return e == EventBeforeExecution
}

// HookError is a failure returned by a hook callback. Its message is the
// callback's own message, prefixed with the event and node.
type HookError struct {
	Event  Event
	NodeID uint32
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook failed for node %d: %v", e.Event, e.NodeID, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
