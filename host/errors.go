package host

import "errors"

// Sentinel errors for session operations.
var (
	ErrNilStore      = errors.New("host: store is required")
	ErrUnknownNode   = errors.New("host: unknown node")
	ErrUnknownPlugin = errors.New("host: unknown plugin")
	ErrPluginLoaded  = errors.New("host: plugin already loaded")
	ErrSelfEdge      = errors.New("host: node cannot connect to itself")
	ErrPortInUse     = errors.New("host: input port already connected")
	ErrNoEdge        = errors.New("host: no such connection")
	ErrSessionClosed = errors.New("host: session closed")
)
