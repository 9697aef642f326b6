// Package plugin defines the registration surface between the host and plugin
// code: plugin metadata, node factories, node instances, and the environment a
// node is created with.
//
// A plugin registers NodeFactory values through a Registrar. The host creates
// a Node from a factory with an Env carrying the shared cache.Store and a
// logger. A Node that also implements HookProvider takes part in lifecycle
// driven cache invalidation; every other node gets hooks.Default.
package plugin
