// Package host is a minimal host session: it owns the shared cache.Store, the
// loaded plugins, node instances, and the hooks.Dispatcher, and drives graph
// events through them in the order the lifecycle contract requires.
//
// Plugins and nodes are referenced by registry handles and node ids, never by
// pointer. Scheduling is left to the caller: Execute runs one node with the
// outputs its upstream nodes last produced, and ExecuteAll runs a batch of
// independent nodes on a bounded worker pool.
package host
