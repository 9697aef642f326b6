// Package hooks defines the lifecycle callbacks a plugin node may implement to
// keep its cached outputs coherent with the graph, and the Dispatcher the host
// uses to deliver them.
//
// A node that needs no lifecycle handling uses Default. A node that only cares
// about a few events embeds Base and overrides those methods.
//
// Failure policy: an error from BeforeExecution aborts that execution of the
// node and is returned to the caller as a *HookError. Errors from every other
// callback are logged as warnings; outputs are still delivered and removals
// still proceed.
//
// Calls for one node id are serialized. Calls for different node ids may run
// concurrently. There is no timeout at this layer.
package hooks
