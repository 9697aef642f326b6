// Package cache provides the keyed store plugins use to memoize node outputs
// and the primitives they use to keep that store coherent with graph state.
//
// A Key locates one cached value: plugin, node, optional stage, and port. A
// Pattern selects a set of keys for bulk invalidation. The Store is owned by
// the host and shared by every plugin; a Manager is owned by one plugin node
// and mirrors the keys it believes are live so that it can prune its own
// bookkeeping whenever it invalidates.
//
// Three Store implementations are provided:
//
//   - MemoryStore: unbounded, sharded by key hash.
//   - LRUStore: bounded by entry count, least recently used evicted first.
//   - TinyLFUStore: bounded by encoded payload bytes (W-TinyLFU admission).
//
// The bounded stores evict on their own, so a Manager's key set may list keys
// the Store no longer holds. Invalidation counts always come from the Store.
//
// SingleStage and MultiStage are canned usages built only on the Manager's
// public surface. MultiStage never cascades: invalidating one stage leaves
// every other stage of the node in place.
package cache
