package cache

import "fmt"

// PatternKind selects which fields of a Key a Pattern constrains.
type PatternKind int

const (
	// PatternNode matches every stage and port of one node.
	PatternNode PatternKind = iota
	// PatternStage matches every port of one stage of one node.
	PatternStage
	// PatternExact matches a single key.
	PatternExact
	// PatternPlugin matches every key owned by a plugin.
	PatternPlugin
)

func (k PatternKind) String() string {
	switch k {
	case PatternNode:
		return "node"
	case PatternStage:
		return "stage"
	case PatternExact:
		return "exact"
	case PatternPlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// Pattern is a predicate over keys used for bulk invalidation.
//
// Patterns are not hierarchical: ByNode matches a superset of ByStage for the
// same node, but nothing expands one into the other.
type Pattern struct {
	kind     PatternKind
	pluginID string
	nodeID   uint32
	stage    string
	exact    Key
}

// ByNode matches keys of the given plugin and node, any stage or port.
func ByNode(pluginID string, nodeID uint32) Pattern {
	return Pattern{kind: PatternNode, pluginID: pluginID, nodeID: nodeID}
}

// ByStage matches keys of the given plugin and node whose stage equals stage.
// Keys without a stage never match.
func ByStage(pluginID string, nodeID uint32, stage string) Pattern {
	return Pattern{kind: PatternStage, pluginID: pluginID, nodeID: nodeID, stage: stage}
}

// Exact matches only key.
func Exact(key Key) Pattern {
	return Pattern{kind: PatternExact, pluginID: key.PluginID, exact: key}
}

// ByPlugin matches every key of the plugin.
func ByPlugin(pluginID string) Pattern {
	return Pattern{kind: PatternPlugin, pluginID: pluginID}
}

// Kind returns the pattern kind.
func (p Pattern) Kind() PatternKind {
	return p.kind
}

// PluginID returns the plugin every matching key belongs to.
func (p Pattern) PluginID() string {
	return p.pluginID
}

// Matches reports whether key satisfies the pattern.
func (p Pattern) Matches(key Key) bool {
	switch p.kind {
	case PatternNode:
		return key.PluginID == p.pluginID && key.NodeID == p.nodeID
	case PatternStage:
		return key.PluginID == p.pluginID && key.NodeID == p.nodeID &&
			key.staged && key.stage == p.stage
	case PatternExact:
		return key == p.exact
	case PatternPlugin:
		return key.PluginID == p.pluginID
	default:
		return false
	}
}

func (p Pattern) String() string {
	switch p.kind {
	case PatternNode:
		return fmt.Sprintf("node(%s,%d)", p.pluginID, p.nodeID)
	case PatternStage:
		return fmt.Sprintf("stage(%s,%d,%s)", p.pluginID, p.nodeID, p.stage)
	case PatternExact:
		return "exact(" + p.exact.String() + ")"
	case PatternPlugin:
		return "plugin(" + p.pluginID + ")"
	default:
		return "unknown"
	}
}

// Matches reports whether key satisfies pattern.
func Matches(pattern Pattern, key Key) bool {
	return pattern.Matches(key)
}
