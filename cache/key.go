package cache

import (
	"cmp"
	"encoding/json"
	"strconv"
	"strings"
)

// Key identifies one cached node output.
//
// Keys are comparable; two keys are equal iff plugin, node, stage presence,
// stage name, and port all match. A key built with NewKey has no stage and
// encodes single-stage caching. A key built with NewStageKey carries a stage,
// even an empty one, and encodes one phase of a multi-stage pipeline.
type Key struct {
	PluginID string
	NodeID   uint32
	Port     int

	stage  string
	staged bool
}

// NewKey creates a single-stage key.
func NewKey(pluginID string, nodeID uint32, port int) Key {
	return Key{PluginID: pluginID, NodeID: nodeID, Port: port}
}

// NewStageKey creates a key for one stage of a multi-stage node.
func NewStageKey(pluginID string, nodeID uint32, stage string, port int) Key {
	return Key{PluginID: pluginID, NodeID: nodeID, Port: port, stage: stage, staged: true}
}

// HasStage reports whether the key belongs to a named stage.
func (k Key) HasStage() bool {
	return k.staged
}

// Stage returns the stage name and whether one is present.
func (k Key) Stage() (string, bool) {
	return k.stage, k.staged
}

// String renders the key as plugin:<id>:<node>[:<stage>]:<port>.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString("plugin:")
	b.WriteString(k.PluginID)
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(uint64(k.NodeID), 10))
	if k.staged {
		b.WriteByte(':')
		b.WriteString(k.stage)
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(k.Port))
	return b.String()
}

type keyJSON struct {
	PluginID string  `json:"plugin_id"`
	NodeID   uint32  `json:"node_id"`
	StageID  *string `json:"stage_id,omitempty"`
	Port     int     `json:"port_index"`
}

// MarshalJSON encodes the key with an optional stage_id field.
func (k Key) MarshalJSON() ([]byte, error) {
	j := keyJSON{PluginID: k.PluginID, NodeID: k.NodeID, Port: k.Port}
	if k.staged {
		stage := k.stage
		j.StageID = &stage
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a key; a present stage_id, even "", yields a staged key.
func (k *Key) UnmarshalJSON(b []byte) error {
	var j keyJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	if j.StageID != nil {
		*k = NewStageKey(j.PluginID, j.NodeID, *j.StageID, j.Port)
	} else {
		*k = NewKey(j.PluginID, j.NodeID, j.Port)
	}
	return nil
}

// CompareKeys orders keys by plugin, node, stage (unstaged first), then port.
func CompareKeys(a, b Key) int {
	if c := cmp.Compare(a.PluginID, b.PluginID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.NodeID, b.NodeID); c != 0 {
		return c
	}
	if a.staged != b.staged {
		if !a.staged {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.stage, b.stage); c != 0 {
		return c
	}
	return cmp.Compare(a.Port, b.Port)
}
