// Package plasma defines the core data model shared by every layer of the
// query engine: node identifiers, graph nodes, and the fixed set of errors
// the rest of the system reports.
package plasma

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IDPrefix is the fixed prefix every node identifier carries.
const IDPrefix = "UUID:"

// RootID is the reserved identifier of a peer's graph root node.
const RootID = IDPrefix + "ROOT"

// MetaID is the reserved identifier of a peer's metadata anchor node.
const MetaID = IDPrefix + "META"

// NodeID is an opaque node identifier: "UUID:" followed by a canonical
// UUID, or one of the reserved RootID/MetaID constants.
type NodeID string

// NewNodeID generates a fresh random node identifier.
func NewNodeID() NodeID {
	return NodeID(IDPrefix + uuid.New().String())
}

// NodeIDFromUUID wraps an existing UUID as a node identifier.
func NodeIDFromUUID(u uuid.UUID) NodeID {
	return NodeID(IDPrefix + u.String())
}

// Valid reports whether id carries the fixed prefix and a parseable UUID.
func (id NodeID) Valid() bool {
	s := string(id)
	if !strings.HasPrefix(s, IDPrefix) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(s, IDPrefix))
	return err == nil
}

// Short returns the four characters following the prefix, for log lines
// only — never use it as a key or for equality.
func (id NodeID) Short() string {
	s := strings.TrimPrefix(string(id), IDPrefix)
	if len(s) < 4 {
		return s
	}
	return s[:4]
}

func (id NodeID) String() string { return string(id) }

// EdgeProps is the property mapping carried by a single edge; it must
// contain "label" per spec.
type EdgeProps map[string]interface{}

// Label returns the edge's label property, or "" if absent/not a string.
func (e EdgeProps) Label() string {
	if v, ok := e["label"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Node is a mapping from property name to property value. The "id"
// property is mandatory; "proxy" marks a proxy node; "edges" maps target
// node id to EdgeProps.
type Node map[string]interface{}

// ID returns the node's mandatory id property.
func (n Node) ID() NodeID {
	if v, ok := n["id"]; ok {
		if s, ok := v.(string); ok {
			return NodeID(s)
		}
		if id, ok := v.(NodeID); ok {
			return id
		}
	}
	return ""
}

// IsProxy reports whether this node carries a proxy property.
func (n Node) IsProxy() bool {
	_, ok := n["proxy"]
	return ok
}

// ProxyURL returns the proxy property as a string, or "" if this is not
// a proxy node.
func (n Node) ProxyURL() string {
	if v, ok := n["proxy"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Edges returns the node's edges property, or nil if it has none.
func (n Node) Edges() map[NodeID]EdgeProps {
	v, ok := n["edges"]
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case map[NodeID]EdgeProps:
		return m
	case map[string]interface{}:
		out := make(map[NodeID]EdgeProps, len(m))
		for k, raw := range m {
			if props, ok := raw.(map[string]interface{}); ok {
				out[NodeID(k)] = EdgeProps(props)
			} else if props, ok := raw.(EdgeProps); ok {
				out[NodeID(k)] = props
			}
		}
		return out
	}
	return nil
}

// Property reads a single property, reporting whether it is present.
func (n Node) Property(name string) (interface{}, bool) {
	v, ok := n[name]
	return v, ok
}

func (n Node) String() string {
	return fmt.Sprintf("Node{id=%s}", n.ID())
}
