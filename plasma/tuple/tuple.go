// Package tuple defines the path-tuple (PT) type that flows between
// operators in the runtime, and the handful of primitive constructors
// allowed to build one. PTs are immutable once emitted: every function
// here returns a new PT rather than mutating its receiver.
package tuple

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wbrown/plasma"
)

// Slot is the value bound at one operator's key in a PT: either a bare
// node id (the common case) or a nested property mapping, attached by
// property and expression operators.
type Slot struct {
	Node  plasma.NodeID
	Props map[string]interface{}
}

// NodeSlot wraps a bare node id.
func NodeSlot(id plasma.NodeID) Slot { return Slot{Node: id} }

// HasProps reports whether this slot carries loaded properties.
func (s Slot) HasProps() bool { return s.Props != nil }

// PT is the path tuple: a mapping from operator id to the slot that
// operator contributed. PTs are never mutated after being placed on a
// channel; Extend and Merge always allocate a new map.
type PT map[plasma.OpID]Slot

// Empty returns a new, empty path tuple.
func Empty() PT { return PT{} }

// Extend returns a new PT equal to pt with key bound to value. pt itself
// is left untouched.
func Extend(pt PT, key plasma.OpID, value Slot) PT {
	out := make(PT, len(pt)+1)
	for k, v := range pt {
		out[k] = v
	}
	out[key] = value
	return out
}

// ExtendNode is a convenience wrapper around Extend for the common case
// of binding a bare node id.
func ExtendNode(pt PT, key plasma.OpID, id plasma.NodeID) PT {
	return Extend(pt, key, NodeSlot(id))
}

// WithProps returns a new PT where key's slot has props merged in
// (props wins on conflicting property names), preserving the node id.
func WithProps(pt PT, key plasma.OpID, props map[string]interface{}) PT {
	cur := pt[key]
	merged := make(map[string]interface{}, len(cur.Props)+len(props))
	for k, v := range cur.Props {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}
	return Extend(pt, key, Slot{Node: cur.Node, Props: merged})
}

// Merge combines two PTs; where both bind the same key, right wins. Left
// and right are left untouched.
func Merge(left, right PT) PT {
	out := make(PT, len(left)+len(right))
	for k, v := range left {
		out[k] = v
	}
	for k, v := range right {
		out[k] = v
	}
	return out
}

// Node returns the node id bound at key, and whether key is bound at all.
func (pt PT) Node(key plasma.OpID) (plasma.NodeID, bool) {
	s, ok := pt[key]
	return s.Node, ok
}

// Props returns the property mapping loaded for key, or nil if none has
// been loaded yet.
func (pt PT) Props(key plasma.OpID) map[string]interface{} {
	return pt[key].Props
}

// HasProp reports whether key's slot already carries a loaded value for
// the named property, so a property operator can skip a redundant load.
func (pt PT) HasProp(key plasma.OpID, name string) bool {
	if props := pt[key].Props; props != nil {
		_, ok := props[name]
		return ok
	}
	return false
}

// String renders a PT deterministically (sorted keys) for logs and tests.
func (pt PT) String() string {
	keys := make([]plasma.OpID, 0, len(pt))
	for k := range pt {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		s := pt[k]
		if s.Props != nil {
			fmt.Fprintf(&b, "%s: %s%v", k, s.Node, s.Props)
		} else {
			fmt.Fprintf(&b, "%s: %s", k, s.Node)
		}
	}
	b.WriteString("}")
	return b.String()
}
