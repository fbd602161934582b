// Package graph defines the read-only surface the operator runtime uses
// to look at a peer's local property graph (spec.md §4.A). Writes are
// delegated to the underlying store; the query engine never mutates the
// graph it is matching against.
package graph

import (
	"context"
	"regexp"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/plan"
)

// Adapter is the minimal read surface every graph backend must provide.
type Adapter interface {
	// FindNode returns the node for id, or ok=false if it doesn't exist.
	FindNode(ctx context.Context, id plasma.NodeID) (node plasma.Node, ok bool, err error)

	// Edges returns the target→edge-props mapping for id's outgoing
	// edges matching pred. A nil pred matches every edge.
	Edges(ctx context.Context, id plasma.NodeID, pred *plan.EdgePredicate) (map[plasma.NodeID]plasma.EdgeProps, error)

	// IsProxy reports whether id names a proxy node.
	IsProxy(ctx context.Context, id plasma.NodeID) (bool, error)
}

// MatchEdges filters an already-fetched edge mapping against pred. Graph
// backends that can't push the predicate down to storage call this after
// a full scan; backends that can (e.g. an indexed store) use it only to
// validate their own pushdown.
func MatchEdges(edges map[plasma.NodeID]plasma.EdgeProps, pred *plan.EdgePredicate) (map[plasma.NodeID]plasma.EdgeProps, error) {
	if pred == nil || pred.Any {
		return edges, nil
	}

	var re *regexp.Regexp
	if pred.LabelRegex != "" {
		compiled, err := regexp.Compile(pred.LabelRegex)
		if err != nil {
			return nil, plasma.Wrap(plasma.PlanInvalid, err, "compiling edge label regex %q", pred.LabelRegex)
		}
		re = compiled
	}

	out := make(map[plasma.NodeID]plasma.EdgeProps)
	for target, props := range edges {
		if !matchOne(props, pred, re) {
			continue
		}
		out[target] = props
	}
	return out, nil
}

func matchOne(props plasma.EdgeProps, pred *plan.EdgePredicate, re *regexp.Regexp) bool {
	if pred.Label != "" && props.Label() != pred.Label {
		return false
	}
	if re != nil && !re.MatchString(props.Label()) {
		return false
	}
	for k, want := range pred.Where {
		v, ok := props[k]
		if !ok {
			return false
		}
		if s, ok := v.(string); !ok || s != want {
			return false
		}
	}
	return true
}
