// Package extractor implements sub-plan extraction (spec.md §4.G): cut
// a plan at a traversal operator that turned out to target a proxy
// node, and produce a self-contained plan that re-runs everything from
// that traversal out to (and including) the receive operator it feeds,
// seeded by a fresh parameter bound to the proxy's remote node id
// instead of whatever fed the cut operator locally. The sub-plan stops
// at receive rather than running through to the original root: it
// yields raw path tuples, which the caller merges with the bindings
// the cut lost and feeds into its own receive operator, exactly as if
// the rest of the traversal chain had matched locally. Everything
// downstream of receive (select, project, any tail) still runs once,
// locally, over the merged stream.
package extractor

import (
	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/plan"
)

// CutParam is the parameter name the sub-plan's seed operator binds
// to; the caller passes the proxy's remote node id under this key as
// the sub-query's execution-time parameters.
const CutParam = "cut"

// Cut builds the sub-plan that results from replacing everything
// upstream of cutID with a fresh parameter operator, and stops at the
// first receive operator reachable forward from cutID — the sub-plan's
// root. cutID must name a traverse (or join) operator upstream of
// exactly one receive operator; its Deps and SrcKey are rewired to
// point at the new parameter instead of their original source.
func Cut(p *plan.Plan, cutID plasma.OpID) (*plan.Plan, error) {
	clone := p.Clone()

	cutOp, ok := clone.Ops[cutID]
	if !ok {
		return nil, plasma.NewError(plasma.PlanInvalid, "cut operator %q not present in plan", cutID)
	}

	dependents := make(map[plasma.OpID][]plasma.OpID, len(clone.Ops))
	for id, op := range clone.Ops {
		for _, dep := range op.Deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	// Walk forward from the cut, keeping everything reached, but stop
	// expanding past a receive operator: that is the sub-plan's root.
	keep := map[plasma.OpID]bool{cutID: true}
	queue := []plasma.OpID{cutID}
	var recvID plasma.OpID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if clone.Ops[id].Type == plan.OpReceive {
			if recvID != "" && recvID != id {
				return nil, plasma.NewError(plasma.PlanInvalid, "cut operator %q reaches more than one receive operator", cutID)
			}
			recvID = id
			continue
		}
		for _, dep := range dependents[id] {
			if !keep[dep] {
				keep[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	if recvID == "" {
		return nil, plasma.NewError(plasma.PlanInvalid, "cut operator %q does not reach a receive operator", cutID)
	}

	newParamID := plasma.OpID("cut:" + string(cutID))
	cutOp.Deps = []plasma.OpID{newParamID}
	cutOp.SrcKey = newParamID

	sub := plan.New()
	sub.Add(&plan.Op{ID: newParamID, Type: plan.OpParameter, ParamName: CutParam})
	for id := range keep {
		sub.Add(clone.Ops[id])
	}
	sub.Root = recvID
	sub.Params[CutParam] = newParamID
	sub.HTL = clone.HTL
	sub.Type = plan.PlanQuery

	for sym, opID := range clone.PBind {
		if keep[opID] {
			sub.PBind[sym] = opID
		}
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}
	return sub, nil
}
