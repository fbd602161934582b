package runtime

import (
	"context"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/extractor"
	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/tuple"
)

// runParameter yields a seed value exactly once (per element, if the
// bound value is a slice) and then closes (spec.md §4.D: "parameter").
func runParameter(ctx context.Context, r *run, op *plan.Op) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		v, ok := r.Params[op.ParamName]
		if !ok {
			return
		}
		emit := func(id plasma.NodeID) bool {
			select {
			case out <- tuple.ExtendNode(tuple.Empty(), op.ID, id):
				return true
			case <-ctx.Done():
				return false
			}
		}
		switch ids := v.(type) {
		case plasma.NodeID:
			emit(ids)
		case string:
			emit(plasma.NodeID(ids))
		case []plasma.NodeID:
			for _, id := range ids {
				if !emit(id) {
					return
				}
			}
		case []string:
			for _, id := range ids {
				if !emit(plasma.NodeID(id)) {
					return
				}
			}
		}
	}()
	return out
}

// runTraverse follows one edge predicate from the node bound at
// op.SrcKey, emitting one extended PT per matching target. A visited
// set scoped to this single operator instance prevents the same
// source node from being expanded twice, bounding cycles within one
// query execution (spec.md §4.F). Encountering a proxy node cuts the
// remaining plan into a sub-plan and ships it to the proxy's peer
// instead of continuing locally.
func runTraverse(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)

	// The sub-plan shape is fixed by the plan alone, so it is computed
	// once per operator, not once per tuple.
	var subPlan *plan.Plan
	var subPlanErr error
	subPlanOnce := func() (*plan.Plan, error) {
		if subPlan == nil && subPlanErr == nil {
			subPlan, subPlanErr = extractor.Cut(r.plan, op.ID)
			if subPlan != nil {
				subPlan.HTL = r.HTL - 1
			}
		}
		return subPlan, subPlanErr
	}

	go func() {
		defer close(out)
		defer r.traverseWG.Done()

		visited := make(map[plasma.NodeID]bool)
		for it := range in {
			if e, ok := it.(ErrorItem); ok {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
				continue
			}
			pt, ok := it.(tuple.PT)
			if !ok {
				continue
			}
			src, ok := pt.Node(op.SrcKey)
			if !ok {
				continue
			}
			if visited[src] {
				r.Telemetry.Emit("traverse.cycle-dropped", map[string]interface{}{"op": string(op.ID), "node": string(src)})
				continue
			}
			visited[src] = true

			isProxy, err := r.Graph.IsProxy(ctx, src)
			if err != nil {
				out <- ErrorItem{err}
				continue
			}
			if !isProxy {
				edges, err := r.Graph.Edges(ctx, src, op.EdgePred)
				if err != nil {
					out <- ErrorItem{err}
					continue
				}
				for target := range edges {
					next := tuple.ExtendNode(pt, op.ID, target)
					select {
					case out <- next:
					case <-ctx.Done():
						return
					}
				}
				continue
			}

			if r.HTL <= 0 {
				out <- ErrorItem{plasma.NewError(plasma.HtlExhausted, "hop budget exhausted crossing proxy at %s", src)}
				continue
			}
			if r.Connector == nil {
				out <- ErrorItem{plasma.NewError(plasma.TransportFailure, "no connector configured, cannot cross proxy at %s", src)}
				continue
			}
			node, ok, err := r.Graph.FindNode(ctx, src)
			if err != nil {
				out <- ErrorItem{err}
				continue
			}
			if !ok {
				out <- ErrorItem{plasma.NewError(plasma.GraphMissing, "proxy node %s vanished mid-traversal", src)}
				continue
			}
			remoteID := plasma.NodeID(plasma.RootID)
			if v, ok := node.Property("remote_id"); ok {
				if s, ok := v.(string); ok {
					remoteID = plasma.NodeID(s)
				}
			}
			sub, err := subPlanOnce()
			if err != nil {
				out <- ErrorItem{err}
				continue
			}
			stream, err := r.Connector.OpenSubQuery(ctx, node.ProxyURL(), sub, map[string]interface{}{"cut": string(remoteID)})
			if err != nil {
				out <- ErrorItem{plasma.Wrap(plasma.TransportFailure, err, "opening sub-query to %s", node.ProxyURL())}
				continue
			}
			r.Telemetry.Emit("traverse.proxy-crossing", map[string]interface{}{"op": string(op.ID), "url": node.ProxyURL()})
			merged := mergeRemote(ctx, pt, stream)
			select {
			case r.remotesChan <- merged:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// mergeRemote re-attaches the bindings the inbound pt carried from
// before the cut to every PT the remote sub-plan returns, so the
// locally-visible result is indistinguishable from one a purely local
// traversal would have produced (spec.md §8, location transparency).
func mergeRemote(ctx context.Context, pt tuple.PT, stream <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for it := range stream {
			if e, ok := it.(ErrorItem); ok {
				if !forward(ctx, out, e) {
					return
				}
				continue
			}
			rpt, ok := it.(tuple.PT)
			if !ok {
				continue
			}
			if !forward(ctx, out, tuple.Merge(pt, rpt)) {
				return
			}
		}
	}()
	return out
}
