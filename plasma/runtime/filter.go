package runtime

import (
	"context"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/expr"
	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/tuple"
)

// runProperty pre-loads the named properties of the node bound at
// op.SrcKey, so later select/expression/project operators can read
// them straight off the tuple without touching the graph again. A
// tuple that already carries every requested property passes through
// without a store read.
func runProperty(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for it := range in {
			if e, ok := it.(ErrorItem); ok {
				forward(ctx, out, e)
				continue
			}
			pt, ok := it.(tuple.PT)
			if !ok {
				continue
			}
			id, ok := pt.Node(op.SrcKey)
			if !ok {
				continue
			}
			loadedAlready := true
			for _, name := range op.Props {
				if !pt.HasProp(op.SrcKey, name) {
					loadedAlready = false
					break
				}
			}
			if loadedAlready {
				if !forward(ctx, out, pt) {
					return
				}
				continue
			}
			node, found, err := r.Graph.FindNode(ctx, id)
			if err != nil {
				forward(ctx, out, ErrorItem{err})
				continue
			}
			if !found {
				forward(ctx, out, ErrorItem{plasma.NewError(plasma.GraphMissing, "node %s not found", id)})
				continue
			}
			loaded := make(map[string]interface{}, len(op.Props))
			for _, name := range op.Props {
				if v, ok := node.Property(name); ok {
					loaded[name] = v
				}
			}
			if !forward(ctx, out, tuple.WithProps(pt, op.SrcKey, loaded)) {
				return
			}
		}
	}()
	return out
}

// bindings builds the expr evaluation environment for pt from the
// path variables required by t, resolving each PVarProperty via the
// plan's pbind (path variable name → operator id).
func bindings(p *plan.Plan, pt tuple.PT, t expr.Term) map[string]expr.Value {
	out := make(map[string]expr.Value)
	for _, rq := range expr.RequiredPVars(t) {
		opID, ok := p.PBind[rq.PathVar]
		if !ok {
			continue
		}
		if v, ok := pt.Props(opID)[rq.Property]; ok {
			out[rq.SyntheticVar()] = v
		}
	}
	return out
}

// runSelect drops any tuple whose predicate does not evaluate to
// true; a type mismatch evaluating the predicate also drops the
// tuple (spec.md §7: TypeMismatch is non-fatal).
func runSelect(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for it := range in {
			if e, ok := it.(ErrorItem); ok {
				forward(ctx, out, e)
				continue
			}
			pt, ok := it.(tuple.PT)
			if !ok {
				continue
			}
			v, err := expr.Eval(*op.Predicate, bindings(r.plan, pt, *op.Predicate))
			if err != nil {
				r.Telemetry.Emit("select.dropped", map[string]interface{}{"op": string(op.ID), "error": err.Error()})
				continue
			}
			keep, _ := v.(bool)
			if !keep {
				continue
			}
			if !forward(ctx, out, pt) {
				return
			}
		}
	}()
	return out
}

// runExpression evaluates op.Expression and binds its result under
// this operator's own slot (Props["value"]) so a later project or
// aggregate step can read it via the plan's pbind.
func runExpression(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for it := range in {
			if e, ok := it.(ErrorItem); ok {
				forward(ctx, out, e)
				continue
			}
			pt, ok := it.(tuple.PT)
			if !ok {
				continue
			}
			v, err := expr.Eval(*op.Expression, bindings(r.plan, pt, *op.Expression))
			if err != nil {
				r.Telemetry.Emit("expression.error", map[string]interface{}{"op": string(op.ID), "error": err.Error()})
				continue
			}
			next := tuple.WithProps(pt, op.ID, map[string]interface{}{"value": v})
			if !forward(ctx, out, next) {
				return
			}
		}
	}()
	return out
}

// forward writes it to out, reporting false if ctx was cancelled
// first so the caller's read loop can stop promptly.
func forward(ctx context.Context, out chan<- Item, it Item) bool {
	select {
	case out <- it:
		return true
	case <-ctx.Done():
		return false
	}
}
