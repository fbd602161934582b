// Package planner lowers a path expression — a sequence of path
// variables each reached by one or more edge predicates, an optional
// where clause, an optional projection, and an optional terminal
// aggregation/sort/limit — into a plan.Plan the runtime can execute
// (spec.md §4.E).
package planner

import (
	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/expr"
	"github.com/wbrown/plasma/plan"
)

// Segment is one path variable and the edge predicates, applied in
// sequence, that reach it from the previous segment (or from the
// query root, for the first segment).
type Segment struct {
	Var   string
	Preds []plan.EdgePredicate
}

// TailKind names the terminal aggregation/sort/limit operator a query
// can end in, on top of its projection.
type TailKind string

const (
	TailNone    TailKind = ""
	TailSort    TailKind = "sort"
	TailMin     TailKind = "min"
	TailMax     TailKind = "max"
	TailAverage TailKind = "average"
	TailCount   TailKind = "count"
	TailChoose  TailKind = "choose"
	TailLimit   TailKind = "limit"
)

// Tail describes the terminal operator appended after projection.
type Tail struct {
	Kind TailKind

	// SortVar/SortProp name the bound path variable and property that
	// sort/min/max/average compare by; unused by count/choose/limit.
	SortVar  string
	SortProp string
	Order    string // "asc" (default) or "desc", for TailSort

	Limit int // for TailLimit
}

func (t *Tail) needsProp() (pathVar, prop string, ok bool) {
	if t == nil {
		return "", "", false
	}
	switch t.Kind {
	case TailSort, TailMin, TailMax, TailAverage:
		return t.SortVar, t.SortProp, true
	}
	return "", "", false
}

// Query is the planner's input: everything a path query needs lowered
// into an operator DAG.
type Query struct {
	Path       []Segment
	Where      *expr.Expr
	Projection []plan.ProjectField
	Tail       *Tail
}

// Build lowers q into a plan.Plan rooted at its terminal operator.
func Build(q Query) (*plan.Plan, error) {
	p := plan.New()
	oc := plasma.NewOpCounter()

	seed := oc.Next("p")
	p.Add(&plan.Op{ID: seed, Type: plan.OpParameter, ParamName: "root-id"})
	p.Params["root-id"] = seed

	required, order := collectRequiredProps(q)

	cur := seed
	for _, seg := range q.Path {
		if len(seg.Preds) == 0 {
			return nil, plasma.NewError(plasma.PlanInvalid, "path segment %q has no edge predicates", seg.Var)
		}
		for _, pred := range seg.Preds {
			pred := pred
			id := oc.Next("t")
			p.Add(&plan.Op{ID: id, Type: plan.OpTraverse, Deps: []plasma.OpID{cur}, SrcKey: cur, EdgePred: &pred})
			cur = id
		}
		p.PBind[seg.Var] = cur

		// Load this variable's required properties right here, before
		// the shared receive op, so a property op rides along in
		// whichever sub-plan ends up owning this segment — including
		// one the extractor ships to a remote peer (spec.md §8
		// scenario (c): a projected property of a path variable bound
		// past a proxy crossing).
		if props, ok := required[seg.Var]; ok {
			propID := oc.Next("prop")
			p.Add(&plan.Op{ID: propID, Type: plan.OpProperty, Deps: []plasma.OpID{cur}, SrcKey: cur, Props: props})
			cur = propID
			delete(required, seg.Var)
		}
	}

	for _, v := range order {
		if _, unbound := required[v]; unbound {
			return nil, plasma.NewError(plasma.PlanInvalid, "expression references unbound path variable %q", v)
		}
	}

	recv := oc.Next("r")
	p.Add(&plan.Op{ID: recv, Type: plan.OpReceive, Deps: []plasma.OpID{cur}})
	cur = recv

	if q.Where != nil {
		sel := oc.Next("sel")
		p.Add(&plan.Op{ID: sel, Type: plan.OpSelect, Deps: []plasma.OpID{cur}, Predicate: q.Where})
		cur = sel
	}

	if len(q.Projection) > 0 {
		projection := q.Projection
		if tailVar, tailProp, ok := q.Tail.needsProp(); ok {
			projection = ensureProjected(projection, tailVar, tailProp)
		}
		proj := oc.Next("proj")
		p.Add(&plan.Op{ID: proj, Type: plan.OpProject, Deps: []plasma.OpID{cur}, Projection: projection})
		cur = proj
	}

	if q.Tail != nil && q.Tail.Kind != TailNone {
		id := oc.Next(string(q.Tail.Kind))
		op := &plan.Op{ID: id, Deps: []plasma.OpID{cur}}
		switch q.Tail.Kind {
		case TailSort:
			op.Type = plan.OpSort
		case TailMin:
			op.Type = plan.OpMin
		case TailMax:
			op.Type = plan.OpMax
		case TailAverage:
			op.Type = plan.OpAverage
		case TailCount:
			op.Type = plan.OpCount
		case TailChoose:
			op.Type = plan.OpChoose
		case TailLimit:
			op.Type = plan.OpLimit
		default:
			return nil, plasma.NewError(plasma.PlanInvalid, "unknown tail kind %q", q.Tail.Kind)
		}
		if op.Type == plan.OpSort || op.Type == plan.OpMin || op.Type == plan.OpMax || op.Type == plan.OpAverage {
			// q.Tail.SortVar is guaranteed bound here: collectRequiredProps
			// folded it into required above, and Build already rejected
			// the query if any required variable went unsatisfied by the
			// path loop.
			op.SortKey = p.PBind[q.Tail.SortVar]
			op.SortVar = q.Tail.SortVar
			op.SortProp = q.Tail.SortProp
			op.Order = q.Tail.Order
		}
		if op.Type == plan.OpLimit {
			op.Limit = q.Tail.Limit
		}
		p.Add(op)
		cur = id
	}

	p.Root = cur
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// collectRequiredProps merges the property needs of q's where clause,
// projection, and sort/min/max/average tail into one path-variable →
// property-names map (deduplicated), plus the order path variables
// were first referenced in, so the planner can insert a single
// property op per variable immediately after the path segment that
// binds it, rather than appending them all after the shared receive.
func collectRequiredProps(q Query) (map[string][]string, []string) {
	byVar := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	var order []string
	add := func(pathVar, prop string) {
		if seen[pathVar] == nil {
			seen[pathVar] = make(map[string]bool)
			order = append(order, pathVar)
		}
		if seen[pathVar][prop] {
			return
		}
		seen[pathVar][prop] = true
		byVar[pathVar] = append(byVar[pathVar], prop)
	}

	if q.Where != nil {
		for _, rq := range expr.RequiredPVars(*q.Where) {
			add(rq.PathVar, rq.Property)
		}
	}
	for _, f := range q.Projection {
		for _, prop := range f.Props {
			add(f.PathVar, prop)
		}
	}
	if pathVar, prop, ok := q.Tail.needsProp(); ok {
		add(pathVar, prop)
	}
	return byVar, order
}

// ensureProjected returns projection with prop guaranteed present
// among pathVar's projected props, adding a field for pathVar if the
// query didn't already project it. A sort/min/max/average tail runs
// after project (spec.md §4.E step 6) and compares Record fields, so
// whatever property it sorts by must survive project even if the
// caller's own projection list didn't ask for it.
func ensureProjected(projection []plan.ProjectField, pathVar, prop string) []plan.ProjectField {
	for i, f := range projection {
		if f.PathVar != pathVar {
			continue
		}
		for _, existing := range f.Props {
			if existing == prop {
				return projection
			}
		}
		out := make([]plan.ProjectField, len(projection))
		copy(out, projection)
		out[i].Props = append(append([]string{}, f.Props...), prop)
		return out
	}
	out := make([]plan.ProjectField, len(projection), len(projection)+1)
	copy(out, projection)
	return append(out, plan.ProjectField{PathVar: pathVar, Props: []string{prop}})
}
