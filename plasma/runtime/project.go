package runtime

import (
	"context"

	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/tuple"
)

// runProject converts each PT into a final Record, keyed by path
// variable name. Every operator downstream of project sees Records,
// never PTs — this is the one place in the DAG that boundary is
// crossed (spec.md §4.D: "project").
func runProject(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
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
			rec := make(Record, len(op.Projection))
			for _, f := range op.Projection {
				opID, ok := r.plan.PBind[f.PathVar]
				if !ok {
					continue
				}
				slot := pt[opID]
				if len(f.Props) == 0 {
					rec[f.PathVar] = slot.Node
					continue
				}
				props := make(map[string]interface{}, len(f.Props))
				for _, name := range f.Props {
					if v, ok := slot.Props[name]; ok {
						props[name] = v
					}
				}
				rec[f.PathVar] = props
			}
			if !forward(ctx, out, rec) {
				return
			}
		}
	}()
	return out
}
