package runtime

import (
	"context"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/plan"
)

// Execute runs p to completion, returning a channel of Items (tuple.PT
// before p's project operator, Record after it, ErrorItem for
// non-fatal conditions encountered along the way). The returned
// channel closes once every operator in the DAG has closed its own
// output, including every remote stream a proxy crossing discovered.
//
// Execute does not block: all work happens in goroutines spawned here
// and in the per-operator stage functions; cancel ctx to abandon the
// query early.
func Execute(ctx context.Context, p *plan.Plan, ectx *ExecCtx) (<-chan Item, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := newRun(ectx, p)
	built := make(map[plasma.OpID]<-chan Item)
	return build(ctx, r, p.Root, built), nil
}

func build(ctx context.Context, r *run, id plasma.OpID, built map[plasma.OpID]<-chan Item) <-chan Item {
	if ch, ok := built[id]; ok {
		return ch
	}
	op := r.plan.Ops[id]
	deps := make([]<-chan Item, len(op.Deps))
	for i, d := range op.Deps {
		deps[i] = build(ctx, r, d, built)
	}
	out := spawn(ctx, r, op, deps)
	built[id] = out
	return out
}

func spawn(ctx context.Context, r *run, op *plan.Op, deps []<-chan Item) <-chan Item {
	switch op.Type {
	case plan.OpParameter:
		return runParameter(ctx, r, op)
	case plan.OpTraverse:
		return runTraverse(ctx, r, op, deps[0])
	case plan.OpJoin:
		return runJoin(ctx, r, op, deps)
	case plan.OpProperty:
		return runProperty(ctx, r, op, deps[0])
	case plan.OpSelect:
		return runSelect(ctx, r, op, deps[0])
	case plan.OpExpression:
		return runExpression(ctx, r, op, deps[0])
	case plan.OpProject:
		return runProject(ctx, r, op, deps[0])
	case plan.OpAggregate:
		return runAggregate(ctx, r, op, deps[0])
	case plan.OpSort:
		return runSort(ctx, r, op, deps[0])
	case plan.OpMin:
		return runExtreme(ctx, r, op, deps[0], false)
	case plan.OpMax:
		return runExtreme(ctx, r, op, deps[0], true)
	case plan.OpAverage:
		return runAverage(ctx, r, op, deps[0])
	case plan.OpCount:
		return runCount(ctx, r, op, deps[0])
	case plan.OpChoose:
		return runChoose(ctx, r, op, deps[0])
	case plan.OpLimit:
		return runLimit(ctx, r, op, deps[0])
	case plan.OpSend:
		return runSend(ctx, r, op, deps[0])
	case plan.OpReceive:
		return runReceive(ctx, r, op, deps[0])
	default:
		out := make(chan Item, 1)
		out <- ErrorItem{plasma.NewError(plasma.PlanInvalid, "unhandled operator type %q", op.Type)}
		close(out)
		return out
	}
}
