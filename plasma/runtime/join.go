package runtime

import (
	"context"

	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/tuple"
)

// runJoin is a natural join over two PT streams: the right side is
// materialized (a small hash/nested join, grounded in the teacher's
// own hash-join executor phase), and every left tuple is paired with
// every compatible right tuple — compatible meaning every operator id
// bound on both sides names the same node. Errors from either side
// pass straight through.
func runJoin(ctx context.Context, r *run, op *plan.Op, deps []<-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)

		var right []tuple.PT
		for it := range deps[1] {
			if e, ok := it.(ErrorItem); ok {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
				continue
			}
			if pt, ok := it.(tuple.PT); ok {
				right = append(right, pt)
			}
		}

		for it := range deps[0] {
			if e, ok := it.(ErrorItem); ok {
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
				continue
			}
			left, ok := it.(tuple.PT)
			if !ok {
				continue
			}
			for _, rt := range right {
				if !compatible(left, rt) {
					continue
				}
				select {
				case out <- tuple.Merge(left, rt):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func compatible(l, rt tuple.PT) bool {
	for k, lv := range l {
		if rv, ok := rt[k]; ok && rv.Node != lv.Node {
			return false
		}
	}
	return true
}
