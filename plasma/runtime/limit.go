package runtime

import (
	"context"

	"github.com/wbrown/plasma/plan"
)

// runLimit is the one stream-limiting (non-buffering) member of the
// aggregate family: it forwards at most op.Limit items and then stops
// reading, draining whatever the upstream still sends so that
// operator's own goroutine can close out instead of blocking forever
// on a full channel (spec.md §8: limit determinism — this is stable
// because every upstream producer here preserves arrival order).
func runLimit(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		n := 0
		for it := range in {
			if e, ok := it.(ErrorItem); ok {
				if !forward(ctx, out, e) {
					drain(in)
					return
				}
				continue
			}
			if n >= op.Limit {
				drain(in)
				return
			}
			n++
			if !forward(ctx, out, it) {
				drain(in)
				return
			}
			if n >= op.Limit {
				drain(in)
				return
			}
		}
	}()
	return out
}

func drain(in <-chan Item) {
	go func() {
		for range in {
		}
	}()
}
