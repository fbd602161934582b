package runtime

import (
	"context"
	"sort"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/tuple"
)

// drainToBuffer reads in to exhaustion, forwarding any ErrorItem
// immediately and buffering every other item for the aggregate
// family's fold step once the input closes.
func drainToBuffer(ctx context.Context, out chan<- Item, in <-chan Item) []Item {
	var buf []Item
	for it := range in {
		if e, ok := it.(ErrorItem); ok {
			forward(ctx, out, e)
			continue
		}
		buf = append(buf, it)
	}
	return buf
}

// runAggregate is the base operator: buffer everything, then reissue
// it unchanged once the input closes. It exists as an explicit
// synchronization point — e.g. to guarantee a stable order to a
// downstream sort/limit pair that would otherwise race.
func runAggregate(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		buf := drainToBuffer(ctx, out, in)
		for _, it := range buf {
			if !forward(ctx, out, it) {
				return
			}
		}
		r.Telemetry.Emit("aggregate.emit", map[string]interface{}{"op": string(op.ID), "count": len(buf)})
	}()
	return out
}

func sortValue(pt tuple.PT, key plasma.OpID, prop string) (float64, bool) {
	v, ok := pt[key].Props[prop]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// compareValue extracts the comparison value a sort/min/max/average
// tail needs, from whichever item kind reaches it: a raw path tuple
// when the tail has no preceding project, or the Record project
// turned it into when it does (the planner's ordinary shape per
// spec.md §4.E step 6, which appends these tails after project). The
// planner guarantees op.SortProp survives project via
// planner.ensureProjected even when the caller's own projection
// didn't ask for it.
func compareValue(it Item, op *plan.Op) (float64, bool) {
	switch v := it.(type) {
	case tuple.PT:
		return sortValue(v, op.SortKey, op.SortProp)
	case Record:
		props, ok := v[op.SortVar].(map[string]interface{})
		if !ok {
			return 0, false
		}
		val, ok := props[op.SortProp]
		if !ok {
			return 0, false
		}
		return toFloat(val)
	default:
		return 0, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// runSort buffers every item, orders it by the sort property
// compareValue extracts (asc unless op.Order == "desc"), and reissues
// it — PT or Record, whichever it received — in that order. Items
// missing the sort property are dropped (spec.md §7: TypeMismatch is
// non-fatal).
func runSort(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		buf := drainToBuffer(ctx, out, in)

		type keyed struct {
			item Item
			key  float64
		}
		var rows []keyed
		for _, it := range buf {
			k, ok := compareValue(it, op)
			if !ok {
				continue
			}
			rows = append(rows, keyed{item: it, key: k})
		}
		desc := op.Order == "desc"
		sort.SliceStable(rows, func(i, j int) bool {
			if desc {
				return rows[i].key > rows[j].key
			}
			return rows[i].key < rows[j].key
		})
		for _, row := range rows {
			if !forward(ctx, out, row.item) {
				return
			}
		}
	}()
	return out
}

// runExtreme backs both min and max: buffer every item, keep the one
// with the extreme sort-property value, emit it alone, PT or Record
// as received.
func runExtreme(ctx context.Context, r *run, op *plan.Op, in <-chan Item, wantMax bool) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		buf := drainToBuffer(ctx, out, in)

		var best Item
		var bestKey float64
		have := false
		for _, it := range buf {
			k, ok := compareValue(it, op)
			if !ok {
				continue
			}
			if !have || (wantMax && k > bestKey) || (!wantMax && k < bestKey) {
				best, bestKey, have = it, k, true
			}
		}
		if have {
			forward(ctx, out, best)
		}
	}()
	return out
}

// runAverage buffers every item and emits a single Record{"average": v}
// over the sort-property value compareValue extracts across the
// buffer.
func runAverage(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		buf := drainToBuffer(ctx, out, in)

		var sum float64
		var n int
		for _, it := range buf {
			k, ok := compareValue(it, op)
			if !ok {
				continue
			}
			sum += k
			n++
		}
		if n == 0 {
			return
		}
		forward(ctx, out, Record{"average": sum / float64(n)})
	}()
	return out
}

// runCount buffers the whole stream and emits Record{"count": n},
// counting any item kind (PT or Record) so count works whether it
// sits before or after project (spec.md example (e): count over an
// unfiltered result).
func runCount(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		buf := drainToBuffer(ctx, out, in)
		forward(ctx, out, Record{"count": len(buf)})
	}()
	return out
}

// runChoose buffers the stream and emits the first item to have
// arrived, deterministically.
func runChoose(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		buf := drainToBuffer(ctx, out, in)
		if len(buf) > 0 {
			forward(ctx, out, buf[0])
		}
	}()
	return out
}
