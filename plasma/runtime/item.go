// Package runtime is the streaming operator engine: it turns a plan.Plan
// into a DAG of goroutines connected by channels, each goroutine
// implementing exactly one of the seventeen operator types (spec.md §4.D),
// reading path tuples from its dependencies and writing path tuples (or,
// past a project operator, result records) to its own output channel.
package runtime

import "github.com/wbrown/plasma"

// Item is the sum type that flows on every operator channel: a
// tuple.PT before the plan's project operator runs, a Record after it,
// or an ErrorItem reporting a non-fatal condition (spec.md §7) inline
// on the stream rather than through a side channel.
type Item interface{}

// Record is a final, projected query result: path variable name to
// either a bare node id or a property mapping.
type Record map[string]interface{}

// ErrorItem carries a non-fatal error onto the result stream itself,
// the way spec.md §7 describes htl-reached and similar conditions:
// "emitted as an error event on the result stream, not a terminal
// exception."
type ErrorItem struct {
	Err error
}

// Collect drains ch into a slice, for tests and for callers that want
// the whole result set materialized rather than streamed.
func Collect(ch <-chan Item) ([]Item, []error) {
	var items []Item
	var errs []error
	for it := range ch {
		if e, ok := it.(ErrorItem); ok {
			errs = append(errs, e.Err)
			continue
		}
		items = append(items, it)
	}
	return items, errs
}

// KindOf is a convenience for tests asserting on an ErrorItem's kind.
func KindOf(it Item) (plasma.ErrorKind, bool) {
	e, ok := it.(ErrorItem)
	if !ok {
		return 0, false
	}
	return plasma.KindOf(e.Err), true
}
