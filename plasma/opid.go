package plasma

import "fmt"

// OpID is the stable identifier assigned to an operator at plan time. Path
// tuples are keyed by OpID, so merging tuples produced locally and on a
// remote peer is sound iff both sides were built from the same plan.
type OpID string

// OpCounter hands out unique, deterministic-within-a-process operator ids
// as the planner and extractor build/rewrite plans. It is process-local
// state, never shared across peers or queries.
type OpCounter struct{ n int }

// Next returns the next id for this counter, prefixed with tag (e.g. "t"
// for traverse, "j" for join) so printed plans stay legible.
func (c *OpCounter) Next(tag string) OpID {
	c.n++
	return OpID(fmt.Sprintf("%s%d", tag, c.n))
}

// NewOpCounter creates a fresh, zeroed operator-id counter.
func NewOpCounter() *OpCounter { return &OpCounter{} }
