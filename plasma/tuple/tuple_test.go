package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/plasma"
)

func TestExtendDoesNotMutateSource(t *testing.T) {
	base := Empty()
	extended := ExtendNode(base, "t1", "UUID:a")

	assert.Len(t, base, 0, "Extend must not mutate its source PT")
	require.Len(t, extended, 1)
	id, ok := extended.Node("t1")
	require.True(t, ok)
	assert.Equal(t, plasma.NodeID("UUID:a"), id)
}

func TestMergeRightWins(t *testing.T) {
	left := ExtendNode(Empty(), "t1", "UUID:a")
	left = ExtendNode(left, "t2", "UUID:b")
	right := ExtendNode(Empty(), "t2", "UUID:c")

	merged := Merge(left, right)

	a, _ := merged.Node("t1")
	b, _ := merged.Node("t2")
	assert.Equal(t, plasma.NodeID("UUID:a"), a)
	assert.Equal(t, plasma.NodeID("UUID:c"), b, "right operand should win on conflicting keys")

	// originals untouched
	origB, _ := left.Node("t2")
	assert.Equal(t, plasma.NodeID("UUID:b"), origB)
}

func TestWithPropsMergesAndPreservesNode(t *testing.T) {
	pt := ExtendNode(Empty(), "p1", "UUID:a")
	pt = WithProps(pt, "p1", map[string]interface{}{"score": 0.8})
	pt = WithProps(pt, "p1", map[string]interface{}{"label": "bass"})

	id, ok := pt.Node("p1")
	require.True(t, ok)
	assert.Equal(t, plasma.NodeID("UUID:a"), id)
	assert.True(t, pt.HasProp("p1", "score"))
	assert.True(t, pt.HasProp("p1", "label"))
	assert.False(t, pt.HasProp("p1", "missing"))
}
