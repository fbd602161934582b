package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/plan"
)

// chainPlan builds param(p1) -> traverse(t1) -> traverse(t2) ->
// recv(r1) -> project(pr1), mirroring the shape the planner produces:
// the whole traversal spine runs before the single shared receive op,
// which in turn runs before projection (spec.md §4.E).
func chainPlan() *plan.Plan {
	p := plan.New()
	p.Add(&plan.Op{ID: "p1", Type: plan.OpParameter, ParamName: "root-id"})
	p.Add(&plan.Op{ID: "t1", Type: plan.OpTraverse, Deps: []plasma.OpID{"p1"}, SrcKey: "p1", EdgePred: &plan.EdgePredicate{Label: "peer"}})
	p.Add(&plan.Op{ID: "t2", Type: plan.OpTraverse, Deps: []plasma.OpID{"t1"}, SrcKey: "t1", EdgePred: &plan.EdgePredicate{Label: "music"}})
	p.Add(&plan.Op{ID: "r1", Type: plan.OpReceive, Deps: []plasma.OpID{"t2"}})
	p.Add(&plan.Op{ID: "pr1", Type: plan.OpProject, Deps: []plasma.OpID{"r1"}, Projection: []plan.ProjectField{{PathVar: "m"}}})
	p.Root = "pr1"
	p.Params["root-id"] = "p1"
	p.PBind["m"] = "t2"
	return p
}

func TestCutProducesSelfContainedSubPlan(t *testing.T) {
	p := chainPlan()
	sub, err := Cut(p, "t2")
	require.NoError(t, err)

	require.NoError(t, sub.Validate())
	assert.Equal(t, plasma.OpID("r1"), sub.Root)

	newParamID, ok := sub.Params[CutParam]
	require.True(t, ok)
	assert.Equal(t, []plasma.OpID{newParamID}, sub.Ops["t2"].Deps)
	assert.Equal(t, newParamID, sub.Ops["t2"].SrcKey)

	// Everything upstream of the cut is gone.
	_, hasT1 := sub.Ops["t1"]
	assert.False(t, hasT1)

	// Everything between the cut and receive (inclusive) survives;
	// nothing downstream of receive does.
	assert.Contains(t, sub.Ops, plasma.OpID("t2"))
	assert.Contains(t, sub.Ops, plasma.OpID("r1"))
	_, hasProject := sub.Ops["pr1"]
	assert.False(t, hasProject)
	assert.Equal(t, plasma.OpID("t2"), sub.PBind["m"])
}

func TestCutRejectsUnknownOperator(t *testing.T) {
	p := chainPlan()
	_, err := Cut(p, "nope")
	require.Error(t, err)
	assert.Equal(t, plasma.PlanInvalid, plasma.KindOf(err))
}

func TestCutDoesNotMutateOriginal(t *testing.T) {
	p := chainPlan()
	_, err := Cut(p, "t2")
	require.NoError(t, err)
	assert.Equal(t, []plasma.OpID{"t1"}, p.Ops["t2"].Deps)
	assert.Equal(t, plasma.OpID("t1"), p.Ops["t2"].SrcKey)
}
