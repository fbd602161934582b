package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/expr"
)

func simplePlan() *Plan {
	p := New()
	p.Add(&Op{ID: "p1", Type: OpParameter, ParamName: plasma.RootID})
	p.Add(&Op{ID: "t1", Type: OpTraverse, Deps: []plasma.OpID{"p1"}, SrcKey: "p1", EdgePred: &EdgePredicate{Label: "music"}})
	pred := expr.New(">=", expr.PVar("t1", "score"), expr.Lit(0.6))
	p.Add(&Op{ID: "sel1", Type: OpSelect, Deps: []plasma.OpID{"t1"}, SrcKey: "t1", Predicate: &pred})
	p.Add(&Op{ID: "proj1", Type: OpProject, Deps: []plasma.OpID{"sel1"}, Projection: []ProjectField{{PathVar: "t1", Props: []string{"label"}}}})
	p.Root = "proj1"
	p.Params[string(plasma.RootID)] = "p1"
	p.PBind["t1"] = "t1"
	return p
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	p := simplePlan()
	require.NoError(t, p.Validate())
}

func TestValidateRejectsMissingRoot(t *testing.T) {
	p := New()
	err := p.Validate()
	require.Error(t, err)
	assert.Equal(t, plasma.PlanInvalid, plasma.KindOf(err))
}

func TestValidateRejectsBrokenDep(t *testing.T) {
	p := New()
	p.Add(&Op{ID: "a", Type: OpParameter, Deps: []plasma.OpID{"ghost"}})
	p.Root = "a"
	err := p.Validate()
	require.Error(t, err)
	assert.Equal(t, plasma.PlanInvalid, plasma.KindOf(err))
}

func TestValidateRejectsUnknownOpType(t *testing.T) {
	p := New()
	p.Add(&Op{ID: "a", Type: "bogus"})
	p.Root = "a"
	err := p.Validate()
	require.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := simplePlan()
	data, err := Encode(p)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	require.Equal(t, p.Root, decoded.Root)
	require.Len(t, decoded.Ops, len(p.Ops))

	sel, ok := decoded.Ops["sel1"]
	require.True(t, ok)
	require.NotNil(t, sel.Predicate)
	assert.Equal(t, ">=", sel.Predicate.Op)
}

func TestCloneIsIndependent(t *testing.T) {
	p := simplePlan()
	clone := p.Clone()
	clone.Ops["t1"].EdgePred.Label = "changed"

	assert.Equal(t, "music", p.Ops["t1"].EdgePred.Label, "mutating the clone must not affect the original")
	assert.Equal(t, "changed", clone.Ops["t1"].EdgePred.Label)
}
