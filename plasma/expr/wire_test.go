package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprJSONRoundTrip(t *testing.T) {
	original := New(">=", PVar("b", "score"), Lit(0.6))

	data, err := original.MarshalJSON()
	require.NoError(t, err)

	var decoded Expr
	require.NoError(t, decoded.UnmarshalJSON(data))

	assert.Equal(t, original.Op, decoded.Op)
	require.Len(t, decoded.Args, 2)

	pvar, ok := decoded.Args[0].(PVarProperty)
	require.True(t, ok)
	assert.Equal(t, "b", pvar.PathVar)
	assert.Equal(t, "score", pvar.Property)

	lit, ok := decoded.Args[1].(Literal)
	require.True(t, ok)
	assert.Equal(t, 0.6, lit.Value)

	// behaviorally identical after round-trip
	bindings := map[string]Value{"b.score": 0.8}
	want, _ := original.Resolve(bindings)
	got, _ := decoded.Resolve(bindings)
	assert.Equal(t, want, got)
}

func TestIntLiteralSurvivesRoundTrip(t *testing.T) {
	term := Lit(int64(42))
	data, err := EncodeTerm(term)
	require.NoError(t, err)
	decoded, err := DecodeTerm(data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), decoded.(Literal).Value)
}
