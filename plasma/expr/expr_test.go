package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndEvalComparison(t *testing.T) {
	term, err := Parse("(>= (score b) 0.6)")
	require.NoError(t, err)

	cases := []struct {
		score float64
		want  bool
	}{
		{0.8, true},
		{0.6, true},
		{0.59, false},
	}
	for _, c := range cases {
		bindings := map[string]Value{"b.score": c.score}
		v, ok := term.Resolve(bindings)
		require.True(t, ok, "resolving %v", term)
		assert.Equal(t, c.want, v)
	}
}

func TestArithmeticIntegerVsFloat(t *testing.T) {
	sum := New("+", Lit(int64(2)), Lit(int64(3)))
	v, err := Eval(sum, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	fsum := New("+", Lit(2.5), Lit(int64(1)))
	v, err = Eval(fsum, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)
}

func TestDivisionByZero(t *testing.T) {
	_, err := Eval(New("/", Lit(int64(1)), Lit(int64(0))), nil)
	assert.Error(t, err)
}

func TestLogicalShortCircuitOverAllArgs(t *testing.T) {
	v, err := Eval(New("and", Lit(true), Lit(true), Lit(false)), nil)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestUnknownOperatorRejected(t *testing.T) {
	_, err := Eval(New("frobnicate", Lit(1)), nil)
	assert.Error(t, err)
}

func TestTypeMismatchReportsTypeError(t *testing.T) {
	_, err := Eval(New(">=", Lit("not-a-number"), Lit(1)), nil)
	require.Error(t, err)
	var te *TypeError
	require.ErrorAs(t, err, &te)
}

func TestRequiredPVarsCollectsNested(t *testing.T) {
	term, err := Parse("(and (>= (score b) 0.6) (< (price b) 100))")
	require.NoError(t, err)
	pvars := RequiredPVars(term)
	require.Len(t, pvars, 2)
	assert.Equal(t, "score", pvars[0].Property)
	assert.Equal(t, "price", pvars[1].Property)
}
