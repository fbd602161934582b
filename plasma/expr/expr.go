// Package expr implements the symbolic expression sub-language:
// arithmetic/relational expressions over bound path variables and their
// properties, plus a dedicated interpreter over a fixed operator table.
// The symbolic form is both a transport shape and an executable — it is
// never evaluated with a host-language eval.
package expr

import (
	"fmt"
)

// Value is anything an expression can produce or consume: a literal, a
// loaded node property, or the result of a nested expression.
type Value interface{}

// Term is one operand of an Expr: a literal, a property reference
// (PVarProperty), or a nested Expr.
type Term interface {
	fmt.Stringer
	// Resolve looks the term up in the current binding set. ok is false
	// when a PVarProperty's synthetic variable hasn't been bound yet (the
	// planner failed to insert the matching property op) or, for an
	// Expr, when evaluating it fails.
	Resolve(bindings map[string]Value) (Value, bool)
}

// Literal is a constant term.
type Literal struct{ Value Value }

func Lit(v Value) Literal                                      { return Literal{Value: v} }
func (l Literal) Resolve(map[string]Value) (Value, bool)       { return l.Value, true }
func (l Literal) String() string                               { return fmt.Sprintf("%v", l.Value) }

// PVarProperty references a property of a bound path variable, e.g.
// `(score b)` reads the "score" property of path variable "b". The
// planner lowers each PVarProperty into a property operator that
// pre-loads the property, binding it under SyntheticVar().
type PVarProperty struct {
	PathVar  string
	Property string
}

// PVar builds a property reference.
func PVar(pathVar, property string) PVarProperty {
	return PVarProperty{PathVar: pathVar, Property: property}
}

// SyntheticVar is the binding-map key the planner's property operator
// populates for this reference.
func (p PVarProperty) SyntheticVar() string {
	return p.PathVar + "." + p.Property
}

func (p PVarProperty) Resolve(bindings map[string]Value) (Value, bool) {
	v, ok := bindings[p.SyntheticVar()]
	return v, ok
}

func (p PVarProperty) String() string {
	return fmt.Sprintf("(%s %s)", p.Property, p.PathVar)
}

// Expr is any unary/binary/ternary operator over its Args, each of which
// may itself be a Literal, a PVarProperty, or a nested Expr.
type Expr struct {
	Op   string
	Args []Term
}

// New builds an expression node. The operator must be one from Ops.
func New(op string, args ...Term) Expr {
	return Expr{Op: op, Args: args}
}

func (e Expr) String() string {
	s := "(" + e.Op
	for _, a := range e.Args {
		s += " " + a.String()
	}
	return s + ")"
}

// Resolve evaluates the expression tree, substituting pvar symbols with
// their bound property value and applying the fixed operator table.
func (e Expr) Resolve(bindings map[string]Value) (Value, bool) {
	v, err := Eval(e, bindings)
	if err != nil {
		return nil, false
	}
	return v, true
}

// RequiredPVars returns every PVarProperty reachable from term, so the
// planner can insert one property operator per distinct reference.
func RequiredPVars(t Term) []PVarProperty {
	var out []PVarProperty
	collectPVars(t, &out)
	return out
}

func collectPVars(t Term, out *[]PVarProperty) {
	switch v := t.(type) {
	case PVarProperty:
		*out = append(*out, v)
	case Expr:
		for _, a := range v.Args {
			collectPVars(a, out)
		}
	}
}
