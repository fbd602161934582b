package expr

import (
	"encoding/json"
	"fmt"
)

// termWire is the tagged wire shape for a Term. Term is an interface
// (Literal / PVarProperty / Expr), so it needs an explicit discriminator
// to round-trip through JSON — plain interface fields would decode to
// generic maps and lose their Go type.
type termWire struct {
	Kind string `json:"kind"`

	// Kind == "lit"
	VType string      `json:"vtype,omitempty"`
	Value interface{} `json:"value,omitempty"`

	// Kind == "pvar"
	PathVar  string `json:"pathvar,omitempty"`
	Property string `json:"property,omitempty"`

	// Kind == "expr"
	Op   string     `json:"op,omitempty"`
	Args []termWire `json:"args,omitempty"`
}

func encodeTerm(t Term) termWire {
	switch v := t.(type) {
	case Literal:
		vtype := "string"
		switch v.Value.(type) {
		case int64, int:
			vtype = "int"
		case float64, float32:
			vtype = "float"
		case bool:
			vtype = "bool"
		}
		return termWire{Kind: "lit", VType: vtype, Value: v.Value}
	case PVarProperty:
		return termWire{Kind: "pvar", PathVar: v.PathVar, Property: v.Property}
	case Expr:
		args := make([]termWire, len(v.Args))
		for i, a := range v.Args {
			args[i] = encodeTerm(a)
		}
		return termWire{Kind: "expr", Op: v.Op, Args: args}
	default:
		panic(fmt.Sprintf("expr: unknown Term implementation %T", t))
	}
}

func decodeTerm(w termWire) (Term, error) {
	switch w.Kind {
	case "lit":
		switch w.VType {
		case "int":
			switch n := w.Value.(type) {
			case float64:
				return Lit(int64(n)), nil
			case int64:
				return Lit(n), nil
			}
			return nil, fmt.Errorf("expr: int literal had non-numeric value %v", w.Value)
		case "float":
			f, ok := w.Value.(float64)
			if !ok {
				return nil, fmt.Errorf("expr: float literal had non-numeric value %v", w.Value)
			}
			return Lit(f), nil
		case "bool":
			b, ok := w.Value.(bool)
			if !ok {
				return nil, fmt.Errorf("expr: bool literal had non-bool value %v", w.Value)
			}
			return Lit(b), nil
		default:
			return Lit(w.Value), nil
		}
	case "pvar":
		return PVar(w.PathVar, w.Property), nil
	case "expr":
		args := make([]Term, len(w.Args))
		for i, a := range w.Args {
			t, err := decodeTerm(a)
			if err != nil {
				return nil, err
			}
			args[i] = t
		}
		return New(w.Op, args...), nil
	}
	return nil, fmt.Errorf("expr: unknown wire term kind %q", w.Kind)
}

// MarshalJSON implements json.Marshaler so an Expr can sit directly in a
// plan.Op field and still round-trip its nested Literal/PVarProperty/Expr
// operands with their concrete Go types intact.
func (e Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(encodeTerm(e))
}

// UnmarshalJSON implements json.Unmarshaler for Expr.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var w termWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t, err := decodeTerm(w)
	if err != nil {
		return err
	}
	ex, ok := t.(Expr)
	if !ok {
		return fmt.Errorf("expr: expected top-level expr term, got kind %q", w.Kind)
	}
	*e = ex
	return nil
}

// EncodeTerm/DecodeTerm expose the tagged wire format for callers (e.g.
// tests) that need to serialize a bare Term rather than a top-level Expr.
func EncodeTerm(t Term) ([]byte, error) { return json.Marshal(encodeTerm(t)) }

func DecodeTerm(data []byte) (Term, error) {
	var w termWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return decodeTerm(w)
}
