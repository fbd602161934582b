// Package plan defines the operator DAG representation: the serializable
// plan value a planner builds, a sub-plan extractor cuts, and the peer
// facade ships across the wire to be executed by an identical runtime on
// the far side.
package plan

import (
	"encoding/json"
	"fmt"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/expr"
)

// OpType names one of the seventeen operators the runtime understands.
type OpType string

const (
	OpParameter  OpType = "parameter"
	OpTraverse   OpType = "traverse"
	OpJoin       OpType = "join"
	OpProperty   OpType = "property"
	OpSelect     OpType = "select"
	OpExpression OpType = "expression"
	OpProject    OpType = "project"
	OpAggregate  OpType = "aggregate"
	OpSort       OpType = "sort"
	OpMin        OpType = "min"
	OpMax        OpType = "max"
	OpAverage    OpType = "average"
	OpCount      OpType = "count"
	OpChoose     OpType = "choose"
	OpLimit      OpType = "limit"
	OpSend       OpType = "send"
	OpReceive    OpType = "receive"
)

// PlanType distinguishes an ordinary plan from a recursive/iterated one.
type PlanType string

const (
	PlanQuery      PlanType = "query"
	PlanRecur      PlanType = "recur-query"
	PlanIterN      PlanType = "iter-n-query"
)

// EdgePredicate selects which edges a traverse operator follows, per the
// graph adapter's edges(id, pred) contract (spec.md §4.A): absent (Any),
// a symbol (Label equality), a regex (LabelRegex match), or a predicate
// over the full edge mapping (Where, property equality on every entry).
type EdgePredicate struct {
	Any        bool              `json:"any,omitempty"`
	Label      string            `json:"label,omitempty"`
	LabelRegex string            `json:"label_regex,omitempty"`
	Where      map[string]string `json:"where,omitempty"`
}

// Op is one node of the plan DAG.
type Op struct {
	ID   plasma.OpID   `json:"id"`
	Type OpType        `json:"type"`
	Deps []plasma.OpID `json:"deps,omitempty"`

	// Args, interpreted per Type — see the operator table in spec.md §4.D.
	ParamName  string          `json:"param_name,omitempty"`  // parameter
	SrcKey     plasma.OpID     `json:"src_key,omitempty"`      // traverse / property
	EdgePred   *EdgePredicate  `json:"edge_pred,omitempty"`     // traverse
	Props      []string        `json:"props,omitempty"`         // property
	Predicate  *expr.Expr      `json:"predicate,omitempty"`      // select (boolean expr term)
	Expression *expr.Expr      `json:"expression,omitempty"`     // expression
	Projection []ProjectField  `json:"projection,omitempty"`     // project
	SortKey    plasma.OpID     `json:"sort_key,omitempty"`       // sort/min/max/average
	SortVar    string          `json:"sort_var,omitempty"`       // sort/min/max/average: pbind symbol, for Record input after project
	SortProp   string          `json:"sort_prop,omitempty"`      // sort/min/max/average
	Order      string          `json:"order,omitempty"`          // sort: "asc" | "desc"
	Limit      int             `json:"limit,omitempty"`          // limit
	DestChan   string          `json:"dest_chan,omitempty"`       // send
	RemotesKey string          `json:"remotes_key,omitempty"`      // receive
	Timeout    int64           `json:"timeout_ns,omitempty"`       // receive, nanoseconds-as-int64 of time.Duration
}

// ProjectField names one projected path variable and the properties of
// it to include; an empty Props list means "the bare node id".
type ProjectField struct {
	PathVar string   `json:"pathvar"`
	Props   []string `json:"props,omitempty"`
}

// Plan is the full serializable operator DAG for one query.
type Plan struct {
	Ops    map[plasma.OpID]*Op    `json:"ops"`
	Root   plasma.OpID            `json:"root"`
	Params map[string]plasma.OpID `json:"params"`
	PBind  map[string]plasma.OpID `json:"pbind"`

	Type PlanType `json:"type,omitempty"`
	HTL  int      `json:"htl,omitempty"`

	// Recursive/iterated plans only.
	IterN      int                    `json:"iter_n,omitempty"`
	Pred       *expr.Expr             `json:"pred,omitempty"`
	IterParams map[string]interface{} `json:"iter_params,omitempty"`
	SrcURL     string                 `json:"src_url,omitempty"`
}

// New returns an empty plan ready for the planner to populate.
func New() *Plan {
	return &Plan{
		Ops:    make(map[plasma.OpID]*Op),
		Params: make(map[string]plasma.OpID),
		PBind:  make(map[string]plasma.OpID),
		Type:   PlanQuery,
	}
}

// Add inserts op into the plan, keyed by its own ID.
func (p *Plan) Add(op *Op) {
	p.Ops[op.ID] = op
}

// Validate checks the structural invariants the runtime and wire codec
// depend on. A PlanInvalid error here is the one fatal error kind (§7):
// it is surfaced to the caller immediately, never swallowed mid-query.
func (p *Plan) Validate() error {
	if p.Root == "" {
		return plasma.NewError(plasma.PlanInvalid, "plan has no root operator")
	}
	if _, ok := p.Ops[p.Root]; !ok {
		return plasma.NewError(plasma.PlanInvalid, "root operator %q not present in ops", p.Root)
	}
	for id, op := range p.Ops {
		if op.ID != id {
			return plasma.NewError(plasma.PlanInvalid, "operator keyed as %q but has ID %q", id, op.ID)
		}
		if !validOpType(op.Type) {
			return plasma.NewError(plasma.PlanInvalid, "operator %q has unknown type %q", id, op.Type)
		}
		for _, dep := range op.Deps {
			if _, ok := p.Ops[dep]; !ok {
				return plasma.NewError(plasma.PlanInvalid, "operator %q depends on missing operator %q", id, dep)
			}
		}
	}
	return nil
}

func validOpType(t OpType) bool {
	switch t {
	case OpParameter, OpTraverse, OpJoin, OpProperty, OpSelect, OpExpression,
		OpProject, OpAggregate, OpSort, OpMin, OpMax, OpAverage, OpCount,
		OpChoose, OpLimit, OpSend, OpReceive:
		return true
	}
	return false
}

// Clone deep-copies the plan so the extractor and the iteration driver
// can rewrite a copy without mutating the original a remote caller (or a
// previous iteration round) may still be reading.
func (p *Plan) Clone() *Plan {
	raw, err := json.Marshal(p)
	if err != nil {
		// Plans are built entirely from this package's own types, so a
		// marshal failure here indicates a programming error, not bad
		// input — panicking surfaces it immediately during development
		// the same way the teacher's planner panics on invariant
		// violations it treats as impossible.
		panic(fmt.Sprintf("plan: clone of well-formed plan failed: %v", err))
	}
	out := New()
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("plan: clone of well-formed plan failed: %v", err))
	}
	return out
}

// Encode serializes the plan for wire transport (§6: "a serializable
// tree: operator id strings, type tags, dep id lists, arg lists").
func Encode(p *Plan) ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses a plan received over the wire.
func Decode(data []byte) (*Plan, error) {
	p := New()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, plasma.Wrap(plasma.PlanInvalid, err, "decoding plan")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
