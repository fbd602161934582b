package peer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/graph"
	"github.com/wbrown/plasma/plan"
)

// chainGraph builds root -(next)-> n1 -(next)-> n2 -(next)-> n3, deep
// enough that a small htl budget runs out before iter-n does.
func chainGraph() *graph.Memory {
	g := graph.NewMemory()
	g.Put(plasma.Node{
		"id":    string(plasma.RootID),
		"edges": map[string]interface{}{"UUID:n1": map[string]interface{}{"label": "next"}},
	})
	g.Put(plasma.Node{
		"id":    "UUID:n1",
		"edges": map[string]interface{}{"UUID:n2": map[string]interface{}{"label": "next"}},
	})
	g.Put(plasma.Node{
		"id":    "UUID:n2",
		"edges": map[string]interface{}{"UUID:n3": map[string]interface{}{"label": "next"}},
	})
	g.Put(plasma.Node{"id": "UUID:n3"})
	return g
}

// oneHopPlan is one iter-n-query round's body: traverse a single
// "next" edge from root-id, projecting the target under "frontier"
// (iterFrontierVar) with no properties, so it carries a bare node id.
func oneHopPlan() *plan.Plan {
	p := plan.New()
	p.Add(&plan.Op{ID: "p1", Type: plan.OpParameter, ParamName: rootIDParam})
	p.Add(&plan.Op{ID: "t1", Type: plan.OpTraverse, Deps: []plasma.OpID{"p1"}, SrcKey: "p1", EdgePred: &plan.EdgePredicate{Label: "next"}})
	p.Add(&plan.Op{ID: "proj", Type: plan.OpProject, Deps: []plasma.OpID{"t1"}, Projection: []plan.ProjectField{{PathVar: iterFrontierVar}}})
	p.PBind[iterFrontierVar] = "t1"
	p.Root = "proj"
	p.Params[rootIDParam] = "p1"
	return p
}

func TestIterateNCompletesWithinBudget(t *testing.T) {
	p := New(chainGraph(), 8)

	ip := oneHopPlan()
	ip.Type = plan.PlanIterN
	ip.IterN = 2
	ip.HTL = 8
	ip.IterParams = map[string]interface{}{rootIDParam: string(plasma.RootID)}

	records, err := p.IterateN(context.Background(), ip)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, plasma.NodeID("UUID:n2"), records[0][iterFrontierVar])
}

// TestIterateNReportsHtlExhaustedInBand exercises spec.md §4.I/§7: a
// recursion that outruns its hop budget surfaces as a successful call
// whose result set carries one {type: error, msg: htl-reached} record,
// not a failed RPC.
func TestIterateNReportsHtlExhaustedInBand(t *testing.T) {
	p := New(chainGraph(), 8)

	ip := oneHopPlan()
	ip.Type = plan.PlanIterN
	ip.IterN = 5
	ip.HTL = 2
	ip.IterParams = map[string]interface{}{rootIDParam: string(plasma.RootID)}

	records, err := p.IterateN(context.Background(), ip)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, plasma.NodeID("UUID:n2"), records[0][iterFrontierVar])
	assert.Equal(t, "error", records[1]["type"])
	assert.Equal(t, "htl-reached", records[1]["msg"])
}

// TestIterNQueryRPCSucceedsOnHtlExhausted drives the same scenario
// through the wire protocol: the iter-n-query call must come back as a
// successful frame (no Error), carrying the htl-reached marker inside
// its result, per spec.md §7's "All request-channel exceptions become
// {error} envelopes" contrasted with HtlExhausted's documented
// non-fatal treatment.
func TestIterNQueryRPCSucceedsOnHtlExhausted(t *testing.T) {
	remote := New(chainGraph(), 8)
	url := listen(t, remote)

	pool := NewPool()
	defer pool.Close()

	ip := oneHopPlan()
	ip.Type = plan.PlanIterN
	ip.IterN = 5
	ip.HTL = 2
	ip.IterParams = map[string]interface{}{rootIDParam: string(plasma.RootID)}

	c, err := pool.get(url)
	require.NoError(t, err)
	raw, err := c.call(context.Background(), MethodIterNQuery, queryChannelRequest{Plan: ip})
	require.NoError(t, err)

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "htl-reached", records[1]["msg"])
}
