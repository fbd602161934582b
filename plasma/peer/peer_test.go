package peer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/graph"
	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/planner"
	"github.com/wbrown/plasma/runtime"
)

// listen starts p serving on an ephemeral loopback port and returns its
// plasma:// URL; the listener is closed when the test finishes.
func listen(t *testing.T, p *Peer) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go p.Serve(ln)
	t.Cleanup(func() { p.Close() })
	return "plasma://" + ln.Addr().String()
}

func TestPingReturnsFixedMarker(t *testing.T) {
	p := New(graph.NewMemory(), 8)
	url := listen(t, p)

	pool := NewPool()
	defer pool.Close()
	marker, err := pool.Ping(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, PingMarker, marker)
}

// musicGraph reproduces spec.md example (b): root -> music -> synths ->
// four synth leaves, the graph a remote peer exposes past the proxy.
func musicGraph() *graph.Memory {
	g := graph.NewMemory()
	g.Put(plasma.Node{
		"id":    string(plasma.RootID),
		"edges": map[string]interface{}{"UUID:m": map[string]interface{}{"label": "music"}},
	})
	g.Put(plasma.Node{
		"id":    "UUID:m",
		"edges": map[string]interface{}{"UUID:s": map[string]interface{}{"label": "synths"}},
	})
	g.Put(plasma.Node{
		"id": "UUID:s",
		"edges": map[string]interface{}{
			"UUID:bass":  map[string]interface{}{"label": "synth"},
			"UUID:kick":  map[string]interface{}{"label": "synth"},
			"UUID:snare": map[string]interface{}{"label": "synth"},
			"UUID:hat":   map[string]interface{}{"label": "synth"},
		},
	})
	g.Put(plasma.Node{"id": "UUID:bass", "label": "bass"})
	g.Put(plasma.Node{"id": "UUID:kick", "label": "kick"})
	g.Put(plasma.Node{"id": "UUID:snare", "label": "snare"})
	g.Put(plasma.Node{"id": "UUID:hat", "label": "hat"})
	return g
}

// proxyGraph is the local peer's graph: root -> net -> peer, where peer
// is a proxy node pointing at remoteURL (spec.md example (c)).
func proxyGraph(remoteURL string) *graph.Memory {
	g := graph.NewMemory()
	g.Put(plasma.Node{
		"id":    string(plasma.RootID),
		"edges": map[string]interface{}{"UUID:net": map[string]interface{}{"label": "net"}},
	})
	g.Put(plasma.Node{
		"id":    "UUID:net",
		"edges": map[string]interface{}{"UUID:peer": map[string]interface{}{"label": "peer"}},
	})
	g.Put(plasma.Node{"id": "UUID:peer", "proxy": remoteURL})
	return g
}

// crossingPlan builds path [synth [:net :peer :music :synths :synth]]
// project [synth :label], the full local plan before any cut: the
// traverse op whose target is the proxy node (t-peer) hands it to its
// dependent (t-music), whose runTraverse finds its src is a proxy and
// cuts the plan there.
func crossingPlan() *plan.Plan {
	p := plan.New()
	p.Add(&plan.Op{ID: "p1", Type: plan.OpParameter, ParamName: "root-id"})
	p.Add(&plan.Op{ID: "t-net", Type: plan.OpTraverse, Deps: []plasma.OpID{"p1"}, SrcKey: "p1", EdgePred: &plan.EdgePredicate{Label: "net"}})
	p.Add(&plan.Op{ID: "t-peer", Type: plan.OpTraverse, Deps: []plasma.OpID{"t-net"}, SrcKey: "t-net", EdgePred: &plan.EdgePredicate{Label: "peer"}})
	p.Add(&plan.Op{ID: "t-music", Type: plan.OpTraverse, Deps: []plasma.OpID{"t-peer"}, SrcKey: "t-peer", EdgePred: &plan.EdgePredicate{Label: "music"}})
	p.Add(&plan.Op{ID: "t-synths", Type: plan.OpTraverse, Deps: []plasma.OpID{"t-music"}, SrcKey: "t-music", EdgePred: &plan.EdgePredicate{Label: "synths"}})
	p.Add(&plan.Op{ID: "t-synth", Type: plan.OpTraverse, Deps: []plasma.OpID{"t-synths"}, SrcKey: "t-synths", EdgePred: &plan.EdgePredicate{Label: "synth"}})
	p.Add(&plan.Op{ID: "prop-label", Type: plan.OpProperty, Deps: []plasma.OpID{"t-synth"}, SrcKey: "t-synth", Props: []string{"label"}})
	p.Add(&plan.Op{ID: "recv", Type: plan.OpReceive, Deps: []plasma.OpID{"prop-label"}})
	p.Add(&plan.Op{ID: "proj", Type: plan.OpProject, Deps: []plasma.OpID{"recv"},
		Projection: []plan.ProjectField{{PathVar: "synth", Props: []string{"label"}}}})
	p.Root = "proj"
	p.Params["root-id"] = "p1"
	p.PBind["synth"] = "t-synth"
	return p
}

func TestProxyCrossingReturnsRemoteGraphResults(t *testing.T) {
	remote := New(musicGraph(), 8)
	remoteURL := listen(t, remote)

	local := New(proxyGraph(remoteURL), 8)
	defer local.Pool.Close()

	ectx := &runtime.ExecCtx{
		Graph:     local.Graph,
		Connector: local.Pool,
		Params:    map[string]interface{}{"root-id": string(plasma.RootID)},
		HTL:       8,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := runtime.Execute(ctx, crossingPlan(), ectx)
	require.NoError(t, err)

	items, errs := runtime.Collect(out)
	require.Empty(t, errs)
	require.Len(t, items, 4)

	labels := map[string]bool{}
	for _, it := range items {
		rec, ok := it.(runtime.Record)
		require.True(t, ok)
		synth, ok := rec["synth"].(map[string]interface{})
		require.True(t, ok)
		labels[synth["label"].(string)] = true
	}
	assert.True(t, labels["kick"])
	assert.True(t, labels["bass"])
	assert.True(t, labels["snare"])
	assert.True(t, labels["hat"])
}

// TestPlannerBuiltCrossingPlanReturnsRemoteGraphResults is
// crossingPlan's hand-built fixture run through planner.Build instead:
// path [synth [:net :peer :music :synths :synth]] project [synth
// :label] (spec.md §8 scenario (c)). The projected property belongs to
// a path variable bound past the proxy crossing, so the planner must
// load it before the shared receive op, not after — otherwise it only
// ever resolves against this peer's own (incomplete) graph and every
// post-crossing tuple is dropped as GraphMissing.
func TestPlannerBuiltCrossingPlanReturnsRemoteGraphResults(t *testing.T) {
	remote := New(musicGraph(), 8)
	remoteURL := listen(t, remote)

	local := New(proxyGraph(remoteURL), 8)
	defer local.Pool.Close()

	built, err := planner.Build(planner.Query{
		Path: []planner.Segment{{
			Var: "synth",
			Preds: []plan.EdgePredicate{
				{Label: "net"}, {Label: "peer"}, {Label: "music"}, {Label: "synths"}, {Label: "synth"},
			},
		}},
		Projection: []plan.ProjectField{{PathVar: "synth", Props: []string{"label"}}},
	})
	require.NoError(t, err)

	ectx := &runtime.ExecCtx{
		Graph:     local.Graph,
		Connector: local.Pool,
		Params:    map[string]interface{}{"root-id": string(plasma.RootID)},
		HTL:       8,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := runtime.Execute(ctx, built, ectx)
	require.NoError(t, err)

	items, errs := runtime.Collect(out)
	require.Empty(t, errs)
	require.Len(t, items, 4)

	labels := map[string]bool{}
	for _, it := range items {
		rec, ok := it.(runtime.Record)
		require.True(t, ok)
		synth, ok := rec["synth"].(map[string]interface{})
		require.True(t, ok)
		labels[synth["label"].(string)] = true
	}
	assert.True(t, labels["kick"])
	assert.True(t, labels["bass"])
	assert.True(t, labels["snare"])
	assert.True(t, labels["hat"])
}

func TestNodeByUUIDFetchesRemoteNode(t *testing.T) {
	remote := New(musicGraph(), 8)
	url := listen(t, remote)

	pool := NewPool()
	defer pool.Close()
	node, ok, err := pool.NodeByUUID(context.Background(), url, "UUID:bass")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bass", node["label"])

	_, ok, err = pool.NodeByUUID(context.Background(), url, "UUID:ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}
