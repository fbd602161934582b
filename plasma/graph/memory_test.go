package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/plan"
)

func musicGraph() *Memory {
	g := NewMemory()
	g.Put(plasma.Node{
		"id": string(plasma.RootID),
		"edges": map[string]interface{}{
			"UUID:m": map[string]interface{}{"label": "music"},
		},
	})
	g.Put(plasma.Node{
		"id": "UUID:m",
		"edges": map[string]interface{}{
			"UUID:s": map[string]interface{}{"label": "synths"},
		},
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
	g.Put(plasma.Node{"id": "UUID:bass", "label": "bass", "score": 0.8})
	g.Put(plasma.Node{"id": "UUID:kick", "label": "kick", "score": 0.7})
	g.Put(plasma.Node{"id": "UUID:snare", "label": "snare", "score": 0.4})
	g.Put(plasma.Node{"id": "UUID:hat", "label": "hat", "score": 0.3})
	return g
}

func TestEdgesFiltersByLabel(t *testing.T) {
	g := musicGraph()
	ctx := context.Background()

	edges, err := g.Edges(ctx, "UUID:s", &plan.EdgePredicate{Label: "synth"})
	require.NoError(t, err)
	assert.Len(t, edges, 4)

	edges, err = g.Edges(ctx, "UUID:s", &plan.EdgePredicate{Label: "nope"})
	require.NoError(t, err)
	assert.Len(t, edges, 0)
}

func TestEdgesMissingNodeIsGraphMissing(t *testing.T) {
	g := NewMemory()
	_, err := g.Edges(context.Background(), "UUID:ghost", nil)
	require.Error(t, err)
	assert.Equal(t, plasma.GraphMissing, plasma.KindOf(err))
}

func TestIsProxy(t *testing.T) {
	g := NewMemory()
	g.Put(plasma.Node{"id": "UUID:a"})
	g.Put(plasma.Node{"id": "UUID:b", "proxy": "plasma://peer:9001"})

	ctx := context.Background()
	a, err := g.IsProxy(ctx, "UUID:a")
	require.NoError(t, err)
	assert.False(t, a)

	b, err := g.IsProxy(ctx, "UUID:b")
	require.NoError(t, err)
	assert.True(t, b)
}
