package graph

import (
	"context"
	"sync"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/plan"
)

// Memory is an in-process Adapter backed by a plain map, used by the
// runtime/planner test suites and by examples/demos that don't need
// durability.
type Memory struct {
	mu    sync.RWMutex
	nodes map[plasma.NodeID]plasma.Node
}

// NewMemory creates an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[plasma.NodeID]plasma.Node)}
}

// Put inserts or replaces a node.
func (m *Memory) Put(n plasma.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.ID()] = n
}

func (m *Memory) FindNode(_ context.Context, id plasma.NodeID) (plasma.Node, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok, nil
}

func (m *Memory) Edges(ctx context.Context, id plasma.NodeID, pred *plan.EdgePredicate) (map[plasma.NodeID]plasma.EdgeProps, error) {
	n, ok, err := m.FindNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, plasma.NewError(plasma.GraphMissing, "node %s not found", id)
	}
	return MatchEdges(n.Edges(), pred)
}

func (m *Memory) IsProxy(ctx context.Context, id plasma.NodeID) (bool, error) {
	n, ok, err := m.FindNode(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, plasma.NewError(plasma.GraphMissing, "node %s not found", id)
	}
	return n.IsProxy(), nil
}
