// Package badger is the reference Graph adapter backing store: nodes and
// their edges/proxy properties are JSON-encoded values keyed by node id
// in a BadgerDB LSM tree, the way the teacher's storage.BadgerStore keys
// encoded datoms. The underlying transactional store is out of scope for
// this specification (spec.md §1); this package exists so the rest of
// the system has something real to run end-to-end against.
package badger

import (
	"context"
	"encoding/json"
	"fmt"

	bdg "github.com/dgraph-io/badger/v4"
	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/graph"
	"github.com/wbrown/plasma/plan"
)

// Store is a BadgerDB-backed graph.Adapter.
type Store struct {
	db *bdg.DB
}

// Open opens (creating if necessary) a Badger-backed graph store at path.
func Open(path string) (*Store, error) {
	opts := bdg.DefaultOptions(path)
	opts.Logger = nil
	db, err := bdg.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger graph store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func nodeKey(id plasma.NodeID) []byte { return []byte("node:" + string(id)) }

// PutNode writes (or overwrites) a node.
func (s *Store) PutNode(n plasma.Node) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding node %s: %w", n.ID(), err)
	}
	return s.db.Update(func(txn *bdg.Txn) error {
		return txn.Set(nodeKey(n.ID()), raw)
	})
}

// DeleteNode removes a node.
func (s *Store) DeleteNode(id plasma.NodeID) error {
	return s.db.Update(func(txn *bdg.Txn) error {
		return txn.Delete(nodeKey(id))
	})
}

func (s *Store) FindNode(_ context.Context, id plasma.NodeID) (plasma.Node, bool, error) {
	var node plasma.Node
	err := s.db.View(func(txn *bdg.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err == bdg.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &node)
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading node %s: %w", id, err)
	}
	return node, node != nil, nil
}

func (s *Store) Edges(ctx context.Context, id plasma.NodeID, pred *plan.EdgePredicate) (map[plasma.NodeID]plasma.EdgeProps, error) {
	node, ok, err := s.FindNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, plasma.NewError(plasma.GraphMissing, "node %s not found", id)
	}
	return graph.MatchEdges(node.Edges(), pred)
}

func (s *Store) IsProxy(ctx context.Context, id plasma.NodeID) (bool, error) {
	node, ok, err := s.FindNode(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, plasma.NewError(plasma.GraphMissing, "node %s not found", id)
	}
	return node.IsProxy(), nil
}

var _ graph.Adapter = (*Store)(nil)
