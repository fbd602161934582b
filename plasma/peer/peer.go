package peer

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/graph"
	"github.com/wbrown/plasma/runtime"
	"github.com/wbrown/plasma/telemetry"
	"github.com/wbrown/plasma/tuple"
)

// Peer is one node of the query engine: it serves the RPC surface of
// spec.md §4.H/§6 over incoming connections, and uses its Pool to act as
// a client toward other peers when a query it runs crosses a proxy.
type Peer struct {
	Graph     graph.Adapter
	Telemetry telemetry.Context
	HTL       int // default hop budget for queries originated locally

	Pool *Pool

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a Peer backed by g, dialing out through its own pool.
func New(g graph.Adapter, htl int) *Peer {
	return &Peer{Graph: g, HTL: htl, Pool: NewPool(), Telemetry: telemetry.BaseContext{}}
}

// Serve accepts connections on ln until it is closed, handling each on
// its own goroutine. It blocks; callers typically run it in a goroutine.
func (p *Peer) Serve(ln net.Listener) error {
	p.mu.Lock()
	p.listener = ln
	p.mu.Unlock()
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handleConn(nc)
		}()
	}
}

// Close stops accepting connections, waits for in-flight handlers to
// drain, and tears down the outbound connection pool (spec.md §6:
// "Peer exposes close(): stops the listener and ... tears [the
// connection manager] down").
func (p *Peer) Close() error {
	p.mu.Lock()
	ln := p.listener
	p.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	p.wg.Wait()
	p.Pool.Close()
	return err
}

// execCtx builds the runtime configuration this peer executes plans
// with: its own graph, its pool as the cross-peer connector, and its
// default hop budget (overridden by htl when a plan already carries one).
func (p *Peer) execCtx(params map[string]interface{}, htl int) *runtime.ExecCtx {
	if htl <= 0 {
		htl = p.HTL
	}
	return &runtime.ExecCtx{
		Graph:     p.Graph,
		Connector: p.Pool,
		Params:    params,
		Telemetry: p.Telemetry,
		HTL:       htl,
	}
}

// handleConn demultiplexes one connection's incoming requests, each
// dispatched on its own goroutine so a long-lived stream doesn't block
// other requests sharing the connection.
func (p *Peer) handleConn(nc net.Conn) {
	defer nc.Close()
	var wg sync.WaitGroup
	defer wg.Wait()

	enc := json.NewEncoder(nc)
	var writeMu sync.Mutex
	write := func(f frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return enc.Encode(f)
	}

	dec := json.NewDecoder(bufio.NewReader(nc))
	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			return
		}
		req := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.dispatch(req, write)
		}()
	}
}

func (p *Peer) dispatch(req frame, write func(frame) error) {
	ctx := context.Background()
	switch req.Method {
	case MethodPing:
		write(frame{ID: req.ID, Result: mustMarshal(PingMarker)})

	case MethodNodeByUUID:
		var ids []string
		if err := json.Unmarshal(req.Params, &ids); err != nil || len(ids) != 1 {
			write(frame{ID: req.ID, Error: errorFrom(plasma.NewError(plasma.PlanInvalid, "node-by-uuid expects a single node id"))})
			return
		}
		node, ok, err := p.Graph.FindNode(ctx, plasma.NodeID(ids[0]))
		if err != nil {
			write(frame{ID: req.ID, Error: errorFrom(err)})
			return
		}
		if !ok {
			write(frame{ID: req.ID, Result: []byte("null")})
			return
		}
		write(frame{ID: req.ID, Result: mustMarshal(node)})

	case MethodQuery:
		var q queryChannelRequest
		if err := json.Unmarshal(req.Params, &q); err != nil {
			write(frame{ID: req.ID, Error: errorFrom(plasma.Wrap(plasma.PlanInvalid, err, "decoding query request"))})
			return
		}
		out, err := runtime.Execute(ctx, q.Plan, p.execCtx(q.Params, q.Plan.HTL))
		if err != nil {
			write(frame{ID: req.ID, Error: errorFrom(err)})
			return
		}
		items, _ := runtime.Collect(out)
		records := make([]runtime.Record, 0, len(items))
		for _, it := range items {
			if rec, ok := it.(runtime.Record); ok {
				records = append(records, rec)
			}
		}
		write(frame{ID: req.ID, Result: mustMarshal(records)})

	case MethodSubQuery:
		p.streamPlan(ctx, req, write)

	case MethodIterNQuery:
		var q queryChannelRequest
		if err := json.Unmarshal(req.Params, &q); err != nil {
			write(frame{ID: req.ID, Error: errorFrom(plasma.Wrap(plasma.PlanInvalid, err, "decoding iter-n-query request"))})
			return
		}
		items, err := p.IterateN(ctx, q.Plan)
		if err != nil {
			write(frame{ID: req.ID, Error: errorFrom(err)})
			return
		}
		write(frame{ID: req.ID, Result: mustMarshal(items)})

	case MethodRecurQuery:
		var q queryChannelRequest
		if err := json.Unmarshal(req.Params, &q); err != nil {
			write(frame{ID: req.ID, Error: errorFrom(plasma.Wrap(plasma.PlanInvalid, err, "decoding recur-query request"))})
			return
		}
		items, err := p.Recur(ctx, q.Plan)
		if err != nil {
			write(frame{ID: req.ID, Error: errorFrom(err)})
			return
		}
		write(frame{ID: req.ID, Result: mustMarshal(items)})

	default:
		write(frame{ID: req.ID, Error: errorFrom(plasma.NewError(plasma.PlanInvalid, "unknown method %q", req.Method))})
	}
}

// streamPlan executes a sub-plan (the stream channel's sole real
// method, spec.md §6: "sub-query") and streams its path tuples back one
// frame at a time, closing with Done once the plan terminates. It does
// not buffer (spec.md §4.H): each item is written as soon as produced.
func (p *Peer) streamPlan(ctx context.Context, req frame, write func(frame) error) {
	var q queryChannelRequest
	if err := json.Unmarshal(req.Params, &q); err != nil {
		write(frame{ID: req.ID, Error: errorFrom(plasma.Wrap(plasma.PlanInvalid, err, "decoding sub-query request"))})
		return
	}
	out, err := runtime.Execute(ctx, q.Plan, p.execCtx(q.Params, q.Plan.HTL))
	if err != nil {
		write(frame{ID: req.ID, Error: errorFrom(err)})
		return
	}
	for it := range out {
		var payload itemPayload
		switch v := it.(type) {
		case tuple.PT:
			payload.PT = v
		case runtime.ErrorItem:
			payload.Error = errorFrom(v.Err)
		default:
			continue
		}
		if write(frame{ID: req.ID, Item: mustMarshal(payload)}) != nil {
			return
		}
	}
	write(frame{ID: req.ID, Done: true})
}

func mustMarshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("peer: marshal of well-formed value failed: " + err.Error())
	}
	return raw
}

// compile-time assertions: Peer's pool doubles as the runtime's
// cross-peer connector.
var _ runtime.Connector = (*Pool)(nil)
var _ runtime.Sinks = (*Pool)(nil)
