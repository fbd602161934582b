package peer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/runtime"
)

// conn is one pooled outbound connection, multiplexing every in-flight
// request/stream by request id (spec.md §5: "the connection manager
// pool is shared; opening a new connection is idempotent per URL").
type conn struct {
	nc  net.Conn
	enc *json.Encoder
	mu  sync.Mutex // guards writes; reads happen only on readLoop's goroutine

	nextID uint64

	pendingMu sync.Mutex
	pending   map[string]chan frame // unary request/response
	streams   map[string]chan frame // stream-channel replies, keyed by request id
}

func dial(addr string) (*conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, plasma.Wrap(plasma.TransportFailure, err, "dialing %s", addr)
	}
	c := &conn{
		nc:      nc,
		enc:     json.NewEncoder(nc),
		pending: make(map[string]chan frame),
		streams: make(map[string]chan frame),
	}
	go c.readLoop()
	return c, nil
}

func (c *conn) newID() string {
	return fmt.Sprintf("%d", atomic.AddUint64(&c.nextID, 1))
}

func (c *conn) send(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(f)
}

func (c *conn) close() {
	c.nc.Close()
}

// readLoop demultiplexes every reply frame arriving on this connection
// to the pending call or open stream that owns its request id. A frame
// with Done or Error on a streaming request id closes that route.
func (c *conn) readLoop() {
	dec := json.NewDecoder(bufio.NewReader(c.nc))
	defer c.failAll(plasma.NewError(plasma.TransportFailure, "connection closed"))
	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			return
		}
		c.pendingMu.Lock()
		if ch, ok := c.pending[f.ID]; ok {
			delete(c.pending, f.ID)
			c.pendingMu.Unlock()
			ch <- f
			continue
		}
		if ch, ok := c.streams[f.ID]; ok {
			if f.Done || f.Error != nil {
				delete(c.streams, f.ID)
			}
			c.pendingMu.Unlock()
			ch <- f
			if f.Done || f.Error != nil {
				close(ch)
			}
			continue
		}
		c.pendingMu.Unlock()
	}
}

func (c *conn) failAll(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	f := frame{Error: errorFrom(err)}
	for id, ch := range c.pending {
		ch <- f
		delete(c.pending, id)
	}
	for id, ch := range c.streams {
		ch <- f
		close(ch)
		delete(c.streams, id)
	}
}

// call makes a request-channel round trip: one request, one reply.
func (c *conn) call(ctx context.Context, method Method, params interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, plasma.Wrap(plasma.PlanInvalid, err, "encoding %s params", method)
	}
	id := c.newID()
	ch := make(chan frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.send(frame{ID: id, Method: method, Params: raw}); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, plasma.Wrap(plasma.TransportFailure, err, "sending %s request", method)
	}

	select {
	case f := <-ch:
		if f.Error != nil {
			return nil, f.Error.asError()
		}
		return f.Result, nil
	case <-ctx.Done():
		return nil, plasma.Wrap(plasma.Timeout, ctx.Err(), "%s request cancelled", method)
	}
}

// openStream makes a stream-channel request and returns a channel of raw
// item frames; the caller decodes each into a runtime.Item.
func (c *conn) openStream(ctx context.Context, method Method, params interface{}) (<-chan frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, plasma.Wrap(plasma.PlanInvalid, err, "encoding %s params", method)
	}
	id := c.newID()
	ch := make(chan frame, 16)
	c.pendingMu.Lock()
	c.streams[id] = ch
	c.pendingMu.Unlock()

	if err := c.send(frame{ID: id, Method: method, Params: raw}); err != nil {
		c.pendingMu.Lock()
		delete(c.streams, id)
		c.pendingMu.Unlock()
		return nil, plasma.Wrap(plasma.TransportFailure, err, "sending %s request", method)
	}
	return ch, nil
}

// Pool manages one pooled connection per peer URL and implements
// runtime.Connector (so the operator runtime can open proxy-crossing
// sub-queries) and runtime.Sinks (so a send operator can tee its
// output to a peer that asked for it). A Pool is also what a Peer uses
// to act as an RPC client toward other peers.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*conn
}

// NewPool returns an empty, ready-to-use connection pool.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]*conn)}
}

func (p *Pool) get(peerURL string) (*conn, error) {
	key, err := normalizeURL(peerURL)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[key]; ok {
		return c, nil
	}
	u, err := ParseURL(peerURL)
	if err != nil {
		return nil, err
	}
	c, err := dial(u.Addr())
	if err != nil {
		return nil, err
	}
	p.conns[key] = c
	return c, nil
}

// Close tears down every pooled connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, c := range p.conns {
		c.close()
		delete(p.conns, key)
	}
}

// Ping calls the remote peer's ping method.
func (p *Pool) Ping(ctx context.Context, peerURL string) (string, error) {
	c, err := p.get(peerURL)
	if err != nil {
		return "", err
	}
	raw, err := c.call(ctx, MethodPing, nil)
	if err != nil {
		return "", err
	}
	var marker string
	if err := json.Unmarshal(raw, &marker); err != nil {
		return "", plasma.Wrap(plasma.RemoteError, err, "decoding ping reply")
	}
	return marker, nil
}

// NodeByUUID fetches a single node from a remote peer.
func (p *Pool) NodeByUUID(ctx context.Context, peerURL string, id plasma.NodeID) (plasma.Node, bool, error) {
	c, err := p.get(peerURL)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.call(ctx, MethodNodeByUUID, []string{string(id)})
	if err != nil {
		return nil, false, err
	}
	if string(raw) == "null" || len(raw) == 0 {
		return nil, false, nil
	}
	var node plasma.Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, false, plasma.Wrap(plasma.RemoteError, err, "decoding node-by-uuid reply")
	}
	return node, true, nil
}

// queryChannelRequest is the [plan, params?] payload query-channel /
// sub-query take (spec.md §6 summarizes the method table; this package
// ships the plan and its seed params together as one JSON object, the
// natural shape for a sub-plan whose cut parameter needs a seed value).
type queryChannelRequest struct {
	Plan   *plan.Plan             `json:"plan"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// OpenSubQuery implements runtime.Connector: it opens a streaming
// sub-query against peerURL and returns the remote path-tuple stream,
// merged by the caller into its own dataflow (spec.md §4.F/§4.H).
func (p *Pool) OpenSubQuery(ctx context.Context, peerURL string, sub *plan.Plan, seed map[string]interface{}) (<-chan runtime.Item, error) {
	c, err := p.get(peerURL)
	if err != nil {
		return nil, err
	}
	frames, err := c.openStream(ctx, MethodSubQuery, queryChannelRequest{Plan: sub, Params: seed})
	if err != nil {
		return nil, err
	}
	out := make(chan runtime.Item)
	go func() {
		defer close(out)
		for f := range frames {
			if f.Error != nil {
				select {
				case out <- runtime.ErrorItem{Err: f.Error.asError()}:
				case <-ctx.Done():
					return
				}
				continue
			}
			if len(f.Item) == 0 {
				continue
			}
			var payload itemPayload
			if err := json.Unmarshal(f.Item, &payload); err != nil {
				select {
				case out <- runtime.ErrorItem{Err: plasma.Wrap(plasma.RemoteError, err, "decoding remote item")}:
				case <-ctx.Done():
					return
				}
				continue
			}
			if payload.Error != nil {
				select {
				case out <- runtime.ErrorItem{Err: payload.Error.asError()}:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case out <- payload.PT:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Sink satisfies runtime.Sinks; this pool has no registered outbound
// sinks of its own (that is a Peer-side concern, for the send
// operator's registered listeners), so it always returns nil.
func (p *Pool) Sink(name string) chan<- runtime.Item { return nil }
