// Package telemetry provides a clean, low-overhead annotation system for
// tracking query execution, modeled on the teacher's datalog/annotations
// package: a Handler func type, an Event struct, and hierarchical dotted
// event names, with a no-op BaseContext so tracking costs nothing when
// nobody is listening.
package telemetry

import (
	"sync"
	"time"
)

// Event name constants, hierarchically named the way the teacher's
// annotations package names its events.
const (
	QueryBegin    = "query.begin"
	QueryComplete = "query.complete"

	PlanCreated = "plan.created"

	TraverseEmit           = "traverse.emit"
	TraverseCycleDropped   = "traverse.cycle-dropped"
	TraverseProxyCrossing  = "traverse.proxy-crossing"
	ReceiveRemoteOpened    = "receive.remote-opened"
	ReceiveRemoteClosed    = "receive.remote-closed"
	ReceiveTimeout         = "receive.timeout"

	SelectDropped    = "select.dropped"
	ExpressionError  = "expression.error"

	AggregateEmit = "aggregate.emit"

	IterateRound     = "iterate.round"
	IterateHtlReached = "iterate.htl-reached"
)

// Event is one recorded occurrence during query execution.
type Event struct {
	Name    string
	At      time.Time
	Fields  map[string]interface{}
}

// Handler receives events as they occur. Handlers must not block.
type Handler func(Event)

// Context is the tracking interface threaded through the runtime. Like
// the teacher's executor.Context, it is cheap to call unconditionally;
// BaseContext's methods are no-ops so tracking costs nothing by default.
type Context interface {
	Emit(name string, fields map[string]interface{})
}

// BaseContext is the zero-overhead default.
type BaseContext struct{}

func (BaseContext) Emit(string, map[string]interface{}) {}

// Collector forwards each event to a Handler as it arrives; it does not
// keep the events it has forwarded.
type Collector struct {
	mu      sync.Mutex
	handler Handler
}

// NewContext returns a Context appropriate for handler: BaseContext if
// handler is nil, otherwise a Collector wired to it.
func NewContext(handler Handler) Context {
	if handler == nil {
		return BaseContext{}
	}
	return &Collector{handler: handler}
}

func (c *Collector) Emit(name string, fields map[string]interface{}) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(Event{Name: name, At: time.Now(), Fields: fields})
	}
}
