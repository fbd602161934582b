package runtime

import (
	"context"
	"sync"

	"github.com/wbrown/plasma/graph"
	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/telemetry"
)

// Connector is the narrow surface the runtime needs from the peer
// facade to cross a proxy node: open a streaming sub-query against a
// remote peer and get back its result items. Defining it here (rather
// than importing the peer package) keeps runtime free of any
// dependency on transport or connection pooling; the peer package
// implements this interface and plugs itself in as the Connector.
type Connector interface {
	OpenSubQuery(ctx context.Context, peerURL string, sub *plan.Plan, seed map[string]interface{}) (<-chan Item, error)
}

// ExecCtx is the configuration an Execute call runs with: the local
// graph it reads, the connector it uses to cross proxy nodes, the
// seed parameter values a plan's parameter operators bind to, a
// tracking context, and the hop budget remaining for any proxy
// crossings this execution discovers.
type ExecCtx struct {
	Graph     graph.Adapter
	Connector Connector
	Params    map[string]interface{}
	Telemetry telemetry.Context
	HTL       int
}

// run is the private, per-Execute-call state threaded through the
// operator goroutines: the caller-supplied ExecCtx plus the dynamic
// remotes meta-channel and the traversal accounting that decides when
// it is safe to close it.
type run struct {
	*ExecCtx
	plan        *plan.Plan
	remotesChan chan (<-chan Item)
	traverseWG  sync.WaitGroup
}

func newRun(ectx *ExecCtx, p *plan.Plan) *run {
	if ectx.Telemetry == nil {
		ectx.Telemetry = telemetry.BaseContext{}
	}
	r := &run{
		ExecCtx:     ectx,
		plan:        p,
		remotesChan: make(chan (<-chan Item)),
	}
	for _, op := range p.Ops {
		if op.Type == plan.OpTraverse {
			r.traverseWG.Add(1)
		}
	}
	go func() {
		r.traverseWG.Wait()
		close(r.remotesChan)
	}()
	return r
}
