package peer

import (
	"context"
	"encoding/json"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/expr"
	"github.com/wbrown/plasma/plan"
	"github.com/wbrown/plasma/runtime"
	"github.com/wbrown/plasma/telemetry"
)

// rootIDParam is the parameter name an iter-n-query/recur-query plan's
// per-round body binds its frontier to; iterFrontierVar is the
// projected field name that names the next round's frontier.
const (
	rootIDParam     = "root-id"
	iterFrontierVar = "frontier"
)

// htlReachedRecord is the in-band marker spec.md §4.I/§7 describes:
// hitting the hop budget mid-recursion is reported as one error event
// on an otherwise-successful result stream, `{type: error, msg:
// htl-reached}`, not as a failed call.
func htlReachedRecord() runtime.Record {
	return runtime.Record{"type": "error", "msg": "htl-reached"}
}

// IterateN runs an iter-n-query plan to completion (spec.md §4.I): each
// round executes ip's body (one hop, typically), decrementing iter-n
// and htl, rebinding root-id to the frontier the round just reached,
// until iter-n hits zero (success) or htl hits zero first (aborted).
func (p *Peer) IterateN(ctx context.Context, ip *plan.Plan) ([]runtime.Record, error) {
	if ip.IterN <= 0 {
		return nil, plasma.NewError(plasma.PlanInvalid, "iter-n-query requires a positive iter-n")
	}

	iterN := ip.IterN
	htl := ip.HTL
	params := cloneParams(ip.IterParams)
	if params == nil {
		params = make(map[string]interface{})
	}

	for {
		iterN--
		htl--
		p.Telemetry.Emit(telemetry.IterateRound, map[string]interface{}{"iter_n": iterN, "htl": htl})

		ectx := &runtime.ExecCtx{Graph: p.Graph, Connector: p.Pool, Params: params, Telemetry: p.Telemetry, HTL: htl}
		out, err := runtime.Execute(ctx, ip, ectx)
		if err != nil {
			return nil, err
		}
		items, errs := runtime.Collect(out)
		if len(errs) > 0 {
			return nil, errs[0]
		}
		records := recordsOf(items)

		if iterN == 0 {
			return records, nil
		}
		if htl == 0 {
			p.Telemetry.Emit(telemetry.IterateHtlReached, map[string]interface{}{"rounds_completed": ip.IterN - iterN, "iter_n": ip.IterN})
			return append(records, htlReachedRecord()), nil
		}

		frontier, err := frontierOf(records)
		if err != nil {
			return nil, err
		}
		params = map[string]interface{}{rootIDParam: frontier}
	}
}

// Recur runs a recur-query plan round by round. After each round the
// plan's Pred is evaluated per projected record: a record for which it
// is true is finished and collected into the result; every other record
// is a branch that continues. Continuing branches recurse locally,
// rebinding root-id to their frontier, when the plan has no SrcURL; when
// SrcURL is set they are sent to that peer in one recur-query call and
// its reply is appended to the result. The predicate does not choose
// between local recursion and forwarding; SrcURL alone decides that.
// Each round spends one hop of htl; reaching zero with branches still
// open ends the run with the htl-reached marker, as IterateN does.
//
// This is the design sketched in spec.md §9's explicit open question,
// not a translation of the half-written body the original carried:
// recur-query differs from iter-n-query only in using a predicate
// instead of a fixed round count to decide when a branch is done.
func (p *Peer) Recur(ctx context.Context, rp *plan.Plan) ([]runtime.Record, error) {
	if rp.Pred == nil {
		return nil, plasma.NewError(plasma.PlanInvalid, "recur-query requires a predicate")
	}

	htl := rp.HTL
	params := cloneParams(rp.IterParams)
	if params == nil {
		params = make(map[string]interface{})
	}

	var finished []runtime.Record
	for {
		htl--
		p.Telemetry.Emit(telemetry.IterateRound, map[string]interface{}{"htl": htl})

		ectx := &runtime.ExecCtx{Graph: p.Graph, Connector: p.Pool, Params: params, Telemetry: p.Telemetry, HTL: htl}
		out, err := runtime.Execute(ctx, rp, ectx)
		if err != nil {
			return nil, err
		}
		items, errs := runtime.Collect(out)
		if len(errs) > 0 {
			return nil, errs[0]
		}
		records := recordsOf(items)

		done, continuing, err := partitionByPredicate(rp, records)
		if err != nil {
			return nil, err
		}
		finished = append(finished, done...)
		if len(continuing) == 0 {
			return finished, nil
		}
		if htl == 0 {
			p.Telemetry.Emit(telemetry.IterateHtlReached, map[string]interface{}{"branches_open": len(continuing)})
			return append(finished, htlReachedRecord()), nil
		}

		// A non-originating peer stops recursing locally and forwards
		// whatever is still open back to whoever owns the final result
		// (spec.md §4.I: "the originator listens for a single event
		// bearing the final result").
		if rp.SrcURL != "" {
			forwarded, err := p.forwardRecur(ctx, rp, continuing, htl)
			if err != nil {
				return nil, err
			}
			return append(finished, forwarded...), nil
		}

		frontier, err := frontierOf(continuing)
		if err != nil {
			return nil, err
		}
		params = map[string]interface{}{rootIDParam: frontier}
	}
}

// forwardRecur ships the still-open branches to the plan's originator as
// a fresh recur-query round seeded by their frontier, and returns
// whatever that peer ultimately reports; the originator is the one that
// owns collecting the final result (spec.md §4.I: "the originator
// listens for a single event bearing the final result").
func (p *Peer) forwardRecur(ctx context.Context, rp *plan.Plan, continuing []runtime.Record, htl int) ([]runtime.Record, error) {
	frontier, err := frontierOf(continuing)
	if err != nil {
		return nil, err
	}
	forward := rp.Clone()
	forward.HTL = htl
	forward.IterParams = map[string]interface{}{rootIDParam: frontier}

	c, connErr := p.Pool.get(rp.SrcURL)
	if connErr != nil {
		return nil, connErr
	}
	raw, callErr := c.call(ctx, MethodRecurQuery, queryChannelRequest{Plan: forward, Params: forward.IterParams})
	if callErr != nil {
		return nil, callErr
	}
	var records []runtime.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, plasma.Wrap(plasma.RemoteError, err, "decoding forwarded recur-query result")
	}
	return records, nil
}

func cloneParams(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func recordsOf(items []runtime.Item) []runtime.Record {
	out := make([]runtime.Record, 0, len(items))
	for _, it := range items {
		if rec, ok := it.(runtime.Record); ok {
			out = append(out, rec)
		}
	}
	return out
}

// frontierOf collects the next round's root-id seed from a round's
// projected records, each of which must carry iterFrontierVar bound to
// a bare node id (spec.md §4.I: "rebind iter-params[ROOT-ID] to the
// just-collected results").
func frontierOf(records []runtime.Record) ([]string, error) {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		v, ok := rec[iterFrontierVar]
		if !ok {
			return nil, plasma.NewError(plasma.PlanInvalid, "iteration round result missing %q field", iterFrontierVar)
		}
		switch id := v.(type) {
		case plasma.NodeID:
			out = append(out, string(id))
		case string:
			out = append(out, id)
		default:
			return nil, plasma.NewError(plasma.PlanInvalid, "iteration round result has non-node %q field", iterFrontierVar)
		}
	}
	return out, nil
}

// partitionByPredicate splits a round's records into those the
// predicate accepts as final (done) and those it says must keep
// recursing (continuing). The predicate is evaluated per-record with
// each field exposed as a property of the iterFrontierVar path variable,
// so a predicate like `(>= (depth frontier) 3)` reads naturally.
func partitionByPredicate(rp *plan.Plan, records []runtime.Record) (done, continuing []runtime.Record, err error) {
	for _, rec := range records {
		bindings := make(map[string]expr.Value, len(rec))
		for k, v := range rec {
			bindings[expr.PVar(iterFrontierVar, k).SyntheticVar()] = v
		}
		v, evalErr := expr.Eval(*rp.Pred, bindings)
		if evalErr != nil {
			continuing = append(continuing, rec)
			continue
		}
		if b, ok := v.(bool); ok && b {
			done = append(done, rec)
		} else {
			continuing = append(continuing, rec)
		}
	}
	return done, continuing, nil
}
