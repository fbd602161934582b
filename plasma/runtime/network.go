package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/plan"
)

// Sinks lets the peer facade register an outbound channel a send
// operator should tee its items onto, keyed by the send operator's
// DestChan name (spec.md §4.D: "send"). It is looked up lazily so a
// plan built before a connection exists still runs correctly.
type Sinks interface {
	Sink(name string) chan<- Item
}

// runSend is a pass-through tee: every item reaches its own output
// unchanged, and is also delivered to the named sink if one is
// registered (e.g. the peer facade's streaming sub-query response).
func runSend(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		var sink chan<- Item
		if sinks, ok := r.Connector.(Sinks); ok {
			sink = sinks.Sink(op.DestChan)
		}
		for it := range in {
			if sink != nil {
				select {
				case sink <- it:
				case <-ctx.Done():
				default:
				}
			}
			if !forward(ctx, out, it) {
				return
			}
		}
	}()
	return out
}

// runReceive merges its left dependency's output with a dynamic set
// of remote result streams arriving on the run's shared remotes
// meta-channel (spec.md §4.D/§4.F: "receive"). It closes only once
// left has closed, the meta-channel itself has closed (every
// traverse operator in this execution has finished, so no further
// remote stream can appear), and every remote stream it accepted has
// itself drained — the stream-of-streams pattern the design calls
// for instead of a fixed fan-in.
func runReceive(ctx context.Context, r *run, op *plan.Op, in <-chan Item) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)

		var wg sync.WaitGroup
		left := in
		remotes := r.remotesChan

		for left != nil || remotes != nil {
			select {
			case it, ok := <-left:
				if !ok {
					left = nil
					continue
				}
				if !forward(ctx, out, it) {
					return
				}
			case stream, ok := <-remotes:
				if !ok {
					remotes = nil
					continue
				}
				wg.Add(1)
				r.Telemetry.Emit("receive.remote-opened", nil)
				go drainRemote(ctx, r, op, out, stream, &wg)
			}
		}
		wg.Wait()
	}()
	return out
}

func drainRemote(ctx context.Context, r *run, op *plan.Op, out chan<- Item, stream <-chan Item, wg *sync.WaitGroup) {
	defer wg.Done()

	var timeoutC <-chan time.Time
	if op.Timeout > 0 {
		timer := time.NewTimer(time.Duration(op.Timeout))
		defer timer.Stop()
		timeoutC = timer.C
	}
	for {
		select {
		case v, ok := <-stream:
			if !ok {
				r.Telemetry.Emit("receive.remote-closed", nil)
				return
			}
			if !forward(ctx, out, v) {
				return
			}
		case <-timeoutC:
			r.Telemetry.Emit("receive.timeout", nil)
			forward(ctx, out, ErrorItem{plasma.NewError(plasma.Timeout, "remote stream timed out")})
			return
		case <-ctx.Done():
			return
		}
	}
}
