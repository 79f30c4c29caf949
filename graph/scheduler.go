package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodeflow-dev/nodeflow/graph/cache"
	"github.com/nodeflow-dev/nodeflow/graph/sched"
	"github.com/nodeflow-dev/nodeflow/graph/sub"
)

// nodeOutcome is the per-node result of one scheduling pass: the Outputs
// produced (real values, or Pending/Errored sentinels for every declared
// output), plus bookkeeping for building the final per-target Result map.
type nodeOutcome struct {
	outputs Outputs
	err     error // a structural error (RequiredInputMissing, UnknownNode) at this node's origin; a failed Run is carried in outputs as Errored values
}

// runPass computes the reverse-reachable subgraph from targets, executes
// it in topological waves over a fixed worker pool, consults the cache
// before dispatch, and returns one Result per requested target address
// (spec §4.7).
func (e *Engine) runPass(ctx context.Context, targets []PortAddr) map[PortAddr]Result {
	snap := e.graph.Snapshot()
	reachable := snap.ReverseReachable(targets)
	order := snap.TopoOrder(reachable)

	indegree := make(map[NodeHandle]int, len(reachable))
	for _, h := range order {
		indegree[h] = e.countBoundInputs(snap, h)
	}

	var mu sync.Mutex
	var active atomic.Int64
	results := make(map[NodeHandle]nodeOutcome, len(reachable))

	passCtx, cancelPass := context.WithCancel(ctx)
	defer cancelPass()

	frontier := sched.NewFrontier[NodeHandle](max(len(order), 1))
	remaining := len(order)
	if remaining == 0 {
		cancelPass()
	}

	for _, h := range order {
		if indegree[h] == 0 {
			_ = frontier.Enqueue(passCtx, uint64(h), h)
		}
	}

	wait := sched.RunWorkers(passCtx, e.workers, frontier, func(_ context.Context, item sched.WorkItem[NodeHandle]) {
		h := item.Item
		e.coll.SetActiveNodes(int(active.Add(1)))
		// executeNode uses the execution's own ctx, not the pass-local
		// passCtx: an async dispatch must outlive this synchronous pass,
		// which returns long before a suspended node actually completes.
		outcome := e.executeNode(ctx, snap, h, &mu, results)
		e.coll.SetActiveNodes(int(active.Add(-1)))

		mu.Lock()
		results[h] = outcome
		remaining--
		done := remaining == 0
		mu.Unlock()

		if done {
			cancelPass()
			return
		}

		desc, _ := snap.Descriptor(h)
		for _, out := range desc.Outputs {
			for _, edge := range snap.Consumers(NewPortAddr(h, out.Name, SideOutput)) {
				next := edge.To.Node
				if _, ok := reachable[next]; !ok {
					continue
				}
				mu.Lock()
				indegree[next]--
				ready := indegree[next] == 0
				mu.Unlock()
				if ready {
					_ = frontier.Enqueue(passCtx, uint64(next), next)
				}
			}
		}
	})
	wait()

	out := make(map[PortAddr]Result, len(targets))
	for _, t := range targets {
		out[t] = e.resolveTargetResult(results, t)
	}
	return out
}

// countBoundInputs counts the number of producing edges a node has among
// its required/optional/variadic inputs, used as Kahn indegree.
func (e *Engine) countBoundInputs(snap *ExecutionSnapshot, h NodeHandle) int {
	desc, ok := snap.Descriptor(h)
	if !ok {
		return 0
	}
	n := 0
	for _, in := range desc.Inputs {
		if in.Kind == Variadic {
			n += len(snap.VariadicEdges(h, in.Name))
			continue
		}
		if _, ok := snap.InputEdge(h, in.Name); ok {
			n++
		}
	}
	return n
}

func (e *Engine) resolveTargetResult(results map[NodeHandle]nodeOutcome, t PortAddr) Result {
	oc, ok := results[t.Node]
	if !ok {
		return Result{Err: newEngineError("UNKNOWN_NODE", ErrUnknownNode, t.Node, t.Port, "")}
	}
	if oc.err != nil {
		return Result{Err: oc.err}
	}
	v, ok := oc.outputs[t.Port]
	if !ok {
		return Result{Err: newEngineError("UNKNOWN_PORT", ErrUnknownPort, t.Node, t.Port, "")}
	}
	if v.IsPending() {
		// Surface whatever value the cache last held for this exact port,
		// even though its fingerprint is now stale, so an observer sees the
		// last-known-good value rather than a blank slot while the
		// producing async node is outstanding (spec §4.7.5 "stale-but-valid
		// passthrough").
		if rec, ok := e.cache.LookupStale(cache.Key{Node: uint64(t.Node), Port: string(t.Port)}); ok {
			return Result{Value: rec.Value, Pending: true}
		}
		return Result{Value: v, Pending: true}
	}
	if err, isErr := v.IsErrored(); isErr {
		return Result{Err: err}
	}
	return Result{Value: v}
}

// executeNode resolves one node's inputs, consults the cache, and either
// reuses a cached record, runs the node synchronously, or dispatches an
// async node's AsyncRun — following the per-node state machine of spec
// §4.7 "Waiting -> Ready -> (CacheHit | Dispatched) -> (Completed |
// Pending | Errored)".
func (e *Engine) executeNode(ctx context.Context, snap *ExecutionSnapshot, h NodeHandle, mu *sync.Mutex, results map[NodeHandle]nodeOutcome) nodeOutcome {
	desc, ok := snap.Descriptor(h)
	if !ok {
		return nodeOutcome{err: newEngineError("UNKNOWN_NODE", ErrUnknownNode, h, "", "")}
	}

	in, missing := e.resolveInputs(snap, h, desc, mu, results)
	if missing != nil {
		return nodeOutcome{outputs: errorAllOutputs(desc, missing), err: missing}
	}

	node, _ := snap.Node(h)
	cfg, _ := snap.NodeConfig(h)

	if err, isErr := in.FirstError(); isErr {
		errored := errorAllOutputs(desc, err)
		e.publishAll(h, desc, errored, sub.Changed)
		return nodeOutcome{outputs: errored}
	}

	if in.AnyPending() {
		pending := e.pendingPassthrough(h, desc)
		return nodeOutcome{outputs: pending}
	}

	fp, cacheable := e.fingerprint(snap, h, desc, cfg, in)

	if desc.Async {
		outputs := e.dispatchAsync(ctx, h, node.(AsyncNode), cfg, in, desc, fp, cacheable)
		return nodeOutcome{outputs: outputs}
	}

	allHit := cacheable
	hitOutputs := make(Outputs, len(desc.Outputs))
	if cacheable {
		for _, out := range desc.Outputs {
			if !out.Cacheable {
				allHit = false
				break
			}
			rec, hit := e.cache.Lookup(cache.Key{Node: uint64(h), Port: string(out.Name)}, fp)
			e.coll.ObserveCacheLookup(hit)
			if !hit {
				allHit = false
				break
			}
			hitOutputs[out.Name] = rec.Value
		}
	}
	if allHit && len(desc.Outputs) > 0 {
		e.publishAll(h, desc, hitOutputs, sub.Changed)
		return nodeOutcome{outputs: hitOutputs}
	}

	start := time.Now()
	var outputs Outputs
	var err error
	if cacheable {
		// Coalesce concurrent duplicate misses for this exact node+fingerprint
		// (e.g. two overlapping Execute calls both missing the same cached
		// node) so Run only actually executes once; every other waiter shares
		// its result (spec's domain stack: singleflight-backed cache misses).
		sfKey := cache.FingerprintKey(cache.Key{Node: uint64(h), Port: ""}, fp)
		res, sfErr, _ := e.cache.DoAny(sfKey, func() (any, error) {
			return node.Run(ctx, cfg.Value(), in)
		})
		err = sfErr
		if err == nil {
			outputs, _ = res.(Outputs)
		}
	} else {
		outputs, err = node.Run(ctx, cfg.Value(), in)
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.coll.ObserveNodeLatency(status, time.Since(start).Seconds())

	if err != nil {
		nodeErr := newEngineError("NODE_FAILED", ErrNodeFailed, h, "", "graph: node %d failed: %v", h, err)
		nodeErr.Err = fmt.Errorf("%w: %w", ErrNodeFailed, err)
		errored := errorAllOutputs(desc, nodeErr)
		e.publishAll(h, desc, errored, sub.Changed)
		return nodeOutcome{outputs: errored}
	}

	for _, out := range desc.Outputs {
		v := outputs[out.Name]
		if out.Cacheable {
			e.cache.Store(cache.Key{Node: uint64(h), Port: string(out.Name)}, fp, v, true)
		}
	}
	e.publishAll(h, desc, outputs, sub.Changed)
	return nodeOutcome{outputs: outputs}
}

// resolveInputs builds the Inputs for node h from already-produced
// upstream Outputs, failing with ErrRequiredInputMissing if a required
// input has no connected edge (spec invariant 3).
func (e *Engine) resolveInputs(snap *ExecutionSnapshot, h NodeHandle, desc NodeDescriptor, mu *sync.Mutex, results map[NodeHandle]nodeOutcome) (Inputs, error) {
	in := NewInputs()
	for _, p := range desc.Inputs {
		switch p.Kind {
		case Variadic:
			for _, edge := range snap.VariadicEdges(h, p.Name) {
				v := e.lookupProduced(edge.From, mu, results)
				in.Append(p.Name, v)
			}
		default:
			edge, ok := snap.InputEdge(h, p.Name)
			if !ok {
				if p.Kind == Required {
					return in, newEngineError("REQUIRED_INPUT_MISSING", ErrRequiredInputMissing, h, p.Name, "")
				}
				continue
			}
			in.Set(p.Name, e.lookupProduced(edge.From, mu, results))
		}
	}
	return in, nil
}

func (e *Engine) lookupProduced(addr PortAddr, mu *sync.Mutex, results map[NodeHandle]nodeOutcome) Value {
	mu.Lock()
	oc, ok := results[addr.Node]
	mu.Unlock()
	if !ok {
		return Pending(0)
	}
	return oc.outputs[addr.Port]
}

// fingerprint computes the candidate InputFingerprint for h: a fold of
// its NodeTypeId, configuration hash, and each resolved input's content
// hash, in declared order (spec §4.6). cacheable reports whether every
// resolved input could itself be hashed; if not, the node is treated as
// non-cacheable for this pass and always re-runs.
func (e *Engine) fingerprint(snap *ExecutionSnapshot, h NodeHandle, desc NodeDescriptor, cfg Config, in Inputs) (fp cache.Fingerprint, cacheable bool) {
	if !cfg.Valid() {
		return fp, false
	}
	var inputHashes [][32]byte
	for _, p := range desc.Inputs {
		switch p.Kind {
		case Variadic:
			for _, v := range in.Variadic(p.Name) {
				vh, ok := valueHash(v)
				if !ok {
					return fp, false
				}
				inputHashes = append(inputHashes, vh)
			}
		default:
			v, ok := in.Get(p.Name)
			if !ok {
				continue
			}
			hv, ok := valueHash(v)
			if !ok {
				return fp, false
			}
			inputHashes = append(inputHashes, hv)
		}
	}
	return cache.ComputeFingerprint(uint64(desc.TypeID), cfg.Hash(), inputHashes...), true
}

func valueHash(v Value) ([32]byte, bool) {
	if v.IsPending() {
		var zero [32]byte
		return zero, false
	}
	return cache.HashStruct(v.Raw())
}

// pendingPassthrough produces the pure Pending sentinel for every output
// of h: a downstream node that itself received a Pending required input
// does not run and propagates Pending in turn (spec §4.7.5). The
// last-known-good value is not substituted here — it is surfaced only at
// the observable boundary (resolveTargetResult, GetCached), so that
// AnyPending() still gates every node further downstream in the chain.
func (e *Engine) pendingPassthrough(h NodeHandle, desc NodeDescriptor) Outputs {
	out := make(Outputs, len(desc.Outputs))
	for _, o := range desc.Outputs {
		out[o.Name] = Pending(o.Type)
	}
	return out
}

func sentinelOutputs(desc NodeDescriptor, mk func(ValueTypeId, error) Value) Outputs {
	out := make(Outputs, len(desc.Outputs))
	for _, o := range desc.Outputs {
		out[o.Name] = mk(o.Type, nil)
	}
	return out
}

func errorAllOutputs(desc NodeDescriptor, err error) Outputs {
	out := make(Outputs, len(desc.Outputs))
	for _, o := range desc.Outputs {
		out[o.Name] = Errored(o.Type, err)
	}
	return out
}

// publishAll fans out one event per output of h, to both the per-address
// subscription Registry (which itself gates Changed events on a
// hash-diff, spec invariant 8) and the ambient Bus, which receives every
// event unconditionally.
func (e *Engine) publishAll(h NodeHandle, desc NodeDescriptor, outputs Outputs, kind sub.Kind) {
	for _, o := range desc.Outputs {
		v, ok := outputs[o.Name]
		if !ok {
			continue
		}
		addr := toSubAddr(NewPortAddr(h, o.Name, SideOutput))
		hash, _ := valueHash(v)
		var err error
		if e2, isErr := v.IsErrored(); isErr {
			err = e2
		}
		ev := sub.Event{Kind: kind, Addr: addr, Hash: hash, Value: v.Raw(), Err: err}
		e.subs.Dispatch(ev)
		e.bus.Publish(ev)
	}
}
