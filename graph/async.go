package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/nodeflow-dev/nodeflow/graph/cache"
	"github.com/nodeflow-dev/nodeflow/graph/sched"
	"github.com/nodeflow-dev/nodeflow/graph/sub"
)

// completionHandle is the concrete CompletionHandle an async node's
// AsyncRun receives. It forwards exactly one call to the underlying
// sched.Task; a second call (or one after cancellation) is dropped with a
// logged warning rather than causing a panic or a silent write to an
// already-delivered channel (spec §6 "double-completion is ignored with a
// warning").
type completionHandle struct {
	e    *Engine
	h    NodeHandle
	task *sched.Task[Outputs]
}

// Complete implements CompletionHandle.
func (c completionHandle) Complete(outputs Outputs, err error) {
	if !c.task.Complete(outputs, err) {
		c.e.log.Warn().
			Uint64("node", uint64(c.h)).
			Msg("graph: duplicate or post-cancellation async completion ignored")
	}
}

// dispatchAsync resolves or starts the async task backing node h. If an
// equivalent value is already cached under the candidate fingerprint, it
// is returned directly without touching the task tracker. If a task is
// already outstanding for h (from a prior pass that has not yet resolved),
// dispatch is skipped and the Pending sentinel propagates again. Otherwise
// a new task is started, AsyncRun is invoked, and a background goroutine
// is spawned to wait for its single Complete call and fold the result into
// the cache once it arrives — the caller (executeNode, and in turn the
// current scheduling pass) never blocks on it (spec §4.7.5-6).
func (e *Engine) dispatchAsync(ctx context.Context, h NodeHandle, node AsyncNode, cfg Config, in Inputs, desc NodeDescriptor, fp cache.Fingerprint, cacheable bool) Outputs {
	if cacheable {
		hit := true
		out := make(Outputs, len(desc.Outputs))
		for _, o := range desc.Outputs {
			if !o.Cacheable {
				hit = false
				break
			}
			rec, ok := e.cache.Lookup(cache.Key{Node: uint64(h), Port: string(o.Name)}, fp)
			e.coll.ObserveCacheLookup(ok)
			if !ok {
				hit = false
				break
			}
			out[o.Name] = rec.Value
		}
		if hit && len(desc.Outputs) > 0 {
			e.publishAll(h, desc, out, sub.Changed)
			return out
		}
	}

	e.asyncMu.Lock()
	if _, inFlight := e.asyncTasks[h]; inFlight {
		e.asyncMu.Unlock()
		return e.pendingPassthrough(h, desc)
	}
	task := e.asyncTracker.Start()
	e.asyncTasks[h] = task
	e.asyncMu.Unlock()
	e.coll.SetAsyncPending(e.asyncTracker.Len())

	node.AsyncRun(ctx, cfg.Value(), in, completionHandle{e: e, h: h, task: task})
	go e.awaitAsync(ctx, h, node, cfg, in, desc, fp, cacheable, task, 0)

	return e.pendingPassthrough(h, desc)
}

// awaitAsync blocks on one task's completion, outside the scheduling
// pass that dispatched it, and on arrival folds the result into the
// cache and publishes a Resolved event (a Pending -> Completed
// transition, spec §4.8); a failed task's Resolved events carry the
// error in Event.Err. It also fires the advisory
// timeout warning at most once per task (spec §4.7.7).
//
// On failure, it consults the Engine's configured sched.RetryPolicy
// (grounded in the teacher's NodePolicy.RetryPolicy / computeBackoff
// retry loop in engine.go): if the error is retryable and attempts
// remain, it sleeps the computed backoff and re-invokes AsyncRun on a
// fresh task, looping in place rather than spawning a new goroutine per
// attempt, before ever building an errored outcome.
func (e *Engine) awaitAsync(ctx context.Context, h NodeHandle, node AsyncNode, cfg Config, in Inputs, desc NodeDescriptor, fp cache.Fingerprint, cacheable bool, task *sched.Task[Outputs], attempt int) {
	result := e.waitWithTimeoutWarning(h, desc, task)

	e.asyncMu.Lock()
	if e.asyncTasks[h] == task {
		delete(e.asyncTasks, h)
	}
	e.asyncMu.Unlock()
	e.asyncTracker.Forget(task.ID)
	e.coll.SetAsyncPending(e.asyncTracker.Len())

	if task.Cancelled() || ctx.Err() != nil {
		return
	}

	if result.Err != nil && e.retryPolicy.ShouldRetry(attempt, result.Err) {
		delay := sched.ComputeBackoff(attempt, e.retryPolicy.BaseDelay, e.retryPolicy.MaxDelay, nil)
		e.log.Warn().
			Uint64("node", uint64(h)).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(result.Err).
			Msg("graph: retrying failed async node")
		time.Sleep(delay)

		next := e.asyncTracker.Start()
		e.asyncMu.Lock()
		e.asyncTasks[h] = next
		e.asyncMu.Unlock()
		e.coll.SetAsyncPending(e.asyncTracker.Len())

		node.AsyncRun(ctx, cfg.Value(), in, completionHandle{e: e, h: h, task: next})
		e.awaitAsync(ctx, h, node, cfg, in, desc, fp, cacheable, next, attempt+1)
		return
	}

	var outputs Outputs
	if result.Err != nil {
		nodeErr := newEngineError("NODE_FAILED", ErrNodeFailed, h, "", "graph: async node %d failed: %v", h, result.Err)
		nodeErr.Err = fmt.Errorf("%w: %w", ErrNodeFailed, result.Err)
		outputs = errorAllOutputs(desc, nodeErr)
	} else {
		outputs = result.Value
		if cacheable {
			for _, o := range desc.Outputs {
				if o.Cacheable {
					e.cache.Store(cache.Key{Node: uint64(h), Port: string(o.Name)}, fp, outputs[o.Name], true)
				}
			}
		}
	}
	e.publishAll(h, desc, outputs, sub.Resolved)
}

func (e *Engine) waitWithTimeoutWarning(h NodeHandle, desc NodeDescriptor, task *sched.Task[Outputs]) sched.AsyncResult[Outputs] {
	if e.timeoutWarn <= 0 {
		return <-task.Done()
	}

	timer := time.NewTimer(e.timeoutWarn)
	defer timer.Stop()
	select {
	case result := <-task.Done():
		return result
	case <-timer.C:
		if task.MarkWarned() {
			e.log.Warn().
				Uint64("node", uint64(h)).
				Dur("outstanding", task.Outstanding()).
				Msg("graph: async node exceeded advisory timeout")
			e.publishTimeout(h, desc)
		}
		return <-task.Done()
	}
}

// publishTimeout fans out one advisory Timeout event per output of h, to
// both the per-address subscription Registry and the ambient Bus — never
// returned from Await, purely observational (spec §7).
func (e *Engine) publishTimeout(h NodeHandle, desc NodeDescriptor) {
	for _, o := range desc.Outputs {
		ev := sub.Event{Kind: sub.Timeout, Addr: toSubAddr(NewPortAddr(h, o.Name, SideOutput))}
		e.subs.Dispatch(ev)
		e.bus.Publish(ev)
	}
}
