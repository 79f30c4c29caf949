package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nodeflow-dev/nodeflow/graph/cache"
	"github.com/nodeflow-dev/nodeflow/graph/metrics"
	"github.com/nodeflow-dev/nodeflow/graph/sched"
	"github.com/nodeflow-dev/nodeflow/graph/sub"
)

// Engine owns one Graph, its Cache, and the worker pool that executes it
// (spec §5 "The graph and cache are owned by a single engine context").
// Construct with New; every field is private, configured through
// functional Options.
type Engine struct {
	reg   *TypeRegistry
	graph *Graph
	cache *cache.Cache[Value]
	bus   sub.Bus
	subs  *sub.Registry
	coll  *metrics.Collector

	workers     int
	timeoutWarn time.Duration
	retryPolicy sched.RetryPolicy

	asyncTracker *sched.Tracker[Outputs]
	asyncTasks   map[NodeHandle]*sched.Task[Outputs]
	asyncMu      sync.Mutex

	execMu sync.Mutex
	execs  map[ExecutionId]*execution

	log zerolog.Logger
}

// New constructs an Engine. Pass WithWorkers, WithCacheCapacity,
// WithRegistry, WithBus, WithMetrics, WithTimeoutWarning, or a single
// WithOptions(legacyOptions) to configure it; defaults mirror the
// teacher's New(...) (worker count = runtime.NumCPU(), no cache bound,
// NullBus, and a metrics collector on a private registry that is not
// exposed anywhere).
func New(opts ...Option) (*Engine, error) {
	cfg, err := resolveConfig(opts...)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		reg:          cfg.reg,
		cache:        cache.New[Value](cfg.opts.CacheCapacity),
		bus:          cfg.bus,
		subs:         sub.NewRegistry(),
		coll:         cfg.coll,
		workers:      cfg.opts.Workers,
		timeoutWarn:  cfg.opts.DefaultNodeTimeoutWarning,
		retryPolicy:  cfg.opts.RetryPolicy,
		asyncTracker: sched.NewTracker[Outputs](),
		asyncTasks:   make(map[NodeHandle]*sched.Task[Outputs]),
		execs:        make(map[ExecutionId]*execution),
		log:          log.With().Str("component", "nodeflow.engine").Logger(),
	}
	e.graph = NewGraph(cfg.reg)
	e.graph.SetInvalidationHook(e.invalidate)
	return e, nil
}

// invalidate drops node h's cache entries and publishes one
// sub.Invalidated event per affected output address (spec §4.8 "Removals
// fire Invalidated(output_addr)"), to both the per-address Registry and
// the ambient Bus, mirroring publishTimeout/publishAll's fan-out.
func (e *Engine) invalidate(h NodeHandle, outputs []PortName) {
	e.cache.InvalidateNode(uint64(h))
	for _, name := range outputs {
		ev := sub.Event{Kind: sub.Invalidated, Addr: toSubAddr(NewPortAddr(h, name, SideOutput))}
		e.subs.Dispatch(ev)
		e.bus.Publish(ev)
	}
}

// AddNode inserts a new node instance (spec §6 "Graph editing").
func (e *Engine) AddNode(node Node, cfg Config) (NodeHandle, error) {
	return e.graph.AddNode(node, cfg)
}

// RemoveNode removes a node and its incident edges. Any async task still
// outstanding for h is cancelled so its eventual result, if one arrives,
// is discarded rather than written to a cache entry that no longer has a
// node behind it (spec §5 "Cancellation semantics").
func (e *Engine) RemoveNode(h NodeHandle) error {
	e.asyncMu.Lock()
	if task, ok := e.asyncTasks[h]; ok {
		task.Cancel()
		e.asyncTracker.Forget(task.ID)
		delete(e.asyncTasks, h)
	}
	e.asyncMu.Unlock()
	return e.graph.RemoveNode(h)
}

// Connect links an output port to an input port slot.
func (e *Engine) Connect(from, to PortAddr) error {
	return e.graph.Connect(from, to)
}

// Disconnect removes the edge feeding an input port or variadic slot.
func (e *Engine) Disconnect(to PortAddr) error {
	return e.graph.Disconnect(to)
}

// SetConfig updates a node's configuration blob.
func (e *Engine) SetConfig(h NodeHandle, cfg Config) error {
	return e.graph.SetConfig(h, cfg)
}

// ReorderVariadic permutes the connection order of a variadic input.
func (e *Engine) ReorderVariadic(node NodeHandle, port PortName, order []PortAddr) error {
	return e.graph.ReorderVariadic(node, port, order)
}

// Batch applies a sequence of edits atomically.
func (e *Engine) Batch(edits ...Edit) error {
	return e.graph.Batch(edits...)
}

// ListNodes returns every node handle in the graph.
func (e *Engine) ListNodes() []NodeHandle { return e.graph.ListNodes() }

// NodeInputs returns a node's declared input ports.
func (e *Engine) NodeInputs(h NodeHandle) ([]InputPort, error) { return e.graph.NodeInputs(h) }

// NodeOutputs returns a node's declared output ports.
func (e *Engine) NodeOutputs(h NodeHandle) ([]OutputPort, error) { return e.graph.NodeOutputs(h) }

// GetCached returns the cached value for an output address, if present,
// regardless of whether its fingerprint is still current.
func (e *Engine) GetCached(addr PortAddr) (Value, bool) {
	rec, ok := e.cache.LookupStale(cache.Key{Node: uint64(addr.Node), Port: string(addr.Port)})
	if !ok {
		return Value{}, false
	}
	return rec.Value, true
}

// Subscribe registers observer for Changed/Resolved/Invalidated events at
// addr (spec §4.8).
func (e *Engine) Subscribe(addr PortAddr, observer func(sub.Event)) sub.Token {
	return e.subs.Subscribe(toSubAddr(addr), observer)
}

// Unsubscribe removes a previously registered observer.
func (e *Engine) Unsubscribe(addr PortAddr, token sub.Token) {
	e.subs.Unsubscribe(toSubAddr(addr), token)
}

func toSubAddr(a PortAddr) sub.Addr {
	return sub.Addr{Node: uint64(a.Node), Port: string(a.Port), Index: a.Index}
}

// Execute schedules a pass toward the given target output addresses and
// returns immediately with an ExecutionId; call Await to block for its
// results (spec §6 "execute(targets) -> ExecutionId").
func (e *Engine) Execute(ctx context.Context, targets ...PortAddr) (ExecutionId, error) {
	id := uuid.New()
	runCtx, cancel := context.WithCancel(ctx)
	ex := &execution{id: id, targets: targets, done: make(chan struct{}), cancel: cancel}

	e.execMu.Lock()
	e.execs[id] = ex
	e.execMu.Unlock()

	go func() {
		defer close(ex.done)
		ex.results = e.runPass(runCtx, targets)
	}()
	return id, nil
}

// Await blocks until the execution's scheduling pass completes (not until
// outstanding async tasks resolve — see spec §4.7.5 "stale-but-valid"
// passthrough) or ctx is cancelled, returning the per-target Result map.
func (e *Engine) Await(ctx context.Context, id ExecutionId) (map[PortAddr]Result, error) {
	e.execMu.Lock()
	ex, ok := e.execs[id]
	e.execMu.Unlock()
	if !ok {
		return nil, newEngineError("UNKNOWN_EXECUTION", ErrUnknownExecution, 0, "", "")
	}

	select {
	case <-ex.done:
		return ex.results, nil
	case <-ctx.Done():
		return nil, newEngineError("CANCELLED", ErrCancelled, 0, "", "")
	}
}

// Cancel aborts an in-flight execution: its scheduling pass is cancelled
// cooperatively, and every async task it started sees its context
// cancelled; a result that arrives afterward is discarded silently (spec
// §4.7.8).
func (e *Engine) Cancel(id ExecutionId) error {
	e.execMu.Lock()
	ex, ok := e.execs[id]
	e.execMu.Unlock()
	if !ok {
		return newEngineError("UNKNOWN_EXECUTION", ErrUnknownExecution, 0, "", "")
	}
	ex.cancel()
	return nil
}

// AggregateErrors folds every failing target in an Await result into one
// error using github.com/hashicorp/go-multierror, so a caller awaiting
// several target outputs at once can learn about every failing origin
// with a single errors.Is/errors.As walk rather than re-ranging the map
// itself (spec §4.7.9 "Siblings in independent subgraphs continue"). It
// returns nil if every target resolved without error.
func AggregateErrors(results map[PortAddr]Result) error {
	var merr *multierror.Error
	for addr, r := range results {
		if r.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s.%s: %w", addr.Node, addr.Port, r.Err))
		}
	}
	return merr.ErrorOrNil()
}
