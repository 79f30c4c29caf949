package graph

import "sync"

// nodeInstance is a runtime occurrence of a node in the graph: immutable
// once constructed, so that Snapshot (and Batch's clone-and-swap) never
// needs to deep-copy it — SetConfig always replaces the map entry with a
// freshly built *nodeInstance rather than mutating one in place.
type nodeInstance struct {
	handle NodeHandle
	node   Node
	desc   NodeDescriptor
	cfg    Config
}

type variadicKey struct {
	node NodeHandle
	port PortName
}

// Graph is a mutable DAG of node instances connected by typed edges. Every
// mutating operation (AddNode, RemoveNode, Connect, Disconnect, SetConfig,
// Batch) is transactional: on failure the graph is left byte-for-byte
// identical to its state before the call (spec §4.5, invariant 7).
//
// Mutating operations are serialized under a single sync.RWMutex, exactly
// mirroring the teacher's Engine.mu usage in Add/Connect/Run (spec §5
// "shared resource policy"); read-only queries (Snapshot, ListNodes) take
// the read lock and may proceed concurrently with each other.
type Graph struct {
	mu sync.RWMutex

	reg        *TypeRegistry
	nextHandle uint64

	nodes         map[NodeHandle]*nodeInstance
	boundInputs   map[PortAddr]Edge // keyed by destination addr, Index == -1
	variadicSlots map[variadicKey][]Edge
	outEdges      map[PortAddr][]Edge // keyed by source output addr

	// onInvalidate is called, outside the graph's own lock, once per
	// node whose cached outputs must be dropped as a result of a
	// mutation (node removal, config change, downstream edge change),
	// along with the names of that node's output ports at the time of
	// invalidation (captured before a removed node's descriptor becomes
	// unreachable). The Engine wires this to both
	// cache.Cache.InvalidateNode and a sub.Invalidated event per output
	// address (spec §4.8 "Removals fire Invalidated(output_addr)").
	onInvalidate func(NodeHandle, []PortName)
}

// NewGraph creates an empty Graph using reg to validate port types on
// Connect.
func NewGraph(reg *TypeRegistry) *Graph {
	return &Graph{
		reg:           reg,
		nodes:         make(map[NodeHandle]*nodeInstance),
		boundInputs:   make(map[PortAddr]Edge),
		variadicSlots: make(map[variadicKey][]Edge),
		outEdges:      make(map[PortAddr][]Edge),
		onInvalidate:  func(NodeHandle, []PortName) {},
	}
}

// outputNames returns the declared output port names of desc, in
// declaration order, for handing to onInvalidate.
func outputNames(desc NodeDescriptor) []PortName {
	names := make([]PortName, len(desc.Outputs))
	for i, o := range desc.Outputs {
		names[i] = o.Name
	}
	return names
}

// SetInvalidationHook wires fn to be called with every NodeHandle whose
// cache entries must be dropped following a graph edit, and that node's
// output port names. The Engine calls this once during construction;
// node-author code never needs to.
func (g *Graph) SetInvalidationHook(fn func(NodeHandle, []PortName)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if fn == nil {
		fn = func(NodeHandle, []PortName) {}
	}
	g.onInvalidate = fn
}

// AddNode inserts a new node instance of the given Node kind with
// configuration cfg, returning its NodeHandle. Fails with ErrInvalidConfig
// if cfg could not be hashed (spec §4.5).
func (g *Graph) AddNode(node Node, cfg Config) (NodeHandle, error) {
	if !cfg.Valid() {
		return 0, newEngineError("INVALID_CONFIG", ErrInvalidConfig, 0, "", "")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextHandle++
	h := NodeHandle(g.nextHandle)
	g.nodes[h] = &nodeInstance{handle: h, node: node, desc: node.Descriptor(), cfg: cfg}
	return h, nil
}

// RemoveNode deletes a node and every edge incident to it. Cache entries
// for the removed node, and for every node the removal disconnects an
// input from, are invalidated (spec §4.5).
func (g *Graph) RemoveNode(h NodeHandle) error {
	g.mu.Lock()
	affected, err := g.removeNodeLocked(h)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	for a, outs := range affected {
		g.onInvalidate(a, outs)
	}
	return nil
}

func (g *Graph) removeNodeLocked(h NodeHandle) (map[NodeHandle][]PortName, error) {
	inst, ok := g.nodes[h]
	if !ok {
		return nil, newEngineError("UNKNOWN_NODE", ErrUnknownNode, h, "", "")
	}
	affected := map[NodeHandle]struct{}{h: {}}

	for addr, e := range g.boundInputs {
		if addr.Node == h || e.From.Node == h {
			delete(g.boundInputs, addr)
			g.removeOutEdge(e)
			affected[addr.Node] = struct{}{}
			affected[e.From.Node] = struct{}{}
		}
	}
	for key, edges := range g.variadicSlots {
		if key.node == h {
			for _, e := range edges {
				g.removeOutEdge(e)
				affected[e.From.Node] = struct{}{}
			}
			delete(g.variadicSlots, key)
			continue
		}
		kept := edges[:0:0]
		changed := false
		for _, e := range edges {
			if e.From.Node == h {
				g.removeOutEdge(e)
				changed = true
				continue
			}
			kept = append(kept, e)
		}
		if changed {
			g.variadicSlots[key] = reindexVariadic(kept)
			affected[key.node] = struct{}{}
		}
	}
	delete(g.nodes, h)

	out := make(map[NodeHandle][]PortName, len(affected))
	out[h] = outputNames(inst.desc)
	for a := range affected {
		if a == h {
			continue
		}
		if other, ok := g.nodes[a]; ok {
			out[a] = outputNames(other.desc)
		}
	}
	return out, nil
}

func (g *Graph) removeOutEdge(e Edge) {
	list := g.outEdges[e.From]
	for i, o := range list {
		if o == e {
			g.outEdges[e.From] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(g.outEdges[e.From]) == 0 {
		delete(g.outEdges, e.From)
	}
}

func reindexVariadic(edges []Edge) []Edge {
	for i := range edges {
		edges[i].To.Index = i
	}
	return edges
}

// Connect links an output port to an input port slot. For non-variadic
// inputs, to.Index must be -1 (see NewPortAddr); for variadic inputs, a
// new slot is appended regardless of to.Index, which is reassigned to the
// slot's position.
//
// Fails with ErrUnknownPort, ErrTypeMismatch, ErrInputAlreadyBound, or
// ErrWouldCycle (spec §4.5). On any failure the graph is unchanged.
func (g *Graph) Connect(from, to PortAddr) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectLocked(from, to)
}

func (g *Graph) connectLocked(from, to PortAddr) error {
	srcNode, ok := g.nodes[from.Node]
	if !ok {
		return newEngineError("UNKNOWN_NODE", ErrUnknownNode, from.Node, from.Port, "")
	}
	dstNode, ok := g.nodes[to.Node]
	if !ok {
		return newEngineError("UNKNOWN_NODE", ErrUnknownNode, to.Node, to.Port, "")
	}
	outPort, ok := srcNode.desc.OutputByName(from.Port)
	if !ok {
		return newEngineError("UNKNOWN_PORT", ErrUnknownPort, from.Node, from.Port, "")
	}
	inPort, ok := dstNode.desc.InputByName(to.Port)
	if !ok {
		return newEngineError("UNKNOWN_PORT", ErrUnknownPort, to.Node, to.Port, "")
	}
	if outPort.Type != inPort.Type {
		return newEngineError("TYPE_MISMATCH", ErrTypeMismatch, to.Node, to.Port,
			"graph: cannot connect %s output %q (%s) to %s input %q (%s)",
			from.Node, from.Port, outPort.Type, to.Node, to.Port, inPort.Type)
	}

	if inPort.Kind == Variadic {
		key := variadicKey{node: to.Node, port: to.Port}
		if g.wouldCycle(from.Node, to.Node) {
			return newEngineError("WOULD_CYCLE", ErrWouldCycle, to.Node, to.Port, "")
		}
		e := Edge{From: from, To: PortAddr{Node: to.Node, Port: to.Port, Side: SideInput, Index: len(g.variadicSlots[key])}}
		g.variadicSlots[key] = append(g.variadicSlots[key], e)
		g.outEdges[from] = append(g.outEdges[from], e)
		return nil
	}

	dest := NewPortAddr(to.Node, to.Port, SideInput)
	if _, bound := g.boundInputs[dest]; bound {
		return newEngineError("INPUT_ALREADY_BOUND", ErrInputAlreadyBound, to.Node, to.Port, "")
	}
	if g.wouldCycle(from.Node, to.Node) {
		return newEngineError("WOULD_CYCLE", ErrWouldCycle, to.Node, to.Port, "")
	}
	e := Edge{From: from, To: dest}
	g.boundInputs[dest] = e
	g.outEdges[from] = append(g.outEdges[from], e)
	return nil
}

// wouldCycle reports whether adding an edge from srcNode to dstNode would
// create a directed cycle: true iff dstNode can already reach srcNode. A
// self-loop (srcNode == dstNode) is always a cycle.
func (g *Graph) wouldCycle(srcNode, dstNode NodeHandle) bool {
	if srcNode == dstNode {
		return true
	}
	visited := map[NodeHandle]bool{dstNode: true}
	stack := []NodeHandle{dstNode}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for addr := range g.outAddrsOf(n) {
			for _, e := range g.outEdges[addr] {
				next := e.To.Node
				if next == srcNode {
					return true
				}
				if !visited[next] {
					visited[next] = true
					stack = append(stack, next)
				}
			}
		}
	}
	return false
}

// outAddrsOf returns every output PortAddr declared on node n, as a set
// suitable for iterating g.outEdges.
func (g *Graph) outAddrsOf(n NodeHandle) map[PortAddr]struct{} {
	inst, ok := g.nodes[n]
	if !ok {
		return nil
	}
	set := make(map[PortAddr]struct{}, len(inst.desc.Outputs))
	for _, o := range inst.desc.Outputs {
		set[NewPortAddr(n, o.Name, SideOutput)] = struct{}{}
	}
	return set
}

// Disconnect removes the edge feeding a non-variadic input, or one slot of
// a variadic input (identified by to.Index). Fails with ErrNotConnected if
// no edge is present.
func (g *Graph) Disconnect(to PortAddr) error {
	g.mu.Lock()
	affected, err := g.disconnectLocked(to)
	var outs []PortName
	if err == nil {
		if inst, ok := g.nodes[affected]; ok {
			outs = outputNames(inst.desc)
		}
	}
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.onInvalidate(affected, outs)
	return nil
}

func (g *Graph) disconnectLocked(to PortAddr) (NodeHandle, error) {
	if to.IsVariadicSlot() {
		key := variadicKey{node: to.Node, port: to.Port}
		edges := g.variadicSlots[key]
		if to.Index < 0 || to.Index >= len(edges) {
			return 0, newEngineError("NOT_CONNECTED", ErrNotConnected, to.Node, to.Port, "")
		}
		removed := edges[to.Index]
		g.removeOutEdge(removed)
		edges = append(edges[:to.Index], edges[to.Index+1:]...)
		g.variadicSlots[key] = reindexVariadic(edges)
		return to.Node, nil
	}
	dest := NewPortAddr(to.Node, to.Port, SideInput)
	e, ok := g.boundInputs[dest]
	if !ok {
		return 0, newEngineError("NOT_CONNECTED", ErrNotConnected, to.Node, to.Port, "")
	}
	delete(g.boundInputs, dest)
	g.removeOutEdge(e)
	return to.Node, nil
}

// SetConfig replaces a node's configuration blob, invalidating this node's
// cached outputs immediately; invalidation of downstream nodes is
// deferred to the next execution's fingerprint comparison (spec §4.5
// "lazy").
func (g *Graph) SetConfig(h NodeHandle, cfg Config) error {
	if !cfg.Valid() {
		return newEngineError("INVALID_CONFIG", ErrInvalidConfig, h, "", "")
	}
	g.mu.Lock()
	err := g.setConfigLocked(h, cfg)
	var outs []PortName
	if err == nil {
		if inst, ok := g.nodes[h]; ok {
			outs = outputNames(inst.desc)
		}
	}
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.onInvalidate(h, outs)
	return nil
}

func (g *Graph) setConfigLocked(h NodeHandle, cfg Config) error {
	inst, ok := g.nodes[h]
	if !ok {
		return newEngineError("UNKNOWN_NODE", ErrUnknownNode, h, "", "")
	}
	g.nodes[h] = &nodeInstance{handle: h, node: inst.node, desc: inst.desc, cfg: cfg}
	return nil
}

// ReorderVariadic replaces the ordered edge list of a variadic input port
// wholesale, given the desired From addresses in their new order. Every
// address in order must already be connected to this input; ReorderVariadic
// only permutes existing slots, it does not add or remove edges. Per spec
// §4.3 Open Question (a), this invalidates only the consuming node's
// cache, relying on fingerprinting to cascade further invalidation lazily.
func (g *Graph) ReorderVariadic(node NodeHandle, port PortName, order []PortAddr) error {
	g.mu.Lock()
	err := g.reorderVariadicLocked(node, port, order)
	var outs []PortName
	if err == nil {
		if inst, ok := g.nodes[node]; ok {
			outs = outputNames(inst.desc)
		}
	}
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.onInvalidate(node, outs)
	return nil
}

func (g *Graph) reorderVariadicLocked(node NodeHandle, port PortName, order []PortAddr) error {
	key := variadicKey{node: node, port: port}
	existing := g.variadicSlots[key]
	if len(order) != len(existing) {
		return newEngineError("NOT_CONNECTED", ErrNotConnected, node, port, "")
	}
	byFrom := make(map[PortAddr]Edge, len(existing))
	for _, e := range existing {
		byFrom[e.From] = e
	}
	reordered := make([]Edge, len(order))
	for i, from := range order {
		e, ok := byFrom[from]
		if !ok {
			return newEngineError("NOT_CONNECTED", ErrNotConnected, node, port, "")
		}
		e.To.Index = i
		reordered[i] = e
	}
	g.variadicSlots[key] = reordered
	return nil
}

// Edit is one operation applied within a Batch: it receives a handle to
// the graph-under-construction and returns an error to abort the whole
// batch.
type Edit func(*Graph) error

// Batch applies every edit atomically: if any edit returns an error, the
// graph is left exactly as it was before Batch was called (spec §4.5
// "bulk atomic edit (all-or-nothing)", invariant 7 "Atomic batch edits").
//
// Batch clones the graph's node/edge maps into a scratch Graph, runs every
// edit against that scratch copy, and only swaps the scratch maps into
// the live graph if every edit succeeds — mirroring, at batch granularity,
// the teacher's single sync.RWMutex-guarded critical section per edit.
func (g *Graph) Batch(edits ...Edit) error {
	g.mu.Lock()

	scratch := g.cloneLocked()
	for _, edit := range edits {
		if err := edit(scratch); err != nil {
			g.mu.Unlock()
			return err
		}
	}

	before := g.nodeHandleSet()
	beforeOutputs := make(map[NodeHandle][]PortName, len(before))
	for h := range before {
		beforeOutputs[h] = outputNames(g.nodes[h].desc)
	}

	g.nodes = scratch.nodes
	g.boundInputs = scratch.boundInputs
	g.variadicSlots = scratch.variadicSlots
	g.outEdges = scratch.outEdges
	g.nextHandle = scratch.nextHandle

	after := g.nodeHandleSet()
	afterOutputs := make(map[NodeHandle][]PortName, len(after))
	for h := range after {
		afterOutputs[h] = outputNames(g.nodes[h].desc)
	}
	hook := g.onInvalidate
	g.mu.Unlock()

	for h := range before {
		hook(h, beforeOutputs[h])
	}
	for h := range after {
		hook(h, afterOutputs[h])
	}
	return nil
}

func (g *Graph) nodeHandleSet() map[NodeHandle]struct{} {
	set := make(map[NodeHandle]struct{}, len(g.nodes))
	for h := range g.nodes {
		set[h] = struct{}{}
	}
	return set
}

// cloneLocked returns a scratch Graph sharing this graph's registry but
// holding independent copies of every mutable map, for Batch's
// clone-and-swap. Caller must already hold g.mu.
func (g *Graph) cloneLocked() *Graph {
	nodes := make(map[NodeHandle]*nodeInstance, len(g.nodes))
	for h, n := range g.nodes {
		nodes[h] = n // nodeInstance is never mutated in place, safe to share
	}
	bound := make(map[PortAddr]Edge, len(g.boundInputs))
	for k, v := range g.boundInputs {
		bound[k] = v
	}
	variadic := make(map[variadicKey][]Edge, len(g.variadicSlots))
	for k, v := range g.variadicSlots {
		cp := make([]Edge, len(v))
		copy(cp, v)
		variadic[k] = cp
	}
	outEdges := make(map[PortAddr][]Edge, len(g.outEdges))
	for k, v := range g.outEdges {
		cp := make([]Edge, len(v))
		copy(cp, v)
		outEdges[k] = cp
	}
	return &Graph{
		reg:           g.reg,
		nextHandle:    g.nextHandle,
		nodes:         nodes,
		boundInputs:   bound,
		variadicSlots: variadic,
		outEdges:      outEdges,
		onInvalidate:  func(NodeHandle, []PortName) {},
	}
}

// ListNodes returns every NodeHandle currently in the graph, in no
// particular order.
func (g *Graph) ListNodes() []NodeHandle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]NodeHandle, 0, len(g.nodes))
	for h := range g.nodes {
		out = append(out, h)
	}
	return out
}

// NodeInputs returns the declared input ports of a node's descriptor.
func (g *Graph) NodeInputs(h NodeHandle) ([]InputPort, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	inst, ok := g.nodes[h]
	if !ok {
		return nil, newEngineError("UNKNOWN_NODE", ErrUnknownNode, h, "", "")
	}
	return inst.desc.Inputs, nil
}

// NodeOutputs returns the declared output ports of a node's descriptor.
func (g *Graph) NodeOutputs(h NodeHandle) ([]OutputPort, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	inst, ok := g.nodes[h]
	if !ok {
		return nil, newEngineError("UNKNOWN_NODE", ErrUnknownNode, h, "", "")
	}
	return inst.desc.Outputs, nil
}
