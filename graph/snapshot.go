package graph

import "sort"

// ExecutionSnapshot is an immutable copy of the graph's structure taken at
// the start of an execution, guaranteeing the scheduler a stable view even
// if the client continues editing the live Graph concurrently (spec §3
// "ExecutionSnapshot"). Because nodeInstance values are never mutated in
// place (SetConfig always replaces the map entry), a shallow copy of the
// graph's maps is sufficient — no deep cloning of node state is needed.
type ExecutionSnapshot struct {
	nodes         map[NodeHandle]*nodeInstance
	boundInputs   map[PortAddr]Edge
	variadicSlots map[variadicKey][]Edge
	outEdges      map[PortAddr][]Edge
}

// Snapshot takes a shallow copy of the graph's maps for the scheduler
// to execute against (spec §4.5 "snapshot()").
func (g *Graph) Snapshot() *ExecutionSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make(map[NodeHandle]*nodeInstance, len(g.nodes))
	for h, n := range g.nodes {
		nodes[h] = n
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
	return &ExecutionSnapshot{nodes: nodes, boundInputs: bound, variadicSlots: variadic, outEdges: outEdges}
}

// NodeHandles returns every node handle present in the snapshot.
func (s *ExecutionSnapshot) NodeHandles() []NodeHandle {
	out := make([]NodeHandle, 0, len(s.nodes))
	for h := range s.nodes {
		out = append(out, h)
	}
	return out
}

// Descriptor returns a node's static descriptor.
func (s *ExecutionSnapshot) Descriptor(h NodeHandle) (NodeDescriptor, bool) {
	inst, ok := s.nodes[h]
	if !ok {
		return NodeDescriptor{}, false
	}
	return inst.desc, true
}

// Node returns a node's runnable implementation.
func (s *ExecutionSnapshot) Node(h NodeHandle) (Node, bool) {
	inst, ok := s.nodes[h]
	if !ok {
		return nil, false
	}
	return inst.node, true
}

// NodeConfig returns a node's configuration blob.
func (s *ExecutionSnapshot) NodeConfig(h NodeHandle) (Config, bool) {
	inst, ok := s.nodes[h]
	if !ok {
		return Config{}, false
	}
	return inst.cfg, true
}

// InputEdge returns the single edge feeding a required or optional input
// port, if connected.
func (s *ExecutionSnapshot) InputEdge(node NodeHandle, port PortName) (Edge, bool) {
	e, ok := s.boundInputs[NewPortAddr(node, port, SideInput)]
	return e, ok
}

// VariadicEdges returns the ordered edges feeding a variadic input port.
func (s *ExecutionSnapshot) VariadicEdges(node NodeHandle, port PortName) []Edge {
	return s.variadicSlots[variadicKey{node: node, port: port}]
}

// Consumers returns every edge whose From matches the given output
// address, i.e. the downstream fan-out of that output.
func (s *ExecutionSnapshot) Consumers(out PortAddr) []Edge {
	return s.outEdges[out]
}

// ReverseReachable computes the set of node handles that must execute to
// produce the given target output addresses: the targets themselves plus
// every node transitively feeding one of their inputs (spec §4.7.1).
func (s *ExecutionSnapshot) ReverseReachable(targets []PortAddr) map[NodeHandle]struct{} {
	visited := make(map[NodeHandle]struct{})
	var visit func(NodeHandle)
	visit = func(h NodeHandle) {
		if _, ok := visited[h]; ok {
			return
		}
		visited[h] = struct{}{}
		inst, ok := s.nodes[h]
		if !ok {
			return
		}
		for _, in := range inst.desc.Inputs {
			if in.Kind == Variadic {
				for _, e := range s.VariadicEdges(h, in.Name) {
					visit(e.From.Node)
				}
				continue
			}
			if e, ok := s.InputEdge(h, in.Name); ok {
				visit(e.From.Node)
			}
		}
	}
	for _, t := range targets {
		visit(t.Node)
	}
	return visited
}

// TopoOrder returns the reachable set topologically sorted via Kahn's
// algorithm, tie-broken on ascending NodeHandle ordinal so that, under a
// single worker, execution order is fully deterministic (spec §4.5
// "Tie-breaks", invariant 6).
func (s *ExecutionSnapshot) TopoOrder(reachable map[NodeHandle]struct{}) []NodeHandle {
	indegree := make(map[NodeHandle]int, len(reachable))
	for h := range reachable {
		indegree[h] = 0
	}
	for h := range reachable {
		inst := s.nodes[h]
		for _, in := range inst.desc.Inputs {
			if in.Kind == Variadic {
				for range s.VariadicEdges(h, in.Name) {
					indegree[h]++
				}
				continue
			}
			if _, ok := s.InputEdge(h, in.Name); ok {
				indegree[h]++
			}
		}
	}

	ready := make([]NodeHandle, 0, len(reachable))
	for h, d := range indegree {
		if d == 0 {
			ready = append(ready, h)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	var order []NodeHandle
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		inst := s.nodes[n]
		var nextReady []NodeHandle
		for _, out := range inst.desc.Outputs {
			for _, e := range s.Consumers(NewPortAddr(n, out.Name, SideOutput)) {
				if _, ok := reachable[e.To.Node]; !ok {
					continue
				}
				indegree[e.To.Node]--
				if indegree[e.To.Node] == 0 {
					nextReady = append(nextReady, e.To.Node)
				}
			}
		}
		ready = append(ready, nextReady...)
	}
	return order
}
