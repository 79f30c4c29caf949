package graph

import "testing"

func TestSnapshotReverseReachableExcludesUnrelatedNodes(t *testing.T) {
	reg := NewTypeRegistry()
	g := NewGraph(reg)
	a, _ := g.AddNode(intOutNode(reg, 1), NewConfig(nil))
	b, _ := g.AddNode(passthroughIntNode(reg), NewConfig(nil))
	unrelated, _ := g.AddNode(intOutNode(reg, 2), NewConfig(nil))
	if err := g.Connect(NewPortAddr(a, "out", SideOutput), NewPortAddr(b, "in", SideInput)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	snap := g.Snapshot()
	reachable := snap.ReverseReachable([]PortAddr{NewPortAddr(b, "out", SideOutput)})

	if _, ok := reachable[a]; !ok {
		t.Fatal("expected producer a to be reachable from target b")
	}
	if _, ok := reachable[b]; !ok {
		t.Fatal("expected target node b to be reachable from itself")
	}
	if _, ok := reachable[unrelated]; ok {
		t.Fatal("expected unrelated node to be excluded from the reachable set")
	}
}

func TestSnapshotTopoOrderRespectsDependencies(t *testing.T) {
	reg := NewTypeRegistry()
	g := NewGraph(reg)
	a, _ := g.AddNode(intOutNode(reg, 1), NewConfig(nil))
	b, _ := g.AddNode(passthroughIntNode(reg), NewConfig(nil))
	c, _ := g.AddNode(passthroughIntNode(reg), NewConfig(nil))
	if err := g.Connect(NewPortAddr(a, "out", SideOutput), NewPortAddr(b, "in", SideInput)); err != nil {
		t.Fatalf("Connect a->b: %v", err)
	}
	if err := g.Connect(NewPortAddr(b, "out", SideOutput), NewPortAddr(c, "in", SideInput)); err != nil {
		t.Fatalf("Connect b->c: %v", err)
	}

	snap := g.Snapshot()
	reachable := snap.ReverseReachable([]PortAddr{NewPortAddr(c, "out", SideOutput)})
	order := snap.TopoOrder(reachable)

	pos := make(map[NodeHandle]int, len(order))
	for i, h := range order {
		pos[h] = i
	}
	if pos[a] >= pos[b] || pos[b] >= pos[c] {
		t.Fatalf("expected topological order a,b,c; got %v", order)
	}
}

func TestSnapshotTopoOrderTieBreaksAscendingHandle(t *testing.T) {
	reg := NewTypeRegistry()
	g := NewGraph(reg)
	// Two independent producers with no edges between them: order must be
	// deterministic, tie-broken by ascending NodeHandle.
	a, _ := g.AddNode(intOutNode(reg, 1), NewConfig(nil))
	b, _ := g.AddNode(intOutNode(reg, 2), NewConfig(nil))

	snap := g.Snapshot()
	reachable := snap.ReverseReachable([]PortAddr{
		NewPortAddr(a, "out", SideOutput),
		NewPortAddr(b, "out", SideOutput),
	})
	order := snap.TopoOrder(reachable)
	if len(order) != 2 || order[0] != a || order[1] != b {
		t.Fatalf("expected deterministic ascending-handle order [%v %v], got %v", a, b, order)
	}
}

func TestSnapshotIsolatedFromLiveGraphEdits(t *testing.T) {
	reg := NewTypeRegistry()
	g := NewGraph(reg)
	a, _ := g.AddNode(intOutNode(reg, 1), NewConfig(nil))

	snap := g.Snapshot()
	if _, err := g.AddNode(intOutNode(reg, 2), NewConfig(nil)); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	if len(snap.NodeHandles()) != 1 || snap.NodeHandles()[0] != a {
		t.Fatal("expected snapshot taken before the edit to still see only the original node")
	}
}
