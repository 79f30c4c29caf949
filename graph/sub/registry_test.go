package sub

import "testing"

func TestRegistrySubscribeDispatchUnsubscribe(t *testing.T) {
	r := NewRegistry()
	addr := Addr{Node: 1, Port: "out", Index: -1}

	var received []Event
	tok := r.Subscribe(addr, func(ev Event) { received = append(received, ev) })

	r.Dispatch(Event{Kind: Changed, Addr: addr, Hash: [32]byte{1}})
	if len(received) != 1 {
		t.Fatalf("got %d events, want 1", len(received))
	}

	r.Unsubscribe(addr, tok)
	r.Dispatch(Event{Kind: Changed, Addr: addr, Hash: [32]byte{2}})
	if len(received) != 1 {
		t.Fatalf("expected no further delivery after Unsubscribe, got %d events", len(received))
	}
}

func TestRegistryChangedGatedOnHashDiff(t *testing.T) {
	r := NewRegistry()
	addr := Addr{Node: 1, Port: "out", Index: -1}

	var count int
	r.Subscribe(addr, func(Event) { count++ })

	r.Dispatch(Event{Kind: Changed, Addr: addr, Hash: [32]byte{1}})
	r.Dispatch(Event{Kind: Changed, Addr: addr, Hash: [32]byte{1}}) // same hash, no delivery
	r.Dispatch(Event{Kind: Changed, Addr: addr, Hash: [32]byte{2}}) // different hash, delivers

	if count != 2 {
		t.Fatalf("got %d deliveries, want 2", count)
	}
}

func TestRegistryNonChangedAlwaysDelivered(t *testing.T) {
	r := NewRegistry()
	addr := Addr{Node: 1, Port: "out", Index: -1}

	var count int
	r.Subscribe(addr, func(Event) { count++ })

	r.Dispatch(Event{Kind: Resolved, Addr: addr, Hash: [32]byte{1}})
	r.Dispatch(Event{Kind: Resolved, Addr: addr, Hash: [32]byte{1}})

	if count != 2 {
		t.Fatalf("got %d deliveries, want 2 (Resolved events are never hash-gated)", count)
	}
}

func TestRegistryIndependentObserverBaselines(t *testing.T) {
	r := NewRegistry()
	addr := Addr{Node: 1, Port: "out", Index: -1}

	var earlyCount, lateCount int
	r.Subscribe(addr, func(Event) { earlyCount++ })
	r.Dispatch(Event{Kind: Changed, Addr: addr, Hash: [32]byte{1}})

	// Second observer subscribes after the first Changed delivery; its
	// baseline starts empty, so the same hash it has never seen must
	// still be delivered to it.
	r.Subscribe(addr, func(Event) { lateCount++ })
	r.Dispatch(Event{Kind: Changed, Addr: addr, Hash: [32]byte{1}})

	if earlyCount != 1 {
		t.Fatalf("early observer got %d deliveries, want 1 (repeated hash)", earlyCount)
	}
	if lateCount != 1 {
		t.Fatalf("late observer got %d deliveries, want 1 (first hash it has seen)", lateCount)
	}
}

func TestRegistryDispatchToUnknownAddrIsNoop(t *testing.T) {
	r := NewRegistry()
	// Must not panic when no observer is registered for ev.Addr.
	r.Dispatch(Event{Kind: Changed, Addr: Addr{Node: 99, Port: "x", Index: -1}})
}
