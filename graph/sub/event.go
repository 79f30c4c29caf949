// Package sub provides the subscription/events component: change
// notifications to external observers when a port's output becomes
// available or invalidated, plus a small family of backend sinks
// (null/log/otel/buffered) adapted from the teacher's emit.Emitter for
// ambient delivery of every event regardless of subscription.
package sub

import "context"

// Addr identifies one output port by node handle and port name, mirroring
// graph.PortAddr without importing the graph package (the dependency runs
// the other way: graph imports sub). Index mirrors graph.PortAddr.Index;
// every event the engine publishes addresses an output port, so it is -1.
type Addr struct {
	Node  uint64
	Port  string
	Index int
}

// Kind classifies a subscription event (spec §4.8).
type Kind uint8

const (
	// Changed fires when an execution finishes and an output's value-hash
	// differs from the last one delivered to a given subscriber.
	Changed Kind = iota
	// Resolved fires on a Pending→Completed transition for one output.
	Resolved
	// Invalidated fires when an output's cached value is dropped, e.g. by
	// node removal.
	Invalidated
	// Timeout fires once, advisory-only, when an async node's outstanding
	// task exceeds the engine's configured warning threshold. It is never
	// returned from an await() result (spec §7 "Timeout(advisory) —
	// emitted as event only").
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Changed:
		return "changed"
	case Resolved:
		return "resolved"
	case Invalidated:
		return "invalidated"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Event is one subscription notification (spec §4.8).
type Event struct {
	Kind  Kind
	Addr  Addr
	Hash  [32]byte
	Value any
	Err   error
}

// Bus receives every event the engine publishes, regardless of whether any
// observer is currently subscribed to the originating address — the
// ambient observability sink, generalized from the teacher's
// emit.Emitter interface (Emit/EmitBatch/Flush) to the Changed/Resolved/
// Invalidated event shape of spec §4.8.
type Bus interface {
	// Publish sends a single event to the backend. Implementations must
	// not block execution for long and must not panic.
	Publish(ev Event)
	// PublishBatch sends multiple events in one call, preserving order.
	PublishBatch(ctx context.Context, events []Event) error
	// Flush blocks until every buffered event has been delivered, or ctx
	// is cancelled.
	Flush(ctx context.Context) error
}
