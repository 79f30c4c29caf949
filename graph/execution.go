package graph

import (
	"context"

	"github.com/google/uuid"
)

// ExecutionId identifies one execute() call (spec §6). It is a random
// UUID (github.com/google/uuid) rather than a counter so concurrent
// Execute calls never collide and the id is safe to log or trace without
// coordinating with the engine.
type ExecutionId = uuid.UUID

// Result is what await() returns for one target output: either a Value
// (which may itself be the Pending sentinel, surfaced with Pending set
// so a stale-but-valid passthrough is distinguishable from a freshly
// produced value) or an Err describing why the output could not be
// produced (spec §7).
type Result struct {
	Value   Value
	Pending bool
	Err     error
}

// execution tracks one in-flight or completed Execute call.
type execution struct {
	id      ExecutionId
	targets []PortAddr
	done    chan struct{}
	cancel  context.CancelFunc

	results map[PortAddr]Result
}
