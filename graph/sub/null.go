package sub

import "context"

// NullBus discards every event. It is the default backend for engines
// that have no observability pipeline configured, grounded in the
// teacher's emit/null.go.
type NullBus struct{}

// NewNullBus returns a Bus that discards all events.
func NewNullBus() *NullBus { return &NullBus{} }

// Publish implements Bus.
func (NullBus) Publish(Event) {}

// PublishBatch implements Bus.
func (NullBus) PublishBatch(context.Context, []Event) error { return nil }

// Flush implements Bus.
func (NullBus) Flush(context.Context) error { return nil }
