// Package graph provides the core compute graph engine: a typed, cached,
// dynamically-editable dataflow DAG executed on demand with memoization of
// intermediate results and incremental reuse across successive executions.
package graph

import "fmt"

// sentinelKind distinguishes the two non-value states a Value can carry
// from an ordinary payload. Pending and Errored both propagate downstream
// exactly like a real value at the port-wiring level, but the scheduler
// treats them specially (see executeNode in scheduler.go).
type sentinelKind uint8

const (
	sentinelNone sentinelKind = iota
	sentinelPending
	sentinelErrored
)

// Value is the uniform, type-erased carrier that moves between ports. Every
// Value records the ValueTypeId it was constructed with, so the engine can
// reject a downcast to the wrong concrete type without the node author ever
// touching reflection directly.
//
// A Value is immutable after construction: Clone and equality never mutate
// the receiver, and node authors must treat Values received as inputs as
// borrowed (spec §4.4 "No aliasing").
type Value struct {
	typeID   ValueTypeId
	payload  any
	equal    func(a, b any) bool
	sentinel sentinelKind
	errDetail error
}

// NewValue constructs a Value of type id wrapping v. eq is an optional
// equality function used for cache-hit comparisons when the concrete type
// does not satisfy Go's comparable constraint (slices, maps, funcs); pass
// nil when v's type supports == directly, in which case Equal falls back to
// reflect-free interface comparison and panics are avoided by recovering
// from the runtime's "comparing uncomparable type" panic.
func NewValue(id ValueTypeId, v any, eq func(a, b any) bool) Value {
	return Value{typeID: id, payload: v, equal: eq}
}

// Pending returns the sentinel Value propagated while an async node's
// outputs have not yet resolved (spec §4.7.5). It carries typeID so
// downstream ports can still validate wiring even though no real payload is
// present.
func Pending(id ValueTypeId) Value {
	return Value{typeID: id, sentinel: sentinelPending}
}

// Errored returns the sentinel Value that propagates an execution error
// downstream exactly as Pending would (spec §4.7.9): downstream nodes are
// not executed and the detail is surfaced at the originating port.
func Errored(id ValueTypeId, detail error) Value {
	return Value{typeID: id, sentinel: sentinelErrored, errDetail: detail}
}

// TypeID reports the ValueTypeId this Value was constructed or sentineled
// with.
func (v Value) TypeID() ValueTypeId { return v.typeID }

// IsPending reports whether v is the Pending sentinel.
func (v Value) IsPending() bool { return v.sentinel == sentinelPending }

// IsErrored reports whether v is the Errored sentinel, and if so returns
// the detail error recorded at the originating port.
func (v Value) IsErrored() (error, bool) {
	if v.sentinel != sentinelErrored {
		return nil, false
	}
	return v.errDetail, true
}

// TypeMismatchError reports that a Value's recorded ValueTypeId did not
// match the type an extraction or connection expected.
type TypeMismatchError struct {
	Want ValueTypeId
	Got  ValueTypeId
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("graph: type mismatch: want %s, got %s", e.Want, e.Got)
}

// As extracts a typed value of T from v. It fails with *TypeMismatchError
// if v's recorded ValueTypeId does not match the id registered for T, and
// with an error wrapping ErrPendingValue or ErrErroredValue if v is a
// sentinel rather than a real payload.
func As[T any](reg *TypeRegistry, v Value) (T, error) {
	var zero T
	if v.sentinel == sentinelPending {
		return zero, ErrPendingValue
	}
	if v.sentinel == sentinelErrored {
		return zero, fmt.Errorf("graph: %w: %v", ErrErroredValue, v.errDetail)
	}
	want := reg.TypeOf((*T)(nil))
	if want != v.typeID {
		return zero, &TypeMismatchError{Want: want, Got: v.typeID}
	}
	t, ok := v.payload.(T)
	if !ok {
		return zero, &TypeMismatchError{Want: want, Got: v.typeID}
	}
	return t, nil
}

// Clone returns a structural copy of v. Payloads that implement a Cloner
// are deep-copied via Clone(); all other payloads are returned as-is,
// since Go values without internal mutable sharing (the overwhelming
// majority of node payloads: ints, strings, immutable structs) are already
// safe to share across consumers (spec §5 "Memory discipline": values
// flowing on edges are reference-shared, not copied).
func (v Value) Clone() Value {
	c, ok := v.payload.(Cloner)
	if !ok {
		return v
	}
	out := v
	out.payload = c.Clone()
	return out
}

// Cloner is implemented by payload types that hold internal mutable state
// (e.g. a slice or map) which must be duplicated rather than shared when a
// Value is cloned.
type Cloner interface {
	Clone() any
}

// Equal reports whether v and other carry equal values of the same type.
// If the payload type was registered with an explicit equality function
// that function is used; otherwise Equal falls back to Go's == operator,
// guarded with a recover so that an accidentally-uncomparable concrete
// type degrades to "not equal" (disabling cache reuse for that output)
// rather than panicking the scheduler, per spec §4.1 "otherwise equality
// is defined to be false, disabling cache hits."
func (v Value) Equal(other Value) (eq bool) {
	if v.typeID != other.typeID || v.sentinel != other.sentinel {
		return false
	}
	if v.sentinel != sentinelNone {
		return true
	}
	if v.equal != nil {
		return v.equal(v.payload, other.payload)
	}
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return v.payload == other.payload
}

// Raw returns the untyped payload for callers (the cache, the scheduler)
// that need to hash or compare it without knowing its static Go type.
func (v Value) Raw() any { return v.payload }
