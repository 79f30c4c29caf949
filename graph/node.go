package graph

import "context"

// NodeDescriptor is the static metadata for a node type: its ordered input
// and output ports, its NodeTypeId, and whether Run may suspend (spec
// §3 "NodeDescriptor").
//
// Node authors normally build a NodeDescriptor once per node type and
// reuse it across every instance of that type in a graph; see
// graph/nodefn for a reflection-based generator that derives one from a
// typed Go function signature (spec §6, explicitly outside the core's
// correctness scope).
type NodeDescriptor struct {
	TypeID  NodeTypeId
	Inputs  []InputPort
	Outputs []OutputPort
	Async   bool
}

// InputByName returns the InputPort declared under name, or false if no
// such input exists.
func (d NodeDescriptor) InputByName(name PortName) (InputPort, bool) {
	for _, p := range d.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return InputPort{}, false
}

// OutputByName returns the OutputPort declared under name, or false if no
// such output exists.
func (d NodeDescriptor) OutputByName(name PortName) (OutputPort, bool) {
	for _, p := range d.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return OutputPort{}, false
}

// Inputs is what a node's Run receives for one execution: the resolved
// Value for every required and optional input port (absent optional
// inputs are simply missing from the map), plus the ordered slice for
// every variadic input.
type Inputs struct {
	single   map[PortName]Value
	variadic map[PortName][]Value
}

// NewInputs constructs an empty Inputs. Node authors never call this
// directly; the scheduler builds Inputs while resolving a node's edges.
func NewInputs() Inputs {
	return Inputs{single: make(map[PortName]Value), variadic: make(map[PortName][]Value)}
}

// Set records the resolved value for a required or optional input port.
func (in Inputs) Set(port PortName, v Value) { in.single[port] = v }

// Append adds one more slot to a variadic input port, in connection order.
func (in Inputs) Append(port PortName, v Value) {
	in.variadic[port] = append(in.variadic[port], v)
}

// Get returns the resolved value for a required or optional input port.
// ok is false if the (optional) port has no connected edge.
func (in Inputs) Get(port PortName) (Value, bool) {
	v, ok := in.single[port]
	return v, ok
}

// Variadic returns the ordered slice of resolved values for a variadic
// input port, in the order slots were connected.
func (in Inputs) Variadic(port PortName) []Value {
	return in.variadic[port]
}

// AnyPending reports whether any input value currently held is the Pending
// sentinel, across both single and variadic ports (spec §4.7.5).
func (in Inputs) AnyPending() bool {
	for _, v := range in.single {
		if v.IsPending() {
			return true
		}
	}
	for _, vs := range in.variadic {
		for _, v := range vs {
			if v.IsPending() {
				return true
			}
		}
	}
	return false
}

// FirstError returns the first Errored sentinel found among this node's
// inputs, if any (spec §4.7.9: an Errored input propagates downstream
// exactly as Pending would, without re-running the node).
func (in Inputs) FirstError() (error, bool) {
	for _, v := range in.single {
		if err, ok := v.IsErrored(); ok {
			return err, true
		}
	}
	for _, vs := range in.variadic {
		for _, v := range vs {
			if err, ok := v.IsErrored(); ok {
				return err, true
			}
		}
	}
	return nil, false
}

// Outputs is what a node's Run produces: one Value per declared output
// port.
type Outputs map[PortName]Value

// RunFunc is the execution function a node type supplies: a deterministic
// function of (cfg, inputs) producing one value per declared output, or
// returning an error (spec §4.4 contract requirement 1, "Purity"). cfg is
// the node instance's opaque configuration blob (Config.Value()), passed
// as any; the node downcasts it to the concrete type it expects.
//
// Async nodes never block inside RunFunc; see the AsyncNode interface.
type RunFunc func(ctx context.Context, cfg any, in Inputs) (Outputs, error)

// Node is the contract a node author implements: static descriptor plus
// the pure execution function bound to a configuration type (spec §4.4).
type Node interface {
	Descriptor() NodeDescriptor
	Run(ctx context.Context, cfg any, in Inputs) (Outputs, error)
}

// NodeFunc adapts a bare RunFunc plus a fixed NodeDescriptor into a Node,
// mirroring the teacher's NodeFunc[S] function-adapter pattern so trivial
// node kinds don't need a dedicated type declaration.
type NodeFunc struct {
	Desc NodeDescriptor
	Fn   RunFunc
}

// Descriptor implements Node.
func (f NodeFunc) Descriptor() NodeDescriptor { return f.Desc }

// Run implements Node.
func (f NodeFunc) Run(ctx context.Context, cfg any, in Inputs) (Outputs, error) {
	return f.Fn(ctx, cfg, in)
}

// CompletionHandle is handed to an async node's AsyncRun in place of a return
// value: the node must call Complete exactly once with either the full set
// of output values or an error (spec §6 "Async nodes"). A second call is
// ignored with a warning, matching the "double-completion is ignored with
// a warning" contract.
type CompletionHandle interface {
	Complete(outputs Outputs, err error)
}

// AsyncNode is implemented by node kinds whose Run may suspend
// (NodeDescriptor.Async == true). Unlike Node.Run, AsyncRun returns
// immediately after registering work; completion is signalled later via
// the CompletionHandle, never by a return value, so the scheduler never
// occupies a worker goroutine for the duration of the suspension
// (spec §5 "Suspension points").
type AsyncNode interface {
	Node
	AsyncRun(ctx context.Context, cfg any, in Inputs, done CompletionHandle)
}
