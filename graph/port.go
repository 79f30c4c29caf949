package graph

// PortName is a short string assigned by a node's NodeDescriptor. Port
// names are scoped to one node; the same name may be reused as an input
// on one node and an output on another (spec §4.3).
type PortName string

// PortSide distinguishes the input and output side of a node when
// addressing a port.
type PortSide uint8

const (
	// SideInput addresses an input port slot.
	SideInput PortSide = iota
	// SideOutput addresses an output port.
	SideOutput
)

func (s PortSide) String() string {
	if s == SideOutput {
		return "output"
	}
	return "input"
}

// InputKind classifies an input port's cardinality requirement at
// execution time (spec §3 "Edge" invariants).
type InputKind uint8

const (
	// Required inputs must have exactly one connected edge at execution time.
	Required InputKind = iota
	// Optional inputs may have zero or one connected edge.
	Optional
	// Variadic inputs hold an ordered multiset of connected edges.
	Variadic
)

// PortAddr addresses a specific input or output port on a node instance.
// For variadic inputs, Index selects a specific slot; Index is -1 for
// every other port kind (spec §4.3).
type PortAddr struct {
	Node  NodeHandle
	Port  PortName
	Side  PortSide
	Index int
}

// NewPortAddr returns a non-variadic port address.
func NewPortAddr(node NodeHandle, port PortName, side PortSide) PortAddr {
	return PortAddr{Node: node, Port: port, Side: side, Index: -1}
}

// NewVariadicSlot returns the address of one slot of a variadic input port.
func NewVariadicSlot(node NodeHandle, port PortName, index int) PortAddr {
	return PortAddr{Node: node, Port: port, Side: SideInput, Index: index}
}

// IsVariadicSlot reports whether a addresses a specific slot of a variadic
// input rather than the port as a whole.
func (a PortAddr) IsVariadicSlot() bool { return a.Index >= 0 }

// InputPort declares one input slot in a NodeDescriptor: its name, the
// ValueTypeId it accepts, and its cardinality kind.
type InputPort struct {
	Name PortName
	Type ValueTypeId
	Kind InputKind
}

// OutputPort declares one output slot in a NodeDescriptor: its name, the
// ValueTypeId it produces, and whether results of this output may be
// cached (spec §3 "Results of nodes whose output type is not equatable
// are never cached").
type OutputPort struct {
	Name      PortName
	Type      ValueTypeId
	Cacheable bool
}
