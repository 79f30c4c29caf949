package graph

// NodeHandle is an opaque arena index identifying one node instance in a
// Graph. Nodes reference each other only through NodeHandle values, never
// pointers: ownership of every node lives in the Graph, and edges are data
// rather than back-references (spec §9 "Cyclic object graphs").
type NodeHandle uint64

// Edge is a directed link from one output port to exactly one input slot
// (spec §3 "Edge"). A variadic input's slot is identified by To.Index;
// every other input has To.Index == -1.
type Edge struct {
	From PortAddr
	To   PortAddr
}
