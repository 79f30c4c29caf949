package graph

import "context"

// constNode is a trivial synchronous node used across this package's tests:
// it ignores its inputs and returns whatever config value it was built
// with, except when fn is set, in which case it delegates entirely.
type constNode struct {
	desc NodeDescriptor
	fn   RunFunc
}

func (n constNode) Descriptor() NodeDescriptor { return n.desc }

func (n constNode) Run(ctx context.Context, cfg any, in Inputs) (Outputs, error) {
	if n.fn != nil {
		return n.fn(ctx, cfg, in)
	}
	out := make(Outputs, len(n.desc.Outputs))
	for _, o := range n.desc.Outputs {
		out[o.Name] = NewValue(o.Type, cfg, nil)
	}
	return out, nil
}

// intOutNode produces a single output port "out" carrying an int, either a
// fixed value or the result of fn applied to its single required input "in".
func intOutNode(reg *TypeRegistry, value int) constNode {
	id := reg.TypeOf((*int)(nil))
	return constNode{
		desc: NodeDescriptor{Outputs: []OutputPort{{Name: "out", Type: id, Cacheable: true}}},
		fn: func(ctx context.Context, cfg any, in Inputs) (Outputs, error) {
			return Outputs{"out": NewValue(id, value, nil)}, nil
		},
	}
}

func passthroughIntNode(reg *TypeRegistry) constNode {
	id := reg.TypeOf((*int)(nil))
	return constNode{
		desc: NodeDescriptor{
			Inputs:  []InputPort{{Name: "in", Type: id, Kind: Required}},
			Outputs: []OutputPort{{Name: "out", Type: id, Cacheable: true}},
		},
		fn: func(ctx context.Context, cfg any, in Inputs) (Outputs, error) {
			v, _ := in.Get("in")
			return Outputs{"out": v}, nil
		},
	}
}

func sumVariadicIntNode(reg *TypeRegistry) constNode {
	id := reg.TypeOf((*int)(nil))
	return constNode{
		desc: NodeDescriptor{
			Inputs:  []InputPort{{Name: "items", Type: id, Kind: Variadic}},
			Outputs: []OutputPort{{Name: "sum", Type: id, Cacheable: true}},
		},
		fn: func(ctx context.Context, cfg any, in Inputs) (Outputs, error) {
			total := 0
			for _, v := range in.Variadic("items") {
				n, _ := As[int](reg, v)
				total += n
			}
			return Outputs{"sum": NewValue(id, total, nil)}, nil
		},
	}
}
