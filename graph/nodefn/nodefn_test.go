package nodefn

import (
	"context"
	"testing"

	"github.com/nodeflow-dev/nodeflow/graph"
)

type addCfg struct {
	Offset int
}

type addIn struct {
	A int
	B *int
}

type addOut struct {
	Sum int
}

func TestDescribeBuildsPortsFromStructFields(t *testing.T) {
	reg := graph.NewTypeRegistry()
	typeID := reg.NodeTypeOf((*addCfg)(nil))

	node, err := Describe[addCfg, addIn, addOut](reg, typeID, func(ctx context.Context, cfg addCfg, in addIn) (addOut, error) {
		sum := in.A + cfg.Offset
		if in.B != nil {
			sum += *in.B
		}
		return addOut{Sum: sum}, nil
	})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	desc := node.Descriptor()
	if len(desc.Inputs) != 2 {
		t.Fatalf("got %d input ports, want 2", len(desc.Inputs))
	}
	if desc.Inputs[0].Name != "A" || desc.Inputs[0].Kind != graph.Required {
		t.Fatalf("field A: got %+v, want required port named A", desc.Inputs[0])
	}
	if desc.Inputs[1].Name != "B" || desc.Inputs[1].Kind != graph.Optional {
		t.Fatalf("field B: got %+v, want optional port named B", desc.Inputs[1])
	}
	if len(desc.Outputs) != 1 || desc.Outputs[0].Name != "Sum" || !desc.Outputs[0].Cacheable {
		t.Fatalf("got %+v, want one cacheable output named Sum", desc.Outputs)
	}
}

func TestDescribedNodeRunsWithRequiredOnly(t *testing.T) {
	reg := graph.NewTypeRegistry()
	typeID := reg.NodeTypeOf((*addCfg)(nil))
	intID := reg.TypeOf((*int)(nil))

	node, err := Describe[addCfg, addIn, addOut](reg, typeID, func(ctx context.Context, cfg addCfg, in addIn) (addOut, error) {
		sum := in.A + cfg.Offset
		if in.B != nil {
			sum += *in.B
		}
		return addOut{Sum: sum}, nil
	})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	in := graph.NewInputs()
	in.Set("A", graph.NewValue(intID, 10, nil))

	out, err := node.Run(context.Background(), addCfg{Offset: 5}, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := graph.As[int](reg, out["Sum"])
	if err != nil || got != 15 {
		t.Fatalf("got (%v, %v), want (15, nil)", got, err)
	}
}

func TestDescribedNodeRunsWithOptionalPresent(t *testing.T) {
	reg := graph.NewTypeRegistry()
	typeID := reg.NodeTypeOf((*addCfg)(nil))
	intID := reg.TypeOf((*int)(nil))

	node, err := Describe[addCfg, addIn, addOut](reg, typeID, func(ctx context.Context, cfg addCfg, in addIn) (addOut, error) {
		sum := in.A + cfg.Offset
		if in.B != nil {
			sum += *in.B
		}
		return addOut{Sum: sum}, nil
	})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	in := graph.NewInputs()
	in.Set("A", graph.NewValue(intID, 10, nil))
	in.Set("B", graph.NewValue(intID, 7, nil))

	out, err := node.Run(context.Background(), addCfg{}, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := graph.As[int](reg, out["Sum"])
	if got != 17 {
		t.Fatalf("got %d, want 17", got)
	}
}

type sumIn struct {
	Items []int
}

type sumOut struct {
	Total int
}

func TestDescribeVariadicField(t *testing.T) {
	reg := graph.NewTypeRegistry()
	typeID := reg.NodeTypeOf((*struct{})(nil))
	intID := reg.TypeOf((*int)(nil))

	node, err := Describe[struct{}, sumIn, sumOut](reg, typeID, func(ctx context.Context, cfg struct{}, in sumIn) (sumOut, error) {
		total := 0
		for _, v := range in.Items {
			total += v
		}
		return sumOut{Total: total}, nil
	})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}

	desc := node.Descriptor()
	if desc.Inputs[0].Kind != graph.Variadic {
		t.Fatalf("got kind %v, want Variadic", desc.Inputs[0].Kind)
	}

	in := graph.NewInputs()
	in.Append("Items", graph.NewValue(intID, 1, nil))
	in.Append("Items", graph.NewValue(intID, 2, nil))
	in.Append("Items", graph.NewValue(intID, 3, nil))

	out, err := node.Run(context.Background(), struct{}{}, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := graph.As[int](reg, out["Total"])
	if got != 6 {
		t.Fatalf("got %d, want 6", got)
	}
}

func TestDescribeRejectsNonStructInput(t *testing.T) {
	reg := graph.NewTypeRegistry()
	typeID := reg.NodeTypeOf((*addCfg)(nil))

	_, err := Describe[int, int, addOut](reg, typeID, func(ctx context.Context, cfg int, in int) (addOut, error) {
		return addOut{}, nil
	})
	if err == nil {
		t.Fatal("expected an error describing a non-struct input type")
	}
}
