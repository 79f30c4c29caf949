// Package nodefn derives a NodeDescriptor and a Node from a typed Go
// function signature, so node authors do not have to hand-write port
// lists for the common case of a struct-shaped input and output.
//
// This is explicitly outside the core engine's correctness scope (spec
// §6 "A convenience macro-like generator may derive descriptors from a
// typed function signature; this is outside the core's correctness
// scope"): graph/cache and graph/sched never import this package, so a
// node author who prefers to implement graph.Node by hand pays no
// reflection cost.
package nodefn

import (
	"context"
	"fmt"
	"reflect"

	"github.com/nodeflow-dev/nodeflow/graph"
)

// Field tag used to recover port metadata from a Go struct field. The
// tag value is the port name; an empty tag falls back to the field name.
// Kind is recovered from the field's own shape (a slice field is
// variadic; a pointer field is optional; anything else is required) —
// this mirrors encoding/json's "tag defaults to field name" convention
// rather than introducing a second tag vocabulary for cardinality.
const tagKey = "port"

// Describe builds a graph.Node from run, a plain Go function of
// (context.Context, Cfg, In) (Out, error). Cfg, In, and Out must be
// struct types (Cfg may also be any comparable/hashable type the node
// never expects as a port-bearing struct); every exported field of In and
// Out becomes one declared input or output port, in declaration order.
//
// typeID identifies the node kind for fingerprinting (spec §3
// "NodeTypeId"); reg resolves each field's Go type to a stable
// ValueTypeId. The resulting descriptor always has Async set to false —
// Describe only ever returns a synchronous graph.Node, since a function signature that returns its
// result cannot itself suspend; pair it with a hand-written AsyncNode
// (see graph/ionode) for suspending node kinds.
func Describe[Cfg, In, Out any](reg *graph.TypeRegistry, typeID graph.NodeTypeId, run func(context.Context, Cfg, In) (Out, error)) (graph.Node, error) {
	var in In
	var out Out
	inputs, err := describeInputs(reg, reflect.TypeOf(in))
	if err != nil {
		return nil, fmt.Errorf("nodefn: describing input struct: %w", err)
	}
	outputs, err := describeOutputs(reg, reflect.TypeOf(out))
	if err != nil {
		return nil, fmt.Errorf("nodefn: describing output struct: %w", err)
	}

	desc := graph.NodeDescriptor{TypeID: typeID, Inputs: inputs, Outputs: outputs}
	return &fnNode[Cfg, In, Out]{desc: desc, reg: reg, run: run}, nil
}

type fnNode[Cfg, In, Out any] struct {
	desc graph.NodeDescriptor
	reg  *graph.TypeRegistry
	run  func(context.Context, Cfg, In) (Out, error)
}

func (n *fnNode[Cfg, In, Out]) Descriptor() graph.NodeDescriptor { return n.desc }

func (n *fnNode[Cfg, In, Out]) Run(ctx context.Context, cfg any, in graph.Inputs) (graph.Outputs, error) {
	typedCfg, _ := cfg.(Cfg)

	typedIn, err := scatterInputs[In](n.reg, n.desc.Inputs, in)
	if err != nil {
		return nil, err
	}

	typedOut, err := n.run(ctx, typedCfg, typedIn)
	if err != nil {
		return nil, err
	}

	return gatherOutputs(n.reg, n.desc.Outputs, typedOut)
}

// describeInputs walks t's exported fields and builds one InputPort per
// field: a []T field becomes Variadic over T, a *T field becomes Optional
// over T, anything else becomes Required.
func describeInputs(reg *graph.TypeRegistry, t reflect.Type) ([]graph.InputPort, error) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("nodefn: input type must be a struct, got %v", t)
	}
	ports := make([]graph.InputPort, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := fieldPortName(f)
		switch f.Type.Kind() {
		case reflect.Slice:
			elem := f.Type.Elem()
			ports = append(ports, graph.InputPort{
				Name: name, Type: typeIDOf(reg, elem), Kind: graph.Variadic,
			})
		case reflect.Ptr:
			ports = append(ports, graph.InputPort{
				Name: name, Type: typeIDOf(reg, f.Type.Elem()), Kind: graph.Optional,
			})
		default:
			ports = append(ports, graph.InputPort{
				Name: name, Type: typeIDOf(reg, f.Type), Kind: graph.Required,
			})
		}
	}
	return ports, nil
}

// describeOutputs walks t's exported fields into one OutputPort each, all
// marked cacheable by default — a node author who needs a non-cacheable
// output (e.g. it carries a non-equatable payload) should implement
// graph.Node by hand rather than use Describe.
func describeOutputs(reg *graph.TypeRegistry, t reflect.Type) ([]graph.OutputPort, error) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("nodefn: output type must be a struct, got %v", t)
	}
	ports := make([]graph.OutputPort, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		ports = append(ports, graph.OutputPort{
			Name: fieldPortName(f), Type: typeIDOf(reg, f.Type), Cacheable: true,
		})
	}
	return ports, nil
}

func fieldPortName(f reflect.StructField) graph.PortName {
	if tag, ok := f.Tag.Lookup(tagKey); ok && tag != "" {
		return graph.PortName(tag)
	}
	return graph.PortName(f.Name)
}

func typeIDOf(reg *graph.TypeRegistry, t reflect.Type) graph.ValueTypeId {
	return graph.ValueTypeId(reg.TypeOf(reflect.New(t).Interface()))
}

// scatterInputs builds a typed In value from the engine's erased Inputs,
// using the same field-order/shape convention describeInputs derived the
// ports from.
func scatterInputs[In any](reg *graph.TypeRegistry, ports []graph.InputPort, in graph.Inputs) (In, error) {
	var out In
	v := reflect.ValueOf(&out).Elem()
	t := v.Type()

	fieldIdx := 0
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		port := ports[fieldIdx]
		fieldIdx++
		fv := v.Field(i)

		switch port.Kind {
		case graph.Variadic:
			vals := in.Variadic(graph.PortName(port.Name))
			slice := reflect.MakeSlice(f.Type, 0, len(vals))
			for _, val := range vals {
				elem, err := extractInto(reg, f.Type.Elem(), val)
				if err != nil {
					return out, fmt.Errorf("nodefn: port %q: %w", port.Name, err)
				}
				slice = reflect.Append(slice, elem)
			}
			fv.Set(slice)
		case graph.Optional:
			val, ok := in.Get(graph.PortName(port.Name))
			if !ok {
				continue
			}
			elem, err := extractInto(reg, f.Type.Elem(), val)
			if err != nil {
				return out, fmt.Errorf("nodefn: port %q: %w", port.Name, err)
			}
			ptr := reflect.New(f.Type.Elem())
			ptr.Elem().Set(elem)
			fv.Set(ptr)
		default:
			val, ok := in.Get(graph.PortName(port.Name))
			if !ok {
				return out, fmt.Errorf("nodefn: required port %q missing", port.Name)
			}
			elem, err := extractInto(reg, f.Type, val)
			if err != nil {
				return out, fmt.Errorf("nodefn: port %q: %w", port.Name, err)
			}
			fv.Set(elem)
		}
	}
	return out, nil
}

func extractInto(reg *graph.TypeRegistry, t reflect.Type, v graph.Value) (reflect.Value, error) {
	if v.TypeID() != typeIDOf(reg, t) {
		return reflect.Value{}, &graph.TypeMismatchError{Want: typeIDOf(reg, t), Got: v.TypeID()}
	}
	if err, ok := v.IsErrored(); ok {
		return reflect.Value{}, err
	}
	if v.IsPending() {
		return reflect.Value{}, graph.ErrPendingValue
	}
	payload := reflect.ValueOf(v.Raw())
	if !payload.IsValid() || !payload.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("nodefn: payload type %v not assignable to %v", payload.Type(), t)
	}
	return payload, nil
}

// gatherOutputs folds a typed Out struct into the engine's erased
// Outputs map, one graph.Value per exported field, in declaration order.
func gatherOutputs[Out any](reg *graph.TypeRegistry, ports []graph.OutputPort, out Out) (graph.Outputs, error) {
	v := reflect.ValueOf(out)
	t := v.Type()

	result := make(graph.Outputs, len(ports))
	fieldIdx := 0
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		port := ports[fieldIdx]
		fieldIdx++
		result[graph.PortName(port.Name)] = graph.NewValue(port.Type, v.Field(i).Interface(), nil)
	}
	return result, nil
}
