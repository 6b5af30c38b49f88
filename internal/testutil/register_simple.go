package testutil

import (
	"context"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
)

// Kind is a compact description of a test module kind. Every port carries
// the "any" data type.
type Kind struct {
	Name     string
	Inputs   []string
	Optional []string
	Outputs  []string
	Params   []registry.Param
	// Run defaults to Produce(Outputs...).
	Run registry.RunFunc
}

// Descriptor expands k into a registry descriptor.
func (k Kind) Descriptor() registry.Descriptor {
	d := registry.Descriptor{Kind: k.Name, Params: k.Params, Run: k.Run}
	for _, name := range k.Inputs {
		d.Inputs = append(d.Inputs, registry.Port{Name: name, Type: objstore.TypeAny})
	}
	for _, name := range k.Optional {
		d.Inputs = append(d.Inputs, registry.Port{Name: name, Type: objstore.TypeAny, Optional: true})
	}
	for _, name := range k.Outputs {
		d.Outputs = append(d.Outputs, registry.Port{Name: name, Type: objstore.TypeAny})
	}
	if d.Run == nil {
		d.Run = Produce(k.Outputs...)
	}
	return d
}

// SimpleModule registers a fixed set of kinds.
type SimpleModule struct {
	Kinds []Kind
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	for _, k := range m.Kinds {
		r.MustRegister(k.Descriptor())
	}
}

// Produce returns a run function that publishes the instance label as a
// small byte payload on each named output.
func Produce(outputs ...string) registry.RunFunc {
	return func(ctx context.Context, _ registry.Inputs, _ registry.Params) (registry.Outputs, error) {
		out := make(registry.Outputs, len(outputs))
		for _, name := range outputs {
			out[name] = objstore.New(objstore.TypeAny, objstore.Bytes(Label(ctx)+"."+name), objstore.Meta{})
		}
		return out, nil
	}
}
