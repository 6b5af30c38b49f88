// Package threshold provides the Threshold module kind, a scalar range
// filter on uniform grids.
package threshold

import (
	"context"
	"fmt"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Kind is the registered module kind name.
const Kind = "Threshold"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the Threshold kind.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(registry.Descriptor{
		Kind:    Kind,
		Doc:     "Replaces samples outside [min, max] with a constant.",
		Inputs:  []registry.Port{{Name: "input", Type: objstore.TypeUniformGrid}},
		Outputs: []registry.Port{{Name: "output", Type: objstore.TypeUniformGrid}},
		Params: []registry.Param{
			{Name: "min", Type: cty.Number, Default: cty.NumberIntVal(0)},
			{Name: "max", Type: cty.Number, Default: cty.NumberIntVal(1)},
			{Name: "replacement", Type: cty.Number, Default: cty.NumberIntVal(0)},
		},
		Run: Run,
	})
}

// Run filters a copy of the input grid; the input object is left untouched.
func Run(ctx context.Context, in registry.Inputs, p registry.Params) (registry.Outputs, error) {
	src := in["input"]
	g, ok := src.Payload().(*objstore.Grid)
	if !ok {
		return nil, fmt.Errorf("input is %T, want a grid", src.Payload())
	}
	lo := float32(p.Float("min", 0))
	hi := float32(p.Float("max", 1))
	if lo > hi {
		return nil, fmt.Errorf("min %g is greater than max %g", lo, hi)
	}
	repl := float32(p.Float("replacement", 0))

	out := g.Clone().(*objstore.Grid)
	replaced := 0
	for i, v := range out.Values {
		if v < lo || v > hi {
			out.Values[i] = repl
			replaced++
		}
	}
	ctxlog.FromContext(ctx).Debug("Threshold applied.", "samples", len(out.Values), "replaced", replaced)
	return registry.Outputs{"output": src.Object().Derive(out)}, nil
}
