// Package reader provides the DataReader module kind, which generates a
// synthetic scalar field on a uniform grid.
//
// With blocks > 1 the reader emits one z-slab of the full grid. Cell layers
// are split with placement.Partition1D and neighbouring slabs share their
// boundary sample plane, so per-block surfaces meet without gaps.
package reader

import (
	"context"
	"fmt"
	"math"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/placement"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Kind is the registered module kind name.
const Kind = "DataReader"

// Field names accepted by the "field" parameter.
const (
	FieldSphere = "sphere"
	FieldGyroid = "gyroid"
	FieldWave   = "wave"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the DataReader kind.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(registry.Descriptor{
		Kind: Kind,
		Doc:  "Samples an analytic scalar field on a uniform grid.",
		Outputs: []registry.Port{
			{Name: "data", Type: objstore.TypeUniformGrid, Doc: "The sampled grid."},
		},
		Params: []registry.Param{
			{Name: "dims", Type: cty.Number, Default: cty.NumberIntVal(16), Validate: registry.InRange(2, 512), Doc: "Samples per axis."},
			{Name: "field", Type: cty.String, Default: cty.StringVal(FieldSphere), Validate: registry.OneOf(FieldSphere, FieldGyroid, FieldWave)},
			{Name: "timestep", Type: cty.Number, Default: cty.NumberIntVal(0), Validate: registry.InRange(0, math.MaxInt32)},
			{Name: "num_timesteps", Type: cty.Number, Default: cty.NumberIntVal(1), Validate: registry.InRange(1, math.MaxInt32)},
			{Name: "blocks", Type: cty.Number, Default: cty.NumberIntVal(1), Validate: registry.InRange(1, 511), Doc: "Number of z-slabs the grid is split into."},
			{Name: "block", Type: cty.Number, Default: cty.NumberIntVal(0), Validate: registry.InRange(0, 510), Doc: "Index of the slab to emit."},
		},
		Run: Run,
	})
}

// Run samples the configured field. The full grid spans the unit cube.
func Run(ctx context.Context, _ registry.Inputs, p registry.Params) (registry.Outputs, error) {
	n := p.Int("dims", 16)
	field := p.String("field", FieldSphere)
	step := p.Int("timestep", 0)
	steps := p.Int("num_timesteps", 1)
	blocks := p.Int("blocks", 1)
	block := p.Int("block", 0)
	if blocks > n-1 {
		return nil, fmt.Errorf("%d blocks exceed the %d cell layers of the grid", blocks, n-1)
	}
	if block >= blocks {
		return nil, fmt.Errorf("block %d is outside [0, %d)", block, blocks)
	}
	slab := placement.Partition1D(n-1, blocks, block)
	nz := slab.Len + 1
	ctxlog.FromContext(ctx).Debug("Sampling synthetic field.", "field", field, "dims", n, "timestep", step, "block", block, "blocks", blocks)

	spacing := float32(1) / float32(n-1)
	g := &objstore.Grid{
		Dims:    [3]int{n, n, nz},
		Origin:  [3]float32{0, 0, float32(slab.Start) * spacing},
		Spacing: [3]float32{spacing, spacing, spacing},
		Values:  make([]float32, n*n*nz),
	}
	phase := 2 * math.Pi * float64(step) / float64(steps)
	sample := sampler(field, phase)
	for k := 0; k < nz; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		z := float64(slab.Start+k) * float64(spacing)
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				x := float64(i) * float64(spacing)
				y := float64(j) * float64(spacing)
				g.Values[i+n*(j+n*k)] = float32(sample(x, y, z))
			}
		}
	}

	meta := objstore.Meta{Block: block, NumBlocks: blocks, Timestep: step, NumTimesteps: steps, RealTime: float64(step)}
	return registry.Outputs{"data": objstore.New(objstore.TypeUniformGrid, g, meta)}, nil
}

// sampler returns the field function for name. Every field is roughly
// within [0, 1] over the unit cube.
func sampler(name string, phase float64) func(x, y, z float64) float64 {
	switch name {
	case FieldGyroid:
		return func(x, y, z float64) float64 {
			const w = 2 * math.Pi
			v := math.Sin(w*x+phase)*math.Cos(w*y) + math.Sin(w*y)*math.Cos(w*z) + math.Sin(w*z)*math.Cos(w*x)
			return (v + 1.5) / 3
		}
	case FieldWave:
		return func(x, y, z float64) float64 {
			return 0.5 + 0.5*math.Sin(2*math.Pi*(x+y)+phase)*math.Cos(math.Pi*z)
		}
	}
	return func(x, y, z float64) float64 {
		dx, dy, dz := x-0.5, y-0.5, z-0.5
		return math.Sqrt(dx*dx+dy*dy+dz*dz) / math.Sqrt(0.75)
	}
}
