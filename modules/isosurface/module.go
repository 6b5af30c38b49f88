// Package isosurface provides the IsoSurface module kind, which extracts a
// triangle mesh where a uniform grid crosses a scalar value.
package isosurface

import (
	"context"
	"fmt"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Kind is the registered module kind name.
const Kind = "IsoSurface"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the IsoSurface kind.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(registry.Descriptor{
		Kind:    Kind,
		Doc:     "Extracts the isovalue crossing of a grid as triangles.",
		Inputs:  []registry.Port{{Name: "input", Type: objstore.TypeUniformGrid}},
		Outputs: []registry.Port{{Name: "surface", Type: objstore.TypeTriangles}},
		Params: []registry.Param{
			{Name: "isovalue", Type: cty.Number, Default: cty.NumberFloatVal(0.5)},
		},
		Run: Run,
	})
}

// Run extracts the isosurface of the input grid.
func Run(ctx context.Context, in registry.Inputs, p registry.Params) (registry.Outputs, error) {
	src := in["input"]
	g, ok := src.Payload().(*objstore.Grid)
	if !ok {
		return nil, fmt.Errorf("input is %T, want a grid", src.Payload())
	}
	mesh, err := Extract(ctx, g, float32(p.Float("isovalue", 0.5)))
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Isosurface extracted.", "triangles", len(mesh.Indices)/3)

	meta := src.Meta()
	meta.Generation++
	return registry.Outputs{"surface": objstore.New(objstore.TypeTriangles, mesh, meta)}, nil
}

// corners are the cell corner offsets in (i, j, k).
var corners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// tetrahedra split a cell into six tetrahedra around the 0-6 diagonal.
var tetrahedra = [6][4]int{
	{0, 5, 1, 6}, {0, 1, 2, 6}, {0, 2, 3, 6},
	{0, 3, 7, 6}, {0, 7, 4, 6}, {0, 4, 5, 6},
}

type vec3 [3]float32

// Extract runs marching tetrahedra over every cell of g. A sample equal to
// the isovalue counts as outside.
func Extract(ctx context.Context, g *objstore.Grid, iso float32) (*objstore.Mesh, error) {
	nx, ny, nz := g.Dims[0], g.Dims[1], g.Dims[2]
	if len(g.Values) != nx*ny*nz {
		return nil, fmt.Errorf("grid holds %d samples, dims %v need %d", len(g.Values), g.Dims, nx*ny*nz)
	}
	mesh := &objstore.Mesh{}
	if nx < 2 || ny < 2 || nz < 2 {
		return mesh, nil
	}

	var pos [8]vec3
	var val [8]float32
	for k := 0; k < nz-1; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := 0; j < ny-1; j++ {
			for i := 0; i < nx-1; i++ {
				for c, off := range corners {
					ci, cj, ck := i+off[0], j+off[1], k+off[2]
					val[c] = g.At(ci, cj, ck)
					pos[c] = vec3{
						g.Origin[0] + float32(ci)*g.Spacing[0],
						g.Origin[1] + float32(cj)*g.Spacing[1],
						g.Origin[2] + float32(ck)*g.Spacing[2],
					}
				}
				for _, tet := range tetrahedra {
					polygonize(mesh, iso, tet, &pos, &val)
				}
			}
		}
	}
	return mesh, nil
}

func polygonize(mesh *objstore.Mesh, iso float32, tet [4]int, pos *[8]vec3, val *[8]float32) {
	var inside, outside []int
	for _, c := range tet {
		if val[c] < iso {
			inside = append(inside, c)
		} else {
			outside = append(outside, c)
		}
	}
	edge := func(a, b int) vec3 { return interpolate(iso, pos[a], pos[b], val[a], val[b]) }

	switch len(inside) {
	case 1:
		a := inside[0]
		emit(mesh, edge(a, outside[0]), edge(a, outside[1]), edge(a, outside[2]))
	case 3:
		a := outside[0]
		emit(mesh, edge(a, inside[0]), edge(a, inside[1]), edge(a, inside[2]))
	case 2:
		a, b := inside[0], inside[1]
		c, d := outside[0], outside[1]
		ac, ad, bd, bc := edge(a, c), edge(a, d), edge(b, d), edge(b, c)
		emit(mesh, ac, ad, bd)
		emit(mesh, ac, bd, bc)
	}
}

func interpolate(iso float32, p1, p2 vec3, v1, v2 float32) vec3 {
	t := float32(0.5)
	if d := v2 - v1; d != 0 {
		t = (iso - v1) / d
	}
	return vec3{
		p1[0] + t*(p2[0]-p1[0]),
		p1[1] + t*(p2[1]-p1[1]),
		p1[2] + t*(p2[2]-p1[2]),
	}
}

func emit(mesh *objstore.Mesh, vs ...vec3) {
	for _, v := range vs {
		mesh.Indices = append(mesh.Indices, uint32(len(mesh.Vertices)/3))
		mesh.Vertices = append(mesh.Vertices, v[0], v[1], v[2])
	}
}
