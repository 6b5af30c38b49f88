package isosurface

import (
	"context"
	"testing"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// ramp returns a 2x2x2 grid whose value equals the x coordinate.
func ramp() *objstore.Grid {
	return &objstore.Grid{
		Dims:    [3]int{2, 2, 2},
		Spacing: [3]float32{1, 1, 1},
		Values:  []float32{0, 1, 0, 1, 0, 1, 0, 1},
	}
}

func TestExtractPlane(t *testing.T) {
	// --- Act ---
	mesh, err := Extract(context.Background(), ramp(), 0.25)

	// --- Assert ---
	require.NoError(t, err)
	require.NotEmpty(t, mesh.Indices)
	assert.Zero(t, len(mesh.Indices)%3)
	assert.Equal(t, len(mesh.Indices), len(mesh.Vertices)/3)
	for i := 0; i < len(mesh.Vertices); i += 3 {
		assert.InDelta(t, 0.25, mesh.Vertices[i], 1e-6, "every vertex lies on the x=0.25 plane")
	}
}

func TestExtractEmpty(t *testing.T) {
	testCases := []struct {
		name string
		iso  float32
	}{
		{name: "below every sample", iso: -1},
		{name: "above every sample", iso: 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mesh, err := Extract(context.Background(), ramp(), tc.iso)
			require.NoError(t, err)
			assert.Empty(t, mesh.Indices)
		})
	}
}

func TestExtractRejectsInconsistentGrid(t *testing.T) {
	g := ramp()
	g.Values = g.Values[:5]
	_, err := Extract(context.Background(), g, 0.5)
	assert.ErrorContains(t, err, "samples")
}

func TestRun(t *testing.T) {
	// --- Arrange ---
	arena := objstore.NewArena()
	h, err := arena.Publish(objstore.New(objstore.TypeUniformGrid, ramp(), objstore.Meta{Block: 2, NumBlocks: 4}))
	require.NoError(t, err)
	defer func() { _ = h.Release() }()
	reg := registry.New()
	reg.Load(&Module{})
	d, _ := reg.Resolve(Kind)
	p, err := d.BindParams(map[string]cty.Value{"isovalue": cty.NumberFloatVal(0.5)})
	require.NoError(t, err)

	// --- Act ---
	out, err := Run(context.Background(), registry.Inputs{"input": h}, p)

	// --- Assert ---
	require.NoError(t, err)
	obj := out["surface"]
	assert.Equal(t, objstore.TypeTriangles, obj.Type)
	assert.Equal(t, 2, obj.Meta.Block, "block metadata is carried over")
	assert.Equal(t, 1, obj.Meta.Generation)
	assert.NotEmpty(t, obj.Payload.(*objstore.Mesh).Indices)
}
