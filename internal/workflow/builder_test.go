package workflow

import (
	"context"
	"testing"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func noop(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
	return nil, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	r.MustRegister(registry.Descriptor{
		Kind:    "DataReader",
		Outputs: []registry.Port{{Name: "data", Type: objstore.TypeUniformGrid}},
		Params:  []registry.Param{{Name: "dims", Type: cty.Number, Default: cty.NumberIntVal(8)}},
		Run:     noop,
	})
	r.MustRegister(registry.Descriptor{
		Kind:    "IsoSurface",
		Inputs:  []registry.Port{{Name: "input", Type: objstore.TypeUniformGrid}},
		Outputs: []registry.Port{{Name: "surface", Type: objstore.TypeTriangles}},
		Params:  []registry.Param{{Name: "isovalue", Type: cty.Number}},
		Run:     noop,
	})
	r.MustRegister(registry.Descriptor{
		Kind:    "Renderer",
		Inputs:  []registry.Port{{Name: "geometry", Type: objstore.TypeAny}, {Name: "overlay", Type: objstore.TypeImage, Optional: true}},
		Outputs: []registry.Port{{Name: "frame", Type: objstore.TypeImage}},
		Run:     noop,
	})
	r.MustRegister(registry.Descriptor{
		Kind:    "Smooth",
		Inputs:  []registry.Port{{Name: "in", Type: objstore.TypeUniformGrid}},
		Outputs: []registry.Port{{Name: "out", Type: objstore.TypeUniformGrid}},
		Run:     noop,
	})
	return r
}

// pipeline builds the DataReader -> IsoSurface -> Renderer chain.
func pipeline(t *testing.T) (*Builder, [3]InstanceID) {
	t.Helper()
	b := New(testRegistry(t), "demo", "Iso demo")
	a, err := b.AddModule("DataReader", "A")
	require.NoError(t, err)
	iso, err := b.AddModule("IsoSurface", "B")
	require.NoError(t, err)
	c, err := b.AddModule("Renderer", "C")
	require.NoError(t, err)
	require.NoError(t, b.SetParam(iso, "isovalue", cty.NumberFloatVal(0.5)))
	require.NoError(t, b.Connect(a, "data", iso, "input"))
	require.NoError(t, b.Connect(iso, "surface", c, "geometry"))
	return b, [3]InstanceID{a, iso, c}
}

func TestBuildPipeline(t *testing.T) {
	b, ids := pipeline(t)

	w, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "demo", w.Name())
	assert.Equal(t, []InstanceID{1, 2, 3}, ids[:])
	assert.Equal(t, []InstanceID{1, 2, 3}, w.Order())
	assert.Equal(t, []InstanceID{3}, w.Sinks())
	assert.Equal(t, []InstanceID{2}, w.Dependents(1))
	assert.Len(t, w.Consumers(Endpoint{Instance: 1, Port: "data"}), 1)

	reader, ok := w.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, 8, reader.Params.Int("dims", 0), "default filled by Build")
	iso, _ := w.Instance(2)
	assert.Equal(t, 0.5, iso.Params.Float("isovalue", 0))
}

func TestAddModuleUnknownKind(t *testing.T) {
	b := New(testRegistry(t), "w", "")
	_, err := b.AddModule("VolumeRenderer", "v")
	assert.ErrorIs(t, err, registry.ErrUnknownKind)

	id, err := b.AddModule("DataReader", "")
	require.NoError(t, err)
	assert.Equal(t, InstanceID(1), id, "failed call must not consume an id")
}

func TestConnectErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     InstanceID
		srcPort string
		dst     InstanceID
		dstPort string
		want    error
	}{
		{"unknown source", 9, "data", 2, "input", ErrUnknownInstance},
		{"unknown destination", 1, "data", 9, "input", ErrUnknownInstance},
		{"source port is an input", 2, "input", 3, "geometry", ErrUnknownPort},
		{"unknown destination port", 1, "data", 2, "mesh", ErrUnknownPort},
		{"type mismatch", 1, "data", 3, "overlay", ErrTypeMismatch},
		{"already connected", 1, "data", 2, "input", ErrPortAlreadyConnected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, _ := pipeline(t)
			before := len(b.conns)

			err := b.Connect(tc.src, tc.srcPort, tc.dst, tc.dstPort)

			require.ErrorIs(t, err, tc.want)
			assert.Len(t, b.conns, before, "rejected connect must not change the graph")
			_, err = b.Build()
			assert.NoError(t, err)
		})
	}
}

func TestConnectTwiceToSamePort(t *testing.T) {
	b := New(testRegistry(t), "w", "")
	a1, _ := b.AddModule("DataReader", "a1")
	a2, _ := b.AddModule("DataReader", "a2")
	iso, _ := b.AddModule("IsoSurface", "iso")
	require.NoError(t, b.SetParam(iso, "isovalue", cty.NumberIntVal(1)))

	require.NoError(t, b.Connect(a1, "data", iso, "input"))
	err := b.Connect(a2, "data", iso, "input")

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, ErrPortAlreadyConnected, berr.Kind)
	assert.Contains(t, berr.Msg, "iso.input is already fed by 1.data")

	w, err := b.Build()
	require.NoError(t, err)
	require.Len(t, w.Connections(), 1)
	assert.Equal(t, a1, w.Connections()[0].From.Instance)
}

func TestBuildErrors(t *testing.T) {
	t.Run("unbound required input", func(t *testing.T) {
		b := New(testRegistry(t), "w", "")
		_, _ = b.AddModule("Renderer", "view")
		_, err := b.Build()
		require.ErrorIs(t, err, ErrUnboundRequiredInput)
		assert.ErrorContains(t, err, "view.geometry")
		assert.NotContains(t, err.Error(), "overlay")
	})

	t.Run("cycle", func(t *testing.T) {
		b := New(testRegistry(t), "w", "")
		s1, _ := b.AddModule("Smooth", "s1")
		s2, _ := b.AddModule("Smooth", "s2")
		require.NoError(t, b.Connect(s1, "out", s2, "in"))
		require.NoError(t, b.Connect(s2, "out", s1, "in"))

		_, err := b.Build()
		require.ErrorIs(t, err, ErrCycleDetected)
		assert.ErrorContains(t, err, "s1 -> s2 -> s1")
	})

	t.Run("self loop", func(t *testing.T) {
		b := New(testRegistry(t), "w", "")
		s, _ := b.AddModule("Smooth", "s")
		require.NoError(t, b.Connect(s, "out", s, "in"))
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("missing required parameter", func(t *testing.T) {
		b := New(testRegistry(t), "w", "")
		a, _ := b.AddModule("DataReader", "a")
		iso, _ := b.AddModule("IsoSurface", "iso")
		require.NoError(t, b.Connect(a, "data", iso, "input"))
		_, err := b.Build()
		assert.ErrorIs(t, err, registry.ErrInvalidParam)
	})
}

func TestSetParamAndPlacement(t *testing.T) {
	b := New(testRegistry(t), "w", "")
	a, _ := b.AddModule("DataReader", "a")

	assert.ErrorIs(t, b.SetParam(a, "dims", cty.StringVal("many")), registry.ErrInvalidParam)
	assert.ErrorIs(t, b.SetParam(a, "nope", cty.NumberIntVal(1)), registry.ErrInvalidParam)
	assert.ErrorIs(t, b.SetParam(42, "dims", cty.NumberIntVal(1)), ErrUnknownInstance)
	require.NoError(t, b.SetParam(a, "dims", cty.StringVal("32")))

	assert.Error(t, b.SetPlacement(a, -3))
	require.NoError(t, b.SetPlacement(a, 2))

	w, err := b.Build()
	require.NoError(t, err)
	inst, _ := w.Instance(a)
	assert.Equal(t, 32, inst.Params.Int("dims", 0))
	assert.Equal(t, 2, inst.Placement)
}

func TestWorkflowIsSnapshot(t *testing.T) {
	b, ids := pipeline(t)
	w, err := b.Build()
	require.NoError(t, err)

	extra, err := b.AddModule("Renderer", "D")
	require.NoError(t, err)
	require.NoError(t, b.Connect(ids[1], "surface", extra, "geometry"))

	assert.Equal(t, 3, w.Len())
	assert.Len(t, w.Consumers(Endpoint{Instance: ids[1], Port: "surface"}), 1)
}
