package renderer

import (
	"context"
	"errors"
	"testing"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type recordingBackend struct {
	scenes []Scene
	err    error
}

func (b *recordingBackend) Render(_ context.Context, s Scene) (*objstore.Image, error) {
	b.scenes = append(b.scenes, s)
	if b.err != nil {
		return nil, b.err
	}
	return &objstore.Image{Width: s.Width, Height: s.Height, Pixels: make([]byte, s.Width*s.Height*4)}, nil
}

func square() *objstore.Mesh {
	return &objstore.Mesh{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	}
}

func setup(t *testing.T, backend Backend, values map[string]cty.Value) (*registry.Descriptor, registry.Params, *objstore.Arena) {
	t.Helper()
	reg := registry.New()
	reg.Load(&Module{Backend: backend})
	d, err := reg.Resolve(Kind)
	require.NoError(t, err)
	p, err := d.BindParams(values)
	require.NoError(t, err)
	return d, p, objstore.NewArena()
}

func publish(t *testing.T, arena *objstore.Arena, typ objstore.DataType, payload objstore.Payload) *objstore.Handle {
	t.Helper()
	h, err := arena.Publish(objstore.New(typ, payload, objstore.Meta{Timestep: 7}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Release() })
	return h
}

func TestRunPassesSceneToBackend(t *testing.T) {
	// --- Arrange ---
	backend := &recordingBackend{}
	d, p, arena := setup(t, backend, map[string]cty.Value{
		"width":      cty.NumberIntVal(8),
		"height":     cty.NumberIntVal(4),
		"background": cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2), cty.NumberIntVal(3)}),
	})
	geom := publish(t, arena, objstore.TypeTriangles, square())

	// --- Act ---
	out, err := d.Run(context.Background(), registry.Inputs{"geometry": geom}, p)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, backend.scenes, 1)
	s := backend.scenes[0]
	assert.Equal(t, 8, s.Width)
	assert.Equal(t, 4, s.Height)
	assert.Equal(t, [4]byte{1, 2, 3, 255}, s.Background)
	assert.Equal(t, [3]byte{230, 160, 40}, s.Color)
	frame := out["frame"]
	assert.Equal(t, objstore.TypeImage, frame.Type)
	assert.Equal(t, 7, frame.Meta.Timestep)
}

func TestRunBackendError(t *testing.T) {
	backend := &recordingBackend{err: errors.New("no device")}
	d, p, arena := setup(t, backend, nil)
	geom := publish(t, arena, objstore.TypeTriangles, square())

	_, err := d.Run(context.Background(), registry.Inputs{"geometry": geom}, p)
	assert.ErrorContains(t, err, "no device")
}

func TestRunBlendsOverlay(t *testing.T) {
	// --- Arrange ---
	d, p, arena := setup(t, &recordingBackend{}, map[string]cty.Value{"width": cty.NumberIntVal(1), "height": cty.NumberIntVal(1)})
	geom := publish(t, arena, objstore.TypeTriangles, square())
	overlay := publish(t, arena, objstore.TypeImage, &objstore.Image{Width: 1, Height: 1, Pixels: []byte{255, 0, 0, 255}})

	// --- Act ---
	out, err := d.Run(context.Background(), registry.Inputs{"geometry": geom, "overlay": overlay}, p)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 0, 0}, out["frame"].Payload.(*objstore.Image).Pixels[:4])
}

func TestRunRejectsMismatchedOverlay(t *testing.T) {
	d, p, arena := setup(t, &recordingBackend{}, map[string]cty.Value{"width": cty.NumberIntVal(2), "height": cty.NumberIntVal(2)})
	geom := publish(t, arena, objstore.TypeTriangles, square())
	overlay := publish(t, arena, objstore.TypeImage, &objstore.Image{Width: 1, Height: 1, Pixels: make([]byte, 4)})

	_, err := d.Run(context.Background(), registry.Inputs{"geometry": geom, "overlay": overlay}, p)
	assert.ErrorContains(t, err, "overlay is 1x1")
}

func TestColorValidation(t *testing.T) {
	reg := registry.New()
	reg.Load(&Module{})
	d, _ := reg.Resolve(Kind)
	_, err := d.BindParams(map[string]cty.Value{"color": cty.ListVal([]cty.Value{cty.NumberIntVal(300), cty.NumberIntVal(0), cty.NumberIntVal(0)})})
	assert.ErrorIs(t, err, registry.ErrInvalidParam)
	_, err = d.BindParams(map[string]cty.Value{"color": cty.ListVal([]cty.Value{cty.NumberIntVal(0)})})
	assert.ErrorIs(t, err, registry.ErrInvalidParam)
}

func TestCPUBackend(t *testing.T) {
	// --- Arrange ---
	scene := Scene{Mesh: square(), Width: 10, Height: 10, Background: [4]byte{0, 0, 0, 255}, Color: [3]byte{200, 100, 50}}

	// --- Act ---
	img, err := CPU{}.Render(context.Background(), scene)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, img.Pixels, 400)
	centre := (5*10 + 5) * 4
	assert.Equal(t, []byte{200, 100, 50, 255}, img.Pixels[centre:centre+4], "a face-on square is lit at full colour")

	empty, err := CPU{}.Render(context.Background(), Scene{Width: 2, Height: 1, Background: [4]byte{9, 9, 9, 255}})
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 255, 9, 9, 9, 255}, empty.Pixels)
}
