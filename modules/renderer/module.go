// Package renderer provides the Renderer module kind, which turns geometry
// into an RGBA frame through a pluggable Backend.
package renderer

import (
	"context"
	"fmt"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Kind is the registered module kind name.
const Kind = "Renderer"

// Module implements the registry.Module interface for this package. A nil
// Backend renders on the CPU.
type Module struct {
	Backend Backend
}

// Register registers the Renderer kind.
func (m *Module) Register(r *registry.Registry) {
	backend := m.Backend
	if backend == nil {
		backend = CPU{}
	}
	color := func(r, g, b int64) cty.Value {
		return cty.ListVal([]cty.Value{cty.NumberIntVal(r), cty.NumberIntVal(g), cty.NumberIntVal(b)})
	}
	r.MustRegister(registry.Descriptor{
		Kind: Kind,
		Doc:  "Renders triangles into an image, optionally blended with an overlay image.",
		Inputs: []registry.Port{
			{Name: "geometry", Type: objstore.TypeTriangles},
			{Name: "overlay", Type: objstore.TypeImage, Optional: true},
		},
		Outputs: []registry.Port{{Name: "frame", Type: objstore.TypeImage}},
		Params: []registry.Param{
			{Name: "width", Type: cty.Number, Default: cty.NumberIntVal(128), Validate: registry.InRange(1, 8192)},
			{Name: "height", Type: cty.Number, Default: cty.NumberIntVal(128), Validate: registry.InRange(1, 8192)},
			{Name: "background", Type: cty.List(cty.Number), Default: color(0, 0, 0), Validate: rgb},
			{Name: "color", Type: cty.List(cty.Number), Default: color(230, 160, 40), Validate: rgb},
		},
		Run: func(ctx context.Context, in registry.Inputs, p registry.Params) (registry.Outputs, error) {
			return run(ctx, backend, in, p)
		},
	})
}

func rgb(v cty.Value) error {
	if v.LengthInt() != 3 {
		return fmt.Errorf("want 3 components, got %d", v.LengthInt())
	}
	for it := v.ElementIterator(); it.Next(); {
		_, c := it.Element()
		f, _ := c.AsBigFloat().Float64()
		if f < 0 || f > 255 {
			return fmt.Errorf("component %g is outside [0, 255]", f)
		}
	}
	return nil
}

func run(ctx context.Context, backend Backend, in registry.Inputs, p registry.Params) (registry.Outputs, error) {
	geom := in["geometry"]
	mesh, ok := geom.Payload().(*objstore.Mesh)
	if !ok {
		return nil, fmt.Errorf("geometry is %T, want a mesh", geom.Payload())
	}
	var bg, fg []int
	if err := p.Get("background", &bg); err != nil {
		return nil, err
	}
	if err := p.Get("color", &fg); err != nil {
		return nil, err
	}

	scene := Scene{
		Mesh:       mesh,
		Width:      p.Int("width", 128),
		Height:     p.Int("height", 128),
		Background: [4]byte{byte(bg[0]), byte(bg[1]), byte(bg[2]), 255},
		Color:      [3]byte{byte(fg[0]), byte(fg[1]), byte(fg[2])},
	}
	img, err := backend.Render(ctx, scene)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	if overlay, ok := in["overlay"]; ok {
		if ov, ok := overlay.Payload().(*objstore.Image); ok {
			if err := blend(img, ov); err != nil {
				return nil, err
			}
		}
	}
	ctxlog.FromContext(ctx).Debug("Frame rendered.", "width", img.Width, "height", img.Height, "triangles", len(mesh.Indices)/3)

	meta := geom.Meta()
	meta.Generation++
	return registry.Outputs{"frame": objstore.New(objstore.TypeImage, img, meta)}, nil
}

// blend composites ov over img using ov's alpha channel.
func blend(img, ov *objstore.Image) error {
	if ov.Width != img.Width || ov.Height != img.Height {
		return fmt.Errorf("overlay is %dx%d, frame is %dx%d", ov.Width, ov.Height, img.Width, img.Height)
	}
	for i := 0; i+3 < len(img.Pixels); i += 4 {
		a := uint16(ov.Pixels[i+3])
		for c := 0; c < 3; c++ {
			img.Pixels[i+c] = byte((uint16(ov.Pixels[i+c])*a + uint16(img.Pixels[i+c])*(255-a)) / 255)
		}
	}
	return nil
}
