package renderer

import (
	"context"
	"math"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
)

// Scene is everything a backend needs to produce one frame.
type Scene struct {
	Mesh       *objstore.Mesh
	Width      int
	Height     int
	Background [4]byte
	Color      [3]byte
}

// Backend draws a scene into an RGBA frame.
type Backend interface {
	Render(ctx context.Context, s Scene) (*objstore.Image, error)
}

// CPU is a software backend. It projects the mesh orthographically along z
// onto the xy bounding box and shades each triangle by the z component of
// its normal.
type CPU struct{}

// Render implements Backend.
func (CPU) Render(ctx context.Context, s Scene) (*objstore.Image, error) {
	img := &objstore.Image{Width: s.Width, Height: s.Height, Pixels: make([]byte, s.Width*s.Height*4)}
	for i := 0; i < len(img.Pixels); i += 4 {
		copy(img.Pixels[i:i+4], s.Background[:])
	}
	if s.Mesh == nil || len(s.Mesh.Indices) < 3 {
		return img, nil
	}

	v := s.Mesh.Vertices
	minX, minY := float32(math.Inf(1)), float32(math.Inf(1))
	maxX, maxY := float32(math.Inf(-1)), float32(math.Inf(-1))
	for i := 0; i+2 < len(v); i += 3 {
		minX, maxX = min(minX, v[i]), max(maxX, v[i])
		minY, maxY = min(minY, v[i+1]), max(maxY, v[i+1])
	}
	scale := min(float32(s.Width-1)/nonZero(maxX-minX), float32(s.Height-1)/nonZero(maxY-minY))
	project := func(idx uint32) [3]float32 {
		p := v[idx*3 : idx*3+3]
		return [3]float32{(p[0] - minX) * scale, float32(s.Height-1) - (p[1]-minY)*scale, p[2]}
	}

	for t := 0; t+2 < len(s.Mesh.Indices); t += 3 {
		if t%3000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		a := project(s.Mesh.Indices[t])
		b := project(s.Mesh.Indices[t+1])
		c := project(s.Mesh.Indices[t+2])
		fill(img, a, b, c, shade(s.Color, v, s.Mesh.Indices[t:t+3]))
	}
	return img, nil
}

func nonZero(f float32) float32 {
	if f == 0 {
		return 1
	}
	return f
}

// shade scales color by |n.z| of the triangle's world-space normal, with a
// floor so edge-on triangles stay visible.
func shade(color [3]byte, v []float32, tri []uint32) [4]byte {
	p := func(i uint32) [3]float32 { return [3]float32{v[i*3], v[i*3+1], v[i*3+2]} }
	a, b, c := p(tri[0]), p(tri[1]), p(tri[2])
	u := [3]float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	w := [3]float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	n := [3]float32{u[1]*w[2] - u[2]*w[1], u[2]*w[0] - u[0]*w[2], u[0]*w[1] - u[1]*w[0]}
	length := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
	k := float32(1)
	if length > 0 {
		k = 0.3 + 0.7*float32(math.Abs(float64(n[2]/length)))
	}
	return [4]byte{byte(float32(color[0]) * k), byte(float32(color[1]) * k), byte(float32(color[2]) * k), 255}
}

// fill rasterizes a screen-space triangle with a bounding-box edge test.
func fill(img *objstore.Image, a, b, c [3]float32, rgba [4]byte) {
	x0 := clamp(int(min(a[0], b[0], c[0])), 0, img.Width-1)
	x1 := clamp(int(max(a[0], b[0], c[0])+1), 0, img.Width-1)
	y0 := clamp(int(min(a[1], b[1], c[1])), 0, img.Height-1)
	y1 := clamp(int(max(a[1], b[1], c[1])+1), 0, img.Height-1)
	area := edgeFn(a, b, c)
	if area == 0 {
		return
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			p := [3]float32{float32(x) + 0.5, float32(y) + 0.5}
			w0, w1, w2 := edgeFn(b, c, p), edgeFn(c, a, p), edgeFn(a, b, p)
			if (area > 0 && w0 >= 0 && w1 >= 0 && w2 >= 0) || (area < 0 && w0 <= 0 && w1 <= 0 && w2 <= 0) {
				i := (y*img.Width + x) * 4
				copy(img.Pixels[i:i+4], rgba[:])
			}
		}
	}
}

func edgeFn(a, b, p [3]float32) float32 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
