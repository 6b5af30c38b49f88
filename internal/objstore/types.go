package objstore

import (
	"fmt"
	"strings"
)

// ID identifies a published object inside one arena.
type ID uint64

// DataType is the tag carried by every object and declared by every port.
type DataType string

const (
	TypeAny              DataType = "any"
	TypePoints           DataType = "points"
	TypeLines            DataType = "lines"
	TypeTriangles        DataType = "triangles"
	TypePolygons         DataType = "polygons"
	TypeUnstructuredGrid DataType = "unstructured_grid"
	TypeUniformGrid      DataType = "uniform_grid"
	TypeScalarField      DataType = "scalar_field"
	TypeVectorField      DataType = "vector_field"
	TypeImage            DataType = "image"
)

var knownTypes = map[DataType]struct{}{
	TypeAny: {}, TypePoints: {}, TypeLines: {}, TypeTriangles: {}, TypePolygons: {},
	TypeUnstructuredGrid: {}, TypeUniformGrid: {}, TypeScalarField: {}, TypeVectorField: {}, TypeImage: {},
}

// ParseDataType converts a tag name such as "uniform_grid" into a DataType.
func ParseDataType(s string) (DataType, error) {
	t := DataType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownTypes[t]; !ok {
		return "", fmt.Errorf("unknown data type %q", s)
	}
	return t, nil
}

// Accepts reports whether a port declared with t can receive objects tagged src.
func (t DataType) Accepts(src DataType) bool {
	return t == TypeAny || t == src
}

func (t DataType) String() string { return string(t) }

// Meta describes where an object sits in a multi-block, time-varying dataset
// and who produced it.
type Meta struct {
	Block        int     `msgpack:"block" json:"block" yaml:"block"`
	NumBlocks    int     `msgpack:"num_blocks" json:"num_blocks" yaml:"num_blocks"`
	Timestep     int     `msgpack:"timestep" json:"timestep" yaml:"timestep"`
	NumTimesteps int     `msgpack:"num_timesteps" json:"num_timesteps" yaml:"num_timesteps"`
	Iteration    int     `msgpack:"iteration" json:"iteration" yaml:"iteration"`
	Generation   int     `msgpack:"generation" json:"generation" yaml:"generation"`
	Creator      uint64  `msgpack:"creator" json:"creator" yaml:"creator"`
	RealTime     float64 `msgpack:"real_time" json:"real_time" yaml:"real_time"`
}

// Payload is the immutable body of an object.
type Payload interface {
	// SizeBytes is the number of bytes accounted against the arena capacity.
	SizeBytes() int64
	// Clone returns a deep copy that may be modified freely.
	Clone() Payload
}

// Bytes is an opaque byte buffer.
type Bytes []byte

func (b Bytes) SizeBytes() int64 { return int64(len(b)) }
func (b Bytes) Clone() Payload   { return append(Bytes(nil), b...) }

// Floats is a flat float32 array (points, scalar samples, vectors).
type Floats []float32

func (f Floats) SizeBytes() int64 { return int64(len(f)) * 4 }
func (f Floats) Clone() Payload   { return append(Floats(nil), f...) }

// Grid is a uniform structured grid with one scalar value per sample.
type Grid struct {
	Dims    [3]int
	Origin  [3]float32
	Spacing [3]float32
	Values  []float32
}

func (g *Grid) SizeBytes() int64 { return int64(len(g.Values))*4 + 3*4*3 }

func (g *Grid) Clone() Payload {
	c := *g
	c.Values = append([]float32(nil), g.Values...)
	return &c
}

// At returns the sample at grid coordinate (i, j, k).
func (g *Grid) At(i, j, k int) float32 {
	return g.Values[i+g.Dims[0]*(j+g.Dims[1]*k)]
}

// Mesh is an indexed primitive list. Vertices holds xyz triples.
type Mesh struct {
	Vertices []float32
	Indices  []uint32
}

func (m *Mesh) SizeBytes() int64 { return int64(len(m.Vertices))*4 + int64(len(m.Indices))*4 }

func (m *Mesh) Clone() Payload {
	return &Mesh{
		Vertices: append([]float32(nil), m.Vertices...),
		Indices:  append([]uint32(nil), m.Indices...),
	}
}

// Image is an RGBA frame.
type Image struct {
	Width  int
	Height int
	Pixels []byte
}

func (im *Image) SizeBytes() int64 { return int64(len(im.Pixels)) }

func (im *Image) Clone() Payload {
	c := *im
	c.Pixels = append([]byte(nil), im.Pixels...)
	return &c
}
