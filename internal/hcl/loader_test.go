package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/config"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

const pipelineHCL = `
workflow "iso_demo" {
  label = "Isosurface demo"
}

module "Reader" "reader" {
  dims = 4 * 4
}

module "Iso" "iso" {
  isovalue  = var.isovalue
  placement = 1
  inputs = {
    input = reader.data
  }
}

module "Render" "render" {
  title = upper("frame")
}

connect {
  from = iso.surface
  to   = "render.geometry"
}
`

func writeHCL(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testRegistry() *registry.Registry {
	run := func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) { return nil, nil }
	reg := registry.New()
	reg.MustRegister(registry.Descriptor{
		Kind:    "Reader",
		Outputs: []registry.Port{{Name: "data", Type: objstore.TypeUniformGrid}},
		Params:  []registry.Param{{Name: "dims", Type: cty.Number, Default: cty.NumberIntVal(8)}},
		Run:     run,
	})
	reg.MustRegister(registry.Descriptor{
		Kind:    "Iso",
		Inputs:  []registry.Port{{Name: "input", Type: objstore.TypeUniformGrid}},
		Outputs: []registry.Port{{Name: "surface", Type: objstore.TypeTriangles}},
		Params:  []registry.Param{{Name: "isovalue", Type: cty.Number}},
		Run:     run,
	})
	reg.MustRegister(registry.Descriptor{
		Kind:   "Render",
		Inputs: []registry.Port{{Name: "geometry", Type: objstore.TypeAny}},
		Params: []registry.Param{{Name: "title", Type: cty.String, Default: cty.StringVal("")}},
		Run:    run,
	})
	return reg
}

func TestLoadAndBuild(t *testing.T) {
	// --- Arrange ---
	path := writeHCL(t, t.TempDir(), "pipeline.hcl", pipelineHCL)
	loader, err := NewLoader(WithVariables(map[string]any{"isovalue": 0.5}))
	require.NoError(t, err)
	ctx := context.Background()

	// --- Act ---
	model, conv, err := loader.Load(ctx, path)
	require.NoError(t, err)
	wf, err := config.Build(ctx, testRegistry(), model, conv)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "iso_demo", model.Name)
	assert.Equal(t, "Isosurface demo", model.Label)
	require.Len(t, model.Connections, 2)
	assert.Equal(t, "reader.data", model.Connections[0].From)
	assert.Equal(t, "iso.input", model.Connections[0].To)

	reader, _ := wf.Lookup("reader")
	assert.Equal(t, 16, reader.Params.Int("dims", 0))
	iso, _ := wf.Lookup("iso")
	assert.Equal(t, 0.5, iso.Params.Float("isovalue", 0))
	assert.Equal(t, 1, iso.Placement)
	render, _ := wf.Lookup("render")
	assert.Equal(t, "FRAME", render.Params.String("title", ""))
	assert.Len(t, wf.Order(), 3)
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	// --- Arrange ---
	dir := t.TempDir()
	writeHCL(t, dir, "a.hcl", `module "Reader" "reader" {}`)
	writeHCL(t, dir, "nested/b.hcl", `
module "Render" "render" {
  inputs = { "geometry" = "reader.data" }
}`)
	writeHCL(t, dir, "notes.txt", `not a workflow`)
	loader, err := NewLoader()
	require.NoError(t, err)

	// --- Act ---
	model, conv, err := loader.Load(context.Background(), dir)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "a", model.Name, "named after the first file without a workflow block")
	assert.Len(t, model.Modules, 2)
	_, err = config.Build(context.Background(), testRegistry(), model, conv)
	assert.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "syntax error", content: `module "Reader" {`, wantErr: "failed to parse"},
		{name: "missing label", content: `module "Reader" {}`, wantErr: "failed to decode"},
		{name: "two workflows", content: "workflow \"a\" {}\nworkflow \"b\" {}\n", wantErr: "already is"},
		{name: "bad endpoint traversal", content: "connect {\n  from = a.b.c\n  to = \"x.y\"\n}\n", wantErr: "<label>.<port>"},
		{name: "bad endpoint string", content: "connect {\n  from = \"ab\"\n  to = \"x.y\"\n}\n", wantErr: "<label>.<port>"},
		{name: "inputs not a map", content: "module \"Render\" \"r\" {\n  inputs = 3\n}\n", wantErr: "inputs must be a map"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeHCL(t, t.TempDir(), "wf.hcl", tc.content)
			loader, err := NewLoader()
			require.NoError(t, err)
			_, _, err = loader.Load(context.Background(), path)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}

	t.Run("missing path", func(t *testing.T) {
		loader, _ := NewLoader()
		_, _, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "none.hcl"))
		assert.Error(t, err)
	})

	t.Run("empty directory", func(t *testing.T) {
		loader, _ := NewLoader()
		_, _, err := loader.Load(context.Background(), t.TempDir())
		assert.ErrorContains(t, err, "no .hcl files")
	})
}

func TestEvalParamUnknownVariable(t *testing.T) {
	// --- Arrange ---
	path := writeHCL(t, t.TempDir(), "wf.hcl", "module \"Reader\" \"reader\" {\n  dims = var.size\n}\n")
	loader, _ := NewLoader()
	model, conv, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	// --- Act ---
	_, err = config.Build(context.Background(), testRegistry(), model, conv)

	// --- Assert ---
	assert.ErrorContains(t, err, "param 'dims'")
}

func TestToCtyValue(t *testing.T) {
	_, err := ToCtyValue(make(chan int))
	assert.Error(t, err)

	v, err := ToCtyValue("hello")
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("hello"), v)

	v, err = ToCtyValue(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}
