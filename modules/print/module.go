// Package print provides the Print module kind, a sink that describes the
// object it receives. It is handy at the end of a branch while building a
// workflow.
package print

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Kind is the registered module kind name.
const Kind = "Print"

// Module implements the registry.Module interface for this package. When
// Out is set the description is also written there; it is always logged.
type Module struct {
	Out io.Writer
}

// Register registers the Print kind.
func (m *Module) Register(r *registry.Registry) {
	r.MustRegister(registry.Descriptor{
		Kind:   Kind,
		Doc:    "Describes the object on its input.",
		Inputs: []registry.Port{{Name: "input", Type: objstore.TypeAny}},
		Params: []registry.Param{
			{Name: "title", Type: cty.String, Default: cty.StringVal("")},
		},
		Run: func(ctx context.Context, in registry.Inputs, p registry.Params) (registry.Outputs, error) {
			return nil, m.run(ctx, in, p)
		},
	})
}

func (m *Module) run(ctx context.Context, in registry.Inputs, p registry.Params) error {
	h := in["input"]
	fields := Describe(h)

	logger := ctxlog.FromContext(ctx)
	args := make([]any, 0, 2*len(fields)+2)
	args = append(args, "title", p.String("title", ""))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	logger.Info("Printing input.", args...)

	if m.Out == nil {
		return nil
	}
	if title := p.String("title", ""); title != "" {
		fmt.Fprintf(m.Out, "%s:\n", title)
	}
	for _, k := range keys {
		if _, err := fmt.Fprintf(m.Out, "      %s = %v\n", k, fields[k]); err != nil {
			return err
		}
	}
	return nil
}

// Describe summarises an object: its id, type, size and metadata, plus the
// shape of the payload types it knows.
func Describe(h *objstore.Handle) map[string]any {
	if h == nil {
		return map[string]any{"object": "(null)"}
	}
	meta := h.Meta()
	fields := map[string]any{
		"object":     uint64(h.ID()),
		"type":       h.Type().String(),
		"bytes":      h.Size(),
		"timestep":   meta.Timestep,
		"generation": meta.Generation,
		"creator":    meta.Creator,
	}
	switch p := h.Payload().(type) {
	case *objstore.Grid:
		fields["dims"] = fmt.Sprintf("%dx%dx%d", p.Dims[0], p.Dims[1], p.Dims[2])
	case *objstore.Mesh:
		fields["vertices"] = len(p.Vertices) / 3
		fields["triangles"] = len(p.Indices) / 3
	case *objstore.Image:
		fields["size"] = fmt.Sprintf("%dx%d", p.Width, p.Height)
	case objstore.Bytes:
		fields["payload"] = string(p)
	}
	return fields
}
