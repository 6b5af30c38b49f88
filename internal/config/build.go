package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/workflow"
)

// ErrDuplicateLabel is returned when two modules share a label.
var ErrDuplicateLabel = errors.New("duplicate module label")

// Build assembles the declared workflow with the builder. Parameter
// expressions are evaluated with conv. Errors name the declaration that
// caused them.
func Build(ctx context.Context, reg *registry.Registry, m *Model, conv Converter) (*workflow.Workflow, error) {
	logger := ctxlog.FromContext(ctx).With("workflow", m.Name)
	logger.Debug("Assembling workflow from declarations.", "modules", len(m.Modules), "connections", len(m.Connections))

	b := workflow.New(reg, m.Name, m.Label)
	ids := make(map[string]workflow.InstanceID, len(m.Modules))
	for _, mod := range m.Modules {
		if _, dup := ids[mod.Label]; dup {
			return nil, fmt.Errorf("%s: %w: '%s'", mod.DeclRange, ErrDuplicateLabel, mod.Label)
		}
		id, err := b.AddModule(mod.Kind, mod.Label)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", mod.DeclRange, err)
		}
		ids[mod.Label] = id

		for _, name := range slices.Sorted(maps.Keys(mod.Params)) {
			v, err := conv.EvalParam(ctx, mod.Params[name])
			if err != nil {
				return nil, fmt.Errorf("%s: module '%s' param '%s': %w", mod.DeclRange, mod.Label, name, err)
			}
			if err := b.SetParam(id, name, v); err != nil {
				return nil, fmt.Errorf("%s: %w", mod.DeclRange, err)
			}
		}
		if mod.Placement != nil {
			if err := b.SetPlacement(id, *mod.Placement); err != nil {
				return nil, fmt.Errorf("%s: %w", mod.DeclRange, err)
			}
		}
	}

	for _, c := range m.Connections {
		src, err := endpoint(ids, c.From)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.DeclRange, err)
		}
		dst, err := endpoint(ids, c.To)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.DeclRange, err)
		}
		if err := b.Connect(src.Instance, src.Port, dst.Instance, dst.Port); err != nil {
			return nil, fmt.Errorf("%s: %w", c.DeclRange, err)
		}
	}

	wf, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("workflow '%s': %w", m.Name, err)
	}
	logger.Debug("Workflow assembled.", "instances", wf.Len())
	return wf, nil
}

func endpoint(ids map[string]workflow.InstanceID, ref string) (workflow.Endpoint, error) {
	label, port, err := SplitEndpoint(ref)
	if err != nil {
		return workflow.Endpoint{}, err
	}
	id, ok := ids[label]
	if !ok {
		return workflow.Endpoint{}, fmt.Errorf("%w: no module labelled '%s'", workflow.ErrUnknownInstance, label)
	}
	return workflow.Endpoint{Instance: id, Port: port}, nil
}
