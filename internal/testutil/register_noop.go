package testutil

import (
	"context"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
)

// NoOpModule registers a "NoOp" kind with no ports that does nothing. It is
// useful for workflows that only need to load and build.
type NoOpModule struct{}

// Register implements the registry.Module interface.
func (m *NoOpModule) Register(r *registry.Registry) {
	r.MustRegister(registry.Descriptor{
		Kind: "NoOp",
		Doc:  "Does nothing.",
		Run: func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
			return nil, nil
		},
	})
}
