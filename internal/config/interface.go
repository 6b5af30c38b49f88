package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the interface for a format-specific workflow loader.
type Loader interface {
	// Load reads workflow declarations from the given files or
	// directories, translates them into the format-agnostic model, and
	// returns a matching Converter.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter evaluates the raw parameter expressions kept in a Model.
type Converter interface {
	// EvalParam evaluates one parameter expression into a value. The
	// result is checked against the module's parameter schema by the
	// workflow builder.
	EvalParam(ctx context.Context, expr hcl.Expression) (cty.Value, error)
}
