package hcl

import (
	"context"
	"fmt"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/config"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Converter is the HCL implementation of the config.Converter interface.
type Converter struct {
	evalCtx *hcl.EvalContext
}

// NewConverter creates a converter whose expressions see vars as var.<name>
// and a small library of functions.
func NewConverter(vars map[string]cty.Value) *Converter {
	obj := cty.EmptyObjectVal
	if len(vars) > 0 {
		obj = cty.ObjectVal(vars)
	}
	return &Converter{evalCtx: &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": obj},
		Functions: functions(),
	}}
}

func functions() map[string]function.Function {
	return map[string]function.Function{
		"abs":    stdlib.AbsoluteFunc,
		"ceil":   stdlib.CeilFunc,
		"floor":  stdlib.FloorFunc,
		"max":    stdlib.MaxFunc,
		"min":    stdlib.MinFunc,
		"pow":    stdlib.PowFunc,
		"format": stdlib.FormatFunc,
		"lower":  stdlib.LowerFunc,
		"upper":  stdlib.UpperFunc,
		"concat": stdlib.ConcatFunc,
		"length": stdlib.LengthFunc,
	}
}

// EvalParam evaluates a parameter expression.
func (c *Converter) EvalParam(_ context.Context, expr hcl.Expression) (cty.Value, error) {
	v, diags := expr.Value(c.evalCtx)
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	return v, nil
}

// ToCtyValue converts a native Go value into its corresponding cty.Value.
func ToCtyValue(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type: %w", err)
	}
	return gocty.ToCtyValue(v, ty)
}

var _ config.Converter = (*Converter)(nil)
