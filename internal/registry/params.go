package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
	ctymsgpack "github.com/zclconf/go-cty/cty/msgpack"
)

// Params holds concrete parameter values keyed by name, already converted to
// the schema type.
type Params map[string]cty.Value

// BindParams checks values against the schema, converts each to its declared
// type, fills defaults and runs validation rules.
func (d *Descriptor) BindParams(values map[string]cty.Value) (Params, error) {
	var errs []string
	for name := range values {
		if _, ok := d.Param(name); !ok {
			errs = append(errs, fmt.Sprintf("'%s' is not a parameter of %s", name, d.Kind))
		}
	}

	out := make(Params, len(d.Params))
	for _, p := range d.Params {
		v, set := values[p.Name]
		if !set || v.IsNull() {
			if p.required() {
				errs = append(errs, fmt.Sprintf("'%s' is required", p.Name))
				continue
			}
			v = p.Default
		}
		converted, err := convert.Convert(v, p.Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("'%s' must be %s: %v", p.Name, p.Type.FriendlyName(), err))
			continue
		}
		if p.Validate != nil {
			if err := p.Validate(converted); err != nil {
				errs = append(errs, fmt.Sprintf("'%s': %v", p.Name, err))
				continue
			}
		}
		out[p.Name] = converted
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("%s: %w: %s", d.Kind, ErrInvalidParam, strings.Join(errs, "; "))
	}
	return out, nil
}

// GoValue converts an arbitrary Go value into a cty.Value using its implied type.
func GoValue(v any) (cty.Value, error) {
	if cv, ok := v.(cty.Value); ok {
		return cv, nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	cv, err := gocty.ToCtyValue(v, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	return cv, nil
}

// Get decodes parameter name into target, a pointer to a Go value.
func (p Params) Get(name string, target any) error {
	v, ok := p[name]
	if !ok {
		return fmt.Errorf("parameter '%s' is not set", name)
	}
	if err := gocty.FromCtyValue(v, target); err != nil {
		return fmt.Errorf("parameter '%s': %w", name, err)
	}
	return nil
}

// Int returns an integer parameter, or def when it is unset or not a whole number.
func (p Params) Int(name string, def int) int {
	var out int
	if err := p.Get(name, &out); err != nil {
		return def
	}
	return out
}

// Float returns a number parameter, or def.
func (p Params) Float(name string, def float64) float64 {
	var out float64
	if err := p.Get(name, &out); err != nil {
		return def
	}
	return out
}

// String returns a string parameter, or def.
func (p Params) String(name string, def string) string {
	var out string
	if err := p.Get(name, &out); err != nil {
		return def
	}
	return out
}

// Bool returns a bool parameter, or def.
func (p Params) Bool(name string, def bool) bool {
	var out bool
	if err := p.Get(name, &out); err != nil {
		return def
	}
	return out
}

// Encode serializes params for the wire with cty's msgpack encoding.
func (p Params) Encode() ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	b, err := ctymsgpack.Marshal(cty.ObjectVal(p), cty.DynamicPseudoType)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return b, nil
}

// DecodeParams is the inverse of Params.Encode.
func DecodeParams(b []byte) (Params, error) {
	if len(b) == 0 {
		return Params{}, nil
	}
	v, err := ctymsgpack.Unmarshal(b, cty.DynamicPseudoType)
	if err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if !v.Type().IsObjectType() {
		return nil, fmt.Errorf("decode params: expected an object, got %s", v.Type().FriendlyName())
	}
	return Params(v.AsValueMap()), nil
}

// InRange is a validation rule for numbers in [min, max].
func InRange(min, max float64) func(cty.Value) error {
	return func(v cty.Value) error {
		f, _ := v.AsBigFloat().Float64()
		if f < min || f > max {
			return fmt.Errorf("%g is outside [%g, %g]", f, min, max)
		}
		return nil
	}
}

// OneOf is a validation rule for strings drawn from a fixed set.
func OneOf(choices ...string) func(cty.Value) error {
	return func(v cty.Value) error {
		s := v.AsString()
		for _, c := range choices {
			if s == c {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of %s", s, strings.Join(choices, ", "))
	}
}
