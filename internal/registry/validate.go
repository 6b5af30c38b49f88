package registry

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty/convert"
)

// validate checks a descriptor for programmer errors: missing entry point,
// empty or repeated names, and defaults that do not match their declared type.
func validate(d *Descriptor) error {
	var errs []string
	if d.Kind == "" {
		errs = append(errs, "kind name is empty")
	}
	if d.Run == nil {
		errs = append(errs, "run function is nil")
	}

	seen := make(map[string]struct{})
	check := func(where, name string) {
		if name == "" {
			errs = append(errs, fmt.Sprintf("%s has an empty name", where))
			return
		}
		key := where + ":" + name
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Sprintf("%s '%s' is declared twice", where, name))
		}
		seen[key] = struct{}{}
	}
	for _, p := range d.Inputs {
		check("input", p.Name)
		if p.Type == "" {
			errs = append(errs, fmt.Sprintf("input '%s' has no data type", p.Name))
		}
	}
	for _, p := range d.Outputs {
		check("output", p.Name)
		if p.Type == "" {
			errs = append(errs, fmt.Sprintf("output '%s' has no data type", p.Name))
		}
	}
	for _, p := range d.Params {
		check("param", p.Name)
		if p.required() {
			continue
		}
		if _, err := convert.Convert(p.Default, p.Type); err != nil {
			errs = append(errs, fmt.Sprintf("param '%s': default does not match type %s: %v", p.Name, p.Type.FriendlyName(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid descriptor for %q:\n- %s", d.Kind, strings.Join(errs, "\n- "))
	}
	return nil
}
