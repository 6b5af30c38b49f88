package registry

import (
	"context"
	"fmt"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/zclconf/go-cty/cty"
)

// Inputs maps input port names to the published objects bound to them.
// Handles are owned by the caller of Run; modules must not release them.
type Inputs map[string]*objstore.Handle

// Outputs maps output port names to drafts produced by a module. The task
// executor publishes them after Run returns.
type Outputs map[string]*objstore.Object

// RunFunc is the module entry point. It must not modify its inputs.
type RunFunc func(ctx context.Context, in Inputs, params Params) (Outputs, error)

// Port is a typed, named slot on a module.
type Port struct {
	Name     string
	Type     objstore.DataType
	Optional bool
	Doc      string
}

// Param is one entry of a module's parameter schema.
type Param struct {
	Name string
	Type cty.Type
	// Default is used when the workflow does not set the parameter. A null
	// (or zero) default makes the parameter required.
	Default cty.Value
	// Validate is an optional rule checked after type conversion.
	Validate func(cty.Value) error
	Doc      string
}

func (p Param) required() bool {
	return p.Default.IsNull()
}

// Descriptor describes one version of a module kind.
type Descriptor struct {
	Kind    string
	Version int
	Doc     string
	Inputs  []Port
	Outputs []Port
	Params  []Param
	Run     RunFunc
}

// Input returns the input port called name.
func (d *Descriptor) Input(name string) (Port, bool) {
	for _, p := range d.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Output returns the output port called name.
func (d *Descriptor) Output(name string) (Port, bool) {
	for _, p := range d.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Param returns the schema entry called name.
func (d *Descriptor) Param(name string) (Param, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s@v%d", d.Kind, d.Version)
}

func (d Descriptor) clone() *Descriptor {
	d.Inputs = append([]Port(nil), d.Inputs...)
	d.Outputs = append([]Port(nil), d.Outputs...)
	d.Params = append([]Param(nil), d.Params...)
	return &d
}
