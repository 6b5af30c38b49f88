package workflow

import (
	"fmt"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// InstanceID identifies a module instance within one workflow. Ids start at
// 1 and follow AddModule call order.
type InstanceID uint64

// NoPlacement marks an instance without a rank hint.
const NoPlacement = -1

// Instance is one use of a module kind inside a workflow.
type Instance struct {
	ID         InstanceID
	Label      string
	Kind       string
	Descriptor *registry.Descriptor
	// Params holds the values bound by Build, defaults included.
	Params registry.Params
	// Placement is a rank hint, or NoPlacement.
	Placement int

	raw map[string]cty.Value
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s#%d(%s)", i.Label, i.ID, i.Kind)
}

// Endpoint names a port on an instance.
type Endpoint struct {
	Instance InstanceID
	Port     string
}

func (e Endpoint) String() string { return fmt.Sprintf("%d.%s", e.Instance, e.Port) }

// Connection wires an output port to an input port.
type Connection struct {
	From Endpoint
	To   Endpoint
	// Type is the data type tag of the source port.
	Type objstore.DataType
}

func (c Connection) String() string { return c.From.String() + " -> " + c.To.String() }
