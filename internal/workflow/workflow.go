package workflow

import (
	"sort"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/dag"
)

// Workflow is a validated, immutable graph of instances and connections.
type Workflow struct {
	name      string
	label     string
	instances map[InstanceID]*Instance
	ids       []InstanceID
	conns     []Connection
	order     []InstanceID
	position  map[InstanceID]int
	graph     *dag.Graph[InstanceID]
	inbound   map[InstanceID][]Connection
	outbound  map[Endpoint][]Connection
}

func newWorkflow(name, label string, instances map[InstanceID]*Instance, conns []Connection, order []InstanceID, g *dag.Graph[InstanceID]) *Workflow {
	w := &Workflow{
		name:      name,
		label:     label,
		instances: instances,
		conns:     conns,
		order:     order,
		position:  make(map[InstanceID]int, len(order)),
		graph:     g,
		inbound:   make(map[InstanceID][]Connection),
		outbound:  make(map[Endpoint][]Connection),
	}
	for id := range instances {
		w.ids = append(w.ids, id)
	}
	sort.Slice(w.ids, func(i, j int) bool { return w.ids[i] < w.ids[j] })
	for i, id := range order {
		w.position[id] = i
	}
	for _, c := range conns {
		w.inbound[c.To.Instance] = append(w.inbound[c.To.Instance], c)
		w.outbound[c.From] = append(w.outbound[c.From], c)
	}
	return w
}

func (w *Workflow) Name() string  { return w.name }
func (w *Workflow) Label() string { return w.label }
func (w *Workflow) Len() int      { return len(w.ids) }

// Instances returns every instance by ascending id.
func (w *Workflow) Instances() []*Instance {
	out := make([]*Instance, len(w.ids))
	for i, id := range w.ids {
		out[i] = w.instances[id]
	}
	return out
}

// Instance looks up one instance.
func (w *Workflow) Instance(id InstanceID) (*Instance, bool) {
	inst, ok := w.instances[id]
	return inst, ok
}

// Lookup finds the first instance with label.
func (w *Workflow) Lookup(label string) (*Instance, bool) {
	for _, id := range w.ids {
		if w.instances[id].Label == label {
			return w.instances[id], true
		}
	}
	return nil, false
}

// Connections returns every connection in the order they were made.
func (w *Workflow) Connections() []Connection {
	return append([]Connection(nil), w.conns...)
}

// Order is the canonical execution order: Kahn's algorithm with ascending id
// tie breaks.
func (w *Workflow) Order() []InstanceID {
	return append([]InstanceID(nil), w.order...)
}

// Position returns the index of id in Order.
func (w *Workflow) Position(id InstanceID) int {
	return w.position[id]
}

// Inputs returns the connections feeding id.
func (w *Workflow) Inputs(id InstanceID) []Connection {
	return w.inbound[id]
}

// Consumers returns the connections reading from an output port.
func (w *Workflow) Consumers(from Endpoint) []Connection {
	return w.outbound[from]
}

// Dependents returns the instances that read any output of id.
func (w *Workflow) Dependents(id InstanceID) []InstanceID {
	deps, _ := w.graph.Dependents(id)
	return deps
}

// Dependencies returns the instances id reads from.
func (w *Workflow) Dependencies(id InstanceID) []InstanceID {
	deps, _ := w.graph.Dependencies(id)
	return deps
}

// Sinks returns instances with no dependents, ascending.
func (w *Workflow) Sinks() []InstanceID {
	var out []InstanceID
	for _, id := range w.ids {
		if len(w.Dependents(id)) == 0 {
			out = append(out, id)
		}
	}
	return out
}
