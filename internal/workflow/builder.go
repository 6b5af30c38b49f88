package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/dag"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Builder assembles a Workflow. It is not safe for concurrent use.
type Builder struct {
	registry  *registry.Registry
	name      string
	label     string
	nextID    InstanceID
	instances map[InstanceID]*Instance
	conns     []Connection
	inbound   map[Endpoint]Connection
}

// New starts an empty workflow.
func New(reg *registry.Registry, name, label string) *Builder {
	return &Builder{
		registry:  reg,
		name:      name,
		label:     label,
		instances: make(map[InstanceID]*Instance),
		inbound:   make(map[Endpoint]Connection),
	}
}

// AddModule creates an instance of kind. An empty label defaults to the kind
// name.
func (b *Builder) AddModule(kind, label string) (InstanceID, error) {
	d, err := b.registry.Resolve(kind)
	if err != nil {
		return 0, err
	}
	if label == "" {
		label = kind
	}
	b.nextID++
	inst := &Instance{
		ID:         b.nextID,
		Label:      label,
		Kind:       kind,
		Descriptor: d,
		Placement:  NoPlacement,
		raw:        make(map[string]cty.Value),
	}
	b.instances[inst.ID] = inst
	return inst.ID, nil
}

// SetParam assigns one parameter. The value is checked against the schema
// type and validation rule immediately; required parameters are enforced by
// Build.
func (b *Builder) SetParam(id InstanceID, name string, value cty.Value) error {
	inst, ok := b.instances[id]
	if !ok {
		return newError(ErrUnknownInstance, "instance %d", id)
	}
	p, ok := inst.Descriptor.Param(name)
	if !ok {
		return fmt.Errorf("%s: %w: '%s' is not a parameter of %s", inst, registry.ErrInvalidParam, name, inst.Kind)
	}
	converted, err := convert.Convert(value, p.Type)
	if err != nil {
		return fmt.Errorf("%s: %w: '%s' must be %s: %v", inst, registry.ErrInvalidParam, name, p.Type.FriendlyName(), err)
	}
	if p.Validate != nil && !converted.IsNull() {
		if err := p.Validate(converted); err != nil {
			return fmt.Errorf("%s: %w: '%s': %v", inst, registry.ErrInvalidParam, name, err)
		}
	}
	inst.raw[name] = converted
	return nil
}

// SetPlacement records a rank hint used by affinity placement.
func (b *Builder) SetPlacement(id InstanceID, rank int) error {
	inst, ok := b.instances[id]
	if !ok {
		return newError(ErrUnknownInstance, "instance %d", id)
	}
	if rank < 0 {
		return fmt.Errorf("%s: placement rank must be non-negative, got %d", inst, rank)
	}
	inst.Placement = rank
	return nil
}

// Connect wires srcID.srcPort (an output) to dstID.dstPort (an input).
func (b *Builder) Connect(srcID InstanceID, srcPort string, dstID InstanceID, dstPort string) error {
	src, ok := b.instances[srcID]
	if !ok {
		return newError(ErrUnknownInstance, "source instance %d", srcID)
	}
	dst, ok := b.instances[dstID]
	if !ok {
		return newError(ErrUnknownInstance, "destination instance %d", dstID)
	}
	out, ok := src.Descriptor.Output(srcPort)
	if !ok {
		return newError(ErrUnknownPort, "%s has no output port '%s'", src, srcPort)
	}
	in, ok := dst.Descriptor.Input(dstPort)
	if !ok {
		return newError(ErrUnknownPort, "%s has no input port '%s'", dst, dstPort)
	}
	if !in.Type.Accepts(out.Type) {
		return newError(ErrTypeMismatch, "%s.%s produces %s but %s.%s accepts %s", src.Label, srcPort, out.Type, dst.Label, dstPort, in.Type)
	}
	to := Endpoint{Instance: dstID, Port: dstPort}
	if existing, taken := b.inbound[to]; taken {
		return newError(ErrPortAlreadyConnected, "%s.%s is already fed by %s", dst.Label, dstPort, existing.From)
	}

	c := Connection{From: Endpoint{Instance: srcID, Port: srcPort}, To: to, Type: out.Type}
	b.conns = append(b.conns, c)
	b.inbound[to] = c
	return nil
}

// Build validates the graph and returns an immutable snapshot. The builder
// can keep being edited afterwards without affecting the returned Workflow.
func (b *Builder) Build() (*Workflow, error) {
	ids := make([]InstanceID, 0, len(b.instances))
	for id := range b.instances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var unbound []string
	for _, id := range ids {
		inst := b.instances[id]
		for _, p := range inst.Descriptor.Inputs {
			if p.Optional {
				continue
			}
			if _, ok := b.inbound[Endpoint{Instance: id, Port: p.Name}]; !ok {
				unbound = append(unbound, fmt.Sprintf("%s.%s", inst.Label, p.Name))
			}
		}
	}
	if len(unbound) > 0 {
		return nil, newError(ErrUnboundRequiredInput, "%s", strings.Join(unbound, ", "))
	}

	g := dag.New[InstanceID]()
	for _, id := range ids {
		g.AddNode(id)
	}
	for _, c := range b.conns {
		if err := g.AddEdge(c.From.Instance, c.To.Instance); err != nil {
			return nil, fmt.Errorf("connect %s: %w", c, err)
		}
	}
	order, err := g.TopoSort()
	if err != nil {
		var cycle *dag.CycleError[InstanceID]
		if errors.As(err, &cycle) {
			labels := make([]string, len(cycle.Path))
			for i, id := range cycle.Path {
				labels[i] = b.instances[id].Label
			}
			return nil, newError(ErrCycleDetected, "%s", strings.Join(labels, " -> "))
		}
		return nil, err
	}

	instances := make(map[InstanceID]*Instance, len(ids))
	for _, id := range ids {
		src := b.instances[id]
		params, err := src.Descriptor.BindParams(src.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		inst := *src
		inst.Params = params
		inst.raw = nil
		instances[id] = &inst
	}

	return newWorkflow(b.name, b.label, instances, append([]Connection(nil), b.conns...), order, g), nil
}
