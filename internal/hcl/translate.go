package hcl

import (
	"context"
	"fmt"
	"sort"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/config"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// translateModule converts a module block into the agnostic model. Entries
// of its inputs map become connections into the module.
func (l *Loader) translateModule(ctx context.Context, m *moduleBlock) (*config.Module, []*config.Connection, error) {
	logger := ctxlog.FromContext(ctx).With("module_kind", m.Kind, "module_label", m.Label)
	logger.Debug("Translating HCL module to internal config model.")

	rng := declRange(m.Params)
	mod := &config.Module{
		Kind:      m.Kind,
		Label:     m.Label,
		Placement: m.Placement,
		Params:    make(map[string]hcl.Expression),
		DeclRange: rng,
	}
	if m.Params != nil {
		attrs, diags := m.Params.JustAttributes()
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("module '%s': %w", m.Label, diags)
		}
		for name, attr := range attrs {
			mod.Params[name] = attr.Expr
		}
	}

	if !isExprDefined(ctx, m.Inputs, "inputs") {
		return mod, nil, nil
	}
	pairs, diags := hcl.ExprMap(m.Inputs)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("module '%s': inputs must be a map of port = <label>.<port>: %w", m.Label, diags)
	}
	var conns []*config.Connection
	for _, pair := range pairs {
		port := hcl.ExprAsKeyword(pair.Key)
		if port == "" {
			v, diags := pair.Key.Value(nil)
			if diags.HasErrors() || v.Type() != cty.String {
				return nil, nil, fmt.Errorf("%s: module '%s': input names must be identifiers or strings", pair.Key.Range(), m.Label)
			}
			port = v.AsString()
		}
		from, err := endpointRef(pair.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("module '%s' input '%s': %w", m.Label, port, err)
		}
		conns = append(conns, &config.Connection{From: from, To: m.Label + "." + port, DeclRange: pair.Value.Range()})
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].To < conns[j].To })
	logger.Debug("Module inputs translated to connections.", "count", len(conns))
	return mod, conns, nil
}

func translateConnection(c *connectBlock) (*config.Connection, error) {
	from, err := endpointRef(c.From)
	if err != nil {
		return nil, fmt.Errorf("connect from: %w", err)
	}
	to, err := endpointRef(c.To)
	if err != nil {
		return nil, fmt.Errorf("connect to: %w", err)
	}
	return &config.Connection{From: from, To: to, DeclRange: c.From.Range()}, nil
}

// endpointRef reads "<label>.<port>" from either a traversal such as
// reader.data or a string literal.
func endpointRef(expr hcl.Expression) (string, error) {
	if trav, diags := hcl.AbsTraversalForExpr(expr); !diags.HasErrors() {
		if len(trav) == 2 {
			if attr, ok := trav[1].(hcl.TraverseAttr); ok {
				return trav.RootName() + "." + attr.Name, nil
			}
		}
		return "", fmt.Errorf("%s: endpoint must have the form <label>.<port>", expr.Range())
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("%s: %w", expr.Range(), diags)
	}
	if v.IsNull() || v.Type() != cty.String {
		return "", fmt.Errorf("%s: endpoint must be a traversal or a string", expr.Range())
	}
	ref := v.AsString()
	if _, _, err := config.SplitEndpoint(ref); err != nil {
		return "", fmt.Errorf("%s: %w", expr.Range(), err)
	}
	return ref, nil
}

// isExprDefined checks if an HCL expression was actually present in the
// source. The decoder fills omitted optional expressions with zero-width
// placeholders, so a nil check is not enough.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	defined := r.End.Byte > r.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName, "hcl_range", r.String(), "is_defined", defined)
	return defined
}
