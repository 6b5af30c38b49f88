package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Model is the format-agnostic representation of one workflow declaration.
type Model struct {
	Name        string
	Label       string
	Modules     []*Module
	Connections []*Connection
}

// Module is one `module` block: an instance of a registered kind.
type Module struct {
	Kind  string
	Label string
	// Placement is a rank hint, or nil for none.
	Placement *int
	Params    map[string]hcl.Expression
	DeclRange hcl.Range
}

// Connection wires an output port to an input port, both written as
// "<label>.<port>".
type Connection struct {
	From      string
	To        string
	DeclRange hcl.Range
}

// SplitEndpoint splits "<label>.<port>" at its last dot.
func SplitEndpoint(ref string) (label, port string, err error) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("endpoint %q must have the form <label>.<port>", ref)
	}
	return ref[:i], ref[i+1:], nil
}
