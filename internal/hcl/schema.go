package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block of a workflow file.
type fileRoot struct {
	Workflows   []*workflowBlock `hcl:"workflow,block"`
	Modules     []*moduleBlock   `hcl:"module,block"`
	Connections []*connectBlock  `hcl:"connect,block"`
}

type workflowBlock struct {
	Name  string  `hcl:"name,label"`
	Label *string `hcl:"label,optional"`
}

type moduleBlock struct {
	Kind      string         `hcl:"kind,label"`
	Label     string         `hcl:"label,label"`
	Placement *int           `hcl:"placement,optional"`
	Inputs    hcl.Expression `hcl:"inputs,optional"`
	// Params collects every other attribute.
	Params hcl.Body `hcl:",remain"`
}

type connectBlock struct {
	From hcl.Expression `hcl:"from"`
	To   hcl.Expression `hcl:"to"`
}
