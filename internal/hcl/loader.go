package hcl

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/config"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/fsutil"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Extension is the file extension of workflow files.
const Extension = ".hcl"

// Loader is the HCL implementation of the config.Loader interface.
type Loader struct {
	vars map[string]cty.Value
}

// Option configures a Loader.
type Option func(*Loader) error

// WithVariables makes values available to parameter expressions as
// var.<name>. Values are converted with gocty.
func WithVariables(vars map[string]any) Option {
	return func(l *Loader) error {
		for name, v := range vars {
			cv, err := ToCtyValue(v)
			if err != nil {
				return fmt.Errorf("variable '%s': %w", name, err)
			}
			l.vars[name] = cv
		}
		return nil
	}
}

// NewLoader creates a new HCL workflow loader.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{vars: make(map[string]cty.Value)}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Load parses every workflow file found in paths and merges them into one
// model. Directories are searched recursively for *.hcl files. At most one
// workflow block may be declared; without one the workflow is named after
// the first file.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.Collect(paths, Extension)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no %s files found in %s", Extension, strings.Join(paths, ", "))
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := &config.Model{}
	parser := hclparse.NewParser()
	var declared *workflowBlock
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, w := range root.Workflows {
			if declared != nil {
				return nil, nil, fmt.Errorf("%s: workflow '%s' declared, but '%s' already is", file, w.Name, declared.Name)
			}
			declared = w
		}
		for _, m := range root.Modules {
			mod, conns, err := l.translateModule(ctx, m)
			if err != nil {
				return nil, nil, err
			}
			model.Modules = append(model.Modules, mod)
			model.Connections = append(model.Connections, conns...)
		}
		for _, c := range root.Connections {
			conn, err := translateConnection(c)
			if err != nil {
				return nil, nil, err
			}
			model.Connections = append(model.Connections, conn)
		}
	}

	if declared != nil {
		model.Name = declared.Name
		if declared.Label != nil {
			model.Label = *declared.Label
		}
	} else {
		model.Name = strings.TrimSuffix(filepath.Base(files[0]), Extension)
	}

	logger.Debug("HCL loading complete.", "workflow", model.Name, "modules", len(model.Modules), "connections", len(model.Connections))
	return model, NewConverter(l.vars), nil
}

var _ config.Loader = (*Loader)(nil)

// declRange returns where a block's body starts, for error messages.
func declRange(body hcl.Body) hcl.Range {
	if body == nil {
		return hcl.Range{}
	}
	return body.MissingItemRange()
}
