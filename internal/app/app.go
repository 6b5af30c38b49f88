package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"text/tabwriter"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/config"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/gui"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/workflow"
)

// App encapsulates the application's dependencies, configuration and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	loader   config.Loader
	registry *registry.Registry

	httpServer *http.Server
	gui        *gui.Server
}

// NewApp builds an App with its own logger and registry. Reports and
// listings go to outW, logs to logW. When modules is empty the built-in
// module kinds are registered.
func NewApp(outW, logW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	reg.Load(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "kinds", len(reg.Kinds()))

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		loader:   loader,
		registry: reg,
	}
}

// Registry returns the application's registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Load reads the workflow files and builds them against the registry.
// Every failure wraps ErrInvalidConfig.
func (a *App) Load(ctx context.Context) (*workflow.Workflow, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if len(a.config.WorkflowPaths) == 0 {
		return nil, fmt.Errorf("%w: no workflow file given", ErrInvalidConfig)
	}

	model, conv, err := a.loader.Load(ctx, a.config.WorkflowPaths...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load workflow: %w", ErrInvalidConfig, err)
	}
	a.logger.Debug("Workflow files loaded.", "workflow", model.Name, "modules", len(model.Modules))

	wf, err := config.Build(ctx, a.registry, model, conv)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build workflow: %w", ErrInvalidConfig, err)
	}
	a.logger.Info("Workflow built.", "workflow", wf.Name(), "modules", wf.Len(), "connections", len(wf.Connections()))
	return wf, nil
}

// Validate builds the workflow without executing it and prints its
// execution order.
func (a *App) Validate(ctx context.Context) (*workflow.Workflow, error) {
	wf, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(a.outW, "Workflow %q is valid: %d modules, %d connections.\n", wf.Name(), wf.Len(), len(wf.Connections()))
	for i, id := range wf.Order() {
		inst, _ := wf.Instance(id)
		fmt.Fprintf(a.outW, "  %d. %s (%s)\n", i+1, inst.Label, inst.Descriptor)
	}
	return wf, nil
}

// ListModules prints every registered module kind with its ports.
func (a *App) ListModules() error {
	tw := tabwriter.NewWriter(a.outW, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tVERSION\tINPUTS\tOUTPUTS\tPARAMS")
	for _, d := range a.registry.Kinds() {
		fmt.Fprintf(tw, "%s\tv%d\t%s\t%s\t%s\n", d.Kind, d.Version, ports(d.Inputs), ports(d.Outputs), params(d.Params))
	}
	return tw.Flush()
}

func ports(ps []registry.Port) string {
	if len(ps) == 0 {
		return "-"
	}
	s := ""
	for i, p := range ps {
		if i > 0 {
			s += ", "
		}
		s += p.Name + ":" + string(p.Type)
		if p.Optional {
			s += "?"
		}
	}
	return s
}

func params(ps []registry.Param) string {
	if len(ps) == 0 {
		return "-"
	}
	s := ""
	for i, p := range ps {
		if i > 0 {
			s += ", "
		}
		s += p.Name
	}
	return s
}

// Close stops the servers started by Run.
func (a *App) Close() error {
	ctx := ctxlog.WithLogger(context.Background(), a.logger)
	var errs []error
	if err := a.closeHealthCheckServer(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.gui != nil {
		a.logger.Debug("Closing GUI feed.")
		if err := a.gui.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GUI feed: %w", err))
		}
		a.gui = nil
	}
	return errors.Join(errs...)
}
