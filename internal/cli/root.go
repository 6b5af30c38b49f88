package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/app"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/config"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/hcl"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/report"
	"github.com/spf13/cobra"
)

// flags holds the values of the flags shared by every subcommand.
type flags struct {
	logLevel    string
	logFormat   string
	optionsPath string
	envFiles    []string

	reportFormat string
	guiAddr      string
	healthPort   int
	vars         []string
}

// Execute runs the vizflow command line with args. Reports and listings are
// written to outW, logs and help for errors to errW. Every returned error is
// an *ExitError.
func Execute(ctx context.Context, outW, errW io.Writer, args []string) error {
	root := NewRootCommand(outW, errW)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// NewRootCommand builds the command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "vizflow",
		Short: "Distributed scientific-visualization workflow engine",
		Long: `vizflow executes visualization workflows declared in HCL files: a DAG of
module instances (readers, filters, isosurface extraction, renderers)
connected port to port, scheduled over a pool of local worker slots and,
with --mpi-enabled, over a group of worker ranks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)

	pf := root.PersistentFlags()
	pf.StringVar(&f.logLevel, "log-level", "info", "Logging level: debug, info, warn or error.")
	pf.StringVar(&f.logFormat, "log-format", "text", "Log output format: text or json.")
	pf.StringVar(&f.optionsPath, "options", "", "YAML file with execution options.")
	pf.StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "Files of VIZFLOW_* variables to load; missing files are skipped.")
	config.RegisterFlags(pf)

	root.AddCommand(
		newRunCommand(f, outW, errW),
		newValidateCommand(f, outW, errW),
		newModulesCommand(f, outW, errW),
	)
	return root
}

func newRunCommand(f *flags, outW, errW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run WORKFLOW_PATH...",
		Short: "Execute a workflow headless or with the GUI feed attached",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := f.build(cmd, args)
			if err != nil {
				return err
			}
			a := app.NewApp(outW, errW, cfg, loader)
			defer func() {
				if err := a.Close(); err != nil {
					a.Logger().Warn("Shutdown was not clean.", "error", err)
				}
			}()

			rep, err := a.Run(cmd.Context())
			if err != nil {
				return runError(err)
			}
			if code := ExitCode(rep); code != ExitOK {
				return &ExitError{Code: code, Message: summary(rep)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.reportFormat, "report", report.FormatText, "Report format: text, json or yaml.")
	cmd.Flags().StringVar(&f.guiAddr, "gui", "", "Attach the socket.io front-end feed on this address, e.g. 127.0.0.1:8090.")
	cmd.Flags().IntVar(&f.healthPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "Workflow variable as name=value, available as var.name.")
	return cmd
}

func newValidateCommand(f *flags, outW, errW io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate WORKFLOW_PATH...",
		Short: "Build a workflow without executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, err := f.build(cmd, args)
			if err != nil {
				return err
			}
			a := app.NewApp(outW, errW, cfg, loader)
			if _, err := a.Validate(cmd.Context()); err != nil {
				return runError(err)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "Workflow variable as name=value, available as var.name.")
	return cmd
}

func newModulesCommand(f *flags, outW, errW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the registered module kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &app.Config{LogLevel: f.logLevel, LogFormat: f.logFormat}
			a := app.NewApp(outW, errW, cfg, nil)
			return a.ListModules()
		},
	}
}

// build layers defaults, the options file, the environment and the flags
// into an app configuration, and creates the workflow loader.
func (f *flags) build(cmd *cobra.Command, paths []string) (*app.Config, config.Loader, error) {
	opts, err := config.LoadOptions(f.optionsPath, f.envFiles...)
	if err != nil {
		return nil, nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	if err := opts.ApplyFlags(cmd.Flags()); err != nil {
		return nil, nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	cfg := &app.Config{
		WorkflowPaths:   paths,
		LogLevel:        strings.ToLower(f.logLevel),
		LogFormat:       strings.ToLower(f.logFormat),
		ReportFormat:    strings.ToLower(f.reportFormat),
		HealthcheckPort: f.healthPort,
		GUIAddr:         f.guiAddr,
		Options:         opts,
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, nil, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	vars, err := parseVars(f.vars)
	if err != nil {
		return nil, nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	loader, err := hcl.NewLoader(hcl.WithVariables(vars))
	if err != nil {
		return nil, nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return cfg, loader, nil
}

// parseVars turns name=value pairs into loader variables. Values that parse
// as numbers or booleans keep that type.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: want name=value", pair)
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			vars[name] = n
		} else if b, err := strconv.ParseBool(value); err == nil {
			vars[name] = b
		} else {
			vars[name] = value
		}
	}
	return vars, nil
}

func runError(err error) error {
	if errors.Is(err, app.ErrInvalidConfig) {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return &ExitError{Code: ExitFailed, Message: err.Error()}
}

func summary(rep *report.Report) string {
	if rep.Cause == "" {
		return fmt.Sprintf("workflow %s finished %s", rep.Workflow, rep.Status)
	}
	return fmt.Sprintf("workflow %s finished %s: %s", rep.Workflow, rep.Status, rep.Cause)
}
