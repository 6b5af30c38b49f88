package app

import (
	"context"
	"fmt"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/cluster"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/gui"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/orchestrator"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/report"
)

// Run loads, builds and executes the workflow, then writes its report to
// the output writer. The returned error covers failures before execution
// started; how the execution went is in the report.
//
// Cancelling ctx cancels the execution.
func (a *App) Run(ctx context.Context) (*report.Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if err := a.startHealthCheckServer(ctx); err != nil {
		return nil, err
	}
	if a.config.GUIAddr != "" && a.gui == nil {
		srv := gui.New(a.config.GUIAddr)
		if err := srv.Start(ctx); err != nil {
			return nil, err
		}
		a.gui = srv
	}

	wf, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}

	opts := a.config.Options
	var arenaOpts []objstore.Option
	if opts.ArenaCapacity > 0 {
		arenaOpts = append(arenaOpts, objstore.WithCapacity(opts.ArenaCapacity))
	}
	arena := objstore.NewArena(arenaOpts...)

	var cl *cluster.Cluster
	if opts.Distributed() {
		cl, err = cluster.Start(ctx, opts.ClusterConfig(), a.registry, arena)
		if err != nil {
			return nil, fmt.Errorf("failed to start process group: %w", err)
		}
		defer func() {
			if err := cl.Close(); err != nil {
				a.logger.Warn("Process group did not shut down cleanly.", "error", err)
			}
		}()
	}
	engine := orchestrator.New(a.registry, arena, cl)

	execCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	execOpts := opts.ExecOptions()
	execOpts.OnOutput = func(label, port string, h *objstore.Handle) {
		a.logger.Info("Workflow output produced.", "instance", label, "port", port, "type", h.Type(), "bytes", h.Size())
	}
	if a.gui != nil {
		execOpts.Observer = a.gui.Observe
		a.gui.OnCancel(func(reason string) {
			if reason == "" {
				cancel(orchestrator.ErrCancelled)
				return
			}
			cancel(fmt.Errorf("%w: %s", orchestrator.ErrCancelled, reason))
		})
		defer a.gui.OnCancel(nil)
	}

	a.logger.Info("Starting execution.", "workflow", wf.Name(), "distributed", opts.Distributed(), "max_parallel_tasks", execOpts.MaxParallelTasks)
	rep, err := engine.Execute(execCtx, wf, execOpts)
	if err != nil {
		return nil, fmt.Errorf("execution failed to start: %w", err)
	}
	a.logger.Info("Execution finished.", "execution_id", rep.ExecutionID, "status", rep.Status, "duration", rep.Duration())

	if a.gui != nil {
		a.gui.Finished(rep)
	}
	if err := report.Write(a.outW, rep, a.config.ReportFormat); err != nil {
		return rep, fmt.Errorf("failed to write report: %w", err)
	}
	a.logger.Debug("App.Run method finished.")
	return rep, nil
}
