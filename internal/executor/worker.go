package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/task"
)

// worker runs one task on a slot it already holds.
func (p *Pool) worker(ctx context.Context, t *task.Task) {
	s := &slot{pool: p, held: true}
	defer func() {
		s.release()
		p.mu.Lock()
		cancel := p.running[t]
		delete(p.running, t)
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		p.wg.Done()
	}()

	logger := ctxlog.FromContext(ctx).With("instance", t.Label, "kind", t.Kind, "attempt", t.Attempt)
	ctx = ctxlog.WithLogger(ctx, logger)
	ctx = context.WithValue(ctx, slotKey{}, s)
	ctx = context.WithValue(ctx, taskKey{}, t)

	if err := t.Start(p.opts.Now()); err != nil {
		logger.Error("Task could not start.", "error", err)
		return
	}
	logger.Debug("Worker picked up task for execution.")

	outs, err := invoke(ctx, t)
	var handles map[string]*objstore.Handle
	if err == nil {
		handles, err = p.publish(t, outs)
	}

	// The slot goes back before callbacks so that a dependent submitted from
	// a callback can start without waiting on this goroutine.
	s.release()

	if err != nil {
		state := task.Failed
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			state = task.Cancelled
		}
		logger.Debug("Task execution failed.", "error", err, "state", state)
		if ferr := t.Finish(p.opts.Now(), state, err); ferr != nil {
			logger.Error("Task could not be finished.", "error", ferr)
			return
		}
		p.notify(p.opts.OnFailed, t)
		return
	}
	if cerr := t.Complete(p.opts.Now(), handles); cerr != nil {
		logger.Error("Task could not be completed.", "error", cerr)
		releaseAll(handles)
		return
	}
	logger.Debug("Task execution succeeded.", "outputs", len(handles))
	p.notify(p.opts.OnComplete, t)
}

type taskKey struct{}

// TaskFrom returns the task a module is running for, when ctx comes from a
// pool worker.
func TaskFrom(ctx context.Context) (*task.Task, bool) {
	t, ok := ctx.Value(taskKey{}).(*task.Task)
	return t, ok
}

// invoke calls the module, turning errors and panics into ModuleErrors.
func invoke(ctx context.Context, t *task.Task) (outs registry.Outputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Module panicked.", "panic", r, "stack", string(debug.Stack()))
			outs = nil
			err = task.NewModuleError(t.Label, t.Kind, fmt.Errorf("panic: %v", r))
		}
	}()
	outs, err = t.Descriptor.Run(ctx, t.Inputs, t.Params)
	if err != nil {
		var me *task.ModuleError
		if !errors.As(err, &me) {
			err = task.NewModuleError(t.Label, t.Kind, err)
		}
		return nil, err
	}
	return outs, nil
}

// publish validates every produced object against the descriptor and makes
// it visible in the arena. On error nothing stays published.
func (p *Pool) publish(t *task.Task, outs registry.Outputs) (map[string]*objstore.Handle, error) {
	names := make([]string, 0, len(outs))
	for name := range outs {
		names = append(names, name)
	}
	sort.Strings(names)

	handles := make(map[string]*objstore.Handle, len(outs))
	for _, name := range names {
		obj := outs[name]
		if obj == nil {
			continue
		}
		port, ok := t.Descriptor.Output(name)
		if !ok {
			releaseAll(handles)
			return nil, task.NewModuleError(t.Label, t.Kind, fmt.Errorf("produced undeclared output '%s'", name))
		}
		// Modules may forward a published input as an output; stamp a copy
		// so the original stays untouched. Payloads are immutable and shared.
		draft := *obj
		if draft.Type == "" {
			draft.Type = port.Type
		}
		if !port.Type.Accepts(draft.Type) {
			releaseAll(handles)
			return nil, task.NewModuleError(t.Label, t.Kind, fmt.Errorf("output '%s' declared %s but produced %s", name, port.Type, draft.Type))
		}
		draft.Meta.Creator = uint64(t.Instance)
		h, err := p.opts.Arena.Publish(&draft)
		if err != nil {
			releaseAll(handles)
			return nil, fmt.Errorf("%s: output '%s': %w", t, name, err)
		}
		handles[name] = h
	}
	return handles, nil
}

func releaseAll(handles map[string]*objstore.Handle) {
	for _, h := range handles {
		_ = h.Release()
	}
}
