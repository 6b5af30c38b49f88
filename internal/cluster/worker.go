package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/executor"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/router"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/task"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/workflow"
)

// CoordinatorRank is the rank that assigns tasks and collects results.
const CoordinatorRank = 0

// WorkerOptions tunes a Worker.
type WorkerOptions struct {
	PoolSize int
	// HeartbeatInterval is how often the worker reports its queue depth to
	// the coordinator. Zero disables heartbeats.
	HeartbeatInterval time.Duration
}

// Worker serves one non-coordinator rank.
type Worker struct {
	router   *router.Router
	registry *registry.Registry
	arena    *objstore.Arena
	opts     WorkerOptions

	pool   *executor.Pool
	logger *slog.Logger

	mu     sync.Mutex
	inputs map[*task.Task][]*objstore.Handle
}

// NewWorker creates a worker on r. Call Run to start it.
func NewWorker(r *router.Router, reg *registry.Registry, arena *objstore.Arena, opts WorkerOptions) *Worker {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}
	return &Worker{
		router:   r,
		registry: reg,
		arena:    arena,
		opts:     opts,
		inputs:   make(map[*task.Task][]*objstore.Handle),
	}
}

// Rank returns the rank served by the worker.
func (w *Worker) Rank() int { return w.router.Rank() }

// QueueDepth is the number of tasks queued or running on this rank.
func (w *Worker) QueueDepth() int {
	if w.pool == nil {
		return 0
	}
	return w.pool.QueueDepth()
}

// Run processes envelopes until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("rank", w.Rank())
	ctx = ctxlog.WithLogger(ctx, logger)
	w.logger = logger

	w.pool = executor.New(ctx, executor.Options{
		Size:       w.opts.PoolSize,
		Arena:      w.arena,
		OnComplete: w.report,
		OnFailed:   w.report,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = w.pool.Shutdown(shutdownCtx)
	}()

	if w.opts.HeartbeatInterval > 0 {
		go w.heartbeat(ctx)
	}

	logger.Debug("Worker started.")
	for {
		env, err := w.router.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, router.ErrClosed) {
				logger.Debug("Worker finished.")
				return nil
			}
			return fmt.Errorf("rank %d: receive: %w", w.Rank(), err)
		}
		if err := w.handle(ctx, env); err != nil {
			logger.Warn("Dropping envelope.", "kind", env.Kind, "from", env.SenderRank, "error", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, env router.Envelope) error {
	switch env.Kind {
	case router.KindTaskAssign:
		var msg router.TaskAssign
		if err := env.Decode(&msg); err != nil {
			return err
		}
		return w.assign(ctx, msg)
	case router.KindCancel:
		var msg router.Cancel
		if err := env.Decode(&msg); err != nil {
			return err
		}
		n := w.pool.Cancel(func(t *task.Task) bool {
			return t.ExecutionID == msg.ExecutionID && (msg.Instance == 0 || uint64(t.Instance) == msg.Instance)
		}, errors.New(msg.Reason))
		ctxlog.FromContext(ctx).Debug("Cancel request applied.", "execution", msg.ExecutionID, "tasks", n)
		return nil
	case router.KindHeartbeat:
		return nil
	}
	return fmt.Errorf("unexpected envelope kind %s", env.Kind)
}

// assign turns a TaskAssign into a task on the local pool. The module's run
// function is wrapped so that waiting for the input objects happens inside a
// suspension and does not hold a worker slot.
func (w *Worker) assign(ctx context.Context, msg router.TaskAssign) error {
	d, err := w.registry.ResolveVersion(msg.ModuleKind, msg.Version)
	if err != nil {
		return w.reject(msg, err)
	}
	params, err := registry.DecodeParams(msg.Params)
	if err != nil {
		return w.reject(msg, err)
	}

	pinned := *d
	t := task.New(msg.ExecutionID, &workflow.Instance{
		ID:         workflow.InstanceID(msg.Instance),
		Label:      msg.Label,
		Kind:       msg.ModuleKind,
		Descriptor: &pinned,
		Params:     params,
	})
	t.Attempt = msg.Attempt
	t.Rank = w.Rank()

	run := d.Run
	pinned.Run = func(ctx context.Context, _ registry.Inputs, params registry.Params) (registry.Outputs, error) {
		in := make(registry.Inputs, len(msg.Inputs))
		err := executor.Suspend(ctx, func(ctx context.Context) error {
			for port, id := range msg.Inputs {
				h, err := w.arena.Await(ctx, objstore.ID(id))
				if err != nil {
					return fmt.Errorf("input '%s': %w", port, err)
				}
				w.hold(t, h)
				in[port] = h
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return run(ctx, in, params)
	}

	if err := t.Transition(task.Ready); err != nil {
		return err
	}
	if err := w.pool.Submit(t); err != nil {
		return w.reject(msg, err)
	}
	ctxlog.FromContext(ctx).Debug("Task accepted.", "instance", msg.Label, "attempt", msg.Attempt)
	return nil
}

func (w *Worker) hold(t *task.Task, h *objstore.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputs[t] = append(w.inputs[t], h)
}

func (w *Worker) dropInputs(t *task.Task) {
	w.mu.Lock()
	held := w.inputs[t]
	delete(w.inputs, t)
	w.mu.Unlock()
	for _, h := range held {
		_ = h.Release()
	}
}

// reject answers an assignment that could not even be queued.
func (w *Worker) reject(msg router.TaskAssign, cause error) error {
	now := time.Now()
	res := router.TaskResult{
		ExecutionID: msg.ExecutionID,
		Instance:    msg.Instance,
		Attempt:     msg.Attempt,
		Error:       cause.Error(),
		StartedAt:   now,
		FinishedAt:  now,
	}
	if err := w.router.SendPayload(CoordinatorRank, router.KindTaskResult, res); err != nil {
		return errors.Join(cause, err)
	}
	return nil
}

// report is the pool callback for every terminal task: it announces the
// produced handles and then the result. Handles whose announcement cannot be
// sent are released here since nobody else will ever own them.
func (w *Worker) report(t *task.Task) {
	w.dropInputs(t)

	started, finished := t.Times()
	objects, bytes := t.Produced()
	res := router.TaskResult{
		ExecutionID:    t.ExecutionID,
		Instance:       uint64(t.Instance),
		Attempt:        t.Attempt,
		Completed:      t.State() == task.Completed,
		StartedAt:      started,
		FinishedAt:     finished,
		ObjectsCreated: objects,
		BytesProduced:  bytes,
	}
	outputs := t.Outputs()
	if res.Completed {
		res.Outputs = make(map[string]uint64, len(outputs))
		for port, h := range outputs {
			res.Outputs[port] = uint64(h.ID())
			pub := router.ObjectHandlePublish{
				ExecutionID: t.ExecutionID,
				Instance:    uint64(t.Instance),
				Port:        port,
				Handle:      uint64(h.ID()),
				Type:        string(h.Type()),
				Size:        h.Size(),
				Meta:        h.Meta(),
			}
			if err := w.router.SendPayload(CoordinatorRank, router.KindObjectHandlePublish, pub); err != nil {
				break
			}
		}
	} else {
		res.Error = task.Cause(t.Err())
	}

	if err := w.router.SendPayload(CoordinatorRank, router.KindTaskResult, res); err != nil {
		w.logger.Warn("Could not report task result, releasing outputs.", "instance", t.Label, "error", err)
		for _, h := range outputs {
			_ = h.Release()
		}
	}
}

func (w *Worker) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(w.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			hb := router.Heartbeat{Rank: w.Rank(), QueueDepth: w.QueueDepth(), SentAt: now}
			if err := w.router.SendPayload(CoordinatorRank, router.KindHeartbeat, hb); err != nil {
				ctxlog.FromContext(ctx).Debug("Heartbeat not sent.", "error", err)
				if errors.Is(err, router.ErrClosed) {
					return
				}
			}
		}
	}
}
