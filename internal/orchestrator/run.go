package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/executor"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/placement"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/report"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/router"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/task"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/workflow"
	"github.com/google/uuid"
)

// node is the execution's view of one instance.
type node struct {
	inst     *workflow.Instance
	t        *task.Task
	position int
	// waiting counts inbound connections whose producer has not finished.
	waiting int
	// inputs holds the references taken on behalf of this consumer.
	inputs map[string]*objstore.Handle
	// doomed is set once a required input can no longer be produced.
	doomed error

	done  bool
	state task.State
	cause error
}

type sinkOutput struct {
	label, port string
	h           *objstore.Handle
}

type run struct {
	e      *Engine
	wf     *workflow.Workflow
	opts   Options
	id     string
	ranks  int
	logger *slog.Logger

	nodes    map[workflow.InstanceID]*node
	frontier frontier
	terminal int

	pool      *executor.Pool
	localDone chan *task.Task
	balancer  *placement.Balancer
	coord     *router.Router
	inbox     chan router.Envelope
	assigned  map[int]map[workflow.InstanceID]*node

	cancelling   bool
	cancellingAt time.Time
	cancelCause  error
	grace        <-chan time.Time

	completion []string
	sinks      []sinkOutput
	started    time.Time
}

func newRun(e *Engine, wf *workflow.Workflow, opts Options, distributed bool) *run {
	ranks := 1
	r := &run{
		e:         e,
		wf:        wf,
		opts:      opts,
		id:        uuid.NewString(),
		nodes:     make(map[workflow.InstanceID]*node, wf.Len()),
		localDone: make(chan *task.Task, wf.Len()+1),
		assigned:  make(map[int]map[workflow.InstanceID]*node),
	}
	if distributed {
		ranks = e.cluster.Ranks()
		r.coord = e.cluster.Coordinator()
		r.inbox = make(chan router.Envelope, 64)
	}
	r.ranks = ranks
	r.balancer = placement.New(opts.Placement, ranks)
	return r
}

func (r *run) now() time.Time { return r.e.now() }

func (r *run) execute(ctx context.Context) *report.Report {
	r.started = r.now()
	r.logger = ctxlog.FromContext(ctx).With("workflow", r.wf.Name(), "execution", r.id)
	ctx = ctxlog.WithLogger(ctx, r.logger)

	if r.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.opts.Deadline, ErrDeadlineExceeded)
		defer cancel()
	}
	// The pool and the receive loop outlive a cancel request: in-flight
	// work is interrupted explicitly and its results still collected.
	base := context.WithoutCancel(ctx)
	loopCtx, stopLoop := context.WithCancel(base)
	defer stopLoop()

	r.pool = executor.New(base, executor.Options{
		Size:       r.opts.MaxParallelTasks,
		Arena:      r.e.arena,
		OnComplete: func(t *task.Task) { r.localDone <- t },
		OnFailed:   func(t *task.Task) { r.localDone <- t },
		Now:        r.e.now,
	})

	var overdue <-chan time.Time
	if r.opts.TaskTimeout > 0 {
		ticker := time.NewTicker(overdueTick(r.opts.TaskTimeout))
		defer ticker.Stop()
		overdue = ticker.C
	}

	var events <-chan router.Event
	if r.coord != nil {
		events = r.coord.Events()
		var workers []int
		for rank := 1; rank < r.e.cluster.Ranks(); rank++ {
			workers = append(workers, rank)
			if r.coord.IsDown(rank) {
				r.balancer.MarkDown(rank)
			}
		}
		go r.receive(loopCtx)
		if r.opts.HeartbeatTimeout > 0 {
			go r.coord.Monitor(loopCtx, workers, r.opts.HeartbeatTimeout)
		}
	}

	r.logger.Info("Execution started.", "tasks", r.wf.Len(), "ranks", r.ranks, "max_parallel_tasks", r.opts.MaxParallelTasks)
	for i, id := range r.wf.Order() {
		inst, _ := r.wf.Instance(id)
		r.nodes[id] = &node{
			inst:     inst,
			t:        task.New(r.id, inst),
			position: i,
			waiting:  len(r.wf.Inputs(id)),
			inputs:   make(map[string]*objstore.Handle),
		}
	}
	for _, id := range r.wf.Order() {
		if n := r.nodes[id]; n.waiting == 0 {
			r.ready(n)
		}
	}
	ctxDone := ctx.Done()
	if ctx.Err() != nil {
		ctxDone = nil
		r.beginCancel(cancelCause(ctx))
	}
	r.dispatch()

	for r.terminal < len(r.nodes) {
		select {
		case t := <-r.localDone:
			r.onLocal(t)
		case env := <-r.inbox:
			r.onEnvelope(env)
		case ev := <-events:
			r.onUnreachable(ev)
		case <-ctxDone:
			ctxDone = nil
			r.beginCancel(cancelCause(ctx))
		case <-r.grace:
			r.grace = nil
			r.expireRemote()
		case <-overdue:
			if r.expireOverdue() {
				overdue = nil
			}
		}
		r.dispatch()
	}

	shutdownCtx, cancel := context.WithTimeout(base, r.opts.CancelGrace)
	defer cancel()
	if err := r.pool.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("Local pool did not drain.", "error", err)
	}
	stopLoop()
	r.drainInbox()
	return r.finalize()
}

func cancelCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrDeadlineExceeded), errors.Is(cause, ErrCancelled):
		return cause
	case errors.Is(cause, context.DeadlineExceeded):
		return ErrDeadlineExceeded
	case cause == nil, errors.Is(cause, context.Canceled):
		return ErrCancelled
	}
	return fmt.Errorf("%w: %v", ErrCancelled, cause)
}

// overdueTick is how often running tasks are checked against TaskTimeout.
func overdueTick(timeout time.Duration) time.Duration {
	return min(max(timeout/4, 10*time.Millisecond), time.Second)
}

// expireOverdue enters Cancelling once a running task, local or remote,
// has exceeded Options.TaskTimeout. It reports whether the execution is
// cancelling.
func (r *run) expireOverdue() bool {
	if r.cancelling {
		return true
	}
	now := r.now()
	for _, id := range r.wf.Order() {
		n := r.nodes[id]
		if n.done || n.t.State() != task.Running {
			continue
		}
		started, _ := n.t.Times()
		if now.Sub(started) < r.opts.TaskTimeout {
			continue
		}
		r.logger.Warn("Task exceeded its timeout.", "instance", n.inst.Label, "rank", n.t.Rank, "timeout", r.opts.TaskTimeout)
		r.beginCancel(fmt.Errorf("%w: task '%s' ran longer than %s", ErrDeadlineExceeded, n.inst.Label, r.opts.TaskTimeout))
		return true
	}
	return false
}

// receive moves envelopes from the coordinator router into the loop.
func (r *run) receive(ctx context.Context) {
	for {
		env, err := r.coord.Receive(ctx)
		if err != nil {
			return
		}
		select {
		case r.inbox <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (r *run) emit(n *node, state task.State, cause error) {
	if r.opts.Observer == nil {
		return
	}
	r.opts.Observer(Progress{
		ExecutionID: r.id,
		Instance:    uint64(n.inst.ID),
		Label:       n.inst.Label,
		State:       state,
		Rank:        n.t.Rank,
		Attempt:     n.t.Attempt,
		At:          r.now(),
		Cause:       task.Cause(cause),
	})
}

// ready moves a node whose producers have all finished to the frontier, or
// records it Skipped when a required input is missing.
func (r *run) ready(n *node) {
	switch {
	case n.done:
		return
	case r.cancelling:
		r.abandon(n, task.Cancelled, r.cancelCause)
	case n.doomed != nil:
		r.abandon(n, task.Skipped, n.doomed)
	default:
		if err := n.t.Transition(task.Ready); err != nil {
			r.abandon(n, task.Failed, err)
			return
		}
		r.emit(n, task.Ready, nil)
		r.frontier.add(n)
	}
}

// abandon finishes a task that never ran, or whose result is discarded.
func (r *run) abandon(n *node, state task.State, cause error) {
	if err := n.t.Finish(r.now(), state, cause); err != nil {
		r.logger.Debug("Task already finished, recording anyway.", "instance", n.inst.Label, "error", err)
	}
	r.record(n, state, cause)
}

func (r *run) dispatch() {
	for !r.cancelling && r.frontier.Len() > 0 {
		r.submit(r.frontier.next())
	}
}

// pin resolves the module version a task runs with: the latest registered
// one if the parameters still bind, otherwise the one the workflow was
// built against.
func (r *run) pin(n *node) {
	d, params := n.inst.Descriptor, n.inst.Params
	if r.e.registry != nil {
		if latest, err := r.e.registry.Resolve(n.inst.Kind); err == nil && latest.Version != d.Version {
			if p, err := latest.BindParams(params); err == nil {
				d, params = latest, p
			} else {
				r.logger.Warn("Latest module version rejects parameters, keeping the built version.",
					"instance", n.inst.Label, "version", latest.Version, "error", err)
			}
		}
	}
	n.t.Descriptor = d
	n.t.Params = params
	n.t.Inputs = make(map[string]*objstore.Handle, len(n.inputs))
	for port, h := range n.inputs {
		n.t.Inputs[port] = h
	}
}

func (r *run) submit(n *node) {
	r.pin(n)
	for {
		rank := r.balancer.Place(n.inst.Placement)
		if rank == placement.NoRank {
			r.abandon(n, task.Failed, ErrNoHealthyRank)
			return
		}
		if rank == coordinatorRank || r.coord == nil {
			r.submitLocal(n)
			return
		}

		err := r.assign(n, rank)
		if err == nil {
			return
		}
		r.balancer.Done(rank)
		if errors.Is(err, router.ErrQueueFull) {
			// A saturated peer is not a dead one.
			r.logger.Warn("Peer queue full, running task locally.", "instance", n.inst.Label, "rank", rank)
			r.balancer.Assign(coordinatorRank)
			r.submitLocal(n)
			return
		}
		r.logger.Warn("Assignment failed, excluding rank.", "instance", n.inst.Label, "rank", rank, "error", err)
		r.balancer.MarkDown(rank)
	}
}

// coordinatorRank runs tasks on the execution's own pool.
const coordinatorRank = 0

// submitLocal queues n on the coordinator's pool. The caller has already
// counted it against the coordinator in the balancer.
func (r *run) submitLocal(n *node) {
	n.t.Rank = coordinatorRank
	if err := r.pool.Submit(n.t); err != nil {
		r.balancer.Done(coordinatorRank)
		r.abandon(n, task.Failed, err)
		return
	}
	r.logger.Debug("Task submitted.", "instance", n.inst.Label, "rank", coordinatorRank, "attempt", n.t.Attempt)
	r.emit(n, task.Running, nil)
}

func (r *run) assign(n *node, rank int) error {
	params, err := n.t.Params.Encode()
	if err != nil {
		return err
	}
	inputs := make(map[string]uint64, len(n.inputs))
	for port, h := range n.inputs {
		inputs[port] = uint64(h.ID())
	}
	msg := router.TaskAssign{
		ExecutionID: r.id,
		Instance:    uint64(n.inst.ID),
		Label:       n.inst.Label,
		Attempt:     n.t.Attempt,
		ModuleKind:  n.inst.Kind,
		Version:     n.t.Descriptor.Version,
		Params:      params,
		Inputs:      inputs,
	}
	if err := r.coord.SendPayload(rank, router.KindTaskAssign, msg); err != nil {
		return err
	}
	n.t.Rank = rank
	if err := n.t.Start(r.now()); err != nil {
		return err
	}
	if r.assigned[rank] == nil {
		r.assigned[rank] = make(map[workflow.InstanceID]*node)
	}
	r.assigned[rank][n.inst.ID] = n
	r.logger.Debug("Task assigned.", "instance", n.inst.Label, "rank", rank, "attempt", n.t.Attempt)
	r.emit(n, task.Running, nil)
	return nil
}

func (r *run) onLocal(t *task.Task) {
	n, ok := r.nodes[t.Instance]
	if !ok || n.t != t || n.done {
		return
	}
	r.balancer.Done(coordinatorRank)
	state, cause := t.State(), t.Err()
	if r.finishedAfterCancel(t) {
		if state == task.Completed {
			releaseAll(t.Outputs())
		}
		state, cause = task.Cancelled, r.cancelCause
	}
	r.record(n, state, cause)
}

// finishedAfterCancel reports whether t finished at or after the
// Cancelling timestamp. Such tasks are recorded Cancelled whatever they
// returned.
func (r *run) finishedAfterCancel(t *task.Task) bool {
	if !r.cancelling {
		return false
	}
	_, finished := t.Times()
	return !finished.Before(r.cancellingAt)
}

func (r *run) onEnvelope(env router.Envelope) {
	switch env.Kind {
	case router.KindTaskResult:
		var res router.TaskResult
		if err := env.Decode(&res); err != nil {
			r.logger.Warn("Dropping malformed result.", "error", err)
			return
		}
		r.onResult(env.SenderRank, res)
	case router.KindObjectHandlePublish:
		var pub router.ObjectHandlePublish
		if err := env.Decode(&pub); err == nil {
			r.logger.Debug("Object published by worker.", "rank", env.SenderRank, "instance", pub.Instance, "port", pub.Port, "handle", pub.Handle, "size", pub.Size)
		}
	case router.KindHeartbeat:
		var hb router.Heartbeat
		if err := env.Decode(&hb); err == nil {
			r.balancer.Observe(env.SenderRank, hb.QueueDepth)
		}
	default:
		r.logger.Debug("Ignoring envelope.", "kind", env.Kind, "from", env.SenderRank)
	}
}

func (r *run) onResult(rank int, res router.TaskResult) {
	n, ok := r.nodes[workflow.InstanceID(res.Instance)]
	if !ok || res.ExecutionID != r.id || n.done || res.Attempt != n.t.Attempt || n.t.Rank != rank || n.t.State() != task.Running {
		r.logger.Debug("Discarding stale result.", "rank", rank, "instance", res.Instance, "attempt", res.Attempt)
		r.discard(res)
		return
	}
	delete(r.assigned[rank], n.inst.ID)
	r.balancer.Done(rank)

	if !res.Completed {
		state := task.Failed
		if r.cancelling {
			state = task.Cancelled
		}
		r.abandon(n, state, task.NewModuleError(n.inst.Label, n.inst.Kind, errors.New(res.Error)))
		return
	}

	handles := make(map[string]*objstore.Handle, len(res.Outputs))
	for port, id := range res.Outputs {
		h, ok := r.e.arena.Lookup(objstore.ID(id))
		if !ok {
			releaseAll(handles)
			r.discard(res)
			r.abandon(n, task.Failed, fmt.Errorf("output '%s' object#%d from rank %d: %w", port, id, rank, objstore.ErrUnknownObject))
			return
		}
		handles[port] = h
	}
	if r.cancelling && !res.FinishedAt.Before(r.cancellingAt) {
		releaseAll(handles)
		r.abandon(n, task.Cancelled, r.cancelCause)
		return
	}
	if err := n.t.Complete(res.FinishedAt, handles); err != nil {
		releaseAll(handles)
		r.abandon(n, task.Failed, err)
		return
	}
	r.record(n, task.Completed, nil)
}

// discard releases the objects of a result nobody will use.
func (r *run) discard(res router.TaskResult) {
	for _, id := range res.Outputs {
		if h, ok := r.e.arena.Lookup(objstore.ID(id)); ok {
			_ = h.Release()
		}
	}
}

func (r *run) onUnreachable(ev router.Event) {
	r.balancer.MarkDown(ev.Rank)
	lost := sortedNodes(r.assigned[ev.Rank])
	delete(r.assigned, ev.Rank)
	if len(lost) > 0 {
		r.logger.Warn("Rank unreachable.", "rank", ev.Rank, "tasks", len(lost), "error", ev.Err)
	}
	for _, n := range lost {
		switch {
		case r.cancelling:
			r.abandon(n, task.Cancelled, r.cancelCause)
		case n.t.Attempt <= r.opts.MaxRetries:
			if err := n.t.Requeue(placement.NoRank); err != nil {
				r.abandon(n, task.Failed, err)
				continue
			}
			r.logger.Info("Resubmitting task lost with its rank.", "instance", n.inst.Label, "attempt", n.t.Attempt)
			r.emit(n, task.Ready, ev.Err)
			r.frontier.add(n)
		default:
			r.abandon(n, task.Failed, ev.Err)
		}
	}
}

func sortedNodes(m map[workflow.InstanceID]*node) []*node {
	out := make([]*node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].position < out[j].position })
	return out
}

// beginCancel enters Cancelling: nothing new is submitted, waiting tasks are
// cancelled and running ones are asked to stop.
func (r *run) beginCancel(cause error) {
	if r.cancelling {
		return
	}
	r.cancelling = true
	r.cancellingAt = r.now()
	r.cancelCause = cause
	r.logger.Info("Execution cancelling.", "cause", cause)

	for r.frontier.Len() > 0 {
		r.abandon(r.frontier.next(), task.Cancelled, cause)
	}
	for _, id := range r.wf.Order() {
		if n := r.nodes[id]; !n.done && n.t.State() == task.Pending {
			r.abandon(n, task.Cancelled, cause)
		}
	}
	r.pool.Cancel(func(t *task.Task) bool { return t.ExecutionID == r.id }, cause)

	remote := false
	for rank, set := range r.assigned {
		if len(set) == 0 {
			continue
		}
		remote = true
		msg := router.Cancel{ExecutionID: r.id, Reason: cause.Error()}
		if err := r.coord.SendPayload(rank, router.KindCancel, msg); err != nil {
			r.logger.Warn("Could not send cancel.", "rank", rank, "error", err)
		}
	}
	if remote {
		r.grace = time.After(r.opts.CancelGrace)
	}
}

// expireRemote gives up on worker ranks that did not answer a cancel.
func (r *run) expireRemote() {
	ranks := make([]int, 0, len(r.assigned))
	for rank := range r.assigned {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	for _, rank := range ranks {
		for _, n := range sortedNodes(r.assigned[rank]) {
			r.abandon(n, task.Cancelled, fmt.Errorf("%w: rank %d did not answer in time", r.cancelCause, rank))
		}
		delete(r.assigned, rank)
	}
}

// record stores a terminal state and propagates it to consumers.
func (r *run) record(n *node, state task.State, cause error) {
	if n.done {
		return
	}
	n.done = true
	n.state = state
	n.cause = cause
	r.terminal++
	for port, h := range n.inputs {
		_ = h.Release()
		delete(n.inputs, port)
	}
	r.emit(n, state, cause)

	var outputs map[string]*objstore.Handle
	if state == task.Completed {
		outputs = n.t.Outputs()
		r.completion = append(r.completion, n.inst.Label)
		r.logger.Debug("Task completed.", "instance", n.inst.Label, "outputs", len(outputs))
	} else {
		r.logger.Debug("Task did not complete.", "instance", n.inst.Label, "state", state, "cause", cause)
	}

	var ready []*node
	for _, c := range r.outbound(n) {
		consumer := r.nodes[c.To.Instance]
		if consumer.done {
			continue
		}
		port, _ := consumer.inst.Descriptor.Input(c.To.Port)
		if h, ok := outputs[c.From.Port]; ok {
			if err := h.Retain(); err == nil {
				consumer.inputs[c.To.Port] = h
			}
		} else if !port.Optional && consumer.doomed == nil {
			consumer.doomed = upstreamError(n, c, state, cause)
		}
		consumer.waiting--
		if consumer.waiting == 0 {
			ready = append(ready, consumer)
		}
	}

	for port, h := range outputs {
		if len(r.wf.Consumers(workflow.Endpoint{Instance: n.inst.ID, Port: port})) > 0 {
			_ = h.Release()
		} else {
			r.sinks = append(r.sinks, sinkOutput{label: n.inst.Label, port: port, h: h})
		}
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].position < ready[j].position })
	for _, c := range ready {
		r.ready(c)
	}
}

func upstreamError(n *node, c workflow.Connection, state task.State, cause error) error {
	if state == task.Completed {
		return fmt.Errorf("input '%s': %s did not produce '%s'", c.To.Port, n.inst.Label, c.From.Port)
	}
	if cause == nil {
		return fmt.Errorf("input '%s': upstream %s %s", c.To.Port, n.inst.Label, state)
	}
	return fmt.Errorf("input '%s': upstream %s %s: %w", c.To.Port, n.inst.Label, state, cause)
}

// outbound lists every connection leaving n.
func (r *run) outbound(n *node) []workflow.Connection {
	var out []workflow.Connection
	for _, p := range n.inst.Descriptor.Outputs {
		out = append(out, r.wf.Consumers(workflow.Endpoint{Instance: n.inst.ID, Port: p.Name})...)
	}
	return out
}

// drainInbox releases objects of results that arrived after the last task
// was recorded.
func (r *run) drainInbox() {
	for {
		select {
		case env := <-r.inbox:
			var res router.TaskResult
			if env.Kind == router.KindTaskResult && env.Decode(&res) == nil {
				r.discard(res)
			}
		default:
			return
		}
	}
}

func (r *run) finalize() *report.Report {
	for _, s := range r.sinks {
		if r.opts.OnOutput != nil {
			r.opts.OnOutput(s.label, s.port, s.h)
		}
		_ = s.h.Release()
	}
	r.sinks = nil

	rep := &report.Report{
		ExecutionID:     r.id,
		Workflow:        r.wf.Name(),
		StartedAt:       r.started,
		Ranks:           r.ranks,
		CompletionOrder: r.completion,
	}
	for _, id := range r.wf.Order() {
		n := r.nodes[id]
		started, finished := n.t.Times()
		objects, bytes := n.t.Produced()
		entry := report.Task{
			Instance:       uint64(id),
			Label:          n.inst.Label,
			Kind:           n.inst.Kind,
			Version:        n.t.Descriptor.Version,
			State:          n.state,
			Cause:          task.Cause(n.cause),
			Rank:           n.t.Rank,
			Attempts:       n.t.Attempt,
			StartedAt:      started,
			FinishedAt:     finished,
			ObjectsCreated: objects,
			BytesProduced:  bytes,
		}
		if !started.IsZero() && !finished.IsZero() {
			entry.Duration = finished.Sub(started)
		}
		rep.Tasks = append(rep.Tasks, entry)
	}
	rep.Status = report.Overall(rep.Tasks, r.cancelling)
	if r.cancelling {
		at := r.cancellingAt
		rep.CancellingAt = &at
		rep.Cause = r.cancelCause.Error()
		rep.Err = r.cancelCause
	} else {
		rep.Cause = report.FirstCause(rep.Tasks)
	}
	rep.Latency = report.Summarize(rep.Tasks)
	rep.Arena = r.e.arena.Stats()
	rep.FinishedAt = r.now()

	r.logger.Info("Execution finished.", "status", rep.Status, "duration", rep.Duration(),
		"completed", rep.Count(task.Completed), "failed", rep.Count(task.Failed), "skipped", rep.Count(task.Skipped))
	return rep
}

func releaseAll(handles map[string]*objstore.Handle) {
	for _, h := range handles {
		_ = h.Release()
	}
}
