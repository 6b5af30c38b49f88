package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/cluster"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/report"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/workflow"
)

// Engine runs workflows. Executions that use the cluster are serialized
// because they share the coordinator's inbound queue; local executions may
// run concurrently.
type Engine struct {
	registry *registry.Registry
	arena    *objstore.Arena
	cluster  *cluster.Cluster
	now      func() time.Time

	clusterMu sync.Mutex
}

// New creates an engine. reg is consulted at submission time so a replaced
// module version applies to tasks submitted afterwards; it may be nil. cl
// may be nil for single-node execution; when set, its arena is used.
func New(reg *registry.Registry, arena *objstore.Arena, cl *cluster.Cluster) *Engine {
	if cl != nil {
		arena = cl.Arena()
	}
	if arena == nil {
		arena = objstore.NewArena()
	}
	return &Engine{registry: reg, arena: arena, cluster: cl, now: time.Now}
}

// Arena returns the arena executions publish into.
func (e *Engine) Arena() *objstore.Arena { return e.arena }

// Execute runs wf to completion and returns its report. Module failures,
// unreachable ranks, cancellation and deadlines are all reported through
// the report; the error is only for executions that could not start.
//
// Cancelling ctx requests cancellation. Use context.WithCancelCause with
// ErrCancelled or ErrDeadlineExceeded to pick the recorded cause.
func (e *Engine) Execute(ctx context.Context, wf *workflow.Workflow, opts Options) (*report.Report, error) {
	if wf == nil {
		return nil, errors.New("execute: nil workflow")
	}
	opts = opts.withDefaults()
	distributed := opts.MPIEnabled && e.cluster != nil && e.cluster.Ranks() > 1
	if distributed {
		e.clusterMu.Lock()
		defer e.clusterMu.Unlock()
	}
	r := newRun(e, wf, opts, distributed)
	return r.execute(ctx), nil
}
