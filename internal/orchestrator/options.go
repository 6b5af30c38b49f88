package orchestrator

import (
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/placement"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/task"
)

// Options controls one execution.
type Options struct {
	// MaxParallelTasks bounds the tasks running at once on the coordinator.
	MaxParallelTasks int
	Placement        placement.Policy
	// Deadline, when positive, cancels the execution after this long.
	Deadline time.Duration
	// TaskTimeout, when positive, cancels the execution once any single
	// task has been running for this long. Queued time does not count.
	TaskTimeout time.Duration
	// MPIEnabled distributes tasks over the cluster's worker ranks. Without
	// it, or without a cluster, everything runs on the coordinator.
	MPIEnabled bool
	// MaxRetries is how many times a task lost with its rank is resubmitted.
	MaxRetries int
	// HeartbeatTimeout declares a worker unreachable after this much
	// silence. Zero disables the check.
	HeartbeatTimeout time.Duration
	// CancelGrace is how long a cancelled execution waits for worker ranks
	// to answer before recording their tasks Cancelled.
	CancelGrace time.Duration

	// Observer, if set, sees every task state change. It runs on the
	// execution's event loop and must not block.
	Observer func(Progress)
	// OnOutput, if set, receives every object no connection consumes,
	// before it is released.
	OnOutput func(label, port string, h *objstore.Handle)
}

func (o Options) withDefaults() Options {
	if o.MaxParallelTasks < 1 {
		o.MaxParallelTasks = 1
	}
	if o.Placement == "" {
		o.Placement = placement.RoundRobin
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.CancelGrace <= 0 {
		o.CancelGrace = 5 * time.Second
	}
	return o
}

// Progress is one task state change.
type Progress struct {
	ExecutionID string
	Instance    uint64
	Label       string
	State       task.State
	Rank        int
	Attempt     int
	At          time.Time
	Cause       string
}
