package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/workflow"
)

// Task is one attempt at running a module instance. The identifying fields
// are set at creation and never change; the execution record is guarded by
// a mutex because the executor and the orchestrator both touch it.
type Task struct {
	ExecutionID string
	Instance    workflow.InstanceID
	Label       string
	Kind        string
	// Descriptor is pinned when the task is created. Later registry
	// replacements do not affect it.
	Descriptor *registry.Descriptor
	Params     registry.Params
	Inputs     registry.Inputs
	Attempt    int
	Rank       int

	mu             sync.Mutex
	state          State
	err            error
	outputs        map[string]*objstore.Handle
	started        time.Time
	finished       time.Time
	objectsCreated int
	bytesProduced  int64
}

// New creates a Pending task for inst.
func New(executionID string, inst *workflow.Instance) *Task {
	return &Task{
		ExecutionID: executionID,
		Instance:    inst.ID,
		Label:       inst.Label,
		Kind:        inst.Kind,
		Descriptor:  inst.Descriptor,
		Params:      inst.Params,
		Inputs:      make(registry.Inputs),
		Attempt:     1,
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("%s#%d", t.Label, t.Instance)
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the cause recorded with Failed, Skipped or Cancelled.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Outputs returns the handles produced by a Completed task.
func (t *Task) Outputs() map[string]*objstore.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outputs
}

// Times returns when the task started running and when it reached a
// terminal state. Either may be zero.
func (t *Task) Times() (started, finished time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started, t.finished
}

// Produced returns the number of objects and bytes the task published.
func (t *Task) Produced() (objects int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objectsCreated, t.bytesProduced
}

// Transition moves the task to next.
func (t *Task) Transition(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transition(next)
}

func (t *Task) transition(next State) error {
	if !t.state.CanTransition(next) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, t, t.state, next)
	}
	t.state = next
	return nil
}

// Start marks the task Running at now.
func (t *Task) Start(now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transition(Running); err != nil {
		return err
	}
	t.started = now
	return nil
}

// Complete records the published outputs.
func (t *Task) Complete(now time.Time, outputs map[string]*objstore.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transition(Completed); err != nil {
		return err
	}
	t.finished = now
	t.outputs = outputs
	t.objectsCreated = len(outputs)
	t.bytesProduced = 0
	for _, h := range outputs {
		t.bytesProduced += h.Size()
	}
	return nil
}

// Finish moves the task into a non-Completed terminal state with cause.
func (t *Task) Finish(now time.Time, state State, cause error) error {
	if state == Completed || !state.Terminal() {
		return fmt.Errorf("%w: Finish called with %s", ErrInvalidTransition, state)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transition(state); err != nil {
		return err
	}
	t.finished = now
	t.err = cause
	return nil
}

// Requeue returns a Running task to Ready for another attempt on a
// different rank.
func (t *Task) Requeue(rank int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.transition(Ready); err != nil {
		return err
	}
	t.Attempt++
	t.Rank = rank
	t.started = time.Time{}
	return nil
}
