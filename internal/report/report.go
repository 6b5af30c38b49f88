// Package report describes the outcome of one workflow execution and renders
// it as text, JSON or YAML.
package report

import (
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/task"
	"github.com/HdrHistogram/hdrhistogram-go"
)

// Status is the overall outcome of an execution.
type Status string

const (
	StatusCompleted       Status = "Completed"
	StatusPartiallyFailed Status = "PartiallyFailed"
	StatusFailed          Status = "Failed"
	StatusCancelled       Status = "Cancelled"
)

// Task is the terminal record of one module instance.
type Task struct {
	Instance       uint64        `json:"instance" yaml:"instance"`
	Label          string        `json:"label" yaml:"label"`
	Kind           string        `json:"kind" yaml:"kind"`
	Version        int           `json:"version" yaml:"version"`
	State          task.State    `json:"state" yaml:"state"`
	Cause          string        `json:"cause,omitempty" yaml:"cause,omitempty"`
	Rank           int           `json:"rank" yaml:"rank"`
	Attempts       int           `json:"attempts" yaml:"attempts"`
	StartedAt      time.Time     `json:"started_at,omitzero" yaml:"started_at,omitempty"`
	FinishedAt     time.Time     `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
	Duration       time.Duration `json:"duration_ns" yaml:"duration"`
	ObjectsCreated int           `json:"objects_created" yaml:"objects_created"`
	BytesProduced  int64         `json:"bytes_produced" yaml:"bytes_produced"`
}

// Latency summarises the run time of tasks that started.
type Latency struct {
	Count int64         `json:"count" yaml:"count"`
	Mean  time.Duration `json:"mean_ns" yaml:"mean"`
	P50   time.Duration `json:"p50_ns" yaml:"p50"`
	P90   time.Duration `json:"p90_ns" yaml:"p90"`
	P99   time.Duration `json:"p99_ns" yaml:"p99"`
	Max   time.Duration `json:"max_ns" yaml:"max"`
}

// Report is the ExecutionReport.
type Report struct {
	ExecutionID string    `json:"execution_id" yaml:"execution_id"`
	Workflow    string    `json:"workflow" yaml:"workflow"`
	Status      Status    `json:"status" yaml:"status"`
	Cause       string    `json:"cause,omitempty" yaml:"cause,omitempty"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	// CancellingAt is set when cancellation or the deadline fired.
	CancellingAt *time.Time `json:"cancelling_at,omitempty" yaml:"cancelling_at,omitempty"`
	Ranks        int        `json:"ranks" yaml:"ranks"`
	// Tasks follow the workflow's canonical execution order.
	Tasks []Task `json:"tasks" yaml:"tasks"`
	// CompletionOrder lists labels in the order tasks completed.
	CompletionOrder []string       `json:"completion_order" yaml:"completion_order"`
	Latency         Latency        `json:"latency" yaml:"latency"`
	Arena           objstore.Stats `json:"arena" yaml:"arena"`

	// Err is the cause as an error, for errors.Is checks by callers.
	Err error `json:"-" yaml:"-"`
}

// Task returns the entry for label.
func (r *Report) Task(label string) (Task, bool) {
	for _, t := range r.Tasks {
		if t.Label == label {
			return t, true
		}
	}
	return Task{}, false
}

// Count returns how many tasks ended in state.
func (r *Report) Count(state task.State) int {
	n := 0
	for _, t := range r.Tasks {
		if t.State == state {
			n++
		}
	}
	return n
}

// Duration is the wall time of the execution.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Overall derives the execution status from the task states. A cancelled
// execution is Cancelled regardless of what finished.
func Overall(tasks []Task, cancelled bool) Status {
	if cancelled {
		return StatusCancelled
	}
	completed := 0
	for _, t := range tasks {
		if t.State == task.Completed {
			completed++
		}
	}
	switch {
	case completed == len(tasks):
		return StatusCompleted
	case completed == 0:
		return StatusFailed
	default:
		return StatusPartiallyFailed
	}
}

// FirstCause returns the cause of the first Failed task in report order,
// falling back to the first Skipped or Cancelled one.
func FirstCause(tasks []Task) string {
	for _, state := range []task.State{task.Failed, task.Skipped, task.Cancelled} {
		for _, t := range tasks {
			if t.State == state && t.Cause != "" {
				return t.Label + ": " + t.Cause
			}
		}
	}
	return ""
}

// Summarize computes latency percentiles over the tasks that ran.
func Summarize(tasks []Task) Latency {
	h := hdrhistogram.New(1, int64(24*time.Hour/time.Microsecond), 3)
	for _, t := range tasks {
		if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
			continue
		}
		us := t.Duration.Microseconds()
		if us < 1 {
			us = 1
		}
		_ = h.RecordValue(us)
	}
	if h.TotalCount() == 0 {
		return Latency{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Latency{
		Count: h.TotalCount(),
		Mean:  time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:   us(h.ValueAtQuantile(50)),
		P90:   us(h.ValueAtQuantile(90)),
		P99:   us(h.ValueAtQuantile(99)),
		Max:   us(h.Max()),
	}
}
