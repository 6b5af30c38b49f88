package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/executor"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
)

// ExecutionRecord is when one instance started and finished running.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Recorder wraps module run functions and records when each instance ran.
// Instances are identified by label.
type Recorder struct {
	mu       sync.Mutex
	records  map[string]*ExecutionRecord
	started  []string
	finished []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]*ExecutionRecord)}
}

// Label returns the instance label of the task running with ctx, or "" when
// ctx does not come from a pool worker.
func Label(ctx context.Context) string {
	if t, ok := executor.TaskFrom(ctx); ok {
		return t.Label
	}
	return ""
}

// Wrap records the start and end of every call to run.
func (r *Recorder) Wrap(run registry.RunFunc) registry.RunFunc {
	return func(ctx context.Context, in registry.Inputs, p registry.Params) (registry.Outputs, error) {
		label := Label(ctx)
		r.mu.Lock()
		r.records[label] = &ExecutionRecord{Start: time.Now()}
		r.started = append(r.started, label)
		r.mu.Unlock()

		out, err := run(ctx, in, p)

		r.mu.Lock()
		r.records[label].End = time.Now()
		r.finished = append(r.finished, label)
		r.mu.Unlock()
		return out, err
	}
}

// Started lists labels in the order their runs began.
func (r *Recorder) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

// Finished lists labels in the order their runs returned.
func (r *Recorder) Finished() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.finished...)
}

// Record returns the timing of label.
func (r *Recorder) Record(label string) (ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[label]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

// Overlapped reports whether the runs of a and b overlapped in time.
func (r *Recorder) Overlapped(a, b string) bool {
	ra, okA := r.Record(a)
	rb, okB := r.Record(b)
	if !okA || !okB {
		return false
	}
	return ra.Start.Before(rb.End) && rb.Start.Before(ra.End)
}
