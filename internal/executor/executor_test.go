package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/task"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness collects terminal tasks from a pool.
type harness struct {
	pool  *Pool
	arena *objstore.Arena
	done  chan *task.Task
}

func newHarness(t *testing.T, size int) *harness {
	t.Helper()
	h := &harness{arena: objstore.NewArena(), done: make(chan *task.Task, 64)}
	h.pool = New(context.Background(), Options{
		Size:       size,
		Arena:      h.arena,
		OnComplete: func(tk *task.Task) { h.done <- tk },
		OnFailed:   func(tk *task.Task) { h.done <- tk },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.pool.Shutdown(ctx)
	})
	return h
}

func (h *harness) wait(t *testing.T, n int) []*task.Task {
	t.Helper()
	var out []*task.Task
	for len(out) < n {
		select {
		case tk := <-h.done:
			out = append(out, tk)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d tasks", len(out), n)
		}
	}
	return out
}

var nextID atomic.Uint64

func newTask(t *testing.T, label string, outputs []registry.Port, run registry.RunFunc) *task.Task {
	t.Helper()
	d := &registry.Descriptor{Kind: "Test", Version: 1, Outputs: outputs, Run: run}
	tk := task.New("exec", &workflow.Instance{ID: workflow.InstanceID(nextID.Add(1)), Label: label, Kind: d.Kind, Descriptor: d})
	require.NoError(t, tk.Transition(task.Ready))
	return tk
}

func TestPoolRunsInSubmissionOrder(t *testing.T) {
	h := newHarness(t, 1)
	var mu sync.Mutex
	var started []string
	record := func(label string) registry.RunFunc {
		return func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
			mu.Lock()
			started = append(started, label)
			mu.Unlock()
			return nil, nil
		}
	}

	for _, label := range []string{"A", "B", "C", "D"} {
		require.NoError(t, h.pool.Submit(newTask(t, label, nil, record(label))))
	}
	done := h.wait(t, 4)

	assert.Equal(t, []string{"A", "B", "C", "D"}, started)
	for i, tk := range done {
		assert.Equal(t, task.Completed, tk.State())
		assert.Equal(t, started[i], tk.Label)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	h := newHarness(t, 2)
	var current, peak atomic.Int32
	gate := make(chan struct{})
	run := func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		current.Add(-1)
		return nil, nil
	}

	for i := 0; i < 6; i++ {
		require.NoError(t, h.pool.Submit(newTask(t, fmt.Sprintf("t%d", i), nil, run)))
	}
	require.Eventually(t, func() bool { return current.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 6, h.pool.QueueDepth())
	close(gate)
	h.wait(t, 6)

	assert.Equal(t, int32(2), peak.Load())
	assert.Equal(t, 0, h.pool.QueueDepth())
}

func TestPoolFailures(t *testing.T) {
	surface := []registry.Port{{Name: "surface", Type: objstore.TypeTriangles}}

	tests := []struct {
		name    string
		run     registry.RunFunc
		wantMsg string
	}{
		{
			name: "module error",
			run: func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
				return nil, errors.New("bad input")
			},
			wantMsg: "bad input",
		},
		{
			name: "panic",
			run: func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
				panic("index out of range")
			},
			wantMsg: "panic: index out of range",
		},
		{
			name: "undeclared output",
			run: func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
				return registry.Outputs{
					"surface": objstore.New(objstore.TypeTriangles, objstore.Bytes("ok"), objstore.Meta{}),
					"volume":  objstore.New(objstore.TypeUniformGrid, objstore.Bytes("x"), objstore.Meta{}),
				}, nil
			},
			wantMsg: "produced undeclared output 'volume'",
		},
		{
			name: "wrong output type",
			run: func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
				return registry.Outputs{"surface": objstore.New(objstore.TypeImage, objstore.Bytes("x"), objstore.Meta{})}, nil
			},
			wantMsg: "output 'surface' declared triangles but produced image",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			h := newHarness(t, 1)
			tk := newTask(t, "B", surface, tc.run)

			// --- Act ---
			require.NoError(t, h.pool.Submit(tk))
			done := h.wait(t, 1)

			// --- Assert ---
			require.Same(t, tk, done[0])
			assert.Equal(t, task.Failed, tk.State())
			assert.ErrorIs(t, tk.Err(), task.ErrModule)
			assert.Equal(t, tc.wantMsg, task.Cause(tk.Err()))
			assert.Zero(t, h.arena.Stats().Live, "nothing from a failed task stays published")
		})
	}
}

func TestPoolPublishesOutputs(t *testing.T) {
	h := newHarness(t, 1)
	tk := newTask(t, "A", []registry.Port{{Name: "data", Type: objstore.TypeAny}},
		func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
			return registry.Outputs{"data": &objstore.Object{Payload: objstore.Floats{1, 2, 3}}}, nil
		})

	require.NoError(t, h.pool.Submit(tk))
	h.wait(t, 1)

	require.Equal(t, task.Completed, tk.State())
	out := tk.Outputs()["data"]
	require.NotNil(t, out)
	assert.Equal(t, objstore.TypeAny, out.Type(), "untyped objects take the port type")
	assert.Equal(t, uint64(tk.Instance), out.Meta().Creator)
	assert.Equal(t, int64(1), out.Refs())
	objects, bytes := tk.Produced()
	assert.Equal(t, 1, objects)
	assert.Equal(t, int64(12), bytes)
	require.NoError(t, out.Release())
}

func TestPoolForwardedInputStaysUntouched(t *testing.T) {
	// --- Arrange ---
	h := newHarness(t, 1)
	upstream, err := h.arena.Publish(objstore.New(objstore.TypeUniformGrid, objstore.Floats{1, 2}, objstore.Meta{Creator: 7}))
	require.NoError(t, err)
	tk := newTask(t, "forward", []registry.Port{{Name: "out", Type: objstore.TypeAny}},
		func(_ context.Context, in registry.Inputs, _ registry.Params) (registry.Outputs, error) {
			return registry.Outputs{"out": in["in"].Object()}, nil
		})
	tk.Inputs["in"] = upstream

	// --- Act ---
	require.NoError(t, h.pool.Submit(tk))
	h.wait(t, 1)

	// --- Assert ---
	require.Equal(t, task.Completed, tk.State())
	downstream := tk.Outputs()["out"]
	require.NotNil(t, downstream)
	assert.Equal(t, uint64(7), upstream.Meta().Creator)
	assert.Equal(t, objstore.TypeUniformGrid, upstream.Type())
	assert.Equal(t, uint64(tk.Instance), downstream.Meta().Creator)
	assert.NotSame(t, upstream.Object(), downstream.Object())
	assert.Equal(t, upstream.Payload(), downstream.Payload())
}

func TestSuspendReleasesSlot(t *testing.T) {
	h := newHarness(t, 1)
	signal := make(chan struct{})

	waiter := newTask(t, "waiter", nil, func(ctx context.Context, _ registry.Inputs, _ registry.Params) (registry.Outputs, error) {
		return nil, Suspend(ctx, func(ctx context.Context) error {
			select {
			case <-signal:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})
	signaller := newTask(t, "signaller", nil, func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
		close(signal)
		return nil, nil
	})

	require.NoError(t, h.pool.Submit(waiter))
	require.NoError(t, h.pool.Submit(signaller))
	h.wait(t, 2)

	assert.Equal(t, task.Completed, signaller.State())
	assert.Equal(t, task.Completed, waiter.State())
}

func TestSuspendOutsidePool(t *testing.T) {
	called := false
	err := Suspend(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestPoolCancel(t *testing.T) {
	h := newHarness(t, 1)
	started := make(chan struct{})
	blocking := newTask(t, "blocking", nil, func(ctx context.Context, _ registry.Inputs, _ registry.Params) (registry.Outputs, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	queued := newTask(t, "queued", nil, func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
		t.Error("cancelled task must not run")
		return nil, nil
	})
	require.NoError(t, h.pool.Submit(blocking))
	require.NoError(t, h.pool.Submit(queued))
	<-started

	n := h.pool.Cancel(func(*task.Task) bool { return true }, errors.New("user cancelled"))
	h.wait(t, 2)

	assert.Equal(t, 2, n)
	assert.Equal(t, task.Cancelled, blocking.State())
	assert.Equal(t, task.Cancelled, queued.State())
	assert.EqualError(t, queued.Err(), "user cancelled")
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := New(context.Background(), Options{Size: 1})
	require.NoError(t, pool.Shutdown(context.Background()))

	tk := newTask(t, "late", nil, func(context.Context, registry.Inputs, registry.Params) (registry.Outputs, error) {
		return nil, nil
	})
	err := pool.Submit(tk)
	assert.ErrorIs(t, err, ErrPoolShutdown)
	assert.Equal(t, task.Ready, tk.State())
}

func TestSubmitRequiresReady(t *testing.T) {
	h := newHarness(t, 1)
	d := &registry.Descriptor{Kind: "Test"}
	tk := task.New("exec", &workflow.Instance{ID: 1, Label: "x", Kind: "Test", Descriptor: d})
	assert.ErrorIs(t, h.pool.Submit(tk), task.ErrInvalidTransition)
}

func TestTaskFromContext(t *testing.T) {
	h := newHarness(t, 1)
	var seen string
	tk := newTask(t, "self", nil, func(ctx context.Context, _ registry.Inputs, _ registry.Params) (registry.Outputs, error) {
		self, ok := TaskFrom(ctx)
		if ok {
			seen = self.Label
		}
		return nil, nil
	})
	require.NoError(t, h.pool.Submit(tk))
	h.wait(t, 1)
	assert.Equal(t, "self", seen)

	_, ok := TaskFrom(context.Background())
	assert.False(t, ok)
}
