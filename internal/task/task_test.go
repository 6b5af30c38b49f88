package task

import (
	"errors"
	"testing"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask() *Task {
	return New("exec-1", &workflow.Instance{ID: 2, Label: "B", Kind: "IsoSurface"})
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{Pending, Ready, true},
		{Pending, Skipped, true},
		{Pending, Running, false},
		{Ready, Running, true},
		{Ready, Skipped, false},
		{Running, Completed, true},
		{Running, Ready, true},
		{Completed, Failed, false},
		{Skipped, Ready, false},
		{Cancelled, Running, false},
	}
	for _, tc := range tests {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to))
		})
	}
}

func TestStateText(t *testing.T) {
	b, err := Skipped.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Skipped", string(b))

	var s State
	require.NoError(t, s.UnmarshalText([]byte("Cancelled")))
	assert.Equal(t, Cancelled, s)
	assert.Error(t, s.UnmarshalText([]byte("Exploded")))
	assert.Equal(t, "State(42)", State(42).String())
}

func TestTaskLifecycle(t *testing.T) {
	t.Run("completes with outputs", func(t *testing.T) {
		// --- Arrange ---
		arena := objstore.NewArena()
		h, err := arena.Publish(objstore.New(objstore.TypeTriangles, objstore.Bytes("abcd"), objstore.Meta{}))
		require.NoError(t, err)
		tk := newTask()
		start := time.Now()

		// --- Act ---
		require.NoError(t, tk.Transition(Ready))
		require.NoError(t, tk.Start(start))
		require.NoError(t, tk.Complete(start.Add(time.Second), map[string]*objstore.Handle{"surface": h}))

		// --- Assert ---
		assert.Equal(t, Completed, tk.State())
		objects, bytes := tk.Produced()
		assert.Equal(t, 1, objects)
		assert.Equal(t, int64(4), bytes)
		s, f := tk.Times()
		assert.Equal(t, time.Second, f.Sub(s))
		assert.Same(t, h, tk.Outputs()["surface"])
	})

	t.Run("finish records cause", func(t *testing.T) {
		tk := newTask()
		cause := errors.New("producer failed")
		require.NoError(t, tk.Finish(time.Now(), Skipped, cause))
		assert.Equal(t, Skipped, tk.State())
		assert.Equal(t, cause, tk.Err())

		err := tk.Finish(time.Now(), Failed, cause)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("finish rejects non-terminal and completed", func(t *testing.T) {
		tk := newTask()
		assert.ErrorIs(t, tk.Finish(time.Now(), Running, nil), ErrInvalidTransition)
		assert.ErrorIs(t, tk.Finish(time.Now(), Completed, nil), ErrInvalidTransition)
	})

	t.Run("requeue bumps attempt", func(t *testing.T) {
		tk := newTask()
		require.NoError(t, tk.Transition(Ready))
		require.NoError(t, tk.Start(time.Now()))
		require.NoError(t, tk.Requeue(3))
		assert.Equal(t, Ready, tk.State())
		assert.Equal(t, 2, tk.Attempt)
		assert.Equal(t, 3, tk.Rank)
	})
}

func TestModuleError(t *testing.T) {
	cause := errors.New("bad input")
	err := error(NewModuleError("B", "IsoSurface", cause))

	assert.ErrorIs(t, err, ErrModule)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "module B (IsoSurface) failed: bad input", err.Error())
	assert.Equal(t, "bad input", Cause(err))
	assert.Equal(t, "bad input", Cause(errors.Join(err)))
	assert.Equal(t, "boom", Cause(errors.New("boom")))
	assert.Empty(t, Cause(nil))
}
