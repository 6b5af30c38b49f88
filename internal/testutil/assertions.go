package testutil

import (
	"testing"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/report"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/task"
	"github.com/stretchr/testify/require"
)

// AssertTaskState checks the terminal state of label in a report.
func AssertTaskState(t *testing.T, rep *report.Report, label string, want task.State) {
	t.Helper()
	entry, ok := rep.Task(label)
	require.True(t, ok, "report has no task %q", label)
	require.Equal(t, want, entry.State, "task %q (cause %q)", label, entry.Cause)
}

// AssertArenaEmpty checks that every published object was released.
func AssertArenaEmpty(t *testing.T, arena *objstore.Arena) {
	t.Helper()
	s := arena.Stats()
	require.Zero(t, s.Live, "live objects left in arena: %+v", s)
	require.Equal(t, s.Published, s.Released, "published and released counts differ: %+v", s)
}
