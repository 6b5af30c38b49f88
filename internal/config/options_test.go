package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/placement"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOptionsLayers(t *testing.T) {
	// --- Arrange ---
	path := writeFile(t, "options.yaml", `
max_parallel_tasks: 8
placement_policy: affinity
deadline: 30s
ranks: 3
`)
	t.Setenv("VIZFLOW_MAX_PARALLEL_TASKS", "2")
	t.Setenv("VIZFLOW_MPI_ENABLED", "true")

	// --- Act ---
	o, err := LoadOptions(path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 2, o.MaxParallelTasks, "environment beats the file")
	assert.Equal(t, "affinity", o.PlacementPolicy)
	assert.Equal(t, 30*time.Second, o.Deadline)
	assert.Equal(t, 3, o.Ranks)
	assert.True(t, o.MPIEnabled)
	assert.Equal(t, DefaultOptions().QueueCapacity, o.QueueCapacity, "unset keys keep their default")
	assert.True(t, o.Distributed())
}

func TestLoadOptionsErrors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		path := writeFile(t, "options.yaml", "max_paralel_tasks: 2\n")
		_, err := LoadOptions(path)
		assert.ErrorContains(t, err, "max_paralel_tasks")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadOptions(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
	t.Run("bad environment value", func(t *testing.T) {
		t.Setenv("VIZFLOW_DEADLINE", "soon")
		_, err := LoadOptions("")
		assert.ErrorContains(t, err, "VIZFLOW_DEADLINE")
	})
	t.Run("empty file keeps defaults", func(t *testing.T) {
		path := writeFile(t, "options.yaml", "")
		o, err := LoadOptions(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultOptions(), o)
	})
}

func TestLoadDotEnv(t *testing.T) {
	// --- Arrange ---
	path := writeFile(t, ".env", "VIZFLOW_RANKS=4\n")
	t.Setenv("VIZFLOW_RANKS", "")
	require.NoError(t, os.Unsetenv("VIZFLOW_RANKS"))

	// --- Act ---
	o, err := LoadOptions("", path, filepath.Join(t.TempDir(), "missing.env"))
	t.Cleanup(func() { _ = os.Unsetenv("VIZFLOW_RANKS") })

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 4, o.Ranks)
}

func TestApplyFlagsOnlyChanged(t *testing.T) {
	// --- Arrange ---
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--ranks=5", "--deadline=2m", "--task-timeout=15s", "--mpi-enabled"}))
	o := DefaultOptions()
	o.MaxParallelTasks = 9

	// --- Act ---
	err := o.ApplyFlags(fs)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 5, o.Ranks)
	assert.Equal(t, 2*time.Minute, o.Deadline)
	assert.Equal(t, 15*time.Second, o.TaskTimeout)
	assert.Equal(t, 15*time.Second, o.ExecOptions().TaskTimeout)
	assert.True(t, o.MPIEnabled)
	assert.Equal(t, 9, o.MaxParallelTasks, "flags left at their default do not override")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(o *Options)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "no parallelism", mutate: func(o *Options) { o.MaxParallelTasks = 0 }, wantErr: "max_parallel_tasks"},
		{name: "unknown policy", mutate: func(o *Options) { o.PlacementPolicy = "random" }, wantErr: "random"},
		{name: "no ranks", mutate: func(o *Options) { o.Ranks = 0 }, wantErr: "ranks"},
		{name: "unknown transport", mutate: func(o *Options) { o.Transport = "smoke" }, wantErr: "smoke"},
		{name: "negative deadline", mutate: func(o *Options) { o.Deadline = -time.Second }, wantErr: "deadline"},
		{name: "negative task timeout", mutate: func(o *Options) { o.TaskTimeout = -time.Second }, wantErr: "task_timeout"},
		{name: "negative retries", mutate: func(o *Options) { o.MaxRetries = -1 }, wantErr: "max_retries"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := DefaultOptions()
			tc.mutate(&o)
			err := o.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestConversions(t *testing.T) {
	o := DefaultOptions()
	o.PlacementPolicy = "affinity"
	o.MaxRetries = 2
	o.Ranks = 3

	exec := o.ExecOptions()
	assert.Equal(t, placement.Affinity, exec.Placement)
	assert.Equal(t, 2, exec.MaxRetries)
	assert.Equal(t, o.MaxParallelTasks, exec.MaxParallelTasks)

	cc := o.ClusterConfig()
	assert.Equal(t, 3, cc.Ranks)
	assert.Equal(t, o.PoolSize, cc.PoolSize)
	assert.Equal(t, o.HeartbeatInterval, cc.HeartbeatInterval)
}
