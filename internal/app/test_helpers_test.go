package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/config"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/hcl"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/testutil"
	"github.com/stretchr/testify/require"
)

// setupAppTest creates an app with debug logging captured in a buffer. The
// buffer is dumped when VIZFLOW_TEST_LOGS=true.
func setupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer, *testutil.SafeBuffer) {
	t.Helper()

	out := &testutil.SafeBuffer{}
	logs := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	if cfg.Options == (config.Options{}) {
		cfg.Options = config.DefaultOptions()
	}
	loader, err := hcl.NewLoader()
	require.NoError(t, err)

	testApp := NewApp(out, logs, cfg, loader, modules...)
	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("VIZFLOW_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return testApp, out, logs
}

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
