package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// NewTestLogger returns a debug-level text logger writing into a SafeBuffer.
// The captured output is printed when the test ends if VIZFLOW_TEST_LOGS is
// "true".
func NewTestLogger(t *testing.T) (*slog.Logger, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() {
		if os.Getenv("VIZFLOW_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return logger, buf
}

// Context returns a background context carrying a test logger.
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	logger, buf := NewTestLogger(t)
	return ctxlog.WithLogger(context.Background(), logger), buf
}
