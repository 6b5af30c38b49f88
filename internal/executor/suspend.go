package executor

import (
	"context"
	"sync"
)

type slotKey struct{}

// slot tracks whether a running task currently holds its worker slot.
type slot struct {
	pool *Pool
	mu   sync.Mutex
	held bool
}

func (s *slot) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		s.held = false
		s.pool.slots.Release(1)
	}
}

func (s *slot) acquire(ctx context.Context) error {
	if err := s.pool.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	s.mu.Lock()
	s.held = true
	s.mu.Unlock()
	return nil
}

// Suspend runs wait without holding a worker slot. Modules call it around
// anything that blocks on I/O or on another rank. The slot is reacquired
// before Suspend returns; if ctx ends first the error from ctx is returned
// and the task continues slotless until it finishes.
//
// Outside a pool worker Suspend just calls wait.
func Suspend(ctx context.Context, wait func(context.Context) error) error {
	s, ok := ctx.Value(slotKey{}).(*slot)
	if !ok {
		return wait(ctx)
	}
	s.release()
	werr := wait(ctx)
	if err := s.acquire(ctx); err != nil {
		if werr != nil {
			return werr
		}
		return err
	}
	return werr
}
