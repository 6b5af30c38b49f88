package objstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Stats is a point-in-time view of arena usage.
type Stats struct {
	Capacity  int64  `json:"capacity" yaml:"capacity"`
	Used      int64  `json:"used" yaml:"used"`
	Free      int64  `json:"free" yaml:"free"`
	Live      int    `json:"live" yaml:"live"`
	Published uint64 `json:"published" yaml:"published"`
	Released  uint64 `json:"released" yaml:"released"`
}

// Option configures an Arena.
type Option func(*Arena)

// WithCapacity bounds the total payload bytes the arena may hold. Zero means
// unbounded.
func WithCapacity(bytes int64) Option {
	return func(a *Arena) { a.capacity = bytes }
}

// WithReleaseHook registers fn to run once for every object freed.
func WithReleaseHook(fn func(*Handle)) Option {
	return func(a *Arena) { a.onRelease = append(a.onRelease, fn) }
}

// Arena holds published objects by id. It is safe for concurrent use.
type Arena struct {
	mu       sync.RWMutex
	objects  map[ID]*Handle
	waiters  map[ID][]chan struct{}
	lastID   ID
	used     int64
	capacity int64

	published atomic.Uint64
	released  atomic.Uint64
	onRelease []func(*Handle)
}

// NewArena creates an empty arena.
func NewArena(opts ...Option) *Arena {
	a := &Arena{
		objects: make(map[ID]*Handle),
		waiters: make(map[ID][]chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Publish makes o visible to readers and returns a handle holding the
// producer's reference.
func (a *Arena) Publish(o *Object) (*Handle, error) {
	if o == nil {
		return nil, fmt.Errorf("publish: nil object")
	}
	size := o.size()

	a.mu.Lock()
	if a.capacity > 0 && a.used+size > a.capacity {
		used := a.used
		a.mu.Unlock()
		return nil, fmt.Errorf("publish %s of %d bytes (used %d of %d): %w", o.Type, size, used, a.capacity, ErrArenaFull)
	}
	a.lastID++
	h := &Handle{id: a.lastID, obj: o, size: size, arena: a}
	h.refs.Store(1)
	a.objects[h.id] = h
	a.used += size
	waiting := a.waiters[h.id]
	delete(a.waiters, h.id)
	a.mu.Unlock()

	a.published.Add(1)
	for _, ch := range waiting {
		close(ch)
	}
	return h, nil
}

// Lookup returns the live handle for id without taking a reference.
func (a *Arena) Lookup(id ID) (*Handle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.objects[id]
	return h, ok
}

// Acquire returns the handle for id with one additional reference taken.
func (a *Arena) Acquire(id ID) (*Handle, error) {
	a.mu.RLock()
	h, ok := a.objects[id]
	last := a.lastID
	a.mu.RUnlock()
	if !ok {
		if id != 0 && id <= last {
			return nil, fmt.Errorf("acquire object#%d: %w", id, ErrReleased)
		}
		return nil, fmt.Errorf("acquire object#%d: %w", id, ErrUnknownObject)
	}
	if err := h.Retain(); err != nil {
		return nil, err
	}
	return h, nil
}

// Await blocks until id is published and returns it with a reference taken.
// An id that was published and already freed fails with ErrReleased.
func (a *Arena) Await(ctx context.Context, id ID) (*Handle, error) {
	for {
		a.mu.Lock()
		if h, ok := a.objects[id]; ok {
			a.mu.Unlock()
			if err := h.Retain(); err != nil {
				return nil, err
			}
			return h, nil
		}
		if id != 0 && id <= a.lastID {
			a.mu.Unlock()
			return nil, fmt.Errorf("await object#%d: %w", id, ErrReleased)
		}
		ch := make(chan struct{})
		a.waiters[id] = append(a.waiters[id], ch)
		a.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			a.dropWaiter(id, ch)
			return nil, fmt.Errorf("await object#%d: %w", id, ctx.Err())
		}
	}
}

func (a *Arena) dropWaiter(id ID, ch chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.waiters[id]
	for i, c := range list {
		if c == ch {
			a.waiters[id] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(a.waiters[id]) == 0 {
		delete(a.waiters, id)
	}
}

// free is called exactly once per handle, by the Release that reached zero.
func (a *Arena) free(h *Handle) {
	a.mu.Lock()
	delete(a.objects, h.id)
	a.used -= h.size
	a.mu.Unlock()
	a.released.Add(1)
	for _, fn := range a.onRelease {
		fn(h)
	}
}

// Stats reports current usage.
func (a *Arena) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := Stats{
		Capacity:  a.capacity,
		Used:      a.used,
		Live:      len(a.objects),
		Published: a.published.Load(),
		Released:  a.released.Load(),
	}
	if a.capacity > 0 {
		s.Free = a.capacity - a.used
	}
	return s
}
