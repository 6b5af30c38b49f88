package objstore

import (
	"fmt"
	"sync/atomic"
)

// Handle is a counted reference to a published object. The zero value is not
// usable; handles are created by Arena.Publish.
type Handle struct {
	id    ID
	obj   *Object
	size  int64
	refs  atomic.Int64
	arena *Arena
}

func (h *Handle) ID() ID           { return h.id }
func (h *Handle) Type() DataType   { return h.obj.Type }
func (h *Handle) Meta() Meta       { return h.obj.Meta }
func (h *Handle) Payload() Payload { return h.obj.Payload }
func (h *Handle) Size() int64      { return h.size }
func (h *Handle) Refs() int64      { return h.refs.Load() }
func (h *Handle) Object() *Object  { return h.obj }
func (h *Handle) String() string   { return fmt.Sprintf("object#%d(%s)", h.id, h.obj.Type) }

// Retain adds a reference. A handle whose count already reached zero cannot
// be revived.
func (h *Handle) Retain() error {
	for {
		c := h.refs.Load()
		if c <= 0 {
			return fmt.Errorf("retain %s: %w", h, ErrReleased)
		}
		if h.refs.CompareAndSwap(c, c+1) {
			return nil
		}
	}
}

// Release drops one reference. The call that drops the last reference frees
// the object from its arena.
func (h *Handle) Release() error {
	for {
		c := h.refs.Load()
		if c <= 0 {
			return fmt.Errorf("release %s: %w", h, ErrReleased)
		}
		if h.refs.CompareAndSwap(c, c-1) {
			if c == 1 {
				h.arena.free(h)
			}
			return nil
		}
	}
}
