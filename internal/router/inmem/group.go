// Package inmem is an in-process router.Transport: every rank of a Group
// lives in the same address space and frames are handed over directly. It
// backs single-node runs and lets tests inject node failures and lost frames.
package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/router"
)

// Group is a process group of size ranks, numbered from 0.
type Group struct {
	mu        sync.Mutex
	endpoints map[int]*Endpoint
	killed    map[int]bool
	drops     map[[2]int]int
}

// NewGroup creates a group with ranks 0..size-1.
func NewGroup(size int) *Group {
	g := &Group{
		endpoints: make(map[int]*Endpoint, size),
		killed:    make(map[int]bool),
		drops:     make(map[[2]int]int),
	}
	for rank := 0; rank < size; rank++ {
		g.endpoints[rank] = &Endpoint{group: g, rank: rank}
	}
	return g
}

// Size returns the number of ranks.
func (g *Group) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.endpoints)
}

// Endpoint returns the transport for rank. It panics for a rank outside the
// group.
func (g *Group) Endpoint(rank int) *Endpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	ep, ok := g.endpoints[rank]
	if !ok {
		panic(fmt.Sprintf("inmem: rank %d is not part of a group of %d", rank, len(g.endpoints)))
	}
	return ep
}

// Kill simulates a crashed node: frames to and from rank fail.
func (g *Group) Kill(rank int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killed[rank] = true
}

// DropNext silently loses the next n frames from src to dst.
func (g *Group) DropNext(src, dst, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drops[[2]int{src, dst}] += n
}

// route decides whether a frame reaches dst. It returns the receiving
// endpoint, or nil with lost=true for a silently dropped frame.
func (g *Group) route(src, dst int) (ep *Endpoint, lost bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.killed[src] || g.killed[dst] {
		return nil, false, fmt.Errorf("rank %d -> %d: %w", src, dst, router.ErrUnreachablePeer)
	}
	ep, ok := g.endpoints[dst]
	if !ok {
		return nil, false, fmt.Errorf("rank %d -> %d: no such rank: %w", src, dst, router.ErrUnreachablePeer)
	}
	key := [2]int{src, dst}
	if g.drops[key] > 0 {
		g.drops[key]--
		return nil, true, nil
	}
	return ep, false, nil
}

// Endpoint is one rank's transport.
type Endpoint struct {
	group *Group
	rank  int

	mu      sync.Mutex
	handler func([]byte)
	backlog [][]byte
	closed  bool
}

var _ router.Transport = (*Endpoint)(nil)

func (e *Endpoint) Rank() int { return e.rank }

// Send hands a copy of frame to the destination's handler on the caller's
// goroutine, so frames from one sender arrive in call order.
func (e *Endpoint) Send(ctx context.Context, dst int, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return fmt.Errorf("rank %d: endpoint closed: %w", e.rank, router.ErrUnreachablePeer)
	}

	to, lost, err := e.group.route(e.rank, dst)
	if err != nil || lost {
		return err
	}
	to.receive(append([]byte(nil), frame...))
	return nil
}

func (e *Endpoint) receive(frame []byte) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	h := e.handler
	if h == nil {
		e.backlog = append(e.backlog, frame)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	h(frame)
}

// Serve installs handler and flushes frames that arrived before it.
func (e *Endpoint) Serve(handler func([]byte)) error {
	e.mu.Lock()
	if e.handler != nil {
		e.mu.Unlock()
		return fmt.Errorf("rank %d: endpoint already served", e.rank)
	}
	defer e.mu.Unlock()
	e.handler = handler
	// Flushed under the lock so later frames cannot overtake the backlog.
	for _, frame := range e.backlog {
		handler(frame)
	}
	e.backlog = nil
	return nil
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
