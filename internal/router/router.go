package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
)

// Event is raised when a peer is declared unreachable.
type Event struct {
	Rank int
	Err  error
}

// Options tunes a Router.
type Options struct {
	// QueueCapacity bounds each per-destination outbound queue.
	QueueCapacity int
	// SendTimeout bounds one Transport.Send call.
	SendTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 256
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 5 * time.Second
	}
	return o
}

type outbound struct {
	mu    sync.Mutex
	seq   uint64
	queue chan Envelope
}

// Router is one rank's endpoint in the process group.
type Router struct {
	ctx       context.Context
	cancel    context.CancelFunc
	rank      int
	transport Transport
	opts      Options

	mu       sync.Mutex
	peers    map[int]*outbound
	down     map[int]error
	expected map[int]uint64
	lastSeen map[int]time.Time
	lanes    [2][]Envelope // 0: priority, 1: normal
	notify   chan struct{}
	closed   bool

	events chan Event
	wg     sync.WaitGroup
}

// New creates a router for t.Rank() and starts receiving from t.
func New(ctx context.Context, t Transport, opts Options) (*Router, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Router{
		ctx:       ctxlog.With(ctx, "rank", t.Rank()),
		cancel:    cancel,
		rank:      t.Rank(),
		transport: t,
		opts:      opts.withDefaults(),
		peers:     make(map[int]*outbound),
		down:      make(map[int]error),
		expected:  make(map[int]uint64),
		lastSeen:  make(map[int]time.Time),
		notify:    make(chan struct{}, 1),
		events:    make(chan Event, 1024),
	}
	if err := t.Serve(r.deliver); err != nil {
		cancel()
		return nil, fmt.Errorf("rank %d: serve transport: %w", r.rank, err)
	}
	return r, nil
}

// Rank returns the rank this router serves.
func (r *Router) Rank() int { return r.rank }

// Events reports peers declared unreachable. Each rank is reported once.
func (r *Router) Events() <-chan Event { return r.events }

// Send stamps env and queues it for dst. It never blocks.
func (r *Router) Send(dst int, env Envelope) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if cause, isDown := r.down[dst]; isDown {
		r.mu.Unlock()
		return fmt.Errorf("send %s to rank %d: %w (%v)", env.Kind, dst, ErrUnreachablePeer, cause)
	}
	out := r.peerLocked(dst)
	r.mu.Unlock()

	out.mu.Lock()
	defer out.mu.Unlock()
	env.SenderRank = r.rank
	env.SequenceNumber = out.seq + 1
	select {
	case out.queue <- env:
		out.seq++
		return nil
	default:
		return fmt.Errorf("send %s to rank %d: %w (capacity %d)", env.Kind, dst, ErrQueueFull, r.opts.QueueCapacity)
	}
}

// SendPayload encodes payload and sends it as kind.
func (r *Router) SendPayload(dst int, kind Kind, payload any) error {
	env, err := NewEnvelope(kind, payload)
	if err != nil {
		return err
	}
	return r.Send(dst, env)
}

func (r *Router) peerLocked(dst int) *outbound {
	out, ok := r.peers[dst]
	if !ok {
		out = &outbound{queue: make(chan Envelope, r.opts.QueueCapacity)}
		r.peers[dst] = out
		r.wg.Add(1)
		go r.pump(dst, out)
	}
	return out
}

// pump is the single writer for one destination.
func (r *Router) pump(dst int, out *outbound) {
	defer r.wg.Done()
	logger := ctxlog.FromContext(r.ctx).With("dst", dst)
	for {
		select {
		case <-r.ctx.Done():
			return
		case env := <-out.queue:
			frame, err := encodeFrame(env)
			if err != nil {
				logger.Error("Dropping envelope that failed to encode.", "kind", env.Kind, "error", err)
				continue
			}
			sendCtx, cancel := context.WithTimeout(r.ctx, r.opts.SendTimeout)
			err = r.transport.Send(sendCtx, dst, frame)
			cancel()
			if err != nil {
				if r.ctx.Err() != nil {
					return
				}
				logger.Warn("Transport send failed, marking peer down.", "kind", env.Kind, "seq", env.SequenceNumber, "error", err)
				r.MarkDown(dst, err)
				return
			}
		}
	}
}

// deliver is the transport's inbound handler.
func (r *Router) deliver(frame []byte) {
	env, err := decodeFrame(frame)
	if err != nil {
		ctxlog.FromContext(r.ctx).Warn("Discarding undecodable frame.", "error", err)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if _, isDown := r.down[env.SenderRank]; isDown {
		r.mu.Unlock()
		return
	}
	want := r.expected[env.SenderRank] + 1
	if env.SequenceNumber != want {
		r.mu.Unlock()
		r.MarkDown(env.SenderRank, fmt.Errorf("sequence gap from rank %d: got %d, want %d", env.SenderRank, env.SequenceNumber, want))
		return
	}
	r.expected[env.SenderRank] = want
	r.lastSeen[env.SenderRank] = time.Now()
	lane := 1
	if env.Priority.urgent() {
		lane = 0
	}
	r.lanes[lane] = append(r.lanes[lane], env)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Receive returns the next pending envelope, priority lane first.
func (r *Router) Receive(ctx context.Context) (Envelope, error) {
	for {
		r.mu.Lock()
		for lane := range r.lanes {
			if len(r.lanes[lane]) > 0 {
				env := r.lanes[lane][0]
				r.lanes[lane][0] = Envelope{}
				r.lanes[lane] = r.lanes[lane][1:]
				r.mu.Unlock()
				return env, nil
			}
		}
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return Envelope{}, ErrClosed
		}

		select {
		case <-r.notify:
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		case <-r.ctx.Done():
			return Envelope{}, ErrClosed
		}
	}
}

// Pending returns the number of envelopes waiting in each lane.
func (r *Router) Pending() (priority, normal int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lanes[0]), len(r.lanes[1])
}

// MarkDown declares rank unreachable. Later sends to it fail with
// ErrUnreachablePeer and its inbound frames are discarded. The first call per
// rank emits an Event.
func (r *Router) MarkDown(rank int, cause error) {
	r.mu.Lock()
	if _, already := r.down[rank]; already || r.closed {
		r.mu.Unlock()
		return
	}
	r.down[rank] = cause
	r.mu.Unlock()

	ctxlog.FromContext(r.ctx).Warn("Peer declared unreachable.", "peer", rank, "cause", cause)
	ev := Event{Rank: rank, Err: fmt.Errorf("rank %d: %w: %v", rank, ErrNodeUnreachable, cause)}
	select {
	case r.events <- ev:
	default:
		ctxlog.FromContext(r.ctx).Error("Event buffer full, dropping unreachable event.", "peer", rank)
	}
}

// IsDown reports whether rank was declared unreachable.
func (r *Router) IsDown(rank int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, isDown := r.down[rank]
	return isDown
}

// Monitor declares any of ranks unreachable once nothing has been received
// from it for longer than timeout. It returns when ctx is done.
func (r *Router) Monitor(ctx context.Context, ranks []int, timeout time.Duration) {
	start := time.Now()
	r.mu.Lock()
	for _, rank := range ranks {
		if _, ok := r.lastSeen[rank]; !ok {
			r.lastSeen[rank] = start
		}
	}
	r.mu.Unlock()

	tick := timeout / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case now := <-ticker.C:
			var silent []int
			r.mu.Lock()
			for _, rank := range ranks {
				if _, isDown := r.down[rank]; isDown {
					continue
				}
				if now.Sub(r.lastSeen[rank]) > timeout {
					silent = append(silent, rank)
				}
			}
			r.mu.Unlock()
			for _, rank := range silent {
				r.MarkDown(rank, fmt.Errorf("no traffic for more than %s", timeout))
			}
		}
	}
}

// Close stops the pumps and closes the transport. Queued envelopes that were
// not yet handed to the transport are discarded.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return r.transport.Close()
}
