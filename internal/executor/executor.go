package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/task"
	"golang.org/x/sync/semaphore"
)

// Callback receives a task that reached a terminal state.
type Callback func(*task.Task)

// Options configures a Pool.
type Options struct {
	// Size is the number of worker slots. Values below 1 mean 1.
	Size int
	// Arena receives the objects produced by modules.
	Arena *objstore.Arena
	// OnComplete is called for every task that ends Completed.
	OnComplete Callback
	// OnFailed is called for every task that ends Failed or Cancelled.
	OnFailed Callback
	// Now is the clock used for task timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Pool is a bounded FIFO task executor.
type Pool struct {
	opts  Options
	slots *semaphore.Weighted
	ctx   context.Context
	stop  context.CancelFunc

	mu       sync.Mutex
	queue    []*task.Task
	running  map[*task.Task]context.CancelFunc
	draining bool
	wake     chan struct{}

	wg   sync.WaitGroup
	done chan struct{}
}

// New starts a pool. Task contexts are derived from ctx, so cancelling it
// interrupts every running module cooperatively.
func New(ctx context.Context, opts Options) *Pool {
	if opts.Size < 1 {
		opts.Size = 1
	}
	if opts.Arena == nil {
		opts.Arena = objstore.NewArena()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		opts:    opts,
		slots:   semaphore.NewWeighted(int64(opts.Size)),
		ctx:     ctx,
		stop:    cancel,
		running: make(map[*task.Task]context.CancelFunc),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Size returns the number of worker slots.
func (p *Pool) Size() int { return p.opts.Size }

// Arena returns the arena outputs are published into.
func (p *Pool) Arena() *objstore.Arena { return p.opts.Arena }

// Submit queues a Ready task. It never blocks.
func (p *Pool) Submit(t *task.Task) error {
	if t.State() != task.Ready {
		return fmt.Errorf("submit %s: %w: state is %s", t, task.ErrInvalidTransition, t.State())
	}
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return fmt.Errorf("submit %s: %w", t, ErrPoolShutdown)
	}
	p.queue = append(p.queue, t)
	p.wg.Add(1)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// QueueDepth is the number of tasks queued or running.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) + len(p.running)
}

// Cancel interrupts running tasks matching match and removes matching
// queued tasks, which are finished as Cancelled. It returns how many tasks
// were affected.
func (p *Pool) Cancel(match func(*task.Task) bool, cause error) int {
	p.mu.Lock()
	var dropped []*task.Task
	kept := p.queue[:0]
	for _, t := range p.queue {
		if match(t) {
			dropped = append(dropped, t)
		} else {
			kept = append(kept, t)
		}
	}
	p.queue = kept
	n := len(dropped)
	for t, cancel := range p.running {
		if match(t) {
			cancel()
			n++
		}
	}
	p.mu.Unlock()

	for _, t := range dropped {
		if err := t.Finish(p.opts.Now(), task.Cancelled, cause); err == nil {
			p.notify(p.opts.OnFailed, t)
		}
		p.wg.Done()
	}
	return n
}

// Shutdown stops accepting tasks and waits until every accepted task has
// finished or ctx is done. Tasks still running when ctx expires are
// interrupted.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = fmt.Errorf("shutdown: %w", ctx.Err())
	}
	p.stop()
	<-p.done
	return err
}

// dispatch hands queued tasks to free slots in submission order.
func (p *Pool) dispatch() {
	defer close(p.done)
	logger := ctxlog.FromContext(p.ctx)
	logger.Debug("Dispatcher started.", "slots", p.opts.Size)

	for {
		p.mu.Lock()
		var next *task.Task
		if len(p.queue) > 0 {
			next = p.queue[0]
		}
		p.mu.Unlock()

		if next == nil {
			select {
			case <-p.wake:
				continue
			case <-p.ctx.Done():
				p.abandonQueue()
				logger.Debug("Dispatcher finished.")
				return
			}
		}

		if err := p.slots.Acquire(p.ctx, 1); err != nil {
			p.abandonQueue()
			logger.Debug("Dispatcher finished.")
			return
		}

		p.mu.Lock()
		// Cancel may have removed the head while we waited for a slot.
		if len(p.queue) == 0 || p.queue[0] != next {
			p.mu.Unlock()
			p.slots.Release(1)
			continue
		}
		p.queue = p.queue[1:]
		ctx, cancel := context.WithCancel(p.ctx)
		p.running[next] = cancel
		p.mu.Unlock()

		go p.worker(ctx, next)
	}
}

// abandonQueue cancels tasks that never got a slot.
func (p *Pool) abandonQueue() {
	p.mu.Lock()
	rest := p.queue
	p.queue = nil
	p.mu.Unlock()
	for _, t := range rest {
		if err := t.Finish(p.opts.Now(), task.Cancelled, ErrPoolShutdown); err == nil {
			p.notify(p.opts.OnFailed, t)
		}
		p.wg.Done()
	}
}

func (p *Pool) notify(cb Callback, t *task.Task) {
	if cb != nil {
		cb(t)
	}
}
