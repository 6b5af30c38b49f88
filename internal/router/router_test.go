package router_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/router"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/router/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouters(t *testing.T, g *inmem.Group, opts router.Options) []*router.Router {
	t.Helper()
	routers := make([]*router.Router, g.Size())
	for rank := range routers {
		r, err := router.New(context.Background(), g.Endpoint(rank), opts)
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })
		routers[rank] = r
	}
	return routers
}

func receive(t *testing.T, r *router.Router) router.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, err := r.Receive(ctx)
	require.NoError(t, err)
	return env
}

func waitEvent(t *testing.T, r *router.Router) router.Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no unreachable event")
		return router.Event{}
	}
}

func TestPerSenderFIFO(t *testing.T) {
	g := inmem.NewGroup(2)
	rs := newRouters(t, g, router.Options{})

	for i := 0; i < 50; i++ {
		require.NoError(t, rs[1].SendPayload(0, router.KindTaskResult, router.TaskResult{Instance: uint64(i)}))
	}

	for i := 0; i < 50; i++ {
		env := receive(t, rs[0])
		assert.Equal(t, 1, env.SenderRank)
		assert.Equal(t, uint64(i+1), env.SequenceNumber)

		var res router.TaskResult
		require.NoError(t, env.Decode(&res))
		assert.Equal(t, uint64(i), res.Instance)
	}
}

func TestPriorityLaneDrainedFirst(t *testing.T) {
	g := inmem.NewGroup(2)
	rs := newRouters(t, g, router.Options{})

	// --- Arrange ---
	for i := 0; i < 3; i++ {
		require.NoError(t, rs[1].SendPayload(0, router.KindObjectHandlePublish, router.ObjectHandlePublish{Handle: uint64(i + 1)}))
	}
	require.NoError(t, rs[1].SendPayload(0, router.KindCancel, router.Cancel{Reason: "stop"}))
	require.Eventually(t, func() bool {
		p, n := rs[0].Pending()
		return p == 1 && n == 3
	}, time.Second, 5*time.Millisecond)

	// --- Act ---
	first := receive(t, rs[0])

	// --- Assert ---
	assert.Equal(t, router.KindCancel, first.Kind)
	assert.Equal(t, router.PriorityCritical, first.Priority)
	for i := 0; i < 3; i++ {
		env := receive(t, rs[0])
		assert.Equal(t, router.KindObjectHandlePublish, env.Kind)
	}
}

// blockingTransport accepts frames only when released.
type blockingTransport struct {
	rank    int
	release chan struct{}
}

func (b *blockingTransport) Rank() int { return b.rank }
func (b *blockingTransport) Send(ctx context.Context, dst int, frame []byte) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
func (b *blockingTransport) Serve(func([]byte)) error { return nil }
func (b *blockingTransport) Close() error             { return nil }

func TestQueueFull(t *testing.T) {
	bt := &blockingTransport{release: make(chan struct{})}
	r, err := router.New(context.Background(), bt, router.Options{QueueCapacity: 2, SendTimeout: time.Minute})
	require.NoError(t, err)
	defer r.Close()

	var full error
	for i := 0; i < 10 && full == nil; i++ {
		full = r.SendPayload(1, router.KindHeartbeat, router.Heartbeat{Rank: 0})
	}
	assert.ErrorIs(t, full, router.ErrQueueFull)
}

func TestUnreachablePeer(t *testing.T) {
	g := inmem.NewGroup(2)
	rs := newRouters(t, g, router.Options{})
	g.Kill(1)

	require.NoError(t, rs[0].SendPayload(1, router.KindTaskAssign, router.TaskAssign{Instance: 1}))

	ev := waitEvent(t, rs[0])
	assert.Equal(t, 1, ev.Rank)
	assert.ErrorIs(t, ev.Err, router.ErrNodeUnreachable)
	assert.True(t, rs[0].IsDown(1))

	err := rs[0].SendPayload(1, router.KindTaskAssign, router.TaskAssign{Instance: 2})
	assert.ErrorIs(t, err, router.ErrUnreachablePeer)
}

func TestSequenceGapReportsNodeUnreachable(t *testing.T) {
	g := inmem.NewGroup(2)
	rs := newRouters(t, g, router.Options{})
	g.DropNext(1, 0, 1)

	require.NoError(t, rs[1].SendPayload(0, router.KindTaskResult, router.TaskResult{Instance: 1}))
	require.NoError(t, rs[1].SendPayload(0, router.KindTaskResult, router.TaskResult{Instance: 2}))

	ev := waitEvent(t, rs[0])
	assert.Equal(t, 1, ev.Rank)
	assert.ErrorContains(t, ev.Err, "sequence gap")

	p, n := rs[0].Pending()
	assert.Zero(t, p+n)
}

func TestMonitorDeclaresSilentPeer(t *testing.T) {
	g := inmem.NewGroup(3)
	rs := newRouters(t, g, router.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rs[0].Monitor(ctx, []int{1, 2}, 60*time.Millisecond)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = rs[1].SendPayload(0, router.KindHeartbeat, router.Heartbeat{Rank: 1, SentAt: time.Now()})
			}
		}
	}()

	ev := waitEvent(t, rs[0])
	close(stop)
	wg.Wait()
	assert.Equal(t, 2, ev.Rank)
	assert.False(t, rs[0].IsDown(1))
}

func TestReceiveHonoursContext(t *testing.T) {
	g := inmem.NewGroup(1)
	rs := newRouters(t, g, router.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rs[0].Receive(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSendAfterClose(t *testing.T) {
	g := inmem.NewGroup(2)
	r, err := router.New(context.Background(), g.Endpoint(0), router.Options{})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	err = r.SendPayload(1, router.KindHeartbeat, router.Heartbeat{})
	assert.ErrorIs(t, err, router.ErrClosed)
}
