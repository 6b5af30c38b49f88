package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/objstore"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/registry"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/router"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/router/inmem"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/router/sockettransport"
	"golang.org/x/sync/errgroup"
)

// Transport names.
const (
	TransportInMemory = "inmem"
	TransportSocketIO = "socketio"
)

// Config describes the process group.
type Config struct {
	// Ranks is the group size, coordinator included.
	Ranks int
	// Transport is TransportInMemory or TransportSocketIO.
	Transport string
	// Host and BasePort place the socket.io listeners: rank r binds
	// Host:BasePort+r. A zero BasePort picks free ports.
	Host     string
	BasePort int
	// PoolSize is the number of worker slots on every worker rank.
	PoolSize          int
	QueueCapacity     int
	HeartbeatInterval time.Duration
}

// Cluster is a running process group.
type Cluster struct {
	cfg     Config
	arena   *objstore.Arena
	routers []*router.Router
	workers map[int]*Worker
	group   *inmem.Group

	cancel context.CancelFunc
	eg     *errgroup.Group

	mu     sync.Mutex
	killed map[int]context.CancelFunc
	closed bool
}

// Start builds the transports, a router per rank and a worker per non-zero
// rank. Workers resolve module kinds in reg and publish into arena.
func Start(ctx context.Context, cfg Config, reg *registry.Registry, arena *objstore.Arena) (*Cluster, error) {
	if cfg.Ranks < 1 {
		return nil, fmt.Errorf("cluster needs at least one rank, got %d", cfg.Ranks)
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportInMemory
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if arena == nil {
		arena = objstore.NewArena()
	}
	logger := ctxlog.FromContext(ctx).With("transport", cfg.Transport, "ranks", cfg.Ranks)
	ctx = ctxlog.WithLogger(ctx, logger)

	transports, group, err := buildTransports(cfg)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(runCtx)
	c := &Cluster{
		cfg:     cfg,
		arena:   arena,
		workers: make(map[int]*Worker),
		group:   group,
		cancel:  cancel,
		eg:      eg,
		killed:  make(map[int]context.CancelFunc),
	}

	ropts := router.Options{QueueCapacity: cfg.QueueCapacity}
	for _, tr := range transports {
		r, err := router.New(egCtx, tr, ropts)
		if err != nil {
			cancel()
			c.closeRouters()
			return nil, err
		}
		c.routers = append(c.routers, r)
	}
	if cfg.Transport == TransportSocketIO {
		connectPeers(transports)
	}

	for rank := 1; rank < cfg.Ranks; rank++ {
		w := NewWorker(c.routers[rank], reg, arena, WorkerOptions{
			PoolSize:          cfg.PoolSize,
			HeartbeatInterval: cfg.HeartbeatInterval,
		})
		wctx, wcancel := context.WithCancel(egCtx)
		c.killed[rank] = wcancel
		c.workers[rank] = w
		eg.Go(func() error { return w.Run(wctx) })
	}

	logger.Info("Process group started.")
	return c, nil
}

func buildTransports(cfg Config) ([]router.Transport, *inmem.Group, error) {
	out := make([]router.Transport, 0, cfg.Ranks)
	switch cfg.Transport {
	case TransportInMemory:
		g := inmem.NewGroup(cfg.Ranks)
		for rank := 0; rank < cfg.Ranks; rank++ {
			out = append(out, g.Endpoint(rank))
		}
		return out, g, nil
	case TransportSocketIO:
		for rank := 0; rank < cfg.Ranks; rank++ {
			port := 0
			if cfg.BasePort > 0 {
				port = cfg.BasePort + rank
			}
			out = append(out, sockettransport.New(sockettransport.Config{
				Rank:   rank,
				Listen: net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
			}))
		}
		return out, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// connectPeers tells every socket.io transport where the others listen. It
// runs after the routers started serving so the bound addresses are known.
func connectPeers(transports []router.Transport) {
	for _, a := range transports {
		at := a.(*sockettransport.Transport)
		for _, b := range transports {
			if a == b {
				continue
			}
			bt := b.(*sockettransport.Transport)
			at.SetPeer(bt.Rank(), "http://"+bt.Addr())
		}
	}
}

// Ranks returns the group size.
func (c *Cluster) Ranks() int { return c.cfg.Ranks }

// Arena returns the shared arena.
func (c *Cluster) Arena() *objstore.Arena { return c.arena }

// Coordinator returns rank 0's router.
func (c *Cluster) Coordinator() *router.Router { return c.routers[0] }

// Worker returns the worker serving rank, or nil for rank 0.
func (c *Cluster) Worker(rank int) *Worker { return c.workers[rank] }

// Kill simulates the crash of a worker rank: it stops processing and every
// frame to or from it fails.
func (c *Cluster) Kill(rank int) error {
	if rank <= 0 || rank >= c.cfg.Ranks {
		return fmt.Errorf("cannot kill rank %d of %d", rank, c.cfg.Ranks)
	}
	c.mu.Lock()
	stop := c.killed[rank]
	c.mu.Unlock()
	if c.group != nil {
		c.group.Kill(rank)
	} else {
		_ = c.routers[rank].Close()
	}
	if stop != nil {
		stop()
	}
	return nil
}

// Close stops every worker and router.
func (c *Cluster) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.eg.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, c.closeRouters())
}

func (c *Cluster) closeRouters() error {
	var errs []error
	for _, r := range c.routers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rank %d: %w", r.Rank(), err))
		}
	}
	return errors.Join(errs...)
}
