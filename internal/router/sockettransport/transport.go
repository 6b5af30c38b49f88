// Package sockettransport carries router frames over socket.io. Every rank
// runs a socket.io server for inbound frames and opens one client connection
// per destination for outbound frames, so frames from one sender to one
// destination share a single ordered websocket. Frames travel as socket.io
// binary attachments.
package sockettransport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/router"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
	sio "github.com/zishang520/socket.io/v2/socket"
)

const frameEvent = "frame"

// Config describes one rank's endpoint.
type Config struct {
	Rank int
	// Listen is the address the inbound server binds, e.g. "127.0.0.1:7100".
	Listen string
	// Peers maps every other rank to its server URL, e.g. "http://127.0.0.1:7101".
	Peers map[int]string
	// ConnectTimeout bounds the first connection to a peer.
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
}

// Transport implements router.Transport.
type Transport struct {
	cfg Config

	mu       sync.Mutex
	clients  map[int]*socket.Socket
	server   *sio.Server
	httpSrv  *http.Server
	listener net.Listener
	closed   bool
}

var _ router.Transport = (*Transport)(nil)

// New creates an unstarted transport. Serve binds the listener.
func New(cfg Config) *Transport {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &Transport{cfg: cfg, clients: make(map[int]*socket.Socket)}
}

func (t *Transport) Rank() int { return t.cfg.Rank }

// Addr returns the bound listen address once Serve has run.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// SetPeer registers or replaces the URL of a peer rank.
func (t *Transport) SetPeer(rank int, rawURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.Peers == nil {
		t.cfg.Peers = make(map[int]string)
	}
	t.cfg.Peers[rank] = rawURL
}

// Serve starts the inbound socket.io server.
func (t *Transport) Serve(handler func([]byte)) error {
	ln, err := net.Listen("tcp", t.cfg.Listen)
	if err != nil {
		return fmt.Errorf("rank %d: listen on %s: %w", t.cfg.Rank, t.cfg.Listen, err)
	}

	server := sio.NewServer(nil, nil)
	server.On("connection", func(clients ...any) {
		client, ok := clients[0].(*sio.Socket)
		if !ok {
			return
		}
		client.On(frameEvent, func(args ...any) {
			if len(args) == 0 {
				return
			}
			frame, ok := frameBytes(args[0])
			if !ok {
				slog.Warn("Dropping non-binary frame event.", "rank", t.cfg.Rank, "type", fmt.Sprintf("%T", args[0]))
				return
			}
			handler(frame)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server.ServeHandler(nil))
	httpSrv := &http.Server{Handler: mux}

	t.mu.Lock()
	t.server = server
	t.httpSrv = httpSrv
	t.listener = ln
	t.mu.Unlock()

	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Socket.io frame server stopped unexpectedly.", "rank", t.cfg.Rank, "error", err)
		}
	}()
	return nil
}

// frameBytes unwraps a binary attachment. Depending on the engine.io
// transport it arrives as a byte slice or as a buffer type.
func frameBytes(arg any) ([]byte, bool) {
	switch v := arg.(type) {
	case []byte:
		return v, true
	case interface{ Bytes() []byte }:
		return v.Bytes(), true
	case io.Reader:
		b, err := io.ReadAll(v)
		return b, err == nil
	}
	return nil, false
}

// Send emits frame to dst, connecting on first use. A peer that cannot be
// connected, or whose connection dropped, is reported unreachable; the
// transport does not reconnect.
func (t *Transport) Send(ctx context.Context, dst int, frame []byte) error {
	client, err := t.client(ctx, dst)
	if err != nil {
		return err
	}
	if !client.Connected() {
		return fmt.Errorf("rank %d -> %d: connection lost: %w", t.cfg.Rank, dst, router.ErrUnreachablePeer)
	}
	if err := client.Emit(frameEvent, frame); err != nil {
		return fmt.Errorf("rank %d -> %d: emit: %v: %w", t.cfg.Rank, dst, err, router.ErrUnreachablePeer)
	}
	return nil
}

func (t *Transport) client(ctx context.Context, dst int) (*socket.Socket, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("rank %d: transport closed: %w", t.cfg.Rank, router.ErrUnreachablePeer)
	}
	if c, ok := t.clients[dst]; ok {
		t.mu.Unlock()
		return c, nil
	}
	rawURL, ok := t.cfg.Peers[dst]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("rank %d -> %d: no address: %w", t.cfg.Rank, dst, router.ErrUnreachablePeer)
	}

	c, err := t.dial(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("rank %d -> %d: %v: %w", t.cfg.Rank, dst, err, router.ErrUnreachablePeer)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.clients[dst]; ok {
		c.Disconnect()
		return existing, nil
	}
	t.clients[dst] = c
	return c, nil
}

func (t *Transport) dial(ctx context.Context, rawURL string) (*socket.Socket, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetReconnection(false)
	opts.SetTransports(types.NewSet(transports.WebSocket))
	if t.cfg.InsecureSkipVerify {
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := errs[0].(error)
		if err == nil {
			err = fmt.Errorf("connect error")
		}
		connectChan <- err
	})
	io.Connect()

	timer := time.NewTimer(t.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", t.cfg.ConnectTimeout)
	}
}

// Close disconnects every client and stops the server.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	clients := t.clients
	t.clients = nil
	server, httpSrv := t.server, t.httpSrv
	t.mu.Unlock()

	for _, c := range clients {
		c.Disconnect()
	}
	if server != nil {
		server.Close(nil)
	}
	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	}
	return nil
}
