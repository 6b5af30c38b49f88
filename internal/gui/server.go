package gui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/ctxlog"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/orchestrator"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/report"
	sio "github.com/zishang520/socket.io/v2/socket"
)

// Event and command names.
const (
	ProgressEvent = "progress"
	ReportEvent   = "report"
	CancelCommand = "cancel"
)

// Progress is the payload of a progress event.
type Progress struct {
	ExecutionID string `json:"execution_id"`
	Instance    uint64 `json:"instance"`
	Label       string `json:"label"`
	State       string `json:"state"`
	Rank        int    `json:"rank"`
	Attempt     int    `json:"attempt"`
	At          string `json:"at"`
	Cause       string `json:"cause,omitempty"`
}

// Summary is the payload of a report event.
type Summary struct {
	ExecutionID string         `json:"execution_id"`
	Workflow    string         `json:"workflow"`
	Status      string         `json:"status"`
	Cause       string         `json:"cause,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	Tasks       map[string]int `json:"tasks"`
}

// Server is the socket.io endpoint front ends connect to.
type Server struct {
	addr   string
	logger *slog.Logger

	mu       sync.Mutex
	io       *sio.Server
	httpSrv  *http.Server
	listener net.Listener
	onCancel func(reason string)
}

// New creates an unstarted server that will listen on addr.
func New(addr string) *Server {
	return &Server{addr: addr, logger: slog.Default()}
}

// Start binds the listener and serves socket.io in the background.
func (s *Server) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("component", "gui")
	s.logger = logger

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gui: listen on %s: %w", s.addr, err)
	}

	server := sio.NewServer(nil, nil)
	server.On("connection", func(clients ...any) {
		client, ok := clients[0].(*sio.Socket)
		if !ok {
			return
		}
		logger.Debug("Front end connected.", "id", client.Id())
		client.On(CancelCommand, func(args ...any) {
			reason := ""
			if len(args) > 0 {
				reason, _ = args[0].(string)
			}
			logger.Info("Cancel requested by front end.", "id", client.Id(), "reason", reason)
			s.cancel(reason)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server.ServeHandler(nil))
	httpSrv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.io = server
	s.httpSrv = httpSrv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		logger.Info("GUI feed listening.", "address", ln.Addr().String())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("GUI feed stopped unexpectedly.", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has run.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// OnCancel installs the function run on a cancel command. Passing nil
// detaches it; commands received with nothing attached are ignored.
func (s *Server) OnCancel(fn func(reason string)) {
	s.mu.Lock()
	s.onCancel = fn
	s.mu.Unlock()
}

func (s *Server) cancel(reason string) {
	s.mu.Lock()
	fn := s.onCancel
	s.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

// Observe broadcasts one task state change. It matches
// orchestrator.Options.Observer.
func (s *Server) Observe(p orchestrator.Progress) {
	s.emit(ProgressEvent, Progress{
		ExecutionID: p.ExecutionID,
		Instance:    p.Instance,
		Label:       p.Label,
		State:       p.State.String(),
		Rank:        p.Rank,
		Attempt:     p.Attempt,
		At:          p.At.Format(time.RFC3339Nano),
		Cause:       p.Cause,
	})
}

// Finished broadcasts the summary of a finished execution.
func (s *Server) Finished(rep *report.Report) {
	counts := make(map[string]int)
	for _, t := range rep.Tasks {
		counts[t.State.String()]++
	}
	s.emit(ReportEvent, Summary{
		ExecutionID: rep.ExecutionID,
		Workflow:    rep.Workflow,
		Status:      string(rep.Status),
		Cause:       rep.Cause,
		DurationMS:  rep.Duration().Milliseconds(),
		Tasks:       counts,
	})
}

func (s *Server) emit(event string, payload any) {
	s.mu.Lock()
	server := s.io
	s.mu.Unlock()
	if server == nil {
		return
	}
	if err := server.Emit(event, payload); err != nil {
		s.logger.Warn("Failed to broadcast GUI event.", "event", event, "error", err)
	}
}

// Close stops the server and disconnects every front end.
func (s *Server) Close() error {
	s.mu.Lock()
	server, httpSrv := s.io, s.httpSrv
	s.io, s.httpSrv = nil, nil
	s.mu.Unlock()

	if server != nil {
		server.Close(nil)
	}
	if httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}
