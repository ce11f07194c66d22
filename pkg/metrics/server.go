package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server is the operations listener: /metrics plus whatever probes and
// admin routes the service mounts. It is kept off the public port.
type Server struct {
	mux     *http.ServeMux
	srv     *http.Server
	logger  *slog.Logger
	started chan struct{}
	addr    net.Addr
}

// NewServer prepares a listener on port. Handle adds routes before Run.
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	return &Server{
		mux: mux,
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		logger:  slog.Default().With("component", "ops-server"),
		started: make(chan struct{}),
	}
}

// Handle mounts h at pattern.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Run serves until ctx is cancelled, then shuts down within five seconds.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("ops server listen on %s: %w", s.srv.Addr, err)
	}
	s.addr = ln.Addr()
	close(s.started)
	s.logger.Info("ops server listening", "addr", s.addr.String())

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

// Addr blocks until Run is listening and returns the bound address. Tests
// start on port 0 and read the real port here.
func (s *Server) Addr() net.Addr {
	<-s.started
	return s.addr
}
