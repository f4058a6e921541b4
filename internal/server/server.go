package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	// /data pages and /metrics scrapes are small; a minute leaves room for a
	// slow store without holding sockets forever.
	writeTimeout = 60 * time.Second
	idleTimeout  = 120 * time.Second
)

// Server serves the query, job and trigger API.
type Server struct {
	srv *http.Server
}

// New creates a server listening on port. baseCtx is the parent of every
// request context, so cancelling it aborts in-flight store reads during
// shutdown.
func New(baseCtx context.Context, port string, d Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    net.JoinHostPort("", port),
			Handler: newMux(d),
			BaseContext: func(_ net.Listener) context.Context {
				return baseCtx
			},
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			// Route net/http's own complaints (TLS handshakes, malformed
			// requests) through slog instead of the stdlib logger.
			ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		},
	}
}

// Start blocks serving requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("http server draining", "addr", s.srv.Addr)
	return s.srv.Shutdown(ctx)
}
