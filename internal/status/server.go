package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/psantana5/devrun/internal/logging"
)

// Server runs the status endpoint in the background.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *logging.Logger
	done   chan struct{}
}

// Start listens on addr and serves h until Shutdown.
func Start(addr string, h http.Handler, logger *logging.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	logger.Info(fmt.Sprintf("Status endpoint listening on http://%s", ln.Addr()))
	return s, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop status server: %w", err)
	}
	<-s.done
	return nil
}
