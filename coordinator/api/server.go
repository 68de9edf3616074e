package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Server provides HTTP endpoints
type Server struct {
	coordinator CoordinatorInterface
	registry    *prometheus.Registry
	logger      zerolog.Logger
	router      *mux.Router
	server      *http.Server
}

// NewServer creates a new Server instance. registry may be nil to disable /metrics.
func NewServer(coordinator CoordinatorInterface, registry *prometheus.Registry, logger zerolog.Logger, port int) *Server {
	s := &Server{
		coordinator: coordinator,
		registry:    registry,
		logger:      logger.With().Str("component", "api").Logger(),
	}
	s.router = s.setupRoutes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the port and serves in the background.
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("query server is nil")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}

	go func() {
		err := s.server.Serve(ln)
		switch err {
		case nil, http.ErrServerClosed:
			s.logger.Info().Msg("query server closed")
		default:
			s.logger.Error().Err(err).Msg("query server error")
		}
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("query server started")
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
