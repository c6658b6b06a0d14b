package rest

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/infrastructure/config"
)

// Server wraps the HTTP server with its middleware stack.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the server with routing and the standard middleware
// chain: recovery outermost, then rate limiting, request IDs, and logging.
func NewServer(cfg *config.ServerConfig, handler *Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	chained := Chain(mux,
		RecoveryMiddleware(logger),
		RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      chained,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start blocks serving requests until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
