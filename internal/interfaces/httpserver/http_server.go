// Package httpserver assembles the gin engine and runs it with graceful
// shutdown.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/config"
	"hypermaps/server/internal/infrastructure/logger"
	"hypermaps/server/internal/infrastructure/metrics"
	"hypermaps/server/internal/interfaces/httpserver/handlers"
	v1 "hypermaps/server/internal/interfaces/httpserver/routes/v1"
)

// Server wraps the HTTP engine and its lifecycle.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	logger zerolog.Logger
}

// New builds the engine, middleware and routes.
func New(cfg *config.Config, h v1.Handlers, health *handlers.HealthHandler, log zerolog.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(metrics.Middleware())

	engine.GET("/healthz", health.Healthz)
	engine.GET("/readyz", health.Readyz)
	engine.GET("/metrics", metrics.Handler())
	v1.Register(engine, h)

	return &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger.Component(log, "http_server"),
	}
}

// Engine exposes the underlying gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
