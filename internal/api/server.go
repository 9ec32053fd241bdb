// Package api wires the HTTP surface: search, indexer status, and the
// observational rate-limit endpoint described in §6.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/coreagg/indexercore/internal/config"
	"github.com/coreagg/indexercore/internal/health"
	"github.com/coreagg/indexercore/internal/indexer/ratelimit"
	"github.com/coreagg/indexercore/internal/indexer/registry"
	"github.com/coreagg/indexercore/internal/indexer/search"
)

// Server handles HTTP requests for the indexer aggregation backend.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger
	cfg    *config.Config

	dispatcher  *search.Dispatcher
	defs        *registry.Store
	health      registry.HealthStore
	healthSvc   *health.Service
	rateLimiter *ratelimit.Limiter
	hub         *Hub
}

// NewServer builds a Server with all routes and middleware registered. hub
// may be nil, in which case /ws is not registered.
func NewServer(dispatcher *search.Dispatcher, defs *registry.Store, healthStore registry.HealthStore, healthSvc *health.Service, rateLimiter *ratelimit.Limiter, hub *Hub, cfg *config.Config, logger zerolog.Logger) *Server {
	s := &Server{
		echo:        echo.New(),
		logger:      logger.With().Str("component", "api").Logger(),
		cfg:         cfg,
		dispatcher:  dispatcher,
		defs:        defs,
		health:      healthStore,
		healthSvc:   healthSvc,
		rateLimiter: rateLimiter,
		hub:         hub,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.setupMiddleware()
	s.setupRoutes()
	if hub != nil && healthSvc != nil {
		healthSvc.SetBroadcaster(healthBroadcaster{hub: hub})
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(securityHeaders())
	s.echo.Use(middleware.BodyLimit("1M"))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet},
	}))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogMethod:  true,
		LogError:   true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := s.logger.Info()
			if v.Error != nil {
				evt = s.logger.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.getHealthz)
	s.echo.GET("/indexers", s.listIndexers)
	s.echo.GET("/indexers/:id/status", s.getIndexerStatus)
	s.echo.GET("/ratelimits/:id", s.getRateLimitStatus)

	stream := s.echo.Group("/stream/:type/:id")
	stream.GET("", s.search)

	if s.hub != nil {
		s.echo.GET("/ws", s.hub.HandleWebSocket)
	}
}

// securityHeaders mirrors the teacher's baseline response hardening for a
// backend with no cookie-based auth of its own.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			if strings.HasPrefix(c.Request().URL.Path, "/stream") {
				h.Set("Cache-Control", "no-store")
			}
			return next(c)
		}
	}
}

// Start begins serving on address, blocking until the server stops.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
