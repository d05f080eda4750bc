package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	appconfig "marketsim/config"
	"marketsim/internal/sim"
	"marketsim/logger"
)

// Server exposes the simulation service over HTTP.
type Server struct {
	echo *echo.Echo
	cfg  *appconfig.Config
	svc  *Service
	log  *logger.Log
}

// NewServer wires the HTTP routes, middleware and metrics endpoint over the
// given service.
func NewServer(cfg *appconfig.Config, svc *Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	e.Use(middleware.Recover())
	if cfg.Server.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(cfg.Server.RateLimit),
				Burst: cfg.Server.RateBurst,
			},
		)))
	}

	s := &Server{
		echo: e,
		cfg:  cfg,
		svc:  svc,
		log:  logger.GetLogger(),
	}

	e.GET("/health", s.handleHealth)
	e.POST("/api/v1/simulate", s.handleSimulate)
	e.POST("/api/v1/simulate/market", s.handleSimulateMarket)
	e.GET("/api/v1/simulate/:id/status", s.handleStatus)

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		e.GET(path, echo.WrapHandler(promhttp.Handler()))
	}

	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	log := s.log.WithComponent("http_server")

	go func() {
		log.WithFields(logger.Fields{"addr": addr}).Info("http server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.WithComponent("http_server").Info("http server stopped")
	return nil
}

// Echo returns the underlying Echo instance, used by tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, sim.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, sim.ErrNumericDomain):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleSimulate(c echo.Context) error {
	var req SimulateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
	}

	resp, err := s.svc.RunSimulation(c.Request().Context(), req)
	if err != nil {
		return c.JSON(statusForError(err), errorResponse{Detail: err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSimulateMarket(c echo.Context) error {
	var req MarketSimulateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
	}

	resp, err := s.svc.RunMarketSimulation(c.Request().Context(), req)
	if err != nil {
		return c.JSON(statusForError(err), errorResponse{Detail: err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c echo.Context) error {
	id := c.Param("id")
	status, ok := s.svc.Status(id)
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Detail: fmt.Sprintf("simulation %s not found", id)})
	}
	return c.JSON(http.StatusOK, status)
}
