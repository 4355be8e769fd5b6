// Package http exposes the sanitization pipeline over a JSON HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/phisan/internal/logging"
	"github.com/fyrsmithlabs/phisan/internal/pipeline"
	"github.com/fyrsmithlabs/phisan/internal/record"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Sanitizer is the pipeline surface the server needs.
type Sanitizer interface {
	Sanitize(ctx context.Context, rec record.CanonicalRecord) (*pipeline.Result, error)
	SanitizeBatch(ctx context.Context, recs []record.CanonicalRecord) ([]*pipeline.Result, error)
}

// Server provides HTTP endpoints for phisan.
type Server struct {
	echo      *echo.Echo
	sanitizer Sanitizer
	logger    *logging.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host      string
	Port      int
	MaxBatch  int
	BodyLimit string
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() *Config {
	return &Config{Host: "localhost", Port: 9090, MaxBatch: 1000, BodyLimit: "16M"}
}

// NewServer creates a new HTTP server.
func NewServer(sanitizer Sanitizer, logger *logging.Logger, cfg *Config) (*Server, error) {
	if sanitizer == nil {
		return nil, fmt.Errorf("sanitizer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultConfig().MaxBatch
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = DefaultConfig().BodyLimit
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(NewHTTPMetrics(logger.Underlying()).MetricsMiddleware())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:      e,
		sanitizer: sanitizer,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

// requestLogger tags the request context with its request ID and logs one
// line per request. URIs carry no PHI; bodies are never logged.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sanitize", s.handleSanitize)
	v1.POST("/sanitize/batch", s.handleSanitizeBatch)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// BatchRequest is the request body for POST /api/v1/sanitize/batch.
type BatchRequest struct {
	Records []record.CanonicalRecord `json:"records"`
}

// BatchResponse is the response body for POST /api/v1/sanitize/batch.
type BatchResponse struct {
	Results []*pipeline.Result `json:"results"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSanitize(c echo.Context) error {
	var rec record.CanonicalRecord
	if err := c.Bind(&rec); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid sanitize request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if rec.RecordID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "record_id is required")
	}
	rec.Normalize()

	res, err := s.sanitizer.Sanitize(c.Request().Context(), rec)
	if err != nil {
		return s.sanitizeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSanitizeBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid batch request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Records) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "records field is required")
	}
	if len(req.Records) > s.config.MaxBatch {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch of %d records exceeds limit %d", len(req.Records), s.config.MaxBatch))
	}
	for i := range req.Records {
		if req.Records[i].RecordID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("records[%d].record_id is required", i))
		}
		req.Records[i].Normalize()
	}

	results, err := s.sanitizer.SanitizeBatch(c.Request().Context(), req.Records)
	if err != nil {
		return s.sanitizeError(c, err)
	}
	return c.JSON(http.StatusOK, BatchResponse{Results: results})
}

// sanitizeError maps pipeline failures to status codes. Detector errors
// are reported without detail since they may quote sidecar responses.
func (s *Server) sanitizeError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	switch {
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(499, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(ctx, "sanitize timed out", zap.Error(err))
		return echo.NewHTTPError(http.StatusGatewayTimeout, "detector timed out")
	default:
		s.logger.Error(ctx, "sanitize failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "sanitization failed")
	}
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}
