// Package http provides the HTTP feed API for taskbot.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
	"github.com/fyrsmithlabs/taskbot/internal/logging"
	"github.com/fyrsmithlabs/taskbot/internal/pipeline"
	"github.com/fyrsmithlabs/taskbot/internal/session"
)

// Service is the pipeline surface the server exposes.
type Service interface {
	Ingest(ctx context.Context, userID string, msg extraction.Message) (extraction.Message, error)
	Analyze(ctx context.Context, userID string) (*pipeline.Report, error)
	AnalyzeDirect(ctx context.Context, userID string, msg extraction.Message) (*pipeline.Report, error)
	Choose(ctx context.Context, userID string, index int, destinationID, subList string) (*pipeline.Commit, error)
	Cancel(ctx context.Context, userID string) error
	Session(ctx context.Context, userID string) (session.Session, bool)
	ExtractOnly(msgs []extraction.Message) extraction.Context
}

// Server provides HTTP endpoints for taskbot.
type Server struct {
	echo    *echo.Echo
	service Service
	logger  *logging.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// MaxBodyBytes limits request bodies. Zero uses a 1MB limit.
	MaxBodyBytes int64
}

// NewServer creates a new HTTP server.
func NewServer(service Service, logger *logging.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, errors.New("service cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9090,
		}
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	limit := "1M"
	if cfg.MaxBodyBytes > 0 {
		limit = fmt.Sprintf("%dB", cfg.MaxBodyBytes)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(limit))
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			if user := c.Param("user"); user != "" {
				ctx = logging.WithUserID(ctx, user)
			}
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.config.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.config.Metrics))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/extract", s.handleExtract)

	users := v1.Group("/users/:user")
	users.POST("/messages", s.handleIngest)
	users.POST("/analyze", s.handleAnalyze)
	users.POST("/direct", s.handleDirect)
	users.POST("/cancel", s.handleCancel)
	users.POST("/tasks/:index/destination", s.handleChoose)
	users.GET("/session", s.handleSession)
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
