// Package server hosts the LINE webhook front door and the operational
// endpoints around it.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/coursesense/calendar"
	"github.com/hrygo/coursesense/config"
	"github.com/hrygo/coursesense/contextstore"
	"github.com/hrygo/coursesense/internal/profile"
	"github.com/hrygo/coursesense/line"
	"github.com/hrygo/coursesense/metrics"
	"github.com/hrygo/coursesense/nlu"
	"github.com/hrygo/coursesense/render"
	"github.com/hrygo/coursesense/store"
	"github.com/hrygo/coursesense/task"
	"github.com/hrygo/coursesense/trace"
)

// Options bundles the server dependencies.
type Options struct {
	Profile    *profile.Profile
	Config     *config.Registry
	Courses    *store.Store
	Contexts   *contextstore.Store
	Pipeline   *nlu.Pipeline
	Extractor  *nlu.Extractor
	Dispatcher *task.Dispatcher
	Renderer   *render.Renderer
	Messaging  *line.Selector
	Calendar   calendar.Sync
	Metrics    *metrics.Exporter
	Recorder   *trace.Recorder
}

// Server is the webhook HTTP server.
type Server struct {
	e *echo.Echo

	profile    *profile.Profile
	cfg        *config.Registry
	courses    *store.Store
	contexts   *contextstore.Store
	pipeline   *nlu.Pipeline
	extractor  *nlu.Extractor
	dispatcher *task.Dispatcher
	renderer   *render.Renderer
	messaging  *line.Selector
	calendar   calendar.Sync
	metrics    *metrics.Exporter
	recorder   *trace.Recorder
}

// NewServer wires routes and middleware.
func NewServer(opts Options) *Server {
	s := &Server{
		profile:    opts.Profile,
		cfg:        opts.Config,
		courses:    opts.Courses,
		contexts:   opts.Contexts,
		pipeline:   opts.Pipeline,
		extractor:  opts.Extractor,
		dispatcher: opts.Dispatcher,
		renderer:   opts.Renderer,
		messaging:  opts.Messaging,
		calendar:   opts.Calendar,
		metrics:    opts.Metrics,
		recorder:   opts.Recorder,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	e.POST("/callback", s.handleCallback)
	e.GET("/health", s.handleHealth)
	e.GET("/health/deps", s.handleHealthDeps)
	e.GET("/health/gcal", s.handleHealthGCal)
	e.GET("/debug/decision", s.handleDebugDecision)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.e = e
	return s
}

// EchoServer exposes the underlying echo instance, for tests.
func (s *Server) EchoServer() *echo.Echo {
	return s.e
}

// Start serves HTTP in the background.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	go func() {
		if err := s.e.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	slog.Info("server shutdown complete")
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status)
			return nil
		},
	})
}
