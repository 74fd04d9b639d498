package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/coursesense/internal/version"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.GetCurrentVersion(s.profile.Mode),
		"mode":    s.profile.Mode,
	})
}

// handleHealthDeps probes each dependency. Degraded optional dependencies
// report their state without failing the check; a dead course store does.
func (s *Server) handleHealthDeps(c echo.Context) error {
	ctx := c.Request().Context()
	deps := map[string]string{}
	healthy := true

	dbStatus := "ok"
	if err := s.courses.GetDriver().GetDB().PingContext(ctx); err != nil {
		dbStatus = err.Error()
		healthy = false
	}
	deps["database"] = dbStatus

	contextStatus := "ok"
	if s.contexts == nil {
		contextStatus = "disabled"
	} else if err := s.contexts.HealthCheck(ctx); err != nil {
		// The context store is optional; the bot degrades to stateless
		// conversations without it.
		contextStatus = "degraded: " + err.Error()
	}
	deps["contextStore"] = contextStatus

	calendarStatus := "disabled"
	if s.calendar != nil {
		calendarStatus = "ok"
		if err := s.calendar.HealthCheck(ctx); err != nil {
			calendarStatus = "degraded: " + err.Error()
		}
	}
	deps["calendar"] = calendarStatus

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	return c.JSON(status, map[string]any{
		"status":       overall,
		"dependencies": deps,
	})
}

func (s *Server) handleHealthGCal(c echo.Context) error {
	if s.calendar == nil {
		return c.JSON(http.StatusOK, map[string]string{"mode": "disabled"})
	}
	resp := map[string]string{"mode": string(s.calendar.Mode())}
	if err := s.calendar.HealthCheck(c.Request().Context()); err != nil {
		resp["status"] = "degraded"
		resp["error"] = err.Error()
	} else {
		resp["status"] = "ok"
	}
	return c.JSON(http.StatusOK, resp)
}

// handleDebugDecision exposes the recorded decision trail of one trace,
// or the most recent entries when no traceId is given.
func (s *Server) handleDebugDecision(c echo.Context) error {
	if s.recorder == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "decision recording disabled"})
	}
	if traceID := c.QueryParam("traceId"); traceID != "" {
		return c.JSON(http.StatusOK, map[string]any{
			"traceId": traceID,
			"entries": s.recorder.ByTraceID(traceID),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": s.recorder.Recent(50),
	})
}
