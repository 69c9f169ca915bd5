package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// HealthCheck is one named component check in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
}

// healthHandler handles GET /health. The probe itself always reports ok:
// the runner is an external collaborator and its reachability is surfaced
// as a named check without failing the endpoint.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)

	pool := s.jobManager.Health()
	checks["worker_pool"] = HealthCheck{Status: "ok"}
	if pool.TotalWorkers == 0 {
		checks["worker_pool"] = HealthCheck{Status: "degraded", Message: "no workers running"}
	}

	if _, err := s.runnerClient.ListAgents(reqCtx); err != nil {
		checks["runner"] = HealthCheck{Status: "unreachable", Message: err.Error()}
	} else {
		checks["runner"] = HealthCheck{Status: "ok"}
	}

	checks["run_stream"] = HealthCheck{Status: "ok"}

	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}
