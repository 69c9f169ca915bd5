package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// listTestsHandler handles GET /testing/tests. Triggers a discovery scan if
// the cache is cold. Per-file load failures surface as error_text alongside
// the tests that did load.
func (s *Server) listTestsHandler(c *echo.Context) error {
	snapshot, err := s.discovery.List(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

// listRunsHandler handles GET /testing/runs.
func (s *Server) listRunsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.jobManager.ListJobs())
}

// createRunHandler handles POST /testing/runs.
func (s *Server) createRunHandler(c *echo.Context) error {
	var req CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	job, err := s.jobManager.CreateJob(c.Request().Context(), req.Tests)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// getRunHandler handles GET /testing/runs/:id.
func (s *Server) getRunHandler(c *echo.Context) error {
	job, err := s.jobManager.GetJob(c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// requeueRunHandler handles POST /testing/runs/:id/requeue: clones the job's
// test list into a fresh queued job.
func (s *Server) requeueRunHandler(c *echo.Context) error {
	job, err := s.jobManager.Requeue(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// listHistoryHandler handles GET /testing/history: latest result per test.
func (s *Server) listHistoryHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.history.LatestAll())
}

// getHistoryHandler handles GET /testing/history/:name.
func (s *Server) getHistoryHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.history.List(c.Param("name")))
}

// truncateHistoryHandler handles DELETE /testing/history.
func (s *Server) truncateHistoryHandler(c *echo.Context) error {
	if err := s.history.TruncateAll(); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// deleteHistoryHandler handles DELETE /testing/history/:name.
func (s *Server) deleteHistoryHandler(c *echo.Context) error {
	if err := s.history.Truncate(c.Param("name")); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// deleteHistoryEntryHandler handles DELETE /testing/history/:name/:index.
func (s *Server) deleteHistoryEntryHandler(c *echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return respondError(c, http.StatusBadRequest, "index must be an integer")
	}
	if err := s.history.DeleteAt(c.Param("name"), index); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
