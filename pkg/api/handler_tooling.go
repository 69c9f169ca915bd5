package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listToolsHandler handles GET /tooling/tools.
func (s *Server) listToolsHandler(c *echo.Context) error {
	tools, err := s.tooling.ListTools(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, tools)
}

// toolSchemaHandler handles GET /tooling/tools/:name.
func (s *Server) toolSchemaHandler(c *echo.Context) error {
	schema, err := s.tooling.Schema(c.Request().Context(), c.Param("name"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, schema)
}

// invokeToolHandler handles POST /tooling/tools/:name/invoke. Tool-level
// failures still return 200 with {success:false}; only transport faults and
// unknown tools are HTTP errors.
func (s *Server) invokeToolHandler(c *echo.Context) error {
	var req InvokeToolRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}
	result, err := s.tooling.Invoke(c.Request().Context(), c.Param("name"), req.Args)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// reloadToolsHandler handles POST /tooling/tools/reload.
func (s *Server) reloadToolsHandler(c *echo.Context) error {
	if err := s.tooling.Reload(c.Request().Context()); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
