package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listAgentsHandler handles GET /chatting/agents.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	agents, err := s.chat.ListAgents(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, agents)
}

// getAgentHandler handles GET /chatting/agents/:id.
func (s *Server) getAgentHandler(c *echo.Context) error {
	agent, err := s.chat.GetAgent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, agent)
}

// listConversationsHandler handles GET /chatting/conversations.
func (s *Server) listConversationsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.chat.ListConversations())
}

// createConversationHandler handles POST /chatting/conversations.
func (s *Server) createConversationHandler(c *echo.Context) error {
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	conversation, err := s.chat.CreateConversation(c.Request().Context(), req.AgentID, req.Model, req.Title)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, conversation)
}

// getConversationHandler handles GET /chatting/conversations/:id.
func (s *Server) getConversationHandler(c *echo.Context) error {
	conversation, err := s.chat.GetConversation(c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, conversation)
}

// deleteConversationHandler handles DELETE /chatting/conversations/:id.
func (s *Server) deleteConversationHandler(c *echo.Context) error {
	if err := s.chat.DeleteConversation(c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// clearConversationHandler handles POST /chatting/conversations/:id/clear.
func (s *Server) clearConversationHandler(c *echo.Context) error {
	conversation, err := s.chat.ClearConversation(c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, conversation)
}
