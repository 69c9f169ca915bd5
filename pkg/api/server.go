// Package api is the HTTP and WebSocket protocol surface. It translates
// requests into calls on the discovery, queue, history, tooling, and chat
// services, and bridges WebSocket clients onto the run stream and chat relay.
package api

import (
	"context"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/gooseworks/goose/pkg/chat"
	"github.com/gooseworks/goose/pkg/config"
	"github.com/gooseworks/goose/pkg/discovery"
	"github.com/gooseworks/goose/pkg/events"
	"github.com/gooseworks/goose/pkg/history"
	"github.com/gooseworks/goose/pkg/queue"
	"github.com/gooseworks/goose/pkg/runner"
	"github.com/gooseworks/goose/pkg/tooling"
)

// Server is the HTTP server wiring all services onto the route table.
type Server struct {
	cfg config.ServerConfig

	discovery    *discovery.Service
	jobManager   *queue.Manager
	history      *history.Store
	tooling      *tooling.Service
	chat         *chat.Service
	streamServer *events.StreamServer
	runnerClient runner.Client
	logger       *slog.Logger

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer creates the server and registers all routes.
func NewServer(
	cfg config.ServerConfig,
	disc *discovery.Service,
	jobManager *queue.Manager,
	hist *history.Store,
	tool *tooling.Service,
	chatService *chat.Service,
	streamServer *events.StreamServer,
	runnerClient runner.Client,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:          cfg,
		discovery:    disc,
		jobManager:   jobManager,
		history:      hist,
		tooling:      tool,
		chat:         chatService,
		streamServer: streamServer,
		runnerClient: runnerClient,
		logger:       logger.With("component", "api"),
	}

	e := echo.New()
	e.Use(securityHeaders())
	s.registerRoutes(e)
	s.echo = e
	s.httpServer = &http.Server{
		Addr:    cfg.Addr(),
		Handler: e,
	}
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/health", s.healthHandler)

	testing := e.Group("/testing")
	testing.GET("/tests", s.listTestsHandler)
	testing.GET("/runs", s.listRunsHandler)
	testing.POST("/runs", s.createRunHandler)
	testing.GET("/runs/:id", s.getRunHandler)
	testing.POST("/runs/:id/requeue", s.requeueRunHandler)
	testing.GET("/history", s.listHistoryHandler)
	testing.GET("/history/:name", s.getHistoryHandler)
	testing.DELETE("/history", s.truncateHistoryHandler)
	testing.DELETE("/history/:name", s.deleteHistoryHandler)
	testing.DELETE("/history/:name/:index", s.deleteHistoryEntryHandler)
	testing.GET("/ws/runs", s.runStreamHandler)

	toolingGroup := e.Group("/tooling")
	toolingGroup.GET("/tools", s.listToolsHandler)
	toolingGroup.POST("/tools/reload", s.reloadToolsHandler)
	toolingGroup.GET("/tools/:name", s.toolSchemaHandler)
	toolingGroup.POST("/tools/:name/invoke", s.invokeToolHandler)

	chatting := e.Group("/chatting")
	chatting.GET("/agents", s.listAgentsHandler)
	chatting.GET("/agents/:id", s.getAgentHandler)
	chatting.GET("/conversations", s.listConversationsHandler)
	chatting.POST("/conversations", s.createConversationHandler)
	chatting.GET("/conversations/:id", s.getConversationHandler)
	chatting.DELETE("/conversations/:id", s.deleteConversationHandler)
	chatting.POST("/conversations/:id/clear", s.clearConversationHandler)
	chatting.GET("/ws/conversations/:id", s.chatStreamHandler)
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.cfg.Addr())
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
