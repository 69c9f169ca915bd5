package api

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/gooseworks/goose/pkg/chat"
)

// runStreamHandler handles WS /testing/ws/runs: upgrade, subscribe, and
// stream snapshot plus deltas until the client disconnects.
func (s *Server) runStreamHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// The server binds to loopback by default; origin checks are the
		// reverse proxy's concern in any other deployment.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// HandleConnection blocks until the WebSocket closes.
	s.streamServer.HandleConnection(c.Request().Context(), conn, s.jobManager.Subscribe())
	return nil
}

// chatStreamHandler handles WS /chatting/ws/conversations/:id.
func (s *Server) chatStreamHandler(c *echo.Context) error {
	conversationID := c.Param("id")
	if _, err := s.chat.GetConversation(conversationID); err != nil {
		return mapServiceError(c, err)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	s.handleChatConnection(c.Request().Context(), conn, conversationID)
	return nil
}

// handleChatConnection runs the chat read loop: each send_message frame
// triggers one relay turn whose events are written back in order. A relay
// error is reported as an error event and then closes the connection.
func (s *Server) handleChatConnection(parentCtx context.Context, conn *websocket.Conn, conversationID string) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "")

	emit := func(event chat.StreamEvent) error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		writeCtx, cancelWrite := context.WithTimeout(ctx, s.cfg.WSWriteTimeout)
		defer cancelWrite()
		return conn.Write(writeCtx, websocket.MessageText, data)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Connection closed or errored; the subscription dies with it.
			return
		}

		var msg chat.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid chat message",
				"conversation_id", conversationID, "error", err)
			continue
		}
		if msg.Type != "send_message" {
			continue
		}

		if err := s.chat.HandleMessage(ctx, conversationID, msg.Content, emit); err != nil {
			slog.Warn("Chat stream failed",
				"conversation_id", conversationID, "error", err)
			_ = emit(chat.StreamEvent{
				Type: chat.StreamEventError,
				Data: map[string]string{"message": err.Error()},
			})
			return
		}
	}
}
