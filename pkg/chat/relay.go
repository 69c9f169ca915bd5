package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gooseworks/goose/pkg/models"
	"github.com/gooseworks/goose/pkg/runner"
)

// ErrAgentNotFound is returned when the runner does not publish the
// requested agent.
var ErrAgentNotFound = errors.New("agent not found")

// Stream event type labels on the chat wire protocol.
const (
	StreamEventMessage    = "message"
	StreamEventToken      = "token"
	StreamEventToolCall   = "tool_call"
	StreamEventToolOutput = "tool_output"
	StreamEventMessageEnd = "message_end"
	StreamEventError      = "error"
)

// StreamEvent is one server-to-client chat frame.
type StreamEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ClientMessage is one client-to-server chat frame.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// EmitFunc delivers one stream event to the client. A non-nil return aborts
// the stream (the client is gone).
type EmitFunc func(StreamEvent) error

// Service owns conversation state and the chat relay. One stream may be in
// flight per conversation at a time.
type Service struct {
	store  *Store
	runner runner.Client
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewService creates the chat service.
func NewService(store *Store, runnerClient runner.Client, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		runner: runnerClient,
		logger: logger.With("component", "chat"),
		active: make(map[string]struct{}),
	}
}

// ListAgents returns the runner's chat-capable agent catalog.
func (s *Service) ListAgents(ctx context.Context) ([]models.AgentInfo, error) {
	return s.runner.ListAgents(ctx)
}

// GetAgent returns one agent by id.
func (s *Service) GetAgent(ctx context.Context, id string) (models.AgentInfo, error) {
	agents, err := s.runner.ListAgents(ctx)
	if err != nil {
		return models.AgentInfo{}, err
	}
	for _, agent := range agents {
		if agent.ID == id {
			return agent, nil
		}
	}
	return models.AgentInfo{}, ErrAgentNotFound
}

// CreateConversation validates the agent/model pair against the catalog and
// registers a new conversation.
func (s *Service) CreateConversation(ctx context.Context, agentID, model, title string) (models.Conversation, error) {
	if agentID == "" {
		return models.Conversation{}, NewValidationError("agent_id", "agent_id is required")
	}
	if model == "" {
		return models.Conversation{}, NewValidationError("model", "model is required")
	}
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			return models.Conversation{}, NewValidationError("agent_id", fmt.Sprintf("unknown agent: %s", agentID))
		}
		return models.Conversation{}, err
	}
	supported := false
	for _, m := range agent.Models {
		if m == model {
			supported = true
			break
		}
	}
	if !supported {
		return models.Conversation{}, NewValidationError("model",
			fmt.Sprintf("agent %s does not support model %s", agentID, model))
	}
	return s.store.Create(agentID, model, title), nil
}

// ListConversations returns all conversations, newest first.
func (s *Service) ListConversations() []models.Conversation {
	return s.store.List()
}

// GetConversation returns one conversation by id.
func (s *Service) GetConversation(id string) (models.Conversation, error) {
	return s.store.Get(id)
}

// DeleteConversation removes a conversation.
func (s *Service) DeleteConversation(id string) error {
	return s.store.Delete(id)
}

// ClearConversation drops a conversation's messages, keeping its id.
func (s *Service) ClearConversation(id string) (models.Conversation, error) {
	return s.store.Clear(id)
}

// HandleMessage runs one agent turn for a conversation: append the user
// message, stream the agent's reply through emit, and append the assembled
// AI message at the end. Events reach the client in exactly the order the
// agent produced them. Returns ErrStreamActive when a turn is already in
// flight for the conversation.
func (s *Service) HandleMessage(ctx context.Context, conversationID, content string, emit EmitFunc) error {
	if err := s.acquire(conversationID); err != nil {
		return err
	}
	defer s.release(conversationID)

	userMessage := models.Message{Role: "human", Content: content}
	if err := s.store.AppendMessage(conversationID, userMessage); err != nil {
		return err
	}
	if err := emit(StreamEvent{Type: StreamEventMessage, Data: map[string]string{
		"role":    userMessage.Role,
		"content": userMessage.Content,
	}}); err != nil {
		return err
	}

	conversation, err := s.store.Get(conversationID)
	if err != nil {
		return err
	}

	chunks, err := s.runner.StreamChat(ctx, conversation.AgentID, conversation.Model, conversation.Messages)
	if err != nil {
		return fmt.Errorf("starting agent stream: %w", err)
	}

	var reply strings.Builder
	for chunk := range chunks {
		switch c := chunk.(type) {
		case runner.TokenChunk:
			reply.WriteString(c.Content)
			if err := emit(StreamEvent{Type: StreamEventToken, Data: map[string]string{
				"content": c.Content,
			}}); err != nil {
				return err
			}
		case runner.ToolCallChunk:
			data := map[string]any{"name": c.Name, "args": c.Args}
			if c.ID != "" {
				data["id"] = c.ID
			}
			if err := emit(StreamEvent{Type: StreamEventToolCall, Data: data}); err != nil {
				return err
			}
		case runner.ToolOutputChunk:
			data := map[string]any{"tool_name": c.ToolName, "content": c.Content}
			if c.ToolCallID != "" {
				data["tool_call_id"] = c.ToolCallID
			}
			if err := emit(StreamEvent{Type: StreamEventToolOutput, Data: data}); err != nil {
				return err
			}
		case runner.ErrorChunk:
			return fmt.Errorf("agent stream failed: %s", c.Message)
		}
	}

	if reply.Len() > 0 {
		aiMessage := models.Message{Role: "ai", Content: reply.String()}
		if err := s.store.AppendMessage(conversationID, aiMessage); err != nil {
			s.logger.Warn("Failed to record AI message", "conversation_id", conversationID, "error", err)
		}
	}

	return emit(StreamEvent{Type: StreamEventMessageEnd})
}

func (s *Service) acquire(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[conversationID]; busy {
		return ErrStreamActive
	}
	s.active[conversationID] = struct{}{}
	return nil
}

func (s *Service) release(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, conversationID)
}
