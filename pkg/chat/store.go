// Package chat maintains in-process conversation state and bridges client
// WebSocket connections to the streaming agent interface.
package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gooseworks/goose/pkg/models"
)

// Store holds conversations in process memory. Nothing survives a restart.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{conversations: make(map[string]*models.Conversation)}
}

// Create registers a new conversation for an agent/model pair.
func (s *Store) Create(agentID, model, title string) models.Conversation {
	now := time.Now().UTC()
	conversation := &models.Conversation{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Model:     model,
		Title:     title,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.conversations[conversation.ID] = conversation
	s.mu.Unlock()
	return conversation.Clone()
}

// List returns all conversations, newest first.
func (s *Store) List() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conversation, 0, len(s.conversations))
	for _, conversation := range s.conversations {
		out = append(out, conversation.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Get returns one conversation by id.
func (s *Store) Get(id string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conversation.Clone(), nil
}

// Delete removes a conversation. Idempotent on missing ids is not wanted
// here: the API distinguishes 204 from 404.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	return nil
}

// Clear drops a conversation's messages while keeping its id and creation
// timestamp.
func (s *Store) Clear(id string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	conversation.Messages = []models.Message{}
	conversation.UpdatedAt = time.Now().UTC()
	return conversation.Clone(), nil
}

// AppendMessage adds one message to a conversation's transcript.
func (s *Store) AppendMessage(id string, message models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conversation.Messages = append(conversation.Messages, message)
	conversation.UpdatedAt = time.Now().UTC()
	return nil
}
