package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gooseworks/goose/pkg/models"
)

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()

	conversation := store.Create("helper", "gpt-test", "first chat")
	assert.NotEmpty(t, conversation.ID)
	assert.Equal(t, "first chat", conversation.Title)

	got, err := store.Get(conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, got.ID)

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, store.Delete(conversation.ID))
	assert.ErrorIs(t, store.Delete(conversation.ID), ErrConversationNotFound)
}

func TestClearKeepsIDAndCreationTime(t *testing.T) {
	store := NewStore()
	conversation := store.Create("helper", "gpt-test", "")

	require.NoError(t, store.AppendMessage(conversation.ID, models.Message{Role: "human", Content: "hi"}))
	require.NoError(t, store.AppendMessage(conversation.ID, models.Message{Role: "ai", Content: "hello"}))

	cleared, err := store.Clear(conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, cleared.ID)
	assert.Equal(t, conversation.CreatedAt, cleared.CreatedAt)
	assert.Empty(t, cleared.Messages)

	_, err = store.Clear("missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestClonesAreDetachedFromStore(t *testing.T) {
	store := NewStore()
	conversation := store.Create("helper", "gpt-test", "")
	require.NoError(t, store.AppendMessage(conversation.ID, models.Message{Role: "human", Content: "hi"}))

	clone, err := store.Get(conversation.ID)
	require.NoError(t, err)
	clone.Messages[0].Content = "mutated"

	fresh, err := store.Get(conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", fresh.Messages[0].Content)
}
