package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/cache"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func newTestSession(t *testing.T, convStore *mocks.ConversationStoreMock, msgStore *mocks.MessageStoreMock, cached []models.Conversation) *Session {
	t.Helper()
	convCache := cache.NewConversationCache(cache.NewMemory(), time.Minute)
	if cached != nil {
		require.NoError(t, convCache.Save(context.Background(), "me", cached))
	}
	s, err := NewSession(context.Background(), "me", Deps{
		ConvStore: convStore,
		MsgStore:  msgStore,
		Cache:     convCache,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSessionEventFeedsBothConsumers(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	cached := []models.Conversation{{ID: "chan-1", Name: "One"}}
	// The background refresh fails; the manager keeps the cache-loaded list.
	convStore.On("FetchConversations", mock.Anything, "me").Return(nil, assert.AnError)

	msgStore := new(mocks.MessageStoreMock)
	msgStore.On("FetchMessages", mock.Anything, "chan-1").Return(nil, nil).Once()

	s := newTestSession(t, convStore, msgStore, cached)

	_, err := s.OpenConversation(context.Background(), "chan-1")
	require.NoError(t, err)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.handleEvent(models.InsertEvent{ID: "m1", ChannelID: "chan-1", SenderID: "alice", Content: "hi", CreatedAt: at})

	merged := s.Reconciler.Merged()
	require.Len(t, merged, 1)
	assert.Equal(t, "m1", merged[0].ID)

	list := s.Manager.Snapshot()
	require.NotEmpty(t, list)
	assert.Equal(t, "chan-1", list[0].ID)
	assert.Equal(t, 1, list[0].UnreadCount)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "hi", *list[0].LastMessage)
}

func TestSessionSwitchDiscardsPendingOptimistic(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	convStore.On("FetchConversations", mock.Anything, "me").Return(nil, assert.AnError)

	msgStore := new(mocks.MessageStoreMock)
	msgStore.On("FetchMessages", mock.Anything, "chan-x").Return(nil, nil).Once()
	msgStore.On("FetchMessages", mock.Anything, "chan-y").Return(nil, nil).Once()
	msgStore.On("InsertMessage", mock.Anything, "chan-x", "me", "unconfirmed").Return("srv-1", nil).Once()

	s := newTestSession(t, convStore, msgStore, nil)

	_, err := s.OpenConversation(context.Background(), "chan-x")
	require.NoError(t, err)
	_, err = s.Send(context.Background(), "chan-x", "unconfirmed", nil)
	require.NoError(t, err)
	require.Equal(t, 1, s.Reconciler.TransientCount())

	merged, err := s.OpenConversation(context.Background(), "chan-y")
	require.NoError(t, err)
	assert.Empty(t, merged)
	assert.Equal(t, 0, s.Reconciler.TransientCount())
}

func TestSessionOpenSurvivesHistoryFetchFailure(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	convStore.On("FetchConversations", mock.Anything, "me").Return(nil, assert.AnError)

	msgStore := new(mocks.MessageStoreMock)
	msgStore.On("FetchMessages", mock.Anything, "chan-1").Return(nil, assert.AnError).Once()

	s := newTestSession(t, convStore, msgStore, nil)

	merged, err := s.OpenConversation(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Empty(t, merged)

	// The open conversation still accepts realtime traffic.
	s.handleEvent(models.InsertEvent{ID: "m1", ChannelID: "chan-1", SenderID: "alice", Content: "hi", CreatedAt: time.Now()})
	assert.Len(t, s.Reconciler.Merged(), 1)
}
