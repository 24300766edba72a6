package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/cache"
	"chat-sync/internal/middleware"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/session"
	"chat-sync/internal/store"
)

func newTestRouter(t *testing.T, convStore *mocks.ConversationStoreMock, msgStore *mocks.MessageStoreMock) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := session.NewRegistry(session.Deps{
		ConvStore: convStore,
		MsgStore:  msgStore,
		Cache:     cache.NewConversationCache(cache.NewMemory(), time.Minute),
	})
	t.Cleanup(registry.Close)

	handler := NewSyncHandler(registry, convStore)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(middleware.ContextUserID, user)
		}
	})
	router.GET("/conversations", handler.ListConversations)
	router.GET("/conversations/search", handler.SearchConversations)
	router.POST("/conversations", handler.AddConversation)
	router.DELETE("/conversations/:channel_id", handler.RemoveConversation)
	router.POST("/conversations/:channel_id/read", handler.MarkRead)
	router.GET("/conversations/:channel_id/messages", handler.OpenConversation)
	router.POST("/conversations/:channel_id/messages", handler.SendMessage)
	return router
}

func doRequest(router *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListConversationsReturnsList(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	convStore.On("FetchConversations", mock.Anything, "u1").
		Return([]models.Conversation{{ID: "chan-1", Name: "General"}}, nil)
	msgStore := new(mocks.MessageStoreMock)

	router := newTestRouter(t, convStore, msgStore)

	rec := doRequest(router, http.MethodGet, "/conversations", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The background refresh may not have landed yet; a second request reads
	// the settled list.
	require.Eventually(t, func() bool {
		rec := doRequest(router, http.MethodGet, "/conversations", "u1", nil)
		var resp struct {
			Conversations []models.Conversation `json:"conversations"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			return false
		}
		return len(resp.Conversations) == 1 && resp.Conversations[0].ID == "chan-1"
	}, time.Second, 10*time.Millisecond)
}

func TestMissingUserRejected(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	msgStore := new(mocks.MessageStoreMock)
	router := newTestRouter(t, convStore, msgStore)

	rec := doRequest(router, http.MethodGet, "/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	convStore.AssertNotCalled(t, "FetchConversations", mock.Anything, mock.Anything)
}

func TestSendMessageEmptyRejected(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	convStore.On("FetchConversations", mock.Anything, "u1").Return(nil, nil)
	msgStore := new(mocks.MessageStoreMock)
	router := newTestRouter(t, convStore, msgStore)

	rec := doRequest(router, http.MethodPost, "/conversations/chan-1/messages", "u1",
		gin.H{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msgStore.AssertNotCalled(t, "InsertMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageCreated(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	convStore.On("FetchConversations", mock.Anything, "u1").Return(nil, nil)
	msgStore := new(mocks.MessageStoreMock)
	msgStore.On("InsertMessage", mock.Anything, "chan-1", "u1", "hello").Return("srv-1", nil).Once()

	router := newTestRouter(t, convStore, msgStore)

	rec := doRequest(router, http.MethodPost, "/conversations/chan-1/messages", "u1",
		gin.H{"content": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Message models.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello", resp.Message.Content)
	assert.True(t, resp.Message.IsTransient())
	msgStore.AssertExpectations(t)
}

func TestRemoveConversationNotFound(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	convStore.On("FetchConversations", mock.Anything, "u1").Return(nil, nil)
	convStore.On("DeleteConversation", mock.Anything, "ghost").Return(store.ErrConversationNotFound).Once()
	msgStore := new(mocks.MessageStoreMock)

	router := newTestRouter(t, convStore, msgStore)

	rec := doRequest(router, http.MethodDelete, "/conversations/ghost", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	convStore.AssertExpectations(t)
}

func TestRemoveConversationDropsFromList(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	convStore.On("FetchConversations", mock.Anything, "u1").
		Return([]models.Conversation{{ID: "chan-1"}, {ID: "chan-2"}}, nil)
	convStore.On("DeleteConversation", mock.Anything, "chan-1").Return(nil).Once()
	msgStore := new(mocks.MessageStoreMock)

	router := newTestRouter(t, convStore, msgStore)

	require.Eventually(t, func() bool {
		rec := doRequest(router, http.MethodGet, "/conversations", "u1", nil)
		var resp struct {
			Conversations []models.Conversation `json:"conversations"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		return len(resp.Conversations) == 2
	}, time.Second, 10*time.Millisecond)

	rec := doRequest(router, http.MethodDelete, "/conversations/chan-1", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/conversations", "u1", nil)
	var resp struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "chan-2", resp.Conversations[0].ID)
}

func TestSearchConversationsFilters(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	convStore.On("FetchConversations", mock.Anything, "u1").
		Return([]models.Conversation{
			{ID: "chan-1", Name: "Platform Team"},
			{ID: "chan-2", Name: "Random"},
		}, nil)
	msgStore := new(mocks.MessageStoreMock)

	router := newTestRouter(t, convStore, msgStore)

	require.Eventually(t, func() bool {
		rec := doRequest(router, http.MethodGet, "/conversations/search?q=platform", "u1", nil)
		var resp struct {
			Conversations []models.Conversation `json:"conversations"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		return len(resp.Conversations) == 1 && resp.Conversations[0].ID == "chan-1"
	}, time.Second, 10*time.Millisecond)
}

func TestOpenConversationReturnsMergedView(t *testing.T) {
	convStore := new(mocks.ConversationStoreMock)
	convStore.On("FetchConversations", mock.Anything, "u1").Return(nil, nil)
	msgStore := new(mocks.MessageStoreMock)
	msgStore.On("FetchMessages", mock.Anything, "chan-1").
		Return([]models.Message{{
			ID:        "m1",
			ChannelID: "chan-1",
			Content:   "hi",
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}}, nil).Once()

	router := newTestRouter(t, convStore, msgStore)

	rec := doRequest(router, http.MethodGet, "/conversations/chan-1/messages", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ChannelID string           `json:"channel_id"`
		Messages  []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "chan-1", resp.ChannelID)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "m1", resp.Messages[0].ID)
	msgStore.AssertExpectations(t)
}
