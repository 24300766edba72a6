package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/send"
	"chat-sync/internal/session"
	"chat-sync/internal/store"
)

// SyncHandler exposes the sync engine to the hosting dashboard's API.
type SyncHandler struct {
	registry  *session.Registry
	convStore store.ConversationStore
}

// NewSyncHandler builds a SyncHandler.
func NewSyncHandler(registry *session.Registry, convStore store.ConversationStore) *SyncHandler {
	return &SyncHandler{registry: registry, convStore: convStore}
}

func (h *SyncHandler) userSession(c *gin.Context) (*session.Session, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return nil, false
	}
	s, err := h.registry.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
		return nil, false
	}
	return s, true
}

// ListConversations returns the user's conversation list.
func (h *SyncHandler) ListConversations(c *gin.Context) {
	s, ok := h.userSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": s.Manager.Snapshot()})
}

// SearchConversations filters the list by name or participant.
func (h *SyncHandler) SearchConversations(c *gin.Context) {
	s, ok := h.userSession(c)
	if !ok {
		return
	}
	matches := s.Manager.Search(c.Query("q"))
	if matches == nil {
		matches = []models.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": matches})
}

// AddConversation tracks a newly created conversation.
func (h *SyncHandler) AddConversation(c *gin.Context) {
	s, ok := h.userSession(c)
	if !ok {
		return
	}

	var conv models.Conversation
	if err := c.ShouldBindJSON(&conv); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if conv.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing conversation id"})
		return
	}

	s.Manager.Add(c.Request.Context(), conv)
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// RemoveConversation deletes a conversation and untracks it.
func (h *SyncHandler) RemoveConversation(c *gin.Context) {
	s, ok := h.userSession(c)
	if !ok {
		return
	}
	channelID := c.Param("channel_id")

	if err := h.convStore.DeleteConversation(c.Request.Context(), channelID); err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}

	s.Manager.Remove(c.Request.Context(), channelID)
	c.JSON(http.StatusOK, gin.H{"deleted": channelID})
}

// MarkRead resets the unread counter for a conversation.
func (h *SyncHandler) MarkRead(c *gin.Context) {
	s, ok := h.userSession(c)
	if !ok {
		return
	}
	channelID := c.Param("channel_id")
	s.Manager.MarkRead(c.Request.Context(), channelID)
	c.JSON(http.StatusOK, gin.H{"channel_id": channelID, "unread_count": 0})
}

// OpenConversation switches the open conversation and returns the merged view.
func (h *SyncHandler) OpenConversation(c *gin.Context) {
	s, ok := h.userSession(c)
	if !ok {
		return
	}
	channelID := c.Param("channel_id")

	merged, err := s.OpenConversation(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if merged == nil {
		merged = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": channelID, "messages": merged})
}

// SendMessage runs the send pipeline.
func (h *SyncHandler) SendMessage(c *gin.Context) {
	s, ok := h.userSession(c)
	if !ok {
		return
	}
	channelID := c.Param("channel_id")

	var req struct {
		Content     string              `json:"content"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := s.Send(c.Request.Context(), channelID, req.Content, req.Attachments)
	switch {
	case errors.Is(err, send.ErrEmptySend):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
	case errors.Is(err, send.ErrAttachmentsFailed):
		// Partial success: the message is durable, the attachments are not.
		c.JSON(http.StatusCreated, gin.H{"message": msg, "warning": "attachments failed"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "message not sent"})
	default:
		c.JSON(http.StatusCreated, gin.H{"message": msg})
	}
}
