package store

import (
	"context"
	"errors"

	"chat-sync/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// ConversationStore is the durable-store contract for conversation lists.
type ConversationStore interface {
	FetchConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	DeleteConversation(ctx context.Context, channelID string) error
	MarkConversationRead(ctx context.Context, channelID string, userID string) error
}

// MessageStore is the durable-store contract for message history and writes.
type MessageStore interface {
	FetchMessages(ctx context.Context, channelID string) ([]models.Message, error)
	InsertMessage(ctx context.Context, channelID string, senderID string, content string) (string, error)
	InsertAttachments(ctx context.Context, messageID string, attachments []models.Attachment) error
}
