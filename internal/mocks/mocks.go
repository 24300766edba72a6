package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/cache"
	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

type ConversationStoreMock struct {
	mock.Mock
}

func (m *ConversationStoreMock) FetchConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationStoreMock) DeleteConversation(ctx context.Context, channelID string) error {
	args := m.Called(ctx, channelID)
	return args.Error(0)
}

func (m *ConversationStoreMock) MarkConversationRead(ctx context.Context, channelID string, userID string) error {
	args := m.Called(ctx, channelID, userID)
	return args.Error(0)
}

type MessageStoreMock struct {
	mock.Mock
}

func (m *MessageStoreMock) FetchMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	args := m.Called(ctx, channelID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageStoreMock) InsertMessage(ctx context.Context, channelID string, senderID string, content string) (string, error) {
	args := m.Called(ctx, channelID, senderID, content)
	return args.String(0), args.Error(1)
}

func (m *MessageStoreMock) InsertAttachments(ctx context.Context, messageID string, attachments []models.Attachment) error {
	args := m.Called(ctx, messageID, attachments)
	return args.Error(0)
}

type CacheStoreMock struct {
	mock.Mock
}

func (m *CacheStoreMock) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	var data []byte
	if val := args.Get(0); val != nil {
		data = val.([]byte)
	}
	return data, args.Error(1)
}

func (m *CacheStoreMock) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *CacheStoreMock) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

var _ store.ConversationStore = (*ConversationStoreMock)(nil)
var _ store.MessageStore = (*MessageStoreMock)(nil)
var _ cache.Store = (*CacheStoreMock)(nil)
