package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// conversationListEntry is the serialized cache value for one user's list.
// The write timestamp is checked in addition to the store's own expiry so a
// store without native TTL support still treats old entries as misses.
type conversationListEntry struct {
	WrittenAt     time.Time             `json:"written_at"`
	Conversations []models.Conversation `json:"conversations"`
}

// ConversationCache persists a user's conversation list with expiry. It is a
// write-behind mirror of the in-memory list, never authoritative once a live
// fetch has succeeded.
type ConversationCache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewConversationCache wraps a Store with the list serialization and expiry.
func NewConversationCache(store Store, ttl time.Duration) *ConversationCache {
	return &ConversationCache{store: store, ttl: ttl, now: time.Now}
}

func conversationListKey(userID string) string {
	return "sync:conversations:" + userID
}

func messageHistoryKey(channelID string) string {
	return "sync:messages:" + channelID
}

// Load returns the cached list for the user, or ErrCacheMiss when absent or
// older than the expiry window.
func (c *ConversationCache) Load(ctx context.Context, userID string) ([]models.Conversation, error) {
	data, err := c.store.Get(ctx, conversationListKey(userID))
	if err != nil {
		observability.IncCacheOp("load", "miss")
		return nil, err
	}

	var entry conversationListEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		observability.IncCacheOp("load", "corrupt")
		return nil, fmt.Errorf("decode cached conversations: %w", err)
	}
	if c.now().Sub(entry.WrittenAt) > c.ttl {
		observability.IncCacheOp("load", "stale")
		return nil, ErrCacheMiss
	}

	observability.IncCacheOp("load", "hit")
	return entry.Conversations, nil
}

// Save overwrites the user's cached list. The full list is always written as
// one object so racing writers resolve last-writer-wins, never a field merge.
func (c *ConversationCache) Save(ctx context.Context, userID string, conversations []models.Conversation) error {
	entry := conversationListEntry{WrittenAt: c.now(), Conversations: conversations}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached conversations: %w", err)
	}
	if err := c.store.Set(ctx, conversationListKey(userID), data, c.ttl); err != nil {
		observability.IncCacheOp("save", "error")
		return err
	}
	observability.IncCacheOp("save", "ok")
	return nil
}

// Invalidate drops the user's cached list.
func (c *ConversationCache) Invalidate(ctx context.Context, userID string) error {
	return c.store.Remove(ctx, conversationListKey(userID))
}

// messageHistoryEntry is the serialized cache value for one channel's history.
type messageHistoryEntry struct {
	WrittenAt time.Time        `json:"written_at"`
	Messages  []models.Message `json:"messages"`
}

// LoadMessages returns the cached history for a channel, or ErrCacheMiss when
// absent or older than the expiry window.
func (c *ConversationCache) LoadMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	data, err := c.store.Get(ctx, messageHistoryKey(channelID))
	if err != nil {
		observability.IncCacheOp("load_messages", "miss")
		return nil, err
	}

	var entry messageHistoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		observability.IncCacheOp("load_messages", "corrupt")
		return nil, fmt.Errorf("decode cached messages: %w", err)
	}
	if c.now().Sub(entry.WrittenAt) > c.ttl {
		observability.IncCacheOp("load_messages", "stale")
		return nil, ErrCacheMiss
	}

	observability.IncCacheOp("load_messages", "hit")
	return entry.Messages, nil
}

// SaveMessages overwrites the channel's cached history as one object.
func (c *ConversationCache) SaveMessages(ctx context.Context, channelID string, messages []models.Message) error {
	entry := messageHistoryEntry{WrittenAt: c.now(), Messages: messages}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached messages: %w", err)
	}
	if err := c.store.Set(ctx, messageHistoryKey(channelID), data, c.ttl); err != nil {
		observability.IncCacheOp("save_messages", "error")
		return err
	}
	observability.IncCacheOp("save_messages", "ok")
	return nil
}

// DropMessages clears the cached message history for a channel. Called when a
// conversation is removed.
func (c *ConversationCache) DropMessages(ctx context.Context, channelID string) error {
	return c.store.Remove(ctx, messageHistoryKey(channelID))
}
