package fetch

import (
	"context"
	"log"

	"chat-sync/internal/cache"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/store"
)

// MessageFetcher retrieves the canonical message history for one channel. The
// result is written through to the cache; a fetch failure degrades to the
// cached history when one exists.
type MessageFetcher struct {
	store store.MessageStore
	cache *cache.ConversationCache
}

// NewMessageFetcher constructs a MessageFetcher. cache may be nil.
func NewMessageFetcher(msgStore store.MessageStore, convCache *cache.ConversationCache) *MessageFetcher {
	return &MessageFetcher{store: msgStore, cache: convCache}
}

// Fetch returns the ordered history for the channel. An empty conversation is
// a valid result, not an error.
func (f *MessageFetcher) Fetch(ctx context.Context, channelID string) ([]models.Message, error) {
	messages, err := f.store.FetchMessages(ctx, channelID)
	if err != nil {
		if f.cache != nil {
			if cached, cacheErr := f.cache.LoadMessages(ctx, channelID); cacheErr == nil {
				log.Printf("message fetch failed, serving cached history channel=%s: %v", channelID, err)
				observability.IncFetch("messages", "stale")
				return cached, nil
			}
		}
		observability.IncFetch("messages", "error")
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.SaveMessages(ctx, channelID, messages); err != nil {
			log.Printf("message cache save failed channel=%s: %v", channelID, err)
		}
	}

	observability.IncFetch("messages", "ok")
	return messages, nil
}
