package fetch

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"chat-sync/internal/cache"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/store"
)

// ErrNoConversations is returned when a fetch fails and no stale data exists
// to fall back on.
var ErrNoConversations = errors.New("no conversation data available")

// ConversationFetcher retrieves the canonical conversation list. Concurrent
// fetches for the same user join an in-flight call instead of restarting it;
// a force refresh bypasses the join. Fetch failures degrade to the last good
// result when one exists.
type ConversationFetcher struct {
	store store.ConversationStore
	cache *cache.ConversationCache
	group singleflight.Group

	mu       sync.RWMutex
	lastGood map[string][]models.Conversation
}

// NewConversationFetcher constructs a ConversationFetcher.
func NewConversationFetcher(convStore store.ConversationStore, convCache *cache.ConversationCache) *ConversationFetcher {
	return &ConversationFetcher{
		store:    convStore,
		cache:    convCache,
		lastGood: make(map[string][]models.Conversation),
	}
}

// Fetch returns the canonical list for the user. On success the result is
// written through to the cache and retained as the availability fallback.
func (f *ConversationFetcher) Fetch(ctx context.Context, userID string, force bool) ([]models.Conversation, error) {
	if force {
		return f.fetch(ctx, userID)
	}

	// The flight's lifetime is shared by every joined caller, so it must not
	// die with whichever caller happened to start it.
	flightCtx := context.WithoutCancel(ctx)
	result, err, _ := f.group.Do(userID, func() (interface{}, error) {
		return f.fetch(flightCtx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.Conversation), nil
}

func (f *ConversationFetcher) fetch(ctx context.Context, userID string) ([]models.Conversation, error) {
	conversations, err := f.store.FetchConversations(ctx, userID)
	if err != nil {
		// Availability over freshness: surface the error only when there is
		// nothing stale to show.
		f.mu.RLock()
		stale, ok := f.lastGood[userID]
		f.mu.RUnlock()
		if ok {
			log.Printf("conversation fetch failed, serving stale list: %v", err)
			observability.IncFetch("conversations", "stale")
			return stale, nil
		}
		observability.IncFetch("conversations", "error")
		return nil, err
	}

	f.mu.Lock()
	f.lastGood[userID] = conversations
	f.mu.Unlock()

	if f.cache != nil {
		if err := f.cache.Save(ctx, userID, conversations); err != nil {
			log.Printf("conversation cache save failed: %v", err)
		}
	}

	observability.IncFetch("conversations", "ok")
	return conversations, nil
}

// Seed installs a previously cached list as the availability fallback without
// touching the durable store.
func (f *ConversationFetcher) Seed(userID string, conversations []models.Conversation) {
	f.mu.Lock()
	f.lastGood[userID] = conversations
	f.mu.Unlock()
}
