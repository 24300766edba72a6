package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"chat-sync/internal/cache"
	"chat-sync/internal/fetch"
	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

// refetchDelay is how long the manager waits before the forced refetch
// triggered by an event for an unknown channel. Successive unknown-channel
// events inside the window coalesce into the single pending refetch.
var refetchDelay = 2 * time.Second

// DeletionNotifier is invoked after a conversation is removed locally.
type DeletionNotifier func(ctx context.Context, userID, channelID string)

// Manager owns the authoritative in-memory conversation list for one user
// session. The cache is a write-behind mirror, never a source of truth once a
// live fetch has succeeded.
type Manager struct {
	userID  string
	cache   *cache.ConversationCache
	fetcher *fetch.ConversationFetcher
	store   store.ConversationStore
	deleted DeletionNotifier

	mu            sync.Mutex
	conversations []models.Conversation
	refetchTimer  *time.Timer
}

// NewManager constructs a Manager. store and deleted may be nil.
func NewManager(userID string, convCache *cache.ConversationCache, fetcher *fetch.ConversationFetcher, convStore store.ConversationStore, deleted DeletionNotifier) *Manager {
	return &Manager{
		userID:  userID,
		cache:   convCache,
		fetcher: fetcher,
		store:   convStore,
		deleted: deleted,
	}
}

// Load populates the list from the cache synchronously, then triggers the
// canonical fetch in the background. Cache misses are not errors.
func (m *Manager) Load(ctx context.Context) {
	cached, err := m.cache.Load(ctx, m.userID)
	if err == nil {
		m.mu.Lock()
		m.conversations = cached
		m.mu.Unlock()
		m.fetcher.Seed(m.userID, cached)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("conversation cache read failed: %v", err)
	}

	go m.refresh(context.Background(), false)
}

func (m *Manager) refresh(ctx context.Context, force bool) {
	conversations, err := m.fetcher.Fetch(ctx, m.userID, force)
	if err != nil {
		log.Printf("conversation refresh failed: %v", err)
		return
	}
	m.mu.Lock()
	m.conversations = conversations
	m.mu.Unlock()
}

// OnRealtimeMessage applies an inbound message event to the list: the
// conversation gets the new last-message preview, an unread increment when the
// sender is someone else, and moves to the front. An event for an unknown
// channel means the local list is stale; a delayed forced refetch is scheduled
// instead of synthesizing a conversation from a bare message event.
func (m *Manager) OnRealtimeMessage(ctx context.Context, ev models.InsertEvent) {
	m.mu.Lock()
	idx := -1
	for i := range m.conversations {
		if m.conversations[i].ID == ev.ChannelID {
			idx = i
			break
		}
	}

	if idx < 0 {
		m.scheduleRefetchLocked()
		m.mu.Unlock()
		return
	}

	conv := m.conversations[idx]
	content := ev.Content
	at := ev.CreatedAt
	conv.LastMessage = &content
	conv.LastMessageAt = &at
	if ev.SenderID != m.userID {
		conv.UnreadCount++
	}

	m.conversations = append(m.conversations[:idx], m.conversations[idx+1:]...)
	m.conversations = append([]models.Conversation{conv}, m.conversations...)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(ctx, snapshot)
}

// scheduleRefetchLocked arms the coalesced forced refetch unless one is
// already pending.
func (m *Manager) scheduleRefetchLocked() {
	if m.refetchTimer != nil {
		return
	}
	m.refetchTimer = time.AfterFunc(refetchDelay, func() {
		m.mu.Lock()
		m.refetchTimer = nil
		m.mu.Unlock()
		m.refresh(context.Background(), true)
	})
}

// Add inserts a conversation at the front if it is not tracked yet, persists,
// and schedules a forced refetch to pick up server-assigned fields.
func (m *Manager) Add(ctx context.Context, conv models.Conversation) {
	m.mu.Lock()
	for i := range m.conversations {
		if m.conversations[i].ID == conv.ID {
			m.mu.Unlock()
			return
		}
	}
	m.conversations = append([]models.Conversation{conv}, m.conversations...)
	snapshot := m.snapshotLocked()
	m.scheduleRefetchLocked()
	m.mu.Unlock()

	m.persist(ctx, snapshot)
}

// Remove drops the conversation from the list, persists, clears the cached
// message history for the channel, and notifies the deletion collaborator.
func (m *Manager) Remove(ctx context.Context, channelID string) {
	m.mu.Lock()
	for i := range m.conversations {
		if m.conversations[i].ID == channelID {
			m.conversations = append(m.conversations[:i], m.conversations[i+1:]...)
			break
		}
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	if err := m.cache.DropMessages(ctx, channelID); err != nil {
		log.Printf("message cache drop failed: %v", err)
	}
	if m.deleted != nil {
		m.deleted(ctx, m.userID, channelID)
	}
}

// MarkRead resets the unread count to zero and persists. The durable read
// watermark is advanced best-effort so the next canonical fetch agrees.
func (m *Manager) MarkRead(ctx context.Context, channelID string) {
	m.mu.Lock()
	for i := range m.conversations {
		if m.conversations[i].ID == channelID {
			m.conversations[i].UnreadCount = 0
			break
		}
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	if m.store != nil {
		go func() {
			if err := m.store.MarkConversationRead(context.Background(), channelID, m.userID); err != nil {
				log.Printf("mark read persist failed: %v", err)
			}
		}()
	}
}

// Search returns conversations whose name or participant display name/email
// contains the query, case-insensitively. An empty query returns everything.
func (m *Manager) Search(query string) []models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if query == "" {
		return m.snapshotLocked()
	}

	needle := strings.ToLower(query)
	var matched []models.Conversation
	for _, conv := range m.conversations {
		if strings.Contains(strings.ToLower(conv.Name), needle) {
			matched = append(matched, conv)
			continue
		}
		for _, p := range conv.Participants {
			if strings.Contains(strings.ToLower(p.DisplayName), needle) ||
				strings.Contains(strings.ToLower(p.Email), needle) {
				matched = append(matched, conv)
				break
			}
		}
	}
	return matched
}

// Get returns the tracked conversation for a channel.
func (m *Manager) Get(channelID string) (models.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range m.conversations {
		if conv.ID == channelID {
			return conv, true
		}
	}
	return models.Conversation{}, false
}

// Snapshot returns a copy of the current list.
func (m *Manager) Snapshot() []models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() []models.Conversation {
	snapshot := make([]models.Conversation, len(m.conversations))
	copy(snapshot, m.conversations)
	return snapshot
}

// persist mirrors the full list to the cache, last-writer-wins.
func (m *Manager) persist(ctx context.Context, snapshot []models.Conversation) {
	if err := m.cache.Save(ctx, m.userID, snapshot); err != nil {
		log.Printf("conversation cache save failed: %v", err)
	}
}
