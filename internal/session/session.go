package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"chat-sync/internal/cache"
	"chat-sync/internal/fetch"
	"chat-sync/internal/models"
	"chat-sync/internal/profiles"
	"chat-sync/internal/realtime"
	"chat-sync/internal/reconcile"
	"chat-sync/internal/send"
	"chat-sync/internal/store"
	"chat-sync/internal/telemetry"
)

// Session wires the sync engine for one authenticated user: the conversation
// list manager, the reconciler for the open conversation, the send pipeline
// and the realtime subscription feeding both.
type Session struct {
	UserID     string
	Manager    *Manager
	Reconciler *reconcile.Reconciler
	Pipeline   *send.Pipeline
	Profiles   *profiles.Resolver

	messages *fetch.MessageFetcher
	sub      *realtime.Subscription
}

// Deps are the collaborators shared by every session.
type Deps struct {
	ConvStore store.ConversationStore
	MsgStore  store.MessageStore
	Cache     *cache.ConversationCache
	Realtime  *realtime.Client
	Emitter   *telemetry.Emitter
}

// NewSession builds and starts a session: the conversation list loads
// immediately and a realtime subscription on the messages table starts
// feeding the manager and the reconciler.
func NewSession(ctx context.Context, userID string, deps Deps) (*Session, error) {
	resolver := profiles.NewResolver()
	fetcher := fetch.NewConversationFetcher(deps.ConvStore, deps.Cache)

	s := &Session{
		UserID:   userID,
		Profiles: resolver,
		messages: fetch.NewMessageFetcher(deps.MsgStore, deps.Cache),
	}

	s.Reconciler = reconcile.New(userID, resolver, func(msg models.Message) {
		deps.Emitter.NotifyNewMessage(context.Background(), userID, msg)
	})
	s.Pipeline = send.NewPipeline(deps.MsgStore, s.Reconciler, resolver, deps.Emitter)
	s.Manager = NewManager(userID, deps.Cache, fetcher, deps.ConvStore, func(ctx context.Context, userID, channelID string) {
		deps.Emitter.NotifyConversationDeleted(ctx, userID, channelID)
	})

	s.Manager.Load(ctx)

	if deps.Realtime != nil {
		sub, err := deps.Realtime.Subscribe("messages", "", s.handleEvent)
		if err != nil {
			return nil, fmt.Errorf("subscribe messages: %w", err)
		}
		s.sub = sub
	}
	return s, nil
}

// handleEvent routes one validated insert event to both consumers. It runs on
// the subscription's consumer goroutine, never on the transport read loop.
func (s *Session) handleEvent(ev models.InsertEvent) {
	s.Reconciler.OnInsert(ev)
	s.Manager.OnRealtimeMessage(context.Background(), ev)
}

// OpenConversation switches the open conversation: the transient buffer is
// cleared, the canonical history is fetched and installed, and the sender
// profile cache is enriched from the participant roster and the fetched
// messages. Returns the merged view.
func (s *Session) OpenConversation(ctx context.Context, channelID string) ([]models.Message, error) {
	generation := s.Reconciler.Open(channelID)

	if conv, ok := s.Manager.Get(channelID); ok {
		s.Profiles.MergeParticipants(conv.Participants)
	}

	base, err := s.messages.Fetch(ctx, channelID)
	if err != nil {
		// The open conversation stays usable for realtime and sends; the
		// history simply starts empty.
		log.Printf("message fetch failed channel=%s: %v", channelID, err)
		return s.Reconciler.Merged(), nil
	}

	s.Profiles.MergeSenders(base)
	if !s.Reconciler.SetBase(generation, base) {
		// Another conversation was opened while this fetch was in flight.
		return nil, nil
	}
	return s.Reconciler.Merged(), nil
}

// Send runs the send pipeline for the open conversation.
func (s *Session) Send(ctx context.Context, channelID, content string, attachments []models.Attachment) (models.Message, error) {
	return s.Pipeline.Send(ctx, channelID, s.UserID, content, attachments)
}

// Close tears down the realtime subscription.
func (s *Session) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
}

// Registry hands out one session per user, building them lazily.
type Registry struct {
	mu       sync.Mutex
	deps     Deps
	sessions map[string]*Session
}

// NewRegistry constructs an empty registry over the shared collaborators.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: make(map[string]*Session)}
}

// Get returns the user's session, creating it on first use.
func (r *Registry) Get(ctx context.Context, userID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s, nil
	}
	s, err := NewSession(ctx, userID, r.deps)
	if err != nil {
		return nil, err
	}
	r.sessions[userID] = s
	return s, nil
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.Close()
	}
	r.sessions = make(map[string]*Session)
}
