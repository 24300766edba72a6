package profiles

import (
	"strings"
	"sync"

	"chat-sync/internal/models"
)

// UnknownDisplayName is the placeholder name for senders with no cached or
// participant-derived profile.
const UnknownDisplayName = "Unknown User"

// Resolver is a read-through cache of sender display profiles. Merges are
// additive: a refresh that omits a user never evicts the cached profile.
type Resolver struct {
	mu   sync.RWMutex
	byID map[string]models.SenderProfile
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{byID: make(map[string]models.SenderProfile)}
}

// Resolve returns the cached profile for the user, or a synthesized
// placeholder when nothing richer is known. The placeholder is not cached so
// a later participant refresh can still supply real data.
func (r *Resolver) Resolve(userID string) models.SenderProfile {
	r.mu.RLock()
	profile, ok := r.byID[userID]
	r.mu.RUnlock()
	if ok {
		return profile
	}
	return placeholder(userID)
}

// MergeParticipants caches profiles derived from a conversation's participant
// roster, overwriting stale entries for the same user.
func (r *Resolver) MergeParticipants(participants []models.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range participants {
		if p.UserID == "" {
			continue
		}
		r.byID[p.UserID] = models.SenderProfile{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			Email:       p.Email,
		}
	}
}

// MergeSenders caches the sender profiles carried by fetched messages.
// Placeholder-shaped senders are skipped so they never shadow real data.
func (r *Resolver) MergeSenders(messages []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range messages {
		sender := msg.Sender
		if sender.UserID == "" || sender.DisplayName == "" || sender.DisplayName == UnknownDisplayName {
			continue
		}
		r.byID[sender.UserID] = sender
	}
}

func placeholder(userID string) models.SenderProfile {
	avatar := ""
	if userID != "" {
		avatar = strings.ToUpper(userID[:1])
	}
	return models.SenderProfile{
		UserID:      userID,
		DisplayName: UnknownDisplayName,
		AvatarURL:   avatar,
	}
}
