package reconcile

import (
	"sort"
	"sync"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/profiles"
)

const (
	// supersedeWindow bounds the timestamp skew tolerated when matching an
	// optimistic message against its confirmed copy from a base fetch.
	supersedeWindow = 10 * time.Second
	// transientMaxAge is the point after which an unmatched transient entry
	// is treated as abandoned and pruned on the next base refresh.
	transientMaxAge = 30 * time.Second
)

// NotifyFunc is invoked for inbound realtime messages from other users.
type NotifyFunc func(msg models.Message)

// Reconciler owns the base and transient message buffers for the currently
// open conversation and produces the merged, deduplicated, time-ordered view.
type Reconciler struct {
	mu         sync.Mutex
	selfID     string
	channelID  string
	generation uint64
	base       []models.Message
	transient  []transientEntry
	profiles   *profiles.Resolver
	notify     NotifyFunc
	now        func() time.Time
}

type transientEntry struct {
	msg     models.Message
	addedAt time.Time
}

// New constructs a Reconciler for one user session. notify may be nil.
func New(selfID string, resolver *profiles.Resolver, notify NotifyFunc) *Reconciler {
	return &Reconciler{
		selfID:   selfID,
		profiles: resolver,
		notify:   notify,
		now:      time.Now,
	}
}

// Open switches the open conversation. The entire transient set is discarded
// and the returned generation must accompany the SetBase call that delivers
// the new conversation's history, so a late fetch result for a previously
// open conversation is ignored rather than applied.
func (r *Reconciler) Open(channelID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channelID = channelID
	r.generation++
	r.base = nil
	r.transient = nil
	return r.generation
}

// Channel returns the id of the currently open conversation.
func (r *Reconciler) Channel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelID
}

// SetBase replaces the canonical history. A stale generation means the caller
// fetched for a conversation that is no longer open; the result is dropped.
// The transient buffer is pruned against the fresh base afterwards.
func (r *Reconciler) SetBase(generation uint64, messages []models.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if generation != r.generation {
		return false
	}
	r.base = messages
	r.pruneLocked()
	return true
}

// pruneLocked removes transient entries superseded by the current base and
// entries older than transientMaxAge.
func (r *Reconciler) pruneLocked() {
	if len(r.transient) == 0 {
		return
	}
	now := r.now()
	kept := r.transient[:0]
	for _, entry := range r.transient {
		if r.supersededLocked(entry.msg) {
			observability.IncTransientPruned("superseded")
			continue
		}
		if now.Sub(entry.addedAt) > transientMaxAge {
			observability.IncTransientPruned("expired")
			continue
		}
		kept = append(kept, entry)
	}
	r.transient = kept
}

// supersededLocked reports whether the base already carries this message.
// Stable ids match exactly; transient ids match heuristically on sender,
// content and a bounded timestamp skew.
func (r *Reconciler) supersededLocked(msg models.Message) bool {
	if !msg.IsTransient() {
		for _, b := range r.base {
			if b.ID == msg.ID {
				return true
			}
		}
		return false
	}
	for _, b := range r.base {
		if b.Sender.UserID != msg.Sender.UserID || b.Content != msg.Content {
			continue
		}
		if withinSupersedeWindow(b.Timestamp, msg.Timestamp) {
			return true
		}
	}
	return false
}

// OnInsert ingests one realtime event. Events for other channels and strict
// id duplicates are ignored. Returns true when the event was applied.
func (r *Reconciler) OnInsert(ev models.InsertEvent) bool {
	r.mu.Lock()
	if r.channelID == "" || ev.ChannelID != r.channelID {
		r.mu.Unlock()
		observability.IncRealtimeEvent("ignored")
		return false
	}
	if r.containsIDLocked(ev.ID) {
		r.mu.Unlock()
		observability.IncRealtimeEvent("duplicate")
		return false
	}

	msg := ev.Message(r.profiles.Resolve(ev.SenderID))
	if !msg.IsTransient() {
		// The stable-id copy replaces any optimistic entry for the same send,
		// so the user's own echo never renders twice.
		r.dropSupersededByLocked(msg)
	}
	r.transient = append(r.transient, transientEntry{msg: msg, addedAt: r.now()})
	inbound := ev.SenderID != r.selfID
	notify := r.notify
	r.mu.Unlock()

	observability.IncRealtimeEvent("applied")
	if inbound && notify != nil {
		notify(msg)
	}
	return true
}

// dropSupersededByLocked removes transient-id entries the confirmed message
// supersedes, matching on sender, content and a bounded timestamp skew.
func (r *Reconciler) dropSupersededByLocked(confirmed models.Message) {
	kept := r.transient[:0]
	for _, entry := range r.transient {
		if entry.msg.IsTransient() &&
			entry.msg.Sender.UserID == confirmed.Sender.UserID &&
			entry.msg.Content == confirmed.Content &&
			withinSupersedeWindow(entry.msg.Timestamp, confirmed.Timestamp) {
			observability.IncTransientPruned("superseded")
			continue
		}
		kept = append(kept, entry)
	}
	r.transient = kept
}

func withinSupersedeWindow(a, b time.Time) bool {
	skew := a.Sub(b)
	if skew < 0 {
		skew = -skew
	}
	return skew < supersedeWindow
}

func (r *Reconciler) containsIDLocked(id string) bool {
	for _, b := range r.base {
		if b.ID == id {
			return true
		}
	}
	for _, entry := range r.transient {
		if entry.msg.ID == id {
			return true
		}
	}
	return false
}

// AppendOptimistic adds a locally created, unconfirmed message to the
// transient buffer. Used by the send pipeline before the durable write.
func (r *Reconciler) AppendOptimistic(msg models.Message) {
	r.mu.Lock()
	r.transient = append(r.transient, transientEntry{msg: msg, addedAt: r.now()})
	r.mu.Unlock()
}

// RemoveTransient drops a transient entry by id. Used to roll back a failed
// send. Returns true when an entry was removed.
func (r *Reconciler) RemoveTransient(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, entry := range r.transient {
		if entry.msg.ID == id {
			r.transient = append(r.transient[:i], r.transient[i+1:]...)
			return true
		}
	}
	return false
}

// Merged returns the deduplicated view: every base message, plus every
// transient message not superseded by the base, sorted ascending by timestamp.
func (r *Reconciler) Merged() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := make([]models.Message, 0, len(r.base)+len(r.transient))
	merged = append(merged, r.base...)
	for _, entry := range r.transient {
		if r.supersededLocked(entry.msg) {
			continue
		}
		merged = append(merged, entry.msg)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// TransientCount reports the current transient buffer size.
func (r *Reconciler) TransientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transient)
}

// SetClock overrides the time source. Test hook.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}
