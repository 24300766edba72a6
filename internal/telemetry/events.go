package telemetry

import (
	"context"
	"log"
	"time"
	"unicode/utf8"

	"chat-sync/internal/models"
)

// Publisher is the broker contract the emitter writes through.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Routing keys for sync engine events.
const (
	RouteNewMessage          = "sync.messages.new"
	RouteSendFailed          = "sync.messages.send_failed"
	RouteConversationDeleted = "sync.conversations.deleted"
)

// EventEnvelope wraps every published sync event.
type EventEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	UserID        string `json:"user_id,omitempty"`
	Payload       any    `json:"payload"`
}

// MessagePayload describes the message an event refers to.
type MessagePayload struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	SenderID  string `json:"sender_id"`
	Preview   string `json:"preview"`
	Reason    string `json:"reason,omitempty"`
}

// Emitter publishes sync engine side effects: new-message notifications,
// send failures and conversation deletions.
type Emitter struct {
	publisher Publisher
	service   string
}

// NewEmitter constructs an Emitter. A nil publisher yields a no-op emitter.
func NewEmitter(publisher Publisher, service string) *Emitter {
	return &Emitter{publisher: publisher, service: service}
}

// NotifyNewMessage surfaces an inbound message from another user.
func (e *Emitter) NotifyNewMessage(ctx context.Context, userID string, msg models.Message) {
	e.emit(ctx, RouteNewMessage, "new_message", userID, MessagePayload{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		SenderID:  msg.Sender.UserID,
		Preview:   preview(msg.Content),
	})
}

// NotifySendFailed surfaces a rolled-back send.
func (e *Emitter) NotifySendFailed(ctx context.Context, userID string, channelID, reason string) {
	e.emit(ctx, RouteSendFailed, "send_failed", userID, MessagePayload{
		ChannelID: channelID,
		SenderID:  userID,
		Reason:    reason,
	})
}

// NotifyConversationDeleted surfaces a conversation removal.
func (e *Emitter) NotifyConversationDeleted(ctx context.Context, userID string, channelID string) {
	e.emit(ctx, RouteConversationDeleted, "conversation_deleted", userID, MessagePayload{
		ChannelID: channelID,
	})
}

func (e *Emitter) emit(ctx context.Context, routingKey, eventType, userID string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := EventEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		UserID:        userID,
		Payload:       payload,
	}
	if err := e.publisher.Publish(ctx, routingKey, envelope); err != nil {
		log.Printf("telemetry publish failed: %v", err)
	}
}

func preview(content string) string {
	const max = 80
	if len(content) <= max {
		return content
	}
	// Back off to a rune boundary so the cut never emits invalid UTF-8.
	cut := max
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}
