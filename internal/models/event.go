package models

import (
	"errors"
	"time"
)

// ErrMalformedEvent marks a push payload that failed boundary validation.
var ErrMalformedEvent = errors.New("malformed realtime event")

// InsertEvent is the tagged payload of a server-pushed message insert.
type InsertEvent struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate rejects payloads missing the fields the sync engine keys on.
// Malformed events are dropped at the transport boundary, never passed inward.
func (e InsertEvent) Validate() error {
	if e.ID == "" || e.ChannelID == "" || e.SenderID == "" {
		return ErrMalformedEvent
	}
	if e.CreatedAt.IsZero() {
		return ErrMalformedEvent
	}
	return nil
}

// Message converts the event into a message with the given sender profile.
func (e InsertEvent) Message(sender SenderProfile) Message {
	return Message{
		ID:            e.ID,
		ChannelID:     e.ChannelID,
		Sender:        sender,
		Content:       e.Content,
		Timestamp:     e.CreatedAt,
		DeliveryState: DeliveryConfirmed,
	}
}
