package models

import (
	"strings"
	"time"
)

// TransientIDPrefix tags ids assigned locally to messages the durable store
// has not confirmed yet.
const TransientIDPrefix = "local-"

// DeliveryState tracks a message's progress through the send pipeline.
type DeliveryState string

const (
	DeliveryOptimistic DeliveryState = "optimistic"
	DeliveryConfirmed  DeliveryState = "confirmed"
	DeliveryFailed     DeliveryState = "failed"
)

// SenderProfile is the display data attached to a message's sender.
type SenderProfile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Email       string `json:"email"`
}

// Attachment is a file reference carried by a message.
type Attachment struct {
	ID        string `db:"id" json:"id"`
	MessageID string `db:"message_id" json:"message_id"`
	Name      string `db:"name" json:"name"`
	URL       string `db:"url" json:"url"`
	MimeType  string `db:"mime_type" json:"mime_type"`
	SizeBytes int64  `db:"size_bytes" json:"size_bytes"`
}

// Message is one entry of a conversation's message stream.
type Message struct {
	ID            string        `json:"id"`
	ChannelID     string        `json:"channel_id"`
	Sender        SenderProfile `json:"sender"`
	Content       string        `json:"content"`
	Timestamp     time.Time     `json:"timestamp"`
	LikeCount     int           `json:"like_count"`
	Attachments   []Attachment  `json:"attachments,omitempty"`
	DeliveryState DeliveryState `json:"delivery_state"`
}

// IsTransient reports whether the message still carries a locally assigned id.
func (m Message) IsTransient() bool {
	return strings.HasPrefix(m.ID, TransientIDPrefix)
}
