package models

import "time"

// Participant is a read-only member snapshot carried on a conversation payload.
type Participant struct {
	UserID      string `db:"user_id" json:"user_id"`
	DisplayName string `db:"display_name" json:"display_name"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url"`
	Email       string `db:"email" json:"email"`
	Online      bool   `db:"online" json:"online"`
}

// Conversation is one entry of a user's conversation list. The id doubles as
// the realtime channel id.
type Conversation struct {
	ID            string        `db:"id" json:"id"`
	Name          string        `db:"name" json:"name"`
	IsGroup       bool          `db:"is_group" json:"is_group"`
	Participants  []Participant `json:"participants"`
	LastMessage   *string       `db:"last_message" json:"last_message"`
	LastMessageAt *time.Time    `db:"last_message_at" json:"last_message_at"`
	UnreadCount   int           `db:"unread_count" json:"unread_count"`
}
