package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"chat-sync/internal/models"
)

// Postgres implements the durable-store contracts over sqlx.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres constructs a Postgres store.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type conversationRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	IsGroup       bool           `db:"is_group"`
	LastMessage   sql.NullString `db:"last_message"`
	LastMessageAt sql.NullTime   `db:"last_message_at"`
	UnreadCount   int            `db:"unread_count"`
}

// FetchConversations returns the user's conversations ordered by recency, with
// last-message preview and unread count computed against the read watermark.
func (s *Postgres) FetchConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `SELECT c.id, c.name, c.is_group,
            lm.content AS last_message,
            lm.created_at AS last_message_at,
            (SELECT COUNT(*) FROM messages m
                WHERE m.conversation_id = c.id
                AND m.sender_id <> $1
                AND m.created_at > COALESCE(
                    (SELECT r.last_read_at FROM conversation_reads r
                        WHERE r.conversation_id = c.id AND r.user_id = $1),
                    'epoch'::timestamptz)) AS unread_count
        FROM conversations c
        JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = $1
        LEFT JOIN LATERAL (
            SELECT content, created_at FROM messages
            WHERE conversation_id = c.id
            ORDER BY created_at DESC LIMIT 1
        ) lm ON TRUE
        ORDER BY COALESCE(lm.created_at, c.created_at) DESC`

	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		conv := models.Conversation{
			ID:          row.ID,
			Name:        row.Name,
			IsGroup:     row.IsGroup,
			UnreadCount: row.UnreadCount,
		}
		if row.LastMessage.Valid {
			content := row.LastMessage.String
			conv.LastMessage = &content
		}
		if row.LastMessageAt.Valid {
			at := row.LastMessageAt.Time
			conv.LastMessageAt = &at
		}

		participants, err := s.fetchParticipants(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		conv.Participants = participants
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (s *Postgres) fetchParticipants(ctx context.Context, channelID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.db.SelectContext(ctx, &participants,
		`SELECT user_id, display_name, avatar_url, email, online
            FROM conversation_participants WHERE conversation_id=$1 ORDER BY user_id`, channelID)
	return participants, err
}

type messageRow struct {
	ID          string         `db:"id"`
	ChannelID   string         `db:"conversation_id"`
	SenderID    string         `db:"sender_id"`
	SenderName  sql.NullString `db:"display_name"`
	AvatarURL   sql.NullString `db:"avatar_url"`
	SenderEmail sql.NullString `db:"email"`
	Content     string         `db:"content"`
	LikeCount   int            `db:"like_count"`
	CreatedAt   sql.NullTime   `db:"created_at"`
}

// FetchMessages returns the full message history for a channel, ascending by
// creation time, with sender display data joined from the participant roster.
func (s *Postgres) FetchMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	query := `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.like_count, m.created_at,
            p.display_name, p.avatar_url, p.email
        FROM messages m
        LEFT JOIN conversation_participants p
            ON p.conversation_id = m.conversation_id AND p.user_id = m.sender_id
        WHERE m.conversation_id=$1
        ORDER BY m.created_at ASC`

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, channelID); err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msg := models.Message{
			ID:        row.ID,
			ChannelID: row.ChannelID,
			Sender: models.SenderProfile{
				UserID:      row.SenderID,
				DisplayName: row.SenderName.String,
				AvatarURL:   row.AvatarURL.String,
				Email:       row.SenderEmail.String,
			},
			Content:       row.Content,
			LikeCount:     row.LikeCount,
			DeliveryState: models.DeliveryConfirmed,
		}
		if row.CreatedAt.Valid {
			msg.Timestamp = row.CreatedAt.Time
		}

		attachments, err := s.fetchAttachments(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		msg.Attachments = attachments
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *Postgres) fetchAttachments(ctx context.Context, messageID string) ([]models.Attachment, error) {
	var attachments []models.Attachment
	err := s.db.SelectContext(ctx, &attachments,
		`SELECT id, message_id, name, url, mime_type, size_bytes
            FROM attachments WHERE message_id=$1 ORDER BY id`, messageID)
	return attachments, err
}

// InsertMessage persists a message row and returns the server-assigned id.
func (s *Postgres) InsertMessage(ctx context.Context, channelID string, senderID string, content string) (string, error) {
	var id string
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES ($1, $2, $3) RETURNING id`,
		channelID, senderID, content).Scan(&id)
	return id, err
}

// InsertAttachments persists attachment rows referencing a stored message.
func (s *Postgres) InsertAttachments(ctx context.Context, messageID string, attachments []models.Attachment) error {
	for _, att := range attachments {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO attachments (message_id, name, url, mime_type, size_bytes) VALUES ($1, $2, $3, $4, $5)`,
			messageID, att.Name, att.URL, att.MimeType, att.SizeBytes); err != nil {
			return err
		}
	}
	return nil
}

// DeleteConversation removes a conversation; dependent rows cascade.
func (s *Postgres) DeleteConversation(ctx context.Context, channelID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, channelID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// MarkConversationRead advances the user's read watermark to now.
func (s *Postgres) MarkConversationRead(ctx context.Context, channelID string, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_reads (conversation_id, user_id, last_read_at) VALUES ($1, $2, NOW())
            ON CONFLICT (conversation_id, user_id) DO UPDATE SET last_read_at = NOW()`,
		channelID, userID)
	return err
}

var _ ConversationStore = (*Postgres)(nil)
var _ MessageStore = (*Postgres)(nil)
