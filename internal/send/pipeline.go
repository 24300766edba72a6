package send

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/profiles"
	"chat-sync/internal/reconcile"
	"chat-sync/internal/store"
	"chat-sync/internal/telemetry"
)

var (
	// ErrEmptySend rejects sends with no content and no attachments.
	ErrEmptySend = errors.New("empty message")
	// ErrAttachmentsFailed reports a partially successful send: the message
	// row exists but its attachments were not written.
	ErrAttachmentsFailed = errors.New("message sent, attachments failed")
)

// Pipeline creates an optimistic message, persists it, and rolls the
// optimistic entry back when the durable write fails.
type Pipeline struct {
	store      store.MessageStore
	reconciler *reconcile.Reconciler
	profiles   *profiles.Resolver
	emitter    *telemetry.Emitter
	now        func() time.Time
}

// NewPipeline constructs a Pipeline. emitter may be nil.
func NewPipeline(msgStore store.MessageStore, reconciler *reconcile.Reconciler, resolver *profiles.Resolver, emitter *telemetry.Emitter) *Pipeline {
	return &Pipeline{
		store:      msgStore,
		reconciler: reconciler,
		profiles:   resolver,
		emitter:    emitter,
		now:        time.Now,
	}
}

// Send runs the pipeline sequentially: optimistic insert first so the view
// reflects the send immediately, then the durable write. A failed message
// insert removes the optimistic entry, a full rollback with no attachment rows. A
// failed attachment insert keeps the message and returns ErrAttachmentsFailed.
func (p *Pipeline) Send(ctx context.Context, channelID, userID, content string, attachments []models.Attachment) (models.Message, error) {
	ctx, span := otel.Tracer("chat-sync/send").Start(ctx, "send.pipeline")
	defer span.End()

	if content == "" && len(attachments) == 0 {
		return models.Message{}, ErrEmptySend
	}

	optimistic := models.Message{
		ID:            models.TransientIDPrefix + uuid.NewString(),
		ChannelID:     channelID,
		Sender:        p.profiles.Resolve(userID),
		Content:       content,
		Timestamp:     p.now(),
		Attachments:   attachments,
		DeliveryState: models.DeliveryOptimistic,
	}
	// The transient buffer belongs to the open conversation; a send targeting
	// another channel goes straight to the store without an optimistic entry.
	buffered := p.reconciler.Channel() == channelID
	if buffered {
		p.reconciler.AppendOptimistic(optimistic)
	}

	messageID, err := p.store.InsertMessage(ctx, channelID, userID, content)
	if err != nil {
		if buffered {
			p.reconciler.RemoveTransient(optimistic.ID)
		}
		observability.IncSend("failed")
		p.emitter.NotifySendFailed(ctx, userID, channelID, err.Error())
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if len(attachments) > 0 {
		if err := p.store.InsertAttachments(ctx, messageID, attachments); err != nil {
			// The message row is durable; attachments are not retried.
			log.Printf("attachment insert failed message_id=%s: %v", messageID, err)
			observability.IncSend("attachments_failed")
			return optimistic, ErrAttachmentsFailed
		}
	}

	observability.IncSend("ok")
	return optimistic, nil
}
