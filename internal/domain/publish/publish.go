// Package publish copies messages from a private conversation into the
// public space and notifies an optional webhook.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/chat"
)

// ErrAlreadyPublished is returned when the source message was published
// before.
var ErrAlreadyPublished = errors.New("message already published")

// Record is a message copied into the public space.
type Record struct {
	ID              string    `json:"id"`
	SourceMessageID string    `json:"sourceMessageId"`
	ConversationID  string    `json:"conversationId"`
	Role            chat.Role `json:"role"`
	Content         string    `json:"content"`
	PublishedAt     time.Time `json:"publishedAt"`
}

// Store persists public-space records. Publish must reject a duplicate
// SourceMessageID with chat.ErrAlreadyExists.
type Store interface {
	Publish(ctx context.Context, rec *Record) error
	ListPublic(ctx context.Context) ([]*Record, error)
}

// Notifier announces a publication to an external system. Failures are
// reported but must not undo the publication.
type Notifier interface {
	Notify(ctx context.Context, rec *Record) error
}

// Service implements the publish flow.
type Service struct {
	messages chat.MessageStore
	public   Store
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(messages chat.MessageStore, public Store, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		messages: messages,
		public:   public,
		notifier: notifier,
		logger:   logger.With().Str("component", "publish_service").Logger(),
	}
}

// PublishMessage copies the message into the public space. The webhook
// notification is best effort.
func (s *Service) PublishMessage(ctx context.Context, messageID string) (*Record, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}

	rec := &Record{
		ID:              uuid.NewString(),
		SourceMessageID: msg.ID,
		ConversationID:  msg.ConversationID,
		Role:            msg.Role,
		Content:         msg.Content,
		PublishedAt:     time.Now().UTC(),
	}
	if err := s.public.Publish(ctx, rec); err != nil {
		if errors.Is(err, chat.ErrAlreadyExists) {
			return nil, ErrAlreadyPublished
		}
		return nil, fmt.Errorf("publish message %s: %w", messageID, err)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("message_id", messageID).Msg("publish notification failed")
		}
	}
	s.logger.Info().Str("message_id", messageID).Str("record_id", rec.ID).Msg("message published")
	return rec, nil
}

// ListPublic returns all public-space records.
func (s *Service) ListPublic(ctx context.Context) ([]*Record, error) {
	recs, err := s.public.ListPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("list public messages: %w", err)
	}
	return recs, nil
}
