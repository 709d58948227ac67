package relational

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/publish"
	"hypermaps/server/internal/infrastructure/database/entities"
)

var _ publish.Store = (*Store)(nil)

func (s *Store) Publish(ctx context.Context, rec *publish.Record) error {
	entity := &entities.PublishedMessage{
		ID:              rec.ID,
		SourceMessageID: rec.SourceMessageID,
		ConversationID:  rec.ConversationID,
		Role:            string(rec.Role),
		Content:         rec.Content,
		PublishedAt:     rec.PublishedAt,
	}
	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			return chat.ErrAlreadyExists
		}
		return fmt.Errorf("create published message: %w", err)
	}
	return nil
}

func (s *Store) ListPublic(ctx context.Context) ([]*publish.Record, error) {
	var rows []entities.PublishedMessage
	err := s.db.WithContext(ctx).
		Order("published_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list published messages: %w", err)
	}
	recs := make([]*publish.Record, len(rows))
	for i := range rows {
		recs[i] = &publish.Record{
			ID:              rows[i].ID,
			SourceMessageID: rows[i].SourceMessageID,
			ConversationID:  rows[i].ConversationID,
			Role:            chat.Role(rows[i].Role),
			Content:         rows[i].Content,
			PublishedAt:     rows[i].PublishedAt,
		}
	}
	return recs, nil
}
