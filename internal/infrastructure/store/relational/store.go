// Package relational implements the chat stores on gorm/postgres.
package relational

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/infrastructure/database/entities"
)

// Store implements chat.MessageStore and chat.CommentStore on a gorm DB.
type Store struct {
	db *gorm.DB
}

var (
	_ chat.MessageStore = (*Store)(nil)
	_ chat.CommentStore = (*Store)(nil)
)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateMessage(ctx context.Context, msg *chat.Message) error {
	entity := messageToEntity(msg)
	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return chat.ErrAlreadyExists
		}
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*chat.Message, error) {
	var entity entities.ChatMessage
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chat.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return messageToDomain(&entity), nil
}

func (s *Store) UpdateMessage(ctx context.Context, msg *chat.Message) error {
	entity := messageToEntity(msg)
	result := s.db.WithContext(ctx).Model(&entities.ChatMessage{}).
		Where("id = ?", msg.ID).
		Select("parent_message_id", "content", "position", "x", "y").
		Updates(entity)
	if result.Error != nil {
		return fmt.Errorf("update message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&entities.ChatMessage{})
	if result.Error != nil {
		return fmt.Errorf("delete message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *Store) ListByConversation(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	var rows []entities.ChatMessage
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("position ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]*chat.Message, len(rows))
	for i := range rows {
		msgs[i] = messageToDomain(&rows[i])
	}
	return msgs, nil
}

func (s *Store) CreateComment(ctx context.Context, c *chat.Comment) error {
	entity := commentToEntity(c)
	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return chat.ErrAlreadyExists
		}
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&entities.Comment{})
	if result.Error != nil {
		return fmt.Errorf("delete comment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *Store) ListCommentsByConversation(ctx context.Context, conversationID string) ([]*chat.Comment, error) {
	var rows []entities.Comment
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("position ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	comments := make([]*chat.Comment, len(rows))
	for i := range rows {
		comments[i] = commentToDomain(&rows[i])
	}
	return comments, nil
}

func messageToEntity(msg *chat.Message) *entities.ChatMessage {
	return &entities.ChatMessage{
		ID:              msg.ID,
		ConversationID:  msg.ConversationID,
		ParentMessageID: msg.ParentMessageID,
		Role:            string(msg.Role),
		Content:         msg.Content,
		Position:        msg.Position,
		X:               msg.X,
		Y:               msg.Y,
		CreatedAt:       msg.CreatedAt,
	}
}

func messageToDomain(entity *entities.ChatMessage) *chat.Message {
	return &chat.Message{
		ID:              entity.ID,
		ConversationID:  entity.ConversationID,
		ParentMessageID: entity.ParentMessageID,
		Role:            chat.Role(entity.Role),
		Content:         entity.Content,
		Position:        entity.Position,
		X:               entity.X,
		Y:               entity.Y,
		CreatedAt:       entity.CreatedAt,
	}
}

func commentToEntity(c *chat.Comment) *entities.Comment {
	return &entities.Comment{
		ID:             c.ID,
		ConversationID: c.ConversationID,
		Content:        c.Content,
		Position:       c.Position,
		X:              c.X,
		Y:              c.Y,
		CreatedAt:      c.CreatedAt,
	}
}

func commentToDomain(entity *entities.Comment) *chat.Comment {
	return &chat.Comment{
		ID:             entity.ID,
		ConversationID: entity.ConversationID,
		Content:        entity.Content,
		Position:       entity.Position,
		X:              entity.X,
		Y:              entity.Y,
		CreatedAt:      entity.CreatedAt,
	}
}
