package chat

import (
	"context"
	"errors"
)

// Store errors shared by all backends.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// MessageStore persists conversation messages. Implementations must return
// messages from ListByConversation ordered by Position ascending, CreatedAt
// as a tiebreak.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	UpdateMessage(ctx context.Context, msg *Message) error
	DeleteMessage(ctx context.Context, id string) error
	ListByConversation(ctx context.Context, conversationID string) ([]*Message, error)
}

// CommentStore persists conversation comments, same ordering contract.
type CommentStore interface {
	CreateComment(ctx context.Context, c *Comment) error
	DeleteComment(ctx context.Context, id string) error
	ListCommentsByConversation(ctx context.Context, conversationID string) ([]*Comment, error)
}
