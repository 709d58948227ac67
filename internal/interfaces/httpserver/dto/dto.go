// Package dto holds the HTTP request and response shapes.
package dto

import (
	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/flow"
)

type CreateMessageRequest struct {
	ConversationID  string   `json:"conversationId" binding:"required"`
	Content         string   `json:"content" binding:"required"`
	Role            string   `json:"role" binding:"required,oneof=user assistant"`
	ParentMessageID string   `json:"parentMessageId"`
	X               *float64 `json:"x"`
	Y               *float64 `json:"y"`
}

type UpdateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// MoveMessageRequest carries canvas coordinates. Pointers, not values: 0 is
// a legal coordinate (the canvas edge) and must not read as a missing field.
type MoveMessageRequest struct {
	X *float64 `json:"x" binding:"required"`
	Y *float64 `json:"y" binding:"required"`
}

type ConnectRequest struct {
	SourceID string `json:"sourceId" binding:"required"`
	TargetID string `json:"targetId" binding:"required"`
}

type CreateCommentRequest struct {
	ConversationID string   `json:"conversationId" binding:"required"`
	Content        string   `json:"content" binding:"required,max=4000"`
	X              *float64 `json:"x"`
	Y              *float64 `json:"y"`
}

type GenerateRequest struct {
	Content         string   `json:"content" binding:"required"`
	ParentMessageID string   `json:"parentMessageId"`
	X               *float64 `json:"x"`
	Y               *float64 `json:"y"`
}

type RetryRequest struct {
	UserMessageID string `json:"userMessageId"`
}

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionProxyRequest struct {
	Messages []Turn `json:"messages" binding:"required"`
}

type GraphResponse struct {
	Nodes []flow.Node `json:"nodes"`
	Edges []flow.Edge `json:"edges"`
}

type MessageListResponse struct {
	Messages []*chat.Message `json:"messages"`
}

type CommentListResponse struct {
	Comments []*chat.Comment `json:"comments"`
}
