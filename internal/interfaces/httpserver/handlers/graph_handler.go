package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/flow"
	"hypermaps/server/internal/domain/session"
	"hypermaps/server/internal/infrastructure/logger"
	"hypermaps/server/internal/interfaces/httpserver/dto"
	"hypermaps/server/internal/interfaces/httpserver/responses"
)

// GraphHandler projects a conversation into canvas nodes and edges.
type GraphHandler struct {
	messages chat.MessageStore
	comments chat.CommentStore
	manager  *session.Manager
	logger   zerolog.Logger
}

func NewGraphHandler(messages chat.MessageStore, comments chat.CommentStore, manager *session.Manager, log zerolog.Logger) *GraphHandler {
	return &GraphHandler{
		messages: messages,
		comments: comments,
		manager:  manager,
		logger:   logger.Component(log, "graph_handler"),
	}
}

// Get handles GET /v1/conversations/:id/graph.
func (h *GraphHandler) Get(c *gin.Context) {
	conversationID := c.Param("id")

	msgs, err := h.messages.ListByConversation(c.Request.Context(), conversationID)
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	comments, err := h.comments.ListCommentsByConversation(c.Request.Context(), conversationID)
	if err != nil {
		responses.DomainError(c, err)
		return
	}

	var streaming flow.Streaming
	if snap, ok := h.manager.Snapshot(conversationID); ok && !snap.State.Terminal() && snap.State != session.StateIdle {
		streaming = flow.Streaming{
			Active:        true,
			AssistantID:   snap.AssistantID,
			UserMessageID: snap.UserMessageID,
			Content:       snap.Content,
		}
	}

	nodes, edges := flow.Project(msgs, comments, streaming)
	c.JSON(http.StatusOK, dto.GraphResponse{Nodes: nodes, Edges: edges})
}
