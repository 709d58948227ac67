package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/flow"
	"hypermaps/server/internal/infrastructure/logger"
	"hypermaps/server/internal/interfaces/httpserver/dto"
	"hypermaps/server/internal/interfaces/httpserver/responses"
)

// MessageHandler serves message CRUD, node moves and manual connections.
type MessageHandler struct {
	store  chat.MessageStore
	logger zerolog.Logger
}

func NewMessageHandler(store chat.MessageStore, log zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		store:  store,
		logger: logger.Component(log, "message_handler"),
	}
}

// Create handles POST /v1/messages. Explicit coordinates come from
// double-click placement on the canvas.
func (h *MessageHandler) Create(c *gin.Context) {
	var req dto.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.BindingError(c, err)
		return
	}

	existing, err := h.store.ListByConversation(c.Request.Context(), req.ConversationID)
	if err != nil {
		responses.DomainError(c, err)
		return
	}

	msg := &chat.Message{
		ID:              chat.NewMessageID(),
		ConversationID:  req.ConversationID,
		ParentMessageID: req.ParentMessageID,
		Role:            chat.Role(req.Role),
		Content:         req.Content,
		Position:        len(existing),
		X:               req.X,
		Y:               req.Y,
		CreatedAt:       time.Now().UTC(),
	}
	if err := h.store.CreateMessage(c.Request.Context(), msg); err != nil {
		responses.DomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /v1/conversations/:id/messages.
func (h *MessageHandler) List(c *gin.Context) {
	msgs, err := h.store.ListByConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageListResponse{Messages: msgs})
}

// Update handles PATCH /v1/messages/:id (content edit).
func (h *MessageHandler) Update(c *gin.Context) {
	var req dto.UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.BindingError(c, err)
		return
	}

	msg, err := h.store.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	msg.Content = req.Content
	if err := h.store.UpdateMessage(c.Request.Context(), msg); err != nil {
		responses.DomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Move handles PUT /v1/messages/:id/position, called when a node drag stops.
func (h *MessageHandler) Move(c *gin.Context) {
	var req dto.MoveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.BindingError(c, err)
		return
	}

	msg, err := h.store.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	msg.X = req.X
	msg.Y = req.Y
	if err := h.store.UpdateMessage(c.Request.Context(), msg); err != nil {
		responses.DomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Connect handles POST /v1/connections: the target message becomes a child
// of the source. Only user -> assistant links are accepted.
func (h *MessageHandler) Connect(c *gin.Context) {
	var req dto.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.BindingError(c, err)
		return
	}

	source, err := h.store.GetMessage(c.Request.Context(), req.SourceID)
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	target, err := h.store.GetMessage(c.Request.Context(), req.TargetID)
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	if !flow.CanConnect(source, target) {
		responses.Error(c, http.StatusUnprocessableEntity,
			"only a user message can be connected to an assistant message", nil)
		return
	}

	target.ParentMessageID = source.ID
	if err := h.store.UpdateMessage(c.Request.Context(), target); err != nil {
		responses.DomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}

// Delete handles DELETE /v1/messages/:id.
func (h *MessageHandler) Delete(c *gin.Context) {
	if err := h.store.DeleteMessage(c.Request.Context(), c.Param("id")); err != nil {
		responses.DomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
