package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/infrastructure/logger"
	"hypermaps/server/internal/interfaces/httpserver/dto"
	"hypermaps/server/internal/interfaces/httpserver/responses"
)

// CommentHandler serves comment ingestion and listing.
type CommentHandler struct {
	store  chat.CommentStore
	logger zerolog.Logger
}

func NewCommentHandler(store chat.CommentStore, log zerolog.Logger) *CommentHandler {
	return &CommentHandler{
		store:  store,
		logger: logger.Component(log, "comment_handler"),
	}
}

// Create handles POST /v1/comments.
func (h *CommentHandler) Create(c *gin.Context) {
	var req dto.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.BindingError(c, err)
		return
	}

	existing, err := h.store.ListCommentsByConversation(c.Request.Context(), req.ConversationID)
	if err != nil {
		responses.DomainError(c, err)
		return
	}

	comment := &chat.Comment{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Position:       len(existing),
		X:              req.X,
		Y:              req.Y,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateComment(c.Request.Context(), comment); err != nil {
		responses.DomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// List handles GET /v1/conversations/:id/comments.
func (h *CommentHandler) List(c *gin.Context) {
	comments, err := h.store.ListCommentsByConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CommentListResponse{Comments: comments})
}

// Delete handles DELETE /v1/comments/:id.
func (h *CommentHandler) Delete(c *gin.Context) {
	if err := h.store.DeleteComment(c.Request.Context(), c.Param("id")); err != nil {
		responses.DomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
