package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/publish"
	"hypermaps/server/internal/infrastructure/logger"
	"hypermaps/server/internal/infrastructure/metrics"
	"hypermaps/server/internal/interfaces/httpserver/responses"
)

// PublishHandler serves the public-space endpoints.
type PublishHandler struct {
	service *publish.Service
	logger  zerolog.Logger
}

func NewPublishHandler(service *publish.Service, log zerolog.Logger) *PublishHandler {
	return &PublishHandler{
		service: service,
		logger:  logger.Component(log, "publish_handler"),
	}
}

// Publish handles POST /v1/messages/:id/publish.
func (h *PublishHandler) Publish(c *gin.Context) {
	rec, err := h.service.PublishMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, publish.ErrAlreadyPublished) {
			responses.Error(c, http.StatusConflict, publish.ErrAlreadyPublished.Error(), nil)
			return
		}
		responses.DomainError(c, err)
		return
	}
	metrics.RecordPublishedMessage()
	c.JSON(http.StatusCreated, rec)
}

// ListPublic handles GET /v1/public/messages.
func (h *PublishHandler) ListPublic(c *gin.Context) {
	recs, err := h.service.ListPublic(c.Request.Context())
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": recs})
}
