package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/session"
	"hypermaps/server/internal/infrastructure/auth"
	"hypermaps/server/internal/infrastructure/llmprovider"
	"hypermaps/server/internal/infrastructure/logger"
	"hypermaps/server/internal/infrastructure/metrics"
	"hypermaps/server/internal/infrastructure/observability"
	"hypermaps/server/internal/infrastructure/ratelimit"
	"hypermaps/server/internal/interfaces/httpserver/dto"
	"hypermaps/server/internal/interfaces/httpserver/responses"
)

// GenerationHandler serves the streaming generation endpoints. Responses are
// emitted as tagged records on a chunked text/plain body.
type GenerationHandler struct {
	manager *session.Manager
	limiter *ratelimit.FixedWindow
	logger  zerolog.Logger
}

func NewGenerationHandler(manager *session.Manager, limiter *ratelimit.FixedWindow, log zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{
		manager: manager,
		limiter: limiter,
		logger:  logger.Component(log, "generation_handler"),
	}
}

// Generate handles POST /v1/conversations/:id/generate.
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.BindingError(c, err)
		return
	}
	if !h.allow(c) {
		return
	}

	conversationID := c.Param("id")
	ctx, span := observability.Tracer().Start(c.Request.Context(), "generation.generate")
	span.SetAttributes(attribute.String("conversation.id", conversationID))
	defer span.End()

	obs := newStreamObserver(c)
	metrics.SessionStarted()
	defer metrics.SessionFinished()

	result, err := h.manager.Generate(ctx, session.GenerateInput{
		ConversationID:  conversationID,
		Content:         req.Content,
		ParentMessageID: req.ParentMessageID,
		X:               req.X,
		Y:               req.Y,
	}, obs)
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	h.finish(obs, result)
}

// Retry handles POST /v1/conversations/:id/retry. The latest user message
// (or the one named in the body) is regenerated without a new user write.
func (h *GenerationHandler) Retry(c *gin.Context) {
	var req dto.RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		responses.BindingError(c, err)
		return
	}
	if !h.allow(c) {
		return
	}

	conversationID := c.Param("id")
	ctx, span := observability.Tracer().Start(c.Request.Context(), "generation.retry")
	span.SetAttributes(attribute.String("conversation.id", conversationID))
	defer span.End()

	obs := newStreamObserver(c)
	metrics.SessionStarted()
	defer metrics.SessionFinished()

	result, err := h.manager.Retry(ctx, conversationID, req.UserMessageID, obs)
	if err != nil {
		responses.DomainError(c, err)
		return
	}
	h.finish(obs, result)
}

// Cancel handles POST /v1/conversations/:id/cancel.
func (h *GenerationHandler) Cancel(c *gin.Context) {
	conversationID := c.Param("id")
	if !h.manager.Cancel(conversationID) {
		responses.Error(c, http.StatusNotFound, "no active generation for this conversation", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// allow applies the per-caller fixed-window limit. Limiter errors deny the
// request.
func (h *GenerationHandler) allow(c *gin.Context) bool {
	if h.limiter == nil {
		return true
	}
	key := c.ClientIP()
	if subject, ok := c.Get(auth.SubjectKey); ok {
		if s, ok := subject.(string); ok && s != "" {
			key = s
		}
	}
	ok, err := h.limiter.Allow(c.Request.Context(), key)
	if err != nil {
		h.logger.Error().Err(err).Msg("rate limiter unavailable, denying request")
		responses.Error(c, http.StatusServiceUnavailable, "rate limiter unavailable", nil)
		return false
	}
	if !ok {
		responses.Error(c, http.StatusTooManyRequests,
			"Rate limit exceeded. Please wait a moment before trying again.", nil)
		return false
	}
	return true
}

// finish writes the closing records for a completed run. Failure records are
// written by the observer as they happen.
func (h *GenerationHandler) finish(obs *streamObserver, result *session.Result) {
	switch result.State {
	case session.StateCompleted:
		metrics.RecordGeneration("completed")
		obs.completed(result)
	case session.StateFailed:
		metrics.RecordGeneration("failed")
		if result.Failure != nil {
			metrics.RecordGenerationFailure(string(result.Failure.Kind))
			// Pre-stream failures never reached the observer path.
			obs.failedIfSilent(result.Failure)
		}
	case session.StateIdle:
		metrics.RecordGeneration("cancelled")
	}
}

// streamObserver re-emits session progress as tagged records. Headers go out
// lazily on the first record so pre-flight rejections can still answer with
// plain JSON.
type streamObserver struct {
	session.NopObserver

	mu      sync.Mutex
	c       *gin.Context
	encoder *llmprovider.Encoder
	flusher http.Flusher
	started bool
	failed  bool
}

func newStreamObserver(c *gin.Context) *streamObserver {
	flusher, _ := c.Writer.(http.Flusher)
	return &streamObserver{
		c:       c,
		encoder: llmprovider.NewEncoder(c.Writer),
		flusher: flusher,
	}
}

func (o *streamObserver) ensureStartedLocked() {
	if o.started {
		return
	}
	o.started = true
	header := o.c.Writer.Header()
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Accel-Buffering", "no")
	o.c.Writer.WriteHeader(http.StatusOK)
}

func (o *streamObserver) flushLocked() {
	if o.flusher != nil {
		o.flusher.Flush()
	}
}

func (o *streamObserver) OnDelta(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensureStartedLocked()
	if err := o.encoder.Text(text); err != nil {
		return
	}
	o.flushLocked()
	metrics.RecordStreamChunk()
}

func (o *streamObserver) OnData(raw []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensureStartedLocked()
	if err := o.encoder.Data(raw); err != nil {
		return
	}
	o.flushLocked()
}

func (o *streamObserver) OnAnnotation(raw []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensureStartedLocked()
	if err := o.encoder.Annotation(raw); err != nil {
		return
	}
	o.flushLocked()
}

func (o *streamObserver) OnFailed(ferr *session.Error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensureStartedLocked()
	o.failed = true
	if err := o.encoder.Error(ferr.Message); err != nil {
		return
	}
	o.flushLocked()
}

// failedIfSilent emits the error record when OnFailed never ran (failures
// before the session reached the observer).
func (o *streamObserver) failedIfSilent(ferr *session.Error) {
	o.mu.Lock()
	alreadyFailed := o.failed
	o.mu.Unlock()
	if !alreadyFailed {
		o.OnFailed(ferr)
	}
}

// completed writes the persisted messages as a data record followed by the
// finish record.
func (o *streamObserver) completed(result *session.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensureStartedLocked()

	payload := struct {
		Type        string        `json:"type"`
		UserMessage *chat.Message `json:"userMessage,omitempty"`
		Assistant   *chat.Message `json:"assistantMessage"`
	}{
		Type:        "messages",
		UserMessage: result.UserMessage,
		Assistant:   result.Assistant,
	}
	if raw, err := json.Marshal(payload); err == nil {
		_ = o.encoder.Data(raw)
	}
	reason := result.FinishReason
	if reason == "" {
		reason = "stop"
	}
	_ = o.encoder.Finish(reason, result.Usage)
	o.flushLocked()
}
