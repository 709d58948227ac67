package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/config"
	"hypermaps/server/internal/domain/llm"
	"hypermaps/server/internal/domain/session"
	"hypermaps/server/internal/infrastructure/llmprovider"
	"hypermaps/server/internal/infrastructure/logger"
	"hypermaps/server/internal/interfaces/httpserver/dto"
	"hypermaps/server/internal/interfaces/httpserver/responses"
)

// CompletionHandler proxies ad hoc transcripts straight to the completion
// endpoint, relaying the tagged-record stream without touching the stores.
type CompletionHandler struct {
	provider llm.Provider
	cfg      *config.Config
	logger   zerolog.Logger
}

func NewCompletionHandler(provider llm.Provider, cfg *config.Config, log zerolog.Logger) *CompletionHandler {
	return &CompletionHandler{
		provider: provider,
		cfg:      cfg,
		logger:   logger.Component(log, "completion_handler"),
	}
}

// Proxy handles POST /v1/ai-response. Malformed turns are dropped; the
// request is rejected when nothing usable remains.
func (h *CompletionHandler) Proxy(c *gin.Context) {
	var req dto.CompletionProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.BindingError(c, err)
		return
	}

	turns := filterTurns(req.Messages)
	if len(turns) == 0 {
		responses.Error(c, http.StatusBadRequest, "no valid messages provided", nil)
		return
	}

	ctx := c.Request.Context()
	if token := bearerToken(c); token != "" {
		ctx = llm.WithAuthToken(ctx, token)
	}

	stream, err := h.provider.StreamCompletion(ctx, &llm.CompletionRequest{
		Model:       h.cfg.CompletionModel,
		Messages:    turns,
		Temperature: h.cfg.Temperature,
		MaxTokens:   h.cfg.MaxTokens,
	})
	if err != nil {
		kind := session.Classify(err.Error())
		h.logger.Warn().Err(err).Str("kind", string(kind)).Msg("completion proxy failed")
		responses.Error(c, responses.StatusForKind(kind), "failed to get AI response", err.Error())
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	encoder := llmprovider.NewEncoder(c.Writer)
	flusher, _ := c.Writer.(http.Flusher)
	for {
		ev, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Warn().Err(err).Msg("completion stream interrupted")
			}
			return
		}
		switch ev.Kind {
		case llm.EventText:
			err = encoder.Text(ev.Text)
		case llm.EventError:
			err = encoder.Error(ev.Text)
		case llm.EventFinish:
			err = encoder.Finish(ev.FinishReason, ev.Usage)
		case llm.EventData:
			err = encoder.Data(ev.Raw)
		case llm.EventAnnotation:
			err = encoder.Annotation(ev.Raw)
		}
		if err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if ev.Kind == llm.EventError || ev.Kind == llm.EventFinish {
			return
		}
	}
}

// filterTurns keeps well-formed transcript entries only.
func filterTurns(in []dto.Turn) []llm.Turn {
	out := make([]llm.Turn, 0, len(in))
	for _, t := range in {
		role := strings.TrimSpace(t.Role)
		if role != "user" && role != "assistant" && role != "system" {
			continue
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		out = append(out, llm.Turn{Role: role, Content: t.Content})
	}
	return out
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
