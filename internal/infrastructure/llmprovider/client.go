package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/config"
	"hypermaps/server/internal/domain/llm"
	"hypermaps/server/internal/infrastructure/logger"
)

// Client talks to an upstream completion endpoint that speaks the tagged
// stream protocol on POST /v1/chat and answers health probes on GET /healthz.
type Client struct {
	baseURL    string
	apiKey     string
	rest       *resty.Client
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ llm.Provider = (*Client)(nil)

// NewClient builds a Client from config. The streaming client carries no
// overall timeout; generations are bounded by the request context instead.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	componentLogger := logger.Component(log, "llm_provider")
	rest := resty.New().
		SetBaseURL(cfg.CompletionURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Client{
		baseURL: strings.TrimRight(cfg.CompletionURL, "/"),
		rest:    rest,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: componentLogger,
	}
}

// StreamCompletion opens a streaming generation against the upstream
// endpoint. The returned stream must be closed by the caller.
func (c *Client) StreamCompletion(ctx context.Context, req *llm.CompletionRequest) (llm.Stream, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")
	if token, ok := llm.AuthTokenFromContext(ctx); ok {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("completion endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.logger.Debug().Str("model", req.Model).Int("turns", len(req.Messages)).Msg("completion stream opened")
	return &httpStream{
		body:    resp.Body,
		decoder: NewDecoder(resp.Body, c.logger),
	}, nil
}

// Healthy probes the upstream endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.rest.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode())
	}
	return nil
}

// httpStream adapts an HTTP response body to llm.Stream.
type httpStream struct {
	body    io.ReadCloser
	decoder *Decoder
}

func (s *httpStream) Recv() (*llm.StreamEvent, error) {
	return s.decoder.Next()
}

func (s *httpStream) Close() error {
	return s.body.Close()
}
