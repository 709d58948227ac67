package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// WebhookNotifier POSTs published records as JSON to a configured URL.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger zerolog.Logger
}

var _ Notifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(url string, logger zerolog.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{
		client: client,
		url:    url,
		logger: logger.With().Str("component", "publish_webhook").Logger(),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, rec *Record) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(rec).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	n.logger.Debug().Str("record_id", rec.ID).Msg("publish webhook delivered")
	return nil
}
