package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eris-support/support-desk/internal/config"
)

// SecretHeader carries the shared secret between the desk and the bot.
const SecretHeader = "X-Bot-Secret"

// BotWebhook pushes new-ticket cards to the notification bot.
type BotWebhook struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBotWebhook returns a webhook client. An empty URL disables delivery.
func NewBotWebhook(cfg config.BotConfig, logger *zap.Logger) *BotWebhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotWebhook{
		url:        cfg.WebhookURL,
		secret:     cfg.Secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Named("bot_webhook"),
	}
}

// Enabled reports whether a webhook URL is configured.
func (b *BotWebhook) Enabled() bool {
	return b != nil && b.url != ""
}

// NotifyTicket posts the ticket card. Delivery is one-way; the response body
// is discarded.
func (b *BotWebhook) NotifyTicket(ctx context.Context, ticket TicketPayload) error {
	if !b.Enabled() {
		return nil
	}
	body, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("marshal ticket %d: %w", ticket.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, b.secret)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	b.logger.Debug("ticket pushed to bot", zap.Int64("ticket_id", ticket.ID))
	return nil
}
