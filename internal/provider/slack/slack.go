// Package slack delivers chat notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifeguard/lifeguard/internal/notify"
	"github.com/lifeguard/lifeguard/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "slack"

	maxBodyLen  = 3000
	httpTimeout = 5 * time.Second
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier posts chat messages to a Slack webhook. It implements
// notify.MessageSender; the webhook decides the channel, so the recipient
// address is only shown in the message context.
type Notifier struct {
	webhookURL string
	client     HTTPDoer
	logger     zerolog.Logger
}

// New creates a new Slack notifier. A nil client gets a resilient client
// registered in registry (which may be nil).
func New(webhookURL string, client HTTPDoer, registry *resilience.Registry, logger zerolog.Logger) *Notifier {
	if client == nil {
		client = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         httpTimeout,
			MaxRetries:      1,
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     time.Second,
			Registry:        registry,
			Logger:          logger,
		})
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     client,
		logger:     logger.With().Str("provider", ProviderName).Logger(),
	}
}

// SendMessage implements notify.MessageSender.
func (n *Notifier) SendMessage(ctx context.Context, msg notify.Message) (notify.Receipt, error) {
	if n.webhookURL == "" {
		return notify.Receipt{}, fmt.Errorf("slack: webhook url not configured")
	}

	body, err := json.Marshal(buildMessage(msg))
	if err != nil {
		return notify.Receipt{}, fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return notify.Receipt{}, fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // webhookURL is from trusted config, not user input
	if err != nil {
		return notify.Receipt{}, fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return notify.Receipt{}, fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	// Incoming webhooks do not return a message id.
	return notify.Receipt{Reference: "slack-" + uuid.NewString(), Status: "posted"}, nil
}

func buildMessage(msg notify.Message) map[string]any {
	return map[string]any{
		"text": "LIFEGUARD SOS",
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": "\U0001f6a8 LIFEGUARD SOS",
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": truncate(msg.Body, maxBodyLen),
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("lifeguard dispatch • for %s", msg.To)},
				},
			},
		},
	}
}

// truncate shortens s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
