package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookConfig holds the settings for a generic JSON webhook channel.
type WebhookConfig struct {
	// ChannelID names the channel this sender serves, matching the
	// channelId on notification rules.
	ChannelID string
	// URL receives the POSTed payload.
	URL string
	// Headers are added to every request, e.g. an Authorization token.
	Headers map[string]string
}

// Validate checks the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.ChannelID == "" {
		return fmt.Errorf("channel id is required")
	}
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("webhook URL must be http or https")
	}
	return nil
}

// WebhookSender posts deliveries as JSON to a configured endpoint. The
// payload carries the rendered message, the recipients and the full alert.
type WebhookSender struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(config WebhookConfig) (*WebhookSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	return &WebhookSender{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns the configured channel id.
func (s *WebhookSender) Name() string {
	return s.config.ChannelID
}

type webhookPayload struct {
	Channel    string      `json:"channel"`
	Recipients []string    `json:"recipients"`
	Message    string      `json:"message"`
	Alert      interface{} `json:"alert"`
}

// Send posts one delivery.
func (s *WebhookSender) Send(ctx context.Context, d Delivery) error {
	payload := webhookPayload{
		Channel:    d.ChannelID,
		Recipients: d.Recipients,
		Message:    d.Message,
		Alert:      d.Alert,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook endpoint error: status %d, body: %s", resp.StatusCode, string(detail))
	}
	return nil
}

// Close is a no-op for webhook senders.
func (s *WebhookSender) Close() error {
	return nil
}
