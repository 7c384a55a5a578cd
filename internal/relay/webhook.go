package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookPayload is the body of an incoming-webhook post. The field names
// follow the common channel/text convention of chat webhooks.
type webhookPayload struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// WebhookMessenger posts each message as JSON to a chat incoming webhook.
type WebhookMessenger struct {
	url    string
	client *http.Client
}

// NewWebhookMessenger posts to url. A nil client gets a 10s timeout.
func NewWebhookMessenger(url string, client *http.Client) *WebhookMessenger {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookMessenger{url: url, client: client}
}

func (m *WebhookMessenger) Message(ctx context.Context, destination, text string) error {
	body, err := json.Marshal(webhookPayload{Channel: destination, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if id := RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
