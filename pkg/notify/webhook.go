package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// EventResourceSubmitted is the event name sent for new submissions.
const EventResourceSubmitted = "resource.submitted"

// WebhookEvent is the JSON body posted to webhook endpoints.
type WebhookEvent struct {
	Event      string        `json:"event"`
	DeliveryID string        `json:"delivery_id"`
	Path       string        `json:"path"`
	Resource   *Notification `json:"resource"`
}

// Webhook posts resource events as JSON to any HTTP endpoint.
type Webhook struct {
	client *http.Client
	url    string
	secret string
}

// NewWebhook creates a generic webhook notifier. A non-empty secret signs the
// body with HMAC-SHA256 in X-Signature-256.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		secret: secret,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Send posts a resource.submitted event. Receivers can dedupe retries on
// X-Atlas-Delivery and verify X-Signature-256 against the raw body.
func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	event := WebhookEvent{
		Event:      EventResourceSubmitted,
		DeliveryID: uuid.NewString(),
		Path:       n.Path(),
		Resource:   n,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "atlas/1.0")
	req.Header.Set("X-Atlas-Event", event.Event)
	req.Header.Set("X-Atlas-Delivery", event.DeliveryID)
	if w.secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s status %d", event.DeliveryID, resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
