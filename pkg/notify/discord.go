package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord posts notifications as a Discord webhook embed.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var lines []string
	lines = append(lines, fmt.Sprintf("**Category:** %s | **Path:** `%s`", n.Category, n.Path()))
	if len(n.Tags) > 0 {
		lines = append(lines, "**Tags:** "+strings.Join(n.Tags, ", "))
	}
	if n.Overview != "" {
		lines = append(lines, "", n.Overview)
	}
	if n.Submitter != "" {
		lines = append(lines, "", "_submitted by "+n.Submitter+"_")
	}

	embed := map[string]any{
		"title":       n.Subject,
		"description": strings.Join(lines, "\n"),
		"color":       0x2E8B57,
		"timestamp":   n.CreatedAt.Format(time.RFC3339),
	}
	if n.URL != "" {
		embed["url"] = n.URL
	}

	body, err := json.Marshal(map[string]any{
		"embeds": []map[string]any{embed},
	})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}
	return nil
}
