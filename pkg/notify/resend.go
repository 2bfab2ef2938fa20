package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

const resendURL = "https://api.resend.com/emails"

// Resend emails editors through the Resend API.
type Resend struct {
	client  *http.Client
	apiKey  string
	from    string
	to      []string
	siteURL string
	baseURL string
}

// NewResend creates a Resend notifier. siteURL prefixes resource links.
func NewResend(apiKey, from string, to []string, siteURL string) *Resend {
	return &Resend{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		from:    from,
		to:      to,
		siteURL: strings.TrimRight(siteURL, "/"),
		baseURL: resendURL,
	}
}

func (r *Resend) Name() string { return "resend" }

func (r *Resend) Send(ctx context.Context, n *Notification) error {
	payload := map[string]any{
		"from":    r.from,
		"to":      r.to,
		"subject": n.Subject,
		"html":    r.html(n),
	}
	if n.Submitter != "" {
		payload["reply_to"] = n.Submitter
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal resend payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create resend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send resend email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("resend status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (r *Resend) html(n *Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(n.Title))
	fmt.Fprintf(&b, "<p><strong>Category:</strong> %s<br>", html.EscapeString(string(n.Category)))
	if len(n.Tags) > 0 {
		fmt.Fprintf(&b, "<strong>Tags:</strong> %s<br>", html.EscapeString(strings.Join(n.Tags, ", ")))
	}
	if n.URL != "" {
		fmt.Fprintf(&b, "<strong>Link:</strong> <a href=\"%s\">%s</a><br>", html.EscapeString(n.URL), html.EscapeString(n.URL))
	}
	if n.Submitter != "" {
		fmt.Fprintf(&b, "<strong>Submitted by:</strong> %s<br>", html.EscapeString(n.Submitter))
	}
	if n.Augmented {
		b.WriteString("<em>Content was augmented with AI and needs review.</em>")
	}
	b.WriteString("</p>")
	if n.Overview != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(n.Overview))
	}
	if r.siteURL != "" {
		link := r.siteURL + n.Path()
		fmt.Fprintf(&b, "<p><a href=\"%s\">Review on the site</a></p>", html.EscapeString(link))
	}
	return b.String()
}
