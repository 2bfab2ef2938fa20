package augment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sustainability-atlas/atlas/pkg/resource"
)

const draftPrompt = `You are an editor for Sustainability Atlas, a curated library of tools, collections and articles about sustainability, climate and social impact.

A visitor submitted the resource below. Write supporting content for it:
1. "overview": 1-2 plain sentences describing what the resource is and who it helps.
2. "tags": 3-6 short topical tags, lowercase, words joined with hyphens (e.g. "circular-economy", "sdg").
3. "body": a markdown section (no top-level heading) with "## What it is", "## How to use it" and "## Why it matters". Keep it factual; do not invent statistics.

Resource:
- Category: %s
- Title: %s
- URL: %s
- Submitted description: %s
- Submitted tags: %s

Return ONLY a JSON object with the keys "overview", "tags" and "body".`

// Draft is what a visitor submitted.
type Draft struct {
	Category resource.Category
	Title    string
	URL      string
	Overview string
	Tags     []string
}

// Content is the generated supplement for a draft.
type Content struct {
	Overview string   `json:"overview"`
	Tags     []string `json:"tags"`
	Body     string   `json:"body"`
}

// Generator writes resource content through a chat completion API.
type Generator struct {
	client   *http.Client
	provider string // "openai", "perplexity" or "anthropic"
	model    string
	apiKey   string
	baseURL  string
}

// NewGenerator creates a generator. An empty model picks the provider default.
func NewGenerator(provider, model, apiKey, baseURL string, timeout time.Duration) *Generator {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-20250514"
		case "perplexity":
			model = "sonar"
		default:
			model = "gpt-4o-mini"
		}
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Generator{
		client:   &http.Client{Timeout: timeout},
		provider: provider,
		model:    model,
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Provider returns "provider/model".
func (g *Generator) Provider() string {
	return g.provider + "/" + g.model
}

// Generate asks the model for an overview, tags and body for d.
func (g *Generator) Generate(ctx context.Context, d Draft) (*Content, error) {
	if strings.TrimSpace(d.Title) == "" {
		return nil, fmt.Errorf("generate content: empty title")
	}

	prompt := fmt.Sprintf(draftPrompt,
		d.Category,
		d.Title,
		orNone(d.URL),
		orNone(truncate(d.Overview, 1000)),
		orNone(strings.Join(d.Tags, ", ")),
	)

	var raw string
	var err error

	switch g.provider {
	case "anthropic":
		raw, err = g.callAnthropic(ctx, prompt)
	case "perplexity":
		raw, err = g.callChat(ctx, "https://api.perplexity.ai", "/chat/completions", prompt)
	default:
		raw, err = g.callChat(ctx, "https://api.openai.com", "/v1/chat/completions", prompt)
	}
	if err != nil {
		return nil, err
	}

	return parseContent(raw)
}

// parseContent decodes the model reply, tolerating a markdown code fence
// around the JSON.
func parseContent(raw string) (*Content, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
			raw = raw[3+idx+1:]
		}
		raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "```"))
	}

	var c Content
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("parse generated content: %w\nraw: %s", err, truncate(raw, 500))
	}
	c.Overview = strings.TrimSpace(c.Overview)
	c.Body = strings.TrimSpace(c.Body)
	c.Tags = resource.NormalizeTags(c.Tags)
	return &c, nil
}

func (g *Generator) callChat(ctx context.Context, defaultBase, path, prompt string) (string, error) {
	baseURL := g.baseURL
	if baseURL == "" {
		baseURL = defaultBase
	}

	payload := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.3,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}
	if err := g.post(ctx, baseURL+path, headers, payload, &result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices returned", g.provider)
	}
	return result.Choices[0].Message.Content, nil
}

func (g *Generator) callAnthropic(ctx context.Context, prompt string) (string, error) {
	baseURL := g.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload := map[string]any{
		"model":      g.model,
		"max_tokens": 2048,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	headers := map[string]string{
		"x-api-key":         g.apiKey,
		"anthropic-version": "2023-06-01",
	}
	if err := g.post(ctx, baseURL+"/v1/messages", headers, payload, &result); err != nil {
		return "", err
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

func (g *Generator) post(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", g.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", g.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", g.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		return fmt.Errorf("%s status %d: %s", g.provider, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", g.provider, err)
	}
	return nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
