package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sustainability-atlas/atlas/pkg/resource"
)

type captured struct {
	header http.Header
	body   []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.header = r.Header.Clone()
		c.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func sample() *Notification {
	return FromResource(&resource.Resource{
		Category: resource.CategoryTools,
		Slug:     "impact-canvas",
		Title:    "Impact <Canvas>",
		Tags:     []string{"sdg", "design"},
		URL:      "https://example.org/canvas",
		Overview: "A canvas.",
	}, "ana@example.org", true)
}

func TestFromResource(t *testing.T) {
	n := sample()
	assert.Equal(t, "New tool submitted: Impact <Canvas>", n.Subject)
	assert.Equal(t, "/tools/impact-canvas", n.Path())
	assert.False(t, n.CreatedAt.IsZero())

	empty := FromResource(&resource.Resource{Category: resource.CategoryArticles, Slug: "x", Title: "X"}, "", false)
	assert.NotNil(t, empty.Tags)
	assert.Equal(t, "New article submitted: X", empty.Subject)
}

type fakeNotifier struct {
	name string
	err  error
	got  []*Notification
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Send(_ context.Context, n *Notification) error {
	f.got = append(f.got, n)
	return f.err
}

func TestManager_Broadcast(t *testing.T) {
	ok := &fakeNotifier{name: "ok"}
	bad := &fakeNotifier{name: "bad", err: errors.New("boom")}
	m := NewManager([]Notifier{ok, bad})

	assert.True(t, m.HasNotifiers())
	assert.Equal(t, []string{"ok", "bad"}, m.Names())

	err := m.Broadcast(context.Background(), sample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)

	var nilMgr *Manager
	assert.False(t, nilMgr.HasNotifiers())
	assert.NoError(t, nilMgr.Broadcast(context.Background(), sample()))
}

func TestResend_Send(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK)
	r := NewResend("re_key", "Atlas <atlas@example.org>", []string{"editors@example.org"}, "https://atlas.example.org/")
	r.baseURL = srv.URL

	require.NoError(t, r.Send(context.Background(), sample()))
	assert.Equal(t, "Bearer re_key", c.header.Get("Authorization"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(c.body, &payload))
	assert.Equal(t, "Atlas <atlas@example.org>", payload["from"])
	assert.Equal(t, []any{"editors@example.org"}, payload["to"])
	assert.Equal(t, "ana@example.org", payload["reply_to"])
	html := payload["html"].(string)
	assert.Contains(t, html, "Impact &lt;Canvas&gt;")
	assert.Contains(t, html, "https://atlas.example.org/tools/impact-canvas")
	assert.Contains(t, html, "augmented with AI")
}

func TestResend_ErrorStatus(t *testing.T) {
	srv, _ := captureServer(t, http.StatusUnprocessableEntity)
	r := NewResend("k", "a@example.org", []string{"b@example.org"}, "")
	r.baseURL = srv.URL
	assert.ErrorContains(t, r.Send(context.Background(), sample()), "resend status 422")
}

func TestSlack_Send(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK)
	require.NoError(t, NewSlack(srv.URL).Send(context.Background(), sample()))

	var payload struct {
		Blocks []map[string]any `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(c.body, &payload))
	require.Len(t, payload.Blocks, 3)
	assert.Equal(t, "header", payload.Blocks[0]["type"])
	assert.Equal(t, "context", payload.Blocks[2]["type"])
}

func TestDiscord_Send(t *testing.T) {
	srv, c := captureServer(t, http.StatusNoContent)
	require.NoError(t, NewDiscord(srv.URL).Send(context.Background(), sample()))

	var payload struct {
		Embeds []map[string]any `json:"embeds"`
	}
	require.NoError(t, json.Unmarshal(c.body, &payload))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "https://example.org/canvas", payload.Embeds[0]["url"])
	assert.Contains(t, payload.Embeds[0]["description"], "sdg, design")
}

func TestWebhook_SubmittedEvent(t *testing.T) {
	srv, c := captureServer(t, http.StatusAccepted)
	require.NoError(t, NewWebhook(srv.URL, "s3cret").Send(context.Background(), sample()))

	assert.Equal(t, "sha256="+Sign("s3cret", c.body), c.header.Get("X-Signature-256"))
	assert.Equal(t, EventResourceSubmitted, c.header.Get("X-Atlas-Event"))

	var ev WebhookEvent
	require.NoError(t, json.Unmarshal(c.body, &ev))
	assert.Equal(t, "resource.submitted", ev.Event)
	assert.Equal(t, "/tools/impact-canvas", ev.Path)
	assert.Equal(t, c.header.Get("X-Atlas-Delivery"), ev.DeliveryID)
	assert.NotEmpty(t, ev.DeliveryID)
	require.NotNil(t, ev.Resource)
	assert.Equal(t, "impact-canvas", ev.Resource.Slug)
}

func TestWebhook_UnsignedWithoutSecret(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK)
	require.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), sample()))
	assert.Empty(t, c.header.Get("X-Signature-256"))
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv, _ := captureServer(t, http.StatusInternalServerError)
	assert.Error(t, NewWebhook(srv.URL, "").Send(context.Background(), sample()))
}
