package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sustainability-atlas/atlas/internal/store"
	"github.com/sustainability-atlas/atlas/pkg/resource"
)

func TestFilter_Matches(t *testing.T) {
	f := NewFilter([]string{"Permaculture"}, []string{"crypto"})

	assert.True(t, f.Matches("New CLIMATE report released", "", nil))
	assert.True(t, f.Matches("A permaculture primer", "", nil))
	assert.False(t, f.Matches("Quarterly earnings call", "", nil))
	assert.False(t, f.Matches("Carbon credits on crypto rails", "", nil))
}

func TestFilter_MatchesTags(t *testing.T) {
	f := NewFilter(nil, []string{"Crypto"})

	assert.True(t, f.Matches("Weekly roundup", "", []string{"Circular Economy"}))
	assert.True(t, f.Matches("Weekly roundup", "", []string{"climate_policy"}))
	assert.False(t, f.Matches("Weekly roundup", "", []string{"Energy", "Markets"}))
	assert.False(t, f.Matches("Solar roundup", "", []string{"crypto-mining"}))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Solar & wind grow", plainText("<p>Solar &amp; <b>wind</b>\n grow</p>"))
}

func rss(items ...string) string {
	body := ""
	for _, it := range items {
		body += it
	}
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>` + body + `</channel></rss>`
}

func item(guid, title, desc string, published time.Time) string {
	return fmt.Sprintf(`<item><guid>%s</guid><title>%s</title><link>https://example.org/%s</link><description>%s</description><category>Energy</category><pubDate>%s</pubDate></item>`,
		guid, title, guid, desc, published.Format(time.RFC1123Z))
}

func newImporter(t *testing.T, srcs []Source) (*Importer, string, *store.SQLiteStore) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(t.TempDir(), "atlas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	im := NewImporter(srcs, NewFilter(nil, nil), s, dir, 48*time.Hour, 2, zaptest.NewLogger(t))
	return im, dir, s
}

func TestImporter_Import(t *testing.T) {
	now := time.Now()
	feed := rss(
		item("a1", "Renewable grids in Kenya", "&lt;p&gt;Solar microgrids.&lt;/p&gt;", now.Add(-time.Hour)),
		item("a2", "Stock tips", "Nothing relevant.", now.Add(-time.Hour)),
		item("a3", "Old climate news", "Climate.", now.Add(-30*24*time.Hour)),
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feed)
	}))
	defer srv.Close()

	im, dir, s := newImporter(t, []Source{{Name: "grist", URL: srv.URL, Tags: []string{"Climate"}}})

	res, err := im.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total())
	assert.Equal(t, 2, res.Skipped["grist"])
	assert.Empty(t, res.Errors)

	lib, err := resource.LoadDir(dir)
	require.NoError(t, err)
	require.Equal(t, 1, lib.Len())
	got := lib.All()[0]
	assert.Equal(t, resource.CategoryArticles, got.Category)
	assert.Equal(t, "renewable-grids-in-kenya", got.Slug)
	assert.Equal(t, "feed:grist", got.Source)
	assert.Equal(t, []string{"climate", "energy"}, got.Tags)
	assert.Equal(t, "https://example.org/a1", got.URL)
	assert.Equal(t, "Solar microgrids.", got.Overview)

	ok, err := s.IsImported(context.Background(), "grist", "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	res, err = im.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total())

	lib, err = resource.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, lib.Len())
}

func TestImporter_FeedErrorDoesNotStopOthers(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rss(item("g1", "Circular economy playbook", "Reuse.", time.Now())))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	im, _, _ := newImporter(t, []Source{
		{Name: "good", URL: good.URL},
		{Name: "bad", URL: bad.URL},
	})

	res, err := im.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported["good"])
	assert.Contains(t, res.Errors["bad"], "status 502")
}

func TestImporter_Canceled(t *testing.T) {
	im, _, _ := newImporter(t, []Source{{Name: "x", URL: "http://127.0.0.1:0"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := im.Import(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImporter_UntitledEntryDoesNotAbortFeed(t *testing.T) {
	now := time.Now()
	feed := rss(
		item("u1", "", "Climate notes.", now),
		item("kikou-hendo", "気候変動", "Climate change explainer.", now),
		item("c1", "Climate adaptation in cities", "Heat plans.", now),
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feed)
	}))
	defer srv.Close()

	im, dir, _ := newImporter(t, []Source{{Name: "f", URL: srv.URL}})

	res, err := im.Import(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Imported["f"])
	assert.Equal(t, 1, res.Skipped["f"])

	lib, err := resource.LoadDir(dir)
	require.NoError(t, err)
	_, ok := lib.Find(resource.CategoryArticles, "climate-adaptation-in-cities")
	assert.True(t, ok)
	got, ok := lib.Find(resource.CategoryArticles, "kikou-hendo")
	require.True(t, ok)
	assert.Equal(t, "気候変動", got.Title)
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s := strings.Repeat("a", 299) + "é climate"
	got := truncate(s, 300)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 299)+"...", got)
}

func TestEntrySlug(t *testing.T) {
	assert.Equal(t, "solar-map", entrySlug("Solar Map", "https://example.org/x", "g"))
	assert.Equal(t, "heat-plan", entrySlug("熱", "https://example.org/news/heat-plan.html", "g"))
	assert.Equal(t, "tagexampleorg20247", entrySlug("熱", "", "tag:example.org,2024:7"))
	assert.Equal(t, "", entrySlug("熱", "", ""))
}
