package feed

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sustainability-atlas/atlas/internal/store"
	"github.com/sustainability-atlas/atlas/pkg/resource"
)

// Source is a named RSS/Atom feed with tags applied to every imported entry.
type Source struct {
	Name string
	URL  string
	Tags []string
}

// Tracker remembers which entries were already imported.
type Tracker interface {
	IsImported(ctx context.Context, feed, guid string) (bool, error)
	MarkImported(ctx context.Context, e *store.ImportedEntry) error
}

// Result summarizes one import run.
type Result struct {
	Imported map[string]int    `json:"imported"`
	Skipped  map[string]int    `json:"skipped"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// Total returns the number of articles written.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Imported {
		n += c
	}
	return n
}

// Importer turns feed entries into article resources.
type Importer struct {
	client      *http.Client
	sources     []Source
	filter      *Filter
	tracker     Tracker
	contentDir  string
	maxAge      time.Duration
	concurrency int
	logger      *zap.Logger

	writeMu sync.Mutex
	now     func() time.Time
}

// NewImporter creates a feed importer writing into contentDir.
func NewImporter(sources []Source, filter *Filter, tracker Tracker, contentDir string, maxAge time.Duration, concurrency int, logger *zap.Logger) *Importer {
	if concurrency <= 0 {
		concurrency = 4
	}
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		client:      &http.Client{Timeout: 30 * time.Second},
		sources:     sources,
		filter:      filter,
		tracker:     tracker,
		contentDir:  contentDir,
		maxAge:      maxAge,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// Import fetches every feed concurrently. A failing feed is recorded in the
// result and does not stop the others.
func (im *Importer) Import(ctx context.Context) (*Result, error) {
	res := &Result{
		Imported: make(map[string]int),
		Skipped:  make(map[string]int),
		Errors:   make(map[string]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)

	for _, src := range im.sources {
		src := src // per-iteration copy; module targets go 1.21 (pre-1.22 loopvar semantics)
		g.Go(func() error {
			imported, skipped, err := im.importFeed(gctx, src)
			mu.Lock()
			defer mu.Unlock()
			res.Imported[src.Name] = imported
			res.Skipped[src.Name] = skipped
			if err != nil {
				res.Errors[src.Name] = err.Error()
				im.logger.Warn("feed import failed", zap.String("feed", src.Name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (im *Importer) importFeed(ctx context.Context, src Source) (imported, skipped int, err error) {
	parsed, err := im.fetch(ctx, src)
	if err != nil {
		return 0, 0, err
	}

	cutoff := im.now().Add(-im.maxAge)
	for _, entry := range parsed.Items {
		if err := ctx.Err(); err != nil {
			return imported, skipped, err
		}

		published := im.now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		if published.Before(cutoff) {
			skipped++
			continue
		}

		summary := plainText(entry.Description)
		if im.filter != nil && !im.filter.Matches(entry.Title, summary, entry.Categories) {
			skipped++
			continue
		}

		guid := entryID(entry)
		if guid == "" {
			skipped++
			continue
		}
		done, err := im.tracker.IsImported(ctx, src.Name, guid)
		if err != nil {
			return imported, skipped, err
		}
		if done {
			skipped++
			continue
		}

		r := im.toResource(src, entry, summary, published)
		if r.Title == "" || r.Slug == "" {
			im.logger.Debug("skipping entry without usable title",
				zap.String("feed", src.Name), zap.String("guid", guid))
			skipped++
			continue
		}
		written, err := im.write(r)
		if err != nil {
			return imported, skipped, err
		}
		if err := im.tracker.MarkImported(ctx, &store.ImportedEntry{Feed: src.Name, GUID: guid, Slug: written.Slug}); err != nil {
			return imported, skipped, err
		}
		im.logger.Debug("imported entry", zap.String("feed", src.Name), zap.String("slug", written.Slug))
		imported++
	}
	return imported, skipped, nil
}

func (im *Importer) fetch(ctx context.Context, src Source) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", src.Name, err)
	}
	req.Header.Set("User-Agent", "atlas/1.0")

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", src.Name, resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.Name, err)
	}
	return parsed, nil
}

// write serializes file creation so concurrent feeds cannot race for a slug.
func (im *Importer) write(r *resource.Resource) (*resource.Resource, error) {
	im.writeMu.Lock()
	defer im.writeMu.Unlock()
	return resource.WriteMarkdown(im.contentDir, r)
}

func (im *Importer) toResource(src Source, entry *gofeed.Item, summary string, published time.Time) *resource.Resource {
	link := entry.Link
	if link == "" && len(entry.Links) > 0 {
		link = entry.Links[0]
	}

	author := ""
	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		author = entry.Authors[0].Name
	}

	tags := append([]string{}, src.Tags...)
	tags = append(tags, entry.Categories...)

	title := strings.TrimSpace(entry.Title)
	overview := truncate(summary, 300)
	body := fmt.Sprintf("# %s\n\n%s\n\n[Read the original on %s](%s)\n",
		title, truncate(summary, 2000), src.Name, link)

	return &resource.Resource{
		Category: resource.CategoryArticles,
		Slug:     entrySlug(title, link, entryID(entry)),
		Title:    title,
		Tags:     resource.NormalizeTags(tags),
		Overview: overview,
		URL:      link,
		Author:   author,
		Date:     published,
		Source:   "feed:" + src.Name,
		Body:     body,
	}
}

// entrySlug derives a slug from the title, falling back to the last path
// segment of the link and then the GUID for titles without ASCII letters.
func entrySlug(title, link, guid string) string {
	if slug := resource.Slugify(title); slug != "" {
		return slug
	}
	for _, raw := range []string{link, guid} {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		seg := path.Base(strings.TrimSuffix(u.Path, "/"))
		seg = strings.TrimSuffix(seg, path.Ext(seg))
		if slug := resource.Slugify(seg); slug != "" {
			return slug
		}
		if slug := resource.Slugify(raw); slug != "" {
			return slug
		}
	}
	return ""
}

func entryID(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return entry.GUID
	}
	return entry.Link
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// plainText strips markup from feed descriptions.
func plainText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most maxLen bytes on a rune boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "..."
}
