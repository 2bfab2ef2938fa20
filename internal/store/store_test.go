package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sustainability-atlas/atlas/pkg/resource"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "atlas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestViews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.GetViews(ctx, resource.CategoryTools, "canvas")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for want := int64(1); want <= 3; want++ {
		n, err = s.IncrementViews(ctx, resource.CategoryTools, "canvas")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	_, err = s.IncrementViews(ctx, resource.CategoryArticles, "climate-101")
	require.NoError(t, err)

	n, err = s.GetViews(ctx, resource.CategoryTools, "canvas")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	top, err := s.TopViewed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "canvas", top[0].Slug)
	assert.Equal(t, int64(3), top[0].Count)
	assert.Equal(t, resource.CategoryArticles, top[1].Category)

	top, err = s.TopViewed(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestViews_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementViews(ctx, resource.CategoryTools, "busy")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.GetViews(ctx, resource.CategoryTools, "busy")
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
}

func TestSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := &Submission{
		ID: "a", Category: resource.CategoryTools, Slug: "canvas", Title: "Canvas",
		Path: "tools/canvas.md", CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	newer := &Submission{
		ID: "b", Category: resource.CategoryArticles, Slug: "climate", Title: "Climate",
		Email: "ana@example.org", Path: "articles/climate.md", Augmented: true, CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AddSubmission(ctx, older))
	require.NoError(t, s.AddSubmission(ctx, newer))
	assert.Error(t, s.AddSubmission(ctx, older))

	list, err := s.ListSubmissions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.True(t, list[0].Augmented)
	assert.Equal(t, "ana@example.org", list[0].Email)
}

func TestImportedEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.IsImported(ctx, "grist", "guid-1")
	require.NoError(t, err)
	assert.False(t, ok)

	e := &ImportedEntry{Feed: "grist", GUID: "guid-1", Slug: "story"}
	require.NoError(t, s.MarkImported(ctx, e))
	assert.False(t, e.ImportedAt.IsZero())
	require.NoError(t, s.MarkImported(ctx, e))

	ok, err = s.IsImported(ctx, "grist", "guid-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsImported(ctx, "other", "guid-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
