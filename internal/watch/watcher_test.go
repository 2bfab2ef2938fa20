package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) record(files []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, files)
	return nil
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func TestDebouncer_CollapsesBurst(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(50 * time.Millisecond)
	d.SetCallback(func(files []string) { rec.record(files) })
	defer d.Stop()

	d.Add("b.md")
	d.Add("a.md")
	d.Add("b.md")

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a.md", "b.md"}, rec.snapshot()[0])
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(30 * time.Millisecond)
	d.SetCallback(func(files []string) { rec.record(files) })

	d.Add("a.md")
	d.Stop()
	d.Add("b.md")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestWatcher_ReportsMarkdownChanges(t *testing.T) {
	root := t.TempDir()
	tools := filepath.Join(root, "tools")
	require.NoError(t, os.MkdirAll(tools, 0o755))

	rec := &recorder{}
	w, err := New(root, 50*time.Millisecond, zaptest.NewLogger(t), rec.record)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(tools, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tools, "canvas.md"), []byte("---\ntitle: Canvas\n---\n"), 0o644))

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, 2*time.Second, 20*time.Millisecond)
	for _, call := range rec.snapshot() {
		for _, f := range call {
			assert.Equal(t, ".md", filepath.Ext(f))
		}
	}
}

func TestWatcher_PicksUpNewCategoryDir(t *testing.T) {
	root := t.TempDir()

	rec := &recorder{}
	w, err := New(root, 50*time.Millisecond, zaptest.NewLogger(t), rec.record)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	articles := filepath.Join(root, "articles")
	require.NoError(t, os.MkdirAll(articles, 0o755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(articles, "climate.md"), []byte("# Climate\n"), 0o644))

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), 0, nil, func([]string) error { return nil })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_MissingRoot(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "nope"), 0, nil, func([]string) error { return nil })
	require.NoError(t, err)
	assert.Error(t, w.Start())
	require.NoError(t, w.Stop())
}
