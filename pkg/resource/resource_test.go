package resource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SDG", "sdg"},
		{"  Circular Economy ", "circular-economy"},
		{"systems_thinking", "systems-thinking"},
		{"net--zero", "net-zero"},
		{"-carbon-", "carbon"},
		{"B Corp!", "b-corp"},
		{"???", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTag(tt.in))
		})
	}
}

func TestNormalizeTags_DedupesAndKeepsOrder(t *testing.T) {
	got := NormalizeTags([]string{"Design", "sdg", "design", "", "SDG", "canvas"})
	assert.Equal(t, []string{"design", "sdg", "canvas"}, got)
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"circular-economy", "finance"}, SplitTags("Circular Economy, finance,,"))
}

func TestSlugify_Truncates(t *testing.T) {
	slug := Slugify(strings.Repeat("word ", 40))
	assert.LessOrEqual(t, len(slug), maxSlugLen)
	assert.False(t, strings.HasSuffix(slug, "-"))
}

func TestTagPrefix(t *testing.T) {
	assert.Equal(t, "circular", TagPrefix("circular-economy"))
	assert.Equal(t, "", TagPrefix("finance"))
}

func TestParsePath(t *testing.T) {
	cat, slug, err := ParsePath("/tools/impact-canvas")
	require.NoError(t, err)
	assert.Equal(t, CategoryTools, cat)
	assert.Equal(t, "impact-canvas", slug)

	_, _, err = ParsePath("/articles/climate-101/")
	require.NoError(t, err)

	for _, bad := range []string{"", "tools/x", "/tools", "/tools/", "/tools/a/b", "/widgets/x", "//x"} {
		_, _, err := ParsePath(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestParse_Frontmatter(t *testing.T) {
	content := "---\ntitle: Impact Canvas\ntags: [SDG, Design]\noverview: A canvas.\nurl: https://example.org\n---\n\n# Impact Canvas\n\nBody text.\n"
	r, err := Parse(CategoryTools, "impact-canvas", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "Impact Canvas", r.Title)
	assert.Equal(t, []string{"sdg", "design"}, r.Tags)
	assert.Equal(t, "A canvas.", r.Overview)
	assert.Equal(t, "https://example.org", r.URL)
	assert.Equal(t, "tools/impact-canvas", r.Key())
	assert.Contains(t, r.Body, "Body text.")
}

func TestParse_CommaTagsAndInference(t *testing.T) {
	content := "---\ntags: finance, Green Bonds\n---\n# Green Finance Guide\n\nFirst paragraph\ncontinues here.\n\nSecond.\n"
	r, err := Parse(CategoryArticles, "green-finance", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "Green Finance Guide", r.Title)
	assert.Equal(t, []string{"finance", "green-bonds"}, r.Tags)
	assert.Equal(t, "First paragraph continues here.", r.Overview)
}

func TestParse_NoFrontmatter(t *testing.T) {
	r, err := Parse(CategoryCollections, "zero-waste-kit", []byte("Just a body.\n"))
	require.NoError(t, err)
	assert.Equal(t, "Zero Waste Kit", r.Title)
	assert.Empty(t, r.Tags)
	assert.Equal(t, "Just a body.", r.Overview)
}

func TestParse_TitleFromNonASCIISlug(t *testing.T) {
	r, err := Parse(CategoryArticles, "économie-circulaire", []byte("Texte.\n"))
	require.NoError(t, err)
	assert.Equal(t, "Économie Circulaire", r.Title)
	assert.True(t, utf8.ValidString(r.Title))
}

func TestParse_BadFrontmatter(t *testing.T) {
	_, err := Parse(CategoryTools, "x", []byte("---\ntags: {a: [\n---\nbody"))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tools/impact-canvas.md", "---\ntitle: Impact Canvas\ntags: [sdg, design]\n---\nbody")
	writeFile(t, dir, "articles/climate-101.md", "---\ntitle: Climate 101\ntags: [climate]\n---\nbody")
	writeFile(t, dir, "articles/notes.txt", "ignored")
	writeFile(t, dir, "articles/drafts/wip.md", "---\ntitle: WIP\n---\n")
	writeFile(t, dir, "attachments/x/file.md", "ignored")

	lib, err := LoadDir(dir)
	require.NoError(t, err)
	require.Equal(t, 2, lib.Len())

	assert.Equal(t, "articles/climate-101", lib.All()[0].Key())
	assert.Equal(t, "tools/impact-canvas", lib.All()[1].Key())

	r, ok := lib.Find(CategoryTools, "impact-canvas")
	require.True(t, ok)
	assert.Equal(t, "Impact Canvas", r.Title)
	assert.Equal(t, filepath.Join(dir, "tools", "impact-canvas.md"), r.Path)

	_, ok = lib.Find(CategoryTools, "missing")
	assert.False(t, ok)

	assert.Len(t, lib.ByCategory(CategoryArticles), 1)
	assert.Empty(t, lib.ByCategory(CategoryCollections))
}

func TestLoadDir_Missing(t *testing.T) {
	lib, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 0, lib.Len())
}

func TestLoadDir_ReportsBadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tools/broken.md", "---\ntitle: [unclosed\n---\n")

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.md")
}

func TestNewLibrary_RejectsDuplicates(t *testing.T) {
	_, err := NewLibrary([]Resource{
		{Category: CategoryTools, Slug: "a"},
		{Category: CategoryTools, Slug: "a"},
	})
	assert.Error(t, err)
}

func TestCatalog_ReloadKeepsSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tools/a.md", "---\ntitle: A\n---\n")

	c := NewCatalog(dir)
	assert.Equal(t, 0, c.Library().Len())
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 1, c.Library().Len())

	writeFile(t, dir, "tools/b.md", "---\ntitle: B\n---\n")
	require.NoError(t, c.Reload(context.Background()))
	assert.Equal(t, 2, c.Library().Len())

	writeFile(t, dir, "tools/c.md", "---\ntitle: [broken\n---\n")
	require.Error(t, c.Reload(context.Background()))
	assert.Equal(t, 2, c.Library().Len())
}

func TestUniqueFilename(t *testing.T) {
	dir := t.TempDir()

	name, err := UniqueFilename(dir, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", name)

	writeFile(t, dir, "report.pdf", "x")
	writeFile(t, dir, "report-1.pdf", "x")

	name, err = UniqueFilename(dir, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report-2.pdf", name)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "annual-report.pdf", SanitizeFilename("../../Annual Report.PDF"))
	assert.Equal(t, "file.docx", SanitizeFilename("C:\\tmp\\???.docx"))
	assert.Equal(t, "notes", SanitizeFilename("notes"))
}

func TestWriteMarkdown_RoundTripAndNoOverwrite(t *testing.T) {
	dir := t.TempDir()
	r := &Resource{
		Category: CategoryTools,
		Title:    "Impact Canvas",
		Tags:     []string{"sdg", "design"},
		Overview: "A canvas.",
		Source:   "submission",
		Body:     "# Impact Canvas\n\nHow to use it.",
	}

	first, err := WriteMarkdown(dir, r)
	require.NoError(t, err)
	assert.Equal(t, "impact-canvas", first.Slug)

	second, err := WriteMarkdown(dir, r)
	require.NoError(t, err)
	assert.Equal(t, "impact-canvas-1", second.Slug)

	lib, err := LoadDir(dir)
	require.NoError(t, err)
	got, ok := lib.Find(CategoryTools, "impact-canvas")
	require.True(t, ok)
	assert.Equal(t, "Impact Canvas", got.Title)
	assert.Equal(t, []string{"sdg", "design"}, got.Tags)
	assert.Equal(t, "A canvas.", got.Overview)
	assert.Equal(t, "submission", got.Source)
	assert.Contains(t, got.Body, "How to use it.")
}

func TestWriteMarkdown_UnknownCategory(t *testing.T) {
	_, err := WriteMarkdown(t.TempDir(), &Resource{Category: "widgets", Title: "x"})
	assert.Error(t, err)
}

func TestSaveFile_Limit(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveFile(dir, "Plan.pdf", strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "plan.pdf"), path)

	_, err = SaveFile(dir, "Plan.pdf", strings.NewReader("123456"), 5)
	require.ErrorIs(t, err, ErrTooLarge)
	_, statErr := os.Stat(filepath.Join(dir, "plan-1.pdf"))
	assert.True(t, os.IsNotExist(statErr))
}
