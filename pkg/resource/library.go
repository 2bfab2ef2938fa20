package resource

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
)

// Library is an immutable, key-ordered snapshot of every loaded resource.
type Library struct {
	resources []Resource
	index     map[string]int
}

// NewLibrary builds a library from resources. Duplicate keys are an error.
func NewLibrary(resources []Resource) (*Library, error) {
	sorted := make([]Resource, len(resources))
	copy(sorted, resources)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key() < sorted[j].Key()
	})

	index := make(map[string]int, len(sorted))
	for i := range sorted {
		k := sorted[i].Key()
		if _, dup := index[k]; dup {
			return nil, fmt.Errorf("duplicate resource %s", k)
		}
		index[k] = i
	}
	return &Library{resources: sorted, index: index}, nil
}

// All returns every resource. The slice must not be modified.
func (l *Library) All() []Resource {
	return l.resources
}

// Len returns the number of resources.
func (l *Library) Len() int {
	return len(l.resources)
}

// Find looks up a resource by category and slug.
func (l *Library) Find(category Category, slug string) (*Resource, bool) {
	i, ok := l.index[Key(category, slug)]
	if !ok {
		return nil, false
	}
	r := l.resources[i]
	return &r, true
}

// ByCategory returns the resources in one category, in key order.
func (l *Library) ByCategory(category Category) []Resource {
	out := []Resource{}
	for _, r := range l.resources {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// LoadDir scans dir/<category>/*.md for every known category. A missing dir
// yields an empty library.
func LoadDir(dir string) (*Library, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return NewLibrary(nil)
		}
		return nil, fmt.Errorf("stat content dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content path is not a directory: %s", dir)
	}

	var resources []Resource
	for _, cat := range AllCategories() {
		catDir := filepath.Join(dir, string(cat))
		if _, err := os.Stat(catDir); os.IsNotExist(err) {
			continue
		}

		walkFn := func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != catDir {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
				return nil
			}

			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			slug := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
			r, err := Parse(cat, slug, b)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			r.Path = path
			resources = append(resources, *r)
			return nil
		}

		if err := filepath.WalkDir(catDir, walkFn); err != nil {
			return nil, fmt.Errorf("scan %s: %w", catDir, err)
		}
	}

	return NewLibrary(resources)
}

// Catalog holds the current library for a content directory and swaps in a
// fresh snapshot on Reload. Readers never block.
type Catalog struct {
	dir     string
	current atomic.Pointer[Library]
}

// NewCatalog creates a catalog over dir. Call Load before use.
func NewCatalog(dir string) *Catalog {
	c := &Catalog{dir: dir}
	empty, _ := NewLibrary(nil)
	c.current.Store(empty)
	return c
}

// Dir returns the content directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Load reads the content directory and installs the result.
func (c *Catalog) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lib, err := LoadDir(c.dir)
	if err != nil {
		return err
	}
	c.current.Store(lib)
	return nil
}

// Reload is Load under another name, used by watchers. On error the previous
// snapshot stays in place.
func (c *Catalog) Reload(ctx context.Context) error {
	return c.Load(ctx)
}

// Library returns the current snapshot.
func (c *Catalog) Library() *Library {
	return c.current.Load()
}
