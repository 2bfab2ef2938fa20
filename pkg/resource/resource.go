package resource

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category identifies which section of the atlas a resource belongs to.
type Category string

const (
	CategoryTools       Category = "tools"
	CategoryCollections Category = "collections"
	CategoryArticles    Category = "articles"
)

var (
	ErrNotFound    = errors.New("resource not found")
	ErrInvalidPath = errors.New("invalid resource path")
	ErrTooLarge    = errors.New("file too large")
)

// Resource is the metadata and content of a single markdown entry.
type Resource struct {
	Category Category  `json:"category" yaml:"-"`
	Slug     string    `json:"slug" yaml:"-"`
	Title    string    `json:"title" yaml:"title"`
	Tags     []string  `json:"tags" yaml:"tags,omitempty"`
	Overview string    `json:"overview,omitempty" yaml:"overview,omitempty"`
	URL      string    `json:"url,omitempty" yaml:"url,omitempty"`
	Author   string    `json:"author,omitempty" yaml:"author,omitempty"`
	Date     time.Time `json:"date,omitzero" yaml:"date,omitempty"`
	Source   string    `json:"source,omitempty" yaml:"source,omitempty"`
	Body     string    `json:"-" yaml:"-"`
	Path     string    `json:"-" yaml:"-"`
}

// Key returns the "category/slug" lookup key.
func (r *Resource) Key() string {
	return Key(r.Category, r.Slug)
}

// Key joins a category and slug into a lookup key.
func Key(category Category, slug string) string {
	return string(category) + "/" + slug
}

// AllCategories returns all known categories.
func AllCategories() []Category {
	return []Category{
		CategoryTools,
		CategoryCollections,
		CategoryArticles,
	}
}

// ParseCategory returns the Category for s, or false if s is not a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCategories() {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// ParsePath splits "/{category}/{slug}" into its parts. A single trailing slash
// is allowed. The category must be known and the slug non-empty.
func ParsePath(p string) (Category, string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	trimmed := strings.TrimSuffix(p[1:], "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cat, ok := ParseCategory(parts[0])
	if !ok {
		return "", "", fmt.Errorf("%w: unknown category %q", ErrInvalidPath, parts[0])
	}
	return cat, parts[1], nil
}
