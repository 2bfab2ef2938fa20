package resource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// UniqueFilename returns name if dir/name is free, otherwise the first free
// "base-N.ext" with N counting from 1.
func UniqueFilename(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 1; ; n++ {
		_, err := os.Stat(filepath.Join(dir, candidate))
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s-%d%s", base, n, ext)
	}
}

// SanitizeFilename strips directory components and reduces the base name to
// slug characters, keeping the extension.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(name))
	base := NormalizeTag(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "file"
	}
	if NormalizeTag(ext) == "" {
		ext = ""
	}
	return base + ext
}

// WriteMarkdown writes r to dir/<category>/<slug>.md without overwriting an
// existing file. The slug is bumped to stay unique and the written resource is
// returned with Slug and Path set.
func WriteMarkdown(dir string, r *Resource) (*Resource, error) {
	if _, ok := ParseCategory(string(r.Category)); !ok {
		return nil, fmt.Errorf("write resource: unknown category %q", r.Category)
	}
	slug := r.Slug
	if slug == "" {
		slug = Slugify(r.Title)
	}
	if slug == "" {
		return nil, fmt.Errorf("write resource: empty slug for %q", r.Title)
	}

	catDir := filepath.Join(dir, string(r.Category))
	if err := os.MkdirAll(catDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", catDir, err)
	}

	name, err := UniqueFilename(catDir, slug+".md")
	if err != nil {
		return nil, err
	}

	out := *r
	out.Slug = strings.TrimSuffix(name, ".md")
	out.Path = filepath.Join(catDir, name)

	data, err := Marshal(&out)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(out.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", out.Path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("write %s: %w", out.Path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", out.Path, err)
	}
	return &out, nil
}

// SaveFile copies src into dir under a unique, sanitized name and returns the
// final path. At most limit bytes are accepted when limit > 0.
func SaveFile(dir, name string, src io.Reader, limit int64) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	final, err := UniqueFilename(dir, SanitizeFilename(name))
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, final)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	r := src
	if limit > 0 {
		r = io.LimitReader(src, limit+1)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && limit > 0 && n > limit {
		err = fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, limit)
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return path, nil
}
