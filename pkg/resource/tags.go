package resource

import (
	"strings"
	"unicode"
)

const maxSlugLen = 80

// NormalizeTag lowercases a tag and reduces it to [a-z0-9-], with spaces and
// underscores turned into hyphens. Returns "" when nothing survives.
func NormalizeTag(tag string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(tag)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == '-' || r == '_' || unicode.IsSpace(r):
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// NormalizeTags normalizes every tag, dropping empties and duplicates while
// keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// SplitTags parses a comma-separated tag list, as submitted through forms.
func SplitTags(s string) []string {
	return NormalizeTags(strings.Split(s, ","))
}

// Slugify derives a filename-safe slug from a title.
func Slugify(title string) string {
	s := NormalizeTag(title)
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	return s
}

// TagPrefix returns the first hyphen-delimited segment of a normalized tag,
// or "" for single-segment tags.
func TagPrefix(tag string) string {
	i := strings.IndexByte(tag, '-')
	if i <= 0 {
		return ""
	}
	return tag[:i]
}
