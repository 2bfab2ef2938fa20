package feed

import (
	"strings"

	"github.com/sustainability-atlas/atlas/pkg/resource"
)

// DefaultKeywords decide whether a feed entry belongs in the atlas. They are
// matched as substrings of the title and summary, and as normalized tags
// against the entry's categories.
var DefaultKeywords = []string{
	"sustainab", "climate", "carbon", "net zero", "net-zero", "emission",
	"renewable", "solar", "wind power", "energy transition", "decarboni",
	"circular economy", "circularity", "recycl", "zero waste", "reuse",
	"biodiversity", "regenerative", "ecosystem", "conservation",
	"sdg", "sustainable development goal", "social impact", "impact investing",
	"esg", "green finance", "green bond", "b corp",
	"environmental", "pollution", "plastic", "deforestation",
	"adaptation", "resilience", "just transition", "life cycle assessment",
}

// Filter keeps entries on sustainability topics.
type Filter struct {
	phrases     []string
	tags        map[string]bool
	excludes    []string
	excludeTags map[string]bool
}

// NewFilter creates a filter with the default keywords plus extras.
func NewFilter(extraKeywords, excludeKeywords []string) *Filter {
	f := &Filter{
		tags:        make(map[string]bool),
		excludeTags: make(map[string]bool),
	}
	for _, kw := range append(append([]string{}, DefaultKeywords...), extraKeywords...) {
		f.phrases = append(f.phrases, strings.ToLower(kw))
		if tag := resource.NormalizeTag(kw); tag != "" {
			f.tags[tag] = true
		}
	}
	for _, kw := range excludeKeywords {
		f.excludes = append(f.excludes, strings.ToLower(kw))
		if tag := resource.NormalizeTag(kw); tag != "" {
			f.excludeTags[tag] = true
		}
	}
	return f
}

// Matches reports whether an entry is on topic. An entry is kept when its
// text mentions a keyword or one of its tags (or the tag's prefix, so
// "climate-policy" counts for "climate") is a keyword, and nothing excluded
// appears in either.
func (f *Filter) Matches(title, summary string, tags []string) bool {
	text := strings.ToLower(title + " " + summary)
	normalized := resource.NormalizeTags(tags)

	for _, ex := range f.excludes {
		if strings.Contains(text, ex) {
			return false
		}
	}
	for _, tag := range normalized {
		if f.excludeTags[tag] || f.excludeTags[resource.TagPrefix(tag)] {
			return false
		}
	}

	for _, tag := range normalized {
		if f.tags[tag] || f.tags[resource.TagPrefix(tag)] {
			return true
		}
	}
	for _, kw := range f.phrases {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
