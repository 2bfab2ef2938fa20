package related

import (
	"fmt"
	"sort"

	"github.com/sustainability-atlas/atlas/pkg/resource"
)

// Weights controls how much each signal contributes to a related-page score.
type Weights struct {
	SharedTag    float64 // per exact shared tag
	TagPrefix    float64 // per partial match on the leading tag segment; 0 disables
	SameCategory float64 // once, only for candidates that already share a topic
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{
		SharedTag:    3,
		TagPrefix:    0,
		SameCategory: 1,
	}
}

// DefaultMaxReasons is the number of reasons attached to each page.
const DefaultMaxReasons = 2

// Page is one ranked related resource.
type Page struct {
	Slug     string            `json:"slug"`
	Title    string            `json:"title"`
	Category resource.Category `json:"category"`
	Score    float64           `json:"score"`
	Reasons  []string          `json:"reasons"`
}

// Scorer ranks resources by tag overlap with a target. It holds no state
// beyond its configuration and is safe for concurrent use.
type Scorer struct {
	weights    Weights
	maxReasons int
}

// NewScorer creates a scorer. Negative weights are treated as zero and an
// all-zero tag weighting falls back to DefaultWeights.
func NewScorer(w Weights, maxReasons int) *Scorer {
	w.SharedTag = max(w.SharedTag, 0)
	w.TagPrefix = max(w.TagPrefix, 0)
	w.SameCategory = max(w.SameCategory, 0)
	if w.SharedTag == 0 && w.TagPrefix == 0 {
		w = DefaultWeights()
	}
	if maxReasons <= 0 {
		maxReasons = DefaultMaxReasons
	}
	return &Scorer{weights: w, maxReasons: maxReasons}
}

// Weights returns the effective weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

type contribution struct {
	weight float64
	reason string
}

type candidate struct {
	res   *resource.Resource
	score float64
	parts []contribution
}

// Related returns up to limit resources related to (category, slug). An
// unknown target or a non-positive limit yields an empty slice.
func (s *Scorer) Related(resources []resource.Resource, category resource.Category, slug string, limit int) []Page {
	limit = max(limit, 0)
	pages := []Page{}
	if limit == 0 {
		return pages
	}

	var target *resource.Resource
	for i := range resources {
		if resources[i].Category == category && resources[i].Slug == slug {
			target = &resources[i]
			break
		}
	}
	if target == nil {
		return pages
	}

	targetTags := make(map[string]bool, len(target.Tags))
	targetPrefixes := make(map[string]bool)
	for _, t := range target.Tags {
		targetTags[t] = true
		if p := resource.TagPrefix(t); p != "" {
			targetPrefixes[p] = true
		}
	}

	var candidates []candidate
	for i := range resources {
		c := &resources[i]
		if c.Category == target.Category && c.Slug == target.Slug {
			continue
		}
		if cand, ok := s.score(target, targetTags, targetPrefixes, c); ok {
			candidates = append(candidates, cand)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.res.Title != b.res.Title {
			return a.res.Title < b.res.Title
		}
		return a.res.Key() < b.res.Key()
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	for _, c := range candidates {
		pages = append(pages, Page{
			Slug:     c.res.Slug,
			Title:    c.res.Title,
			Category: c.res.Category,
			Score:    c.score,
			Reasons:  s.reasons(c.parts),
		})
	}
	return pages
}

// score computes a candidate's contributions. Candidates without any tag
// signal are rejected regardless of category.
func (s *Scorer) score(target *resource.Resource, targetTags, targetPrefixes map[string]bool, c *resource.Resource) (candidate, bool) {
	var parts []contribution
	seen := make(map[string]bool, len(c.Tags))
	matchedPrefixes := make(map[string]bool)

	// Exact matches in target tag order keep reasons stable.
	candTags := make(map[string]bool, len(c.Tags))
	for _, t := range c.Tags {
		candTags[t] = true
	}
	for _, t := range target.Tags {
		if candTags[t] && !seen[t] && s.weights.SharedTag > 0 {
			seen[t] = true
			parts = append(parts, contribution{s.weights.SharedTag, "Shared tag: " + t})
		}
	}

	if s.weights.TagPrefix > 0 {
		for _, t := range c.Tags {
			if targetTags[t] {
				continue
			}
			p := resource.TagPrefix(t)
			if p == "" || !targetPrefixes[p] || matchedPrefixes[p] {
				continue
			}
			matchedPrefixes[p] = true
			parts = append(parts, contribution{s.weights.TagPrefix, "Related topic: " + p})
		}
	}

	if len(parts) == 0 {
		return candidate{}, false
	}

	if c.Category == target.Category && s.weights.SameCategory > 0 {
		parts = append(parts, contribution{s.weights.SameCategory, fmt.Sprintf("Same category: %s", c.Category)})
	}

	total := 0.0
	for _, p := range parts {
		total += p.weight
	}
	return candidate{res: c, score: total, parts: parts}, true
}

// reasons returns the strongest contributions first, keeping insertion order
// among equals.
func (s *Scorer) reasons(parts []contribution) []string {
	sorted := make([]contribution, len(parts))
	copy(sorted, parts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].weight > sorted[j].weight
	})

	n := min(len(sorted), s.maxReasons)
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = sorted[i].reason
	}
	return out
}
