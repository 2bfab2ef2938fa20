package related

import (
	"sort"

	"github.com/sustainability-atlas/atlas/pkg/resource"
)

// Node is a resource in the page graph.
type Node struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Category resource.Category `json:"category"`
	Tags     []string          `json:"tags"`
}

// Edge links two resources that share at least one tag. Source sorts before
// Target.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Weight int      `json:"weight"`
	Tags   []string `json:"tags"`
}

// Graph is the tag-overlap graph over a resource set.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// BuildGraph links every pair of resources sharing a tag. Output order is
// deterministic: nodes by id, edges by (source, target).
func BuildGraph(resources []resource.Resource) Graph {
	g := Graph{Nodes: []Node{}, Edges: []Edge{}}

	sorted := make([]*resource.Resource, len(resources))
	for i := range resources {
		sorted[i] = &resources[i]
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key() < sorted[j].Key()
	})

	// Inverted index: tag -> positions in sorted.
	byTag := make(map[string][]int)
	for i, r := range sorted {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		g.Nodes = append(g.Nodes, Node{
			ID:       r.Key(),
			Title:    r.Title,
			Category: r.Category,
			Tags:     tags,
		})
		seen := make(map[string]bool, len(r.Tags))
		for _, t := range r.Tags {
			if seen[t] {
				continue
			}
			seen[t] = true
			byTag[t] = append(byTag[t], i)
		}
	}

	type pair struct{ a, b int }
	shared := make(map[pair][]string)
	for tag, idx := range byTag {
		for x := 0; x < len(idx); x++ {
			for y := x + 1; y < len(idx); y++ {
				p := pair{idx[x], idx[y]}
				shared[p] = append(shared[p], tag)
			}
		}
	}

	for p, tags := range shared {
		sort.Strings(tags)
		g.Edges = append(g.Edges, Edge{
			Source: g.Nodes[p.a].ID,
			Target: g.Nodes[p.b].ID,
			Weight: len(tags),
			Tags:   tags,
		})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})
	return g
}
