package resource

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// frontmatter mirrors the YAML header of a resource file. Tags accept either a
// list or a comma-separated string.
type frontmatter struct {
	Title    string    `yaml:"title"`
	Tags     tagList   `yaml:"tags"`
	Overview string    `yaml:"overview"`
	URL      string    `yaml:"url"`
	Author   string    `yaml:"author"`
	Date     time.Time `yaml:"date"`
	Source   string    `yaml:"source"`
}

type tagList []string

func (t *tagList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = strings.Split(node.Value, ",")
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	return fmt.Errorf("line %d: tags must be a list or a string", node.Line)
}

// splitFrontmatter separates the YAML header from the markdown body. Content
// without a header is returned whole with ok=false.
func splitFrontmatter(content string) (header, body string, ok bool) {
	s := strings.TrimPrefix(content, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if !strings.HasPrefix(s, fence+"\n") {
		return "", s, false
	}
	rest := s[len(fence)+1:]
	if strings.HasPrefix(rest, fence) {
		return "", strings.TrimPrefix(rest[len(fence):], "\n"), true
	}
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return "", s, false
	}
	header = rest[:end]
	body = rest[end+len(fence)+1:]
	body = strings.TrimPrefix(body, "\n")
	return header, body, true
}

// Parse builds a Resource from raw markdown. Category and slug come from the
// file location and are supplied by the caller.
func Parse(category Category, slug string, content []byte) (*Resource, error) {
	header, body, ok := splitFrontmatter(string(content))

	var fm frontmatter
	if ok {
		if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
			return nil, fmt.Errorf("parse frontmatter: %w", err)
		}
	}

	r := &Resource{
		Category: category,
		Slug:     slug,
		Title:    strings.TrimSpace(fm.Title),
		Tags:     NormalizeTags(fm.Tags),
		Overview: strings.TrimSpace(fm.Overview),
		URL:      strings.TrimSpace(fm.URL),
		Author:   strings.TrimSpace(fm.Author),
		Date:     fm.Date,
		Source:   strings.TrimSpace(fm.Source),
		Body:     body,
	}
	if r.Title == "" {
		r.Title = inferTitle(slug, body)
	}
	if r.Overview == "" {
		r.Overview = inferOverview(body)
	}
	return r, nil
}

// Marshal renders a resource back to frontmatter + body.
func Marshal(r *Resource) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	buf.WriteString(fence + "\n\n")
	body := strings.TrimSpace(r.Body)
	if body != "" {
		buf.WriteString(body)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func inferTitle(slug, body string) string {
	for _, ln := range strings.Split(body, "\n") {
		ln = strings.TrimSpace(ln)
		if strings.HasPrefix(ln, "# ") {
			return strings.TrimSpace(ln[2:])
		}
	}
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func inferOverview(body string) string {
	var para []string
	for _, ln := range strings.Split(body, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			if len(para) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(ln, "#") || strings.HasPrefix(ln, "![") {
			if len(para) > 0 {
				break
			}
			continue
		}
		para = append(para, ln)
	}
	return strings.Join(para, " ")
}
