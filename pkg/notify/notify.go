package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sustainability-atlas/atlas/pkg/resource"
)

// Notification tells editors about a new resource.
type Notification struct {
	Subject   string            `json:"subject"`
	Title     string            `json:"title"`
	Category  resource.Category `json:"category"`
	Slug      string            `json:"slug"`
	URL       string            `json:"url,omitempty"`
	Overview  string            `json:"overview,omitempty"`
	Tags      []string          `json:"tags"`
	Submitter string            `json:"submitter,omitempty"`
	Augmented bool              `json:"augmented"`
	CreatedAt time.Time         `json:"created_at"`
}

// FromResource fills a notification from a written resource.
func FromResource(r *resource.Resource, submitter string, augmented bool) *Notification {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return &Notification{
		Subject:   fmt.Sprintf("New %s submitted: %s", singular(r.Category), r.Title),
		Title:     r.Title,
		Category:  r.Category,
		Slug:      r.Slug,
		URL:       r.URL,
		Overview:  r.Overview,
		Tags:      tags,
		Submitter: submitter,
		Augmented: augmented,
		CreatedAt: time.Now().UTC(),
	}
}

// Path is the site path of the resource.
func (n *Notification) Path() string {
	return "/" + resource.Key(n.Category, n.Slug)
}

// Notifier delivers notifications to one destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager fans a notification out to every registered notifier.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new notification manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Names lists the configured notifiers.
func (m *Manager) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Broadcast sends n to all notifiers and joins their errors.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func singular(c resource.Category) string {
	switch c {
	case resource.CategoryTools:
		return "tool"
	case resource.CategoryCollections:
		return "collection"
	case resource.CategoryArticles:
		return "article"
	}
	return "resource"
}
