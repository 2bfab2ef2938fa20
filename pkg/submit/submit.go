package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sustainability-atlas/atlas/internal/store"
	"github.com/sustainability-atlas/atlas/pkg/augment"
	"github.com/sustainability-atlas/atlas/pkg/notify"
	"github.com/sustainability-atlas/atlas/pkg/resource"
)

// MaxTitleLength bounds submitted titles, in characters.
const MaxTitleLength = 200

// ErrInvalid marks a submission rejected by validation.
var ErrInvalid = errors.New("invalid submission")

// DefaultAllowedExtensions are the attachment types accepted when none are configured.
var DefaultAllowedExtensions = []string{".pdf", ".docx", ".doc", ".txt", ".md", ".png", ".jpg", ".jpeg"}

// Submission is a resource proposed by a visitor.
type Submission struct {
	Title       string
	Category    string
	URL         string
	Overview    string
	Tags        []string
	Body        string
	Email       string
	Attachments []Attachment
}

// Attachment is an uploaded file. Size is the declared size, or -1 when unknown.
type Attachment struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// Result describes what was written.
type Result struct {
	ID          string            `json:"id"`
	Path        string            `json:"path"`
	Slug        string            `json:"slug"`
	Category    resource.Category `json:"category"`
	Augmented   bool              `json:"augmented"`
	File        string            `json:"file"`
	Attachments []string          `json:"attachments,omitempty"`
}

// Generator produces supporting content for a draft.
type Generator interface {
	Generate(ctx context.Context, d augment.Draft) (*augment.Content, error)
}

// Broadcaster delivers editor notifications.
type Broadcaster interface {
	Broadcast(ctx context.Context, n *notify.Notification) error
}

// Recorder persists submission metadata.
type Recorder interface {
	AddSubmission(ctx context.Context, s *store.Submission) error
}

// Reloader refreshes the served catalog after a write.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Options configures a Service. Generator, Notifier, Recorder and Catalog
// may be nil.
type Options struct {
	ContentDir         string
	MaxAttachmentBytes int64
	AllowedExtensions  []string
	Generator          Generator
	Notifier           Broadcaster
	Recorder           Recorder
	Catalog            Reloader
	Logger             *zap.Logger
}

// Service accepts submissions and turns them into library resources.
type Service struct {
	dir       string
	maxBytes  int64
	allowed   map[string]bool
	generator Generator
	notifier  Broadcaster
	recorder  Recorder
	catalog   Reloader
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a submission service.
func NewService(opts Options) *Service {
	exts := opts.AllowedExtensions
	if len(exts) == 0 {
		exts = DefaultAllowedExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = true
	}
	maxBytes := opts.MaxAttachmentBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		dir:       opts.ContentDir,
		maxBytes:  maxBytes,
		allowed:   allowed,
		generator: opts.Generator,
		notifier:  opts.Notifier,
		recorder:  opts.Recorder,
		catalog:   opts.Catalog,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit validates s, optionally augments it, writes it to the library and
// notifies editors.
func (svc *Service) Submit(ctx context.Context, s Submission) (*Result, error) {
	category, err := svc.validate(&s)
	if err != nil {
		return nil, err
	}

	r := &resource.Resource{
		Category: category,
		Title:    s.Title,
		Tags:     resource.NormalizeTags(s.Tags),
		Overview: s.Overview,
		URL:      s.URL,
		Author:   s.Email,
		Date:     svc.now().UTC(),
		Source:   "submission",
		Body:     strings.TrimSpace(s.Body),
	}
	augmented := svc.augment(ctx, r)
	if r.Body == "" {
		r.Body = r.Overview
	}
	r.Body = "# " + r.Title + "\n\n" + r.Body + "\n"

	written, err := resource.WriteMarkdown(svc.dir, r)
	if err != nil {
		return nil, fmt.Errorf("write submission: %w", err)
	}

	created := []string{written.Path}
	attachments, err := svc.saveAttachments(written, s.Attachments, &created)
	if err != nil {
		svc.rollback(created)
		return nil, err
	}

	rel, err := filepath.Rel(svc.dir, written.Path)
	if err != nil {
		rel = written.Path
	}
	res := &Result{
		ID:          uuid.NewString(),
		Path:        "/" + written.Key(),
		Slug:        written.Slug,
		Category:    written.Category,
		Augmented:   augmented,
		File:        filepath.ToSlash(rel),
		Attachments: attachments,
	}

	if svc.recorder != nil {
		err := svc.recorder.AddSubmission(ctx, &store.Submission{
			ID:        res.ID,
			Category:  written.Category,
			Slug:      written.Slug,
			Title:     written.Title,
			Email:     s.Email,
			Path:      res.File,
			Augmented: augmented,
			CreatedAt: svc.now().UTC(),
		})
		if err != nil {
			svc.rollback(created)
			return nil, fmt.Errorf("record submission: %w", err)
		}
	}

	if svc.catalog != nil {
		if err := svc.catalog.Reload(ctx); err != nil {
			svc.logger.Warn("catalog reload after submission failed", zap.Error(err))
		}
	}

	if svc.notifier != nil {
		if err := svc.notifier.Broadcast(ctx, notify.FromResource(written, s.Email, augmented)); err != nil {
			svc.logger.Warn("submission notification failed", zap.String("slug", written.Slug), zap.Error(err))
		}
	}

	svc.logger.Info("submission accepted",
		zap.String("id", res.ID),
		zap.String("path", res.Path),
		zap.Bool("augmented", augmented),
		zap.Int("attachments", len(attachments)),
	)
	return res, nil
}

func (svc *Service) validate(s *Submission) (resource.Category, error) {
	s.Title = strings.TrimSpace(s.Title)
	s.URL = strings.TrimSpace(s.URL)
	s.Email = strings.TrimSpace(s.Email)
	s.Overview = strings.TrimSpace(s.Overview)

	if s.Title == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if utf8.RuneCountInString(s.Title) > MaxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrInvalid, MaxTitleLength)
	}
	if resource.Slugify(s.Title) == "" {
		return "", fmt.Errorf("%w: title has no usable characters", ErrInvalid)
	}
	category, ok := resource.ParseCategory(s.Category)
	if !ok {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalid, s.Category)
	}
	if s.URL != "" {
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("%w: url must be an absolute http(s) address", ErrInvalid)
		}
	}
	if s.Email != "" {
		if _, err := mail.ParseAddress(s.Email); err != nil || !strings.Contains(s.Email, "@") {
			return "", fmt.Errorf("%w: email address is malformed", ErrInvalid)
		}
	}
	for _, a := range s.Attachments {
		ext := strings.ToLower(filepath.Ext(a.Name))
		if !svc.allowed[ext] {
			return "", fmt.Errorf("%w: attachment %q has a disallowed type", ErrInvalid, a.Name)
		}
		if a.Size > svc.maxBytes {
			return "", fmt.Errorf("%w: attachment %q exceeds %d bytes", ErrInvalid, a.Name, svc.maxBytes)
		}
	}
	return category, nil
}

// augment fills gaps in r from the generator and reports whether it did.
func (svc *Service) augment(ctx context.Context, r *resource.Resource) bool {
	if svc.generator == nil {
		return false
	}
	content, err := svc.generator.Generate(ctx, augment.Draft{
		Category: r.Category,
		Title:    r.Title,
		URL:      r.URL,
		Overview: r.Overview,
		Tags:     r.Tags,
	})
	if err != nil {
		svc.logger.Warn("augmentation failed", zap.String("title", r.Title), zap.Error(err))
		return false
	}

	if r.Overview == "" {
		r.Overview = content.Overview
	}
	r.Tags = resource.NormalizeTags(append(r.Tags, content.Tags...))
	if r.Body == "" {
		r.Body = content.Body
	}
	return true
}

// attachmentDir is where files for r are stored: <content>/attachments/<category>/<slug>.
func (svc *Service) attachmentDir(r *resource.Resource) string {
	return filepath.Join(svc.dir, "attachments", string(r.Category), r.Slug)
}

// saveAttachments copies files next to r. Every file it creates is appended
// to created, including on error, so the caller can roll back.
func (svc *Service) saveAttachments(r *resource.Resource, files []Attachment, created *[]string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	dir := svc.attachmentDir(r)

	var saved []string
	for _, a := range files {
		path, err := resource.SaveFile(dir, a.Name, a.Reader, svc.maxBytes)
		if err != nil {
			if errors.Is(err, resource.ErrTooLarge) {
				return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			return nil, fmt.Errorf("save attachment: %w", err)
		}
		*created = append(*created, path)

		rel, err := filepath.Rel(svc.dir, path)
		if err != nil {
			rel = path
		}
		saved = append(saved, filepath.ToSlash(rel))
	}
	return saved, nil
}

// rollback removes the files one failed submission wrote, then prunes the
// attachment directories it left empty. Other resources' files are untouched.
func (svc *Service) rollback(paths []string) {
	root := filepath.Join(svc.dir, "attachments")
	for i := len(paths) - 1; i >= 0; i-- {
		if err := os.Remove(paths[i]); err != nil && !os.IsNotExist(err) {
			svc.logger.Warn("rollback failed", zap.String("path", paths[i]), zap.Error(err))
		}
		for dir := filepath.Dir(paths[i]); strings.HasPrefix(dir, root+string(filepath.Separator)); dir = filepath.Dir(dir) {
			// Remove fails on non-empty directories, which ends the walk.
			if os.Remove(dir) != nil {
				break
			}
		}
	}
}
