package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sustainability-atlas/atlas/pkg/resource"
)

// ViewCount is the number of views recorded for one resource.
type ViewCount struct {
	Category  resource.Category `db:"category" json:"category"`
	Slug      string            `db:"slug" json:"slug"`
	Count     int64             `db:"total" json:"views"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// Submission records a resource submitted through the site.
type Submission struct {
	ID        string            `db:"id" json:"id"`
	Category  resource.Category `db:"category" json:"category"`
	Slug      string            `db:"slug" json:"slug"`
	Title     string            `db:"title" json:"title"`
	Email     string            `db:"email" json:"email,omitempty"`
	Path      string            `db:"path" json:"path"`
	Augmented bool              `db:"augmented" json:"augmented"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// ImportedEntry marks a feed entry that was already turned into an article.
type ImportedEntry struct {
	Feed       string    `db:"feed"`
	GUID       string    `db:"guid"`
	Slug       string    `db:"slug"`
	ImportedAt time.Time `db:"imported_at"`
}

// Store is the persistence interface.
type Store interface {
	IncrementViews(ctx context.Context, category resource.Category, slug string) (int64, error)
	GetViews(ctx context.Context, category resource.Category, slug string) (int64, error)
	TopViewed(ctx context.Context, limit int) ([]ViewCount, error)

	AddSubmission(ctx context.Context, s *Submission) error
	ListSubmissions(ctx context.Context, limit int) ([]Submission, error)

	IsImported(ctx context.Context, feed, guid string) (bool, error)
	MarkImported(ctx context.Context, e *ImportedEntry) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) IncrementViews(ctx context.Context, category resource.Category, slug string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		INSERT INTO views (category, slug, total, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(category, slug) DO UPDATE SET
			total = total + 1,
			updated_at = excluded.updated_at
		RETURNING total
	`, category, slug, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("increment views %s/%s: %w", category, slug, err)
	}
	return count, nil
}

func (s *SQLiteStore) GetViews(ctx context.Context, category resource.Category, slug string) (int64, error) {
	var counts []int64
	err := s.db.SelectContext(ctx, &counts,
		"SELECT total FROM views WHERE category = ? AND slug = ?", category, slug)
	if err != nil {
		return 0, fmt.Errorf("get views %s/%s: %w", category, slug, err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}

func (s *SQLiteStore) TopViewed(ctx context.Context, limit int) ([]ViewCount, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []ViewCount
	err := s.db.SelectContext(ctx, &out,
		"SELECT * FROM views ORDER BY total DESC, category, slug LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("top viewed: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AddSubmission(ctx context.Context, sub *Submission) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO submissions (id, category, slug, title, email, path, augmented, created_at)
		VALUES (:id, :category, :slug, :title, :email, :path, :augmented, :created_at)
	`, sub)
	if err != nil {
		return fmt.Errorf("add submission %s: %w", sub.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Submission
	err := s.db.SelectContext(ctx, &out,
		"SELECT * FROM submissions ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) IsImported(ctx context.Context, feed, guid string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM imported_entries WHERE feed = ? AND guid = ?", feed, guid)
	if err != nil {
		return false, fmt.Errorf("check imported %s/%s: %w", feed, guid, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkImported(ctx context.Context, e *ImportedEntry) error {
	if e.ImportedAt.IsZero() {
		e.ImportedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO imported_entries (feed, guid, slug, imported_at)
		VALUES (:feed, :guid, :slug, :imported_at)
		ON CONFLICT(feed, guid) DO NOTHING
	`, e)
	if err != nil {
		return fmt.Errorf("mark imported %s/%s: %w", e.Feed, e.GUID, err)
	}
	return nil
}
