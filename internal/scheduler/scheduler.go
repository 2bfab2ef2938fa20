package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sustainability-atlas/atlas/pkg/feed"
)

// Importer pulls new articles from external feeds.
type Importer interface {
	Import(ctx context.Context) (*feed.Result, error)
}

// Reloader refreshes the served catalog.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Scheduler runs periodic feed imports.
type Scheduler struct {
	importer  Importer
	catalog   Reloader
	importInt time.Duration
	logger    *zap.Logger
}

// New creates a new scheduler. catalog may be nil.
func New(importer Importer, catalog Reloader, importInt time.Duration, logger *zap.Logger) *Scheduler {
	if importInt <= 0 {
		importInt = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		importer:  importer,
		catalog:   catalog,
		importInt: importInt,
		logger:    logger,
	}
}

// Run imports immediately, then on every tick. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.importInt)
	defer ticker.Stop()

	s.logger.Info("scheduler: initial import")
	s.importAll(ctx)
	s.logger.Info("scheduler: running", zap.Duration("import_every", s.importInt))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.importAll(ctx)
		}
	}
}

func (s *Scheduler) importAll(ctx context.Context) {
	res, err := s.importer.Import(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("scheduler: import failed", zap.Error(err))
		}
		return
	}

	total := res.Total()
	s.logger.Info("scheduler: import finished",
		zap.Int("imported", total),
		zap.Int("failed_feeds", len(res.Errors)),
	)
	if total == 0 || s.catalog == nil {
		return
	}
	if err := s.catalog.Reload(ctx); err != nil {
		s.logger.Error("scheduler: catalog reload failed", zap.Error(err))
	}
}
