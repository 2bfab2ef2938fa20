package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sustainability-atlas/atlas/internal/config"
	"github.com/sustainability-atlas/atlas/internal/logging"
	"github.com/sustainability-atlas/atlas/internal/scheduler"
	"github.com/sustainability-atlas/atlas/internal/store"
	"github.com/sustainability-atlas/atlas/internal/watch"
	"github.com/sustainability-atlas/atlas/pkg/augment"
	"github.com/sustainability-atlas/atlas/pkg/feed"
	"github.com/sustainability-atlas/atlas/pkg/notify"
	"github.com/sustainability-atlas/atlas/pkg/related"
	"github.com/sustainability-atlas/atlas/pkg/render"
	"github.com/sustainability-atlas/atlas/pkg/resource"
	"github.com/sustainability-atlas/atlas/pkg/server"
	"github.com/sustainability-atlas/atlas/pkg/submit"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// setup loads config and builds the logger every command shares.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development, verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func loadCatalog(ctx context.Context, cfg *config.Config) (*resource.Catalog, error) {
	catalog := resource.NewCatalog(cfg.Content.Dir)
	if err := catalog.Load(ctx); err != nil {
		return nil, fmt.Errorf("load content %s: %w", cfg.Content.Dir, err)
	}
	return catalog, nil
}

func buildScorer(cfg *config.Config) *related.Scorer {
	return related.NewScorer(related.Weights{
		SharedTag:    cfg.Related.SharedTagWeight,
		TagPrefix:    cfg.Related.TagPrefixWeight,
		SameCategory: cfg.Related.CategoryWeight,
	}, cfg.Related.MaxReasons)
}

func buildGenerator(cfg *config.Config, logger *zap.Logger) submit.Generator {
	if !cfg.AI.Enabled || cfg.AI.APIKey == "" {
		return nil
	}
	g := augment.NewGenerator(cfg.AI.Provider, cfg.AI.Model, cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.ParseTimeout())
	logger.Info("ai augmentation enabled", zap.String("provider", g.Provider()))
	return g
}

func buildNotifyManager(cfg *config.Config) *notify.Manager {
	var notifiers []notify.Notifier

	n := cfg.Notify
	if n.Resend.Enabled && n.Resend.APIKey != "" && len(n.Resend.To) > 0 {
		notifiers = append(notifiers, notify.NewResend(n.Resend.APIKey, n.Resend.From, n.Resend.To, cfg.Server.SiteURL))
	}
	if n.Slack.Enabled && n.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(n.Slack.WebhookURL))
	}
	if n.Discord.Enabled && n.Discord.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscord(n.Discord.WebhookURL))
	}
	if n.Webhook.Enabled && n.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(n.Webhook.URL, n.Webhook.Secret))
	}

	return notify.NewManager(notifiers)
}

func buildImporter(cfg *config.Config, db store.Store, logger *zap.Logger) *feed.Importer {
	sources := make([]feed.Source, len(cfg.Import.Feeds))
	for i, f := range cfg.Import.Feeds {
		sources[i] = feed.Source{Name: f.Name, URL: f.URL, Tags: f.Tags}
	}
	filter := feed.NewFilter(cfg.Import.Keywords, cfg.Import.ExcludeKeywords)
	return feed.NewImporter(sources, filter, db, cfg.Content.Dir,
		cfg.Import.ParseMaxAge(), cfg.Import.Concurrency, logger.Named("feed"))
}

func buildServer(cfg *config.Config, catalog *resource.Catalog, db store.Store, port int, logger *zap.Logger) *server.Server {
	if port == 0 {
		port = cfg.Server.Port
	}

	var notifier submit.Broadcaster
	if mgr := buildNotifyManager(cfg); mgr.HasNotifiers() {
		logger.Info("submission notifications enabled", zap.Strings("notifiers", mgr.Names()))
		notifier = mgr
	}

	svc := submit.NewService(submit.Options{
		ContentDir:         cfg.Content.Dir,
		MaxAttachmentBytes: cfg.Submit.MaxAttachmentBytes(),
		AllowedExtensions:  cfg.Submit.AllowedExtensions,
		Generator:          buildGenerator(cfg, logger),
		Notifier:           notifier,
		Recorder:           db,
		Catalog:            catalog,
		Logger:             logger.Named("submit"),
	})

	return server.New(server.Options{
		Catalog:        catalog,
		Scorer:         buildScorer(cfg),
		Views:          db,
		Submitter:      svc,
		RelatedLimit:   cfg.Related.Limit,
		MaxUploadBytes: cfg.Submit.MaxAttachmentBytes(),
		Port:           port,
		Logger:         logger.Named("http"),
	})
}

func runServe(ctx context.Context, port int) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("content loaded", zap.String("dir", cfg.Content.Dir), zap.Int("resources", catalog.Library().Len()))

	return buildServer(cfg, catalog, db, port, logger).ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("content loaded", zap.String("dir", cfg.Content.Dir), zap.Int("resources", catalog.Library().Len()))

	if cfg.Content.Watch {
		watcher, err := watch.New(cfg.Content.Dir, cfg.Schedule.ParseWatchDebounce(), logger.Named("watch"), func(files []string) error {
			if err := catalog.Reload(ctx); err != nil {
				return err
			}
			logger.Info("content reloaded", zap.Int("changed", len(files)), zap.Int("resources", catalog.Library().Len()))
			return nil
		})
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer watcher.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Import.Enabled && len(cfg.Import.Feeds) > 0 {
		sched := scheduler.New(buildImporter(cfg, db, logger), catalog,
			cfg.Schedule.ParseImportInterval(), logger.Named("scheduler"))
		g.Go(func() error {
			if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	srv := buildServer(cfg, catalog, db, port, logger)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func runRelated(path string, limit int, jsonOutput bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	category, slug, err := resource.ParsePath("/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(context.Background(), cfg)
	if err != nil {
		return err
	}
	lib := catalog.Library()
	if _, ok := lib.Find(category, slug); !ok {
		return fmt.Errorf("%w: %s", resource.ErrNotFound, resource.Key(category, slug))
	}

	if limit <= 0 {
		limit = cfg.Related.Limit
	}
	pages := buildScorer(cfg).Related(lib.All(), category, slug, limit)

	if jsonOutput {
		return printJSON(pages)
	}
	if len(pages) == 0 {
		fmt.Println("no related pages (add shared tags to connect resources)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tPAGE\tTITLE\tREASONS")
	for _, p := range pages {
		fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\n",
			p.Score, resource.Key(p.Category, p.Slug), p.Title, strings.Join(p.Reasons, "; "))
	}
	return w.Flush()
}

func runResources(category string, jsonOutput bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	catalog, err := loadCatalog(context.Background(), cfg)
	if err != nil {
		return err
	}
	lib := catalog.Library()

	list := lib.All()
	if category != "" {
		c, ok := resource.ParseCategory(category)
		if !ok {
			return fmt.Errorf("unknown category %q", category)
		}
		list = lib.ByCategory(c)
	}

	if jsonOutput {
		return printJSON(list)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAGE\tTITLE\tTAGS")
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Key(), r.Title, strings.Join(r.Tags, ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\ntotal: %d resources\n", len(list))
	return nil
}

func runShow(path string, width int) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	category, slug, err := resource.ParsePath("/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(context.Background(), cfg)
	if err != nil {
		return err
	}
	r, ok := catalog.Library().Find(category, slug)
	if !ok {
		return fmt.Errorf("%w: %s", resource.ErrNotFound, resource.Key(category, slug))
	}

	var meta strings.Builder
	if r.URL != "" {
		fmt.Fprintf(&meta, "**Link:** %s\n\n", r.URL)
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(&meta, "**Tags:** %s\n\n", strings.Join(r.Tags, ", "))
	}

	out, err := render.Terminal(meta.String()+r.Body, width, "")
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func runGraph() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	catalog, err := loadCatalog(context.Background(), cfg)
	if err != nil {
		return err
	}
	return printJSON(related.BuildGraph(catalog.Library().All()))
}

func runImport(ctx context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Import.Feeds) == 0 {
		return fmt.Errorf("no feeds configured under import.feeds")
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	res, err := buildImporter(cfg, db, logger).Import(ctx)
	if err != nil {
		return fmt.Errorf("import feeds: %w", err)
	}

	for _, f := range cfg.Import.Feeds {
		if msg, ok := res.Errors[f.Name]; ok {
			fmt.Fprintf(os.Stderr, "  %s error: %s\n", f.Name, msg)
			continue
		}
		fmt.Fprintf(os.Stderr, "  %s: %d imported, %d skipped\n", f.Name, res.Imported[f.Name], res.Skipped[f.Name])
	}
	fmt.Fprintf(os.Stderr, "\ntotal: %d articles from %d feeds\n", res.Total(), len(cfg.Import.Feeds))
	return nil
}

func runViews(ctx context.Context, limit int) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	counts, err := db.TopViewed(ctx, limit)
	if err != nil {
		return fmt.Errorf("list views: %w", err)
	}
	if len(counts) == 0 {
		fmt.Println("no views recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIEWS\tPAGE\tLAST VIEWED")
	for _, c := range counts {
		fmt.Fprintf(w, "%d\t%s\t%s\n", c.Count, resource.Key(c.Category, c.Slug), c.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runSubmissions(ctx context.Context, limit int) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	subs, err := db.ListSubmissions(ctx, limit)
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}
	if len(subs) == 0 {
		fmt.Println("no submissions yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tPAGE\tTITLE\tAI\tEMAIL")
	for _, s := range subs {
		ai := "no"
		if s.Augmented {
			ai = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.CreatedAt.Format(time.RFC3339), resource.Key(s.Category, s.Slug), s.Title, ai, s.Email)
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
