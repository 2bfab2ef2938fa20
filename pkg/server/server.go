package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sustainability-atlas/atlas/internal/store"
	"github.com/sustainability-atlas/atlas/pkg/related"
	"github.com/sustainability-atlas/atlas/pkg/resource"
	"github.com/sustainability-atlas/atlas/pkg/submit"
)

const maxListLimit = 100

// Views counts page views.
type Views interface {
	IncrementViews(ctx context.Context, category resource.Category, slug string) (int64, error)
	GetViews(ctx context.Context, category resource.Category, slug string) (int64, error)
	TopViewed(ctx context.Context, limit int) ([]store.ViewCount, error)
}

// Submitter accepts visitor submissions.
type Submitter interface {
	Submit(ctx context.Context, s submit.Submission) (*submit.Result, error)
}

// Options configures a Server. Views and Submitter may be nil, which
// disables the matching routes.
type Options struct {
	Catalog        *resource.Catalog
	Scorer         *related.Scorer
	Views          Views
	Submitter      Submitter
	RelatedLimit   int
	MaxUploadBytes int64
	Port           int
	Logger         *zap.Logger
}

// Server provides the HTTP API.
type Server struct {
	catalog      *resource.Catalog
	scorer       *related.Scorer
	views        Views
	submitter    Submitter
	relatedLimit int
	maxUpload    int64
	port         int
	logger       *zap.Logger
}

// New creates a new HTTP server.
func New(opts Options) *Server {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	limit := opts.RelatedLimit
	if limit <= 0 {
		limit = 5
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = related.NewScorer(related.DefaultWeights(), related.DefaultMaxReasons)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		catalog:      opts.Catalog,
		scorer:       scorer,
		views:        opts.Views,
		submitter:    opts.Submitter,
		relatedLimit: limit,
		maxUpload:    maxUpload,
		port:         port,
		logger:       logger,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/resource", s.handleResource)
		r.Get("/related", s.handleRelated)
		r.Get("/resources", s.handleResources)
		r.Get("/graph", s.handleGraph)
		r.Get("/views", s.handleGetViews)
		r.Post("/views", s.handleIncrementViews)
		r.Get("/popular", s.handlePopular)
		r.Post("/submit", s.handleSubmit)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("atlas server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) library() *resource.Library {
	return s.catalog.Library()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"resources": s.library().Len(),
	})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	lib := s.library()
	list := lib.All()
	if c := r.URL.Query().Get("category"); c != "" {
		category, ok := resource.ParseCategory(c)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", c))
			return
		}
		list = lib.ByCategory(category)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  list,
		"count": len(list),
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, related.BuildGraph(s.library().All()))
}

// parseLimit reads the "limit" query parameter, clamped to [0, maxListLimit].
func parseLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	return max(0, min(n, maxListLimit)), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps err onto a status code. Unexpected errors are logged and hidden.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, resource.ErrInvalidPath), errors.Is(err, submit.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, resource.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
