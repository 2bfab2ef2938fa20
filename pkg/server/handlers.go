package server

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sustainability-atlas/atlas/pkg/related"
	"github.com/sustainability-atlas/atlas/pkg/render"
	"github.com/sustainability-atlas/atlas/pkg/resource"
	"github.com/sustainability-atlas/atlas/pkg/submit"
)

// resourceView is a resource with its rendered body and view count.
type resourceView struct {
	resource.Resource
	HTML  string `json:"html"`
	Views int64  `json:"views"`
}

type resourceResponse struct {
	Resource     resourceView        `json:"resource"`
	RelatedPages []related.Page      `json:"relatedPages"`
	AllResources []resource.Resource `json:"allResources"`
}

type popularEntry struct {
	Category resource.Category `json:"category"`
	Slug     string            `json:"slug"`
	Title    string            `json:"title"`
	Views    int64             `json:"views"`
}

// lookup resolves the "path" query parameter against the current library.
func (s *Server) lookup(r *http.Request) (*resource.Library, *resource.Resource, error) {
	category, slug, err := resource.ParsePath(r.URL.Query().Get("path"))
	if err != nil {
		return nil, nil, err
	}
	lib := s.library()
	res, ok := lib.Find(category, slug)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", resource.ErrNotFound, resource.Key(category, slug))
	}
	return lib, res, nil
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	lib, res, err := s.lookup(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	html, err := render.HTML(res.Body)
	if err != nil {
		s.fail(w, r, fmt.Errorf("render %s: %w", res.Key(), err))
		return
	}

	var views int64
	if s.views != nil {
		views, err = s.views.GetViews(r.Context(), res.Category, res.Slug)
		if err != nil {
			s.fail(w, r, fmt.Errorf("get views %s: %w", res.Key(), err))
			return
		}
	}

	all := lib.All()
	writeJSON(w, http.StatusOK, resourceResponse{
		Resource:     resourceView{Resource: *res, HTML: html, Views: views},
		RelatedPages: s.scorer.Related(all, res.Category, res.Slug, s.relatedLimit),
		AllResources: all,
	})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, s.relatedLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lib, res, err := s.lookup(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	pages := s.scorer.Related(lib.All(), res.Category, res.Slug, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  pages,
		"count": len(pages),
	})
}

func (s *Server) handleGetViews(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		writeError(w, http.StatusNotFound, "view counts are disabled")
		return
	}
	_, res, err := s.lookup(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.views.GetViews(r.Context(), res.Category, res.Slug)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": "/" + res.Key(), "views": n})
}

func (s *Server) handleIncrementViews(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		writeError(w, http.StatusNotFound, "view counts are disabled")
		return
	}
	_, res, err := s.lookup(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.views.IncrementViews(r.Context(), res.Category, res.Slug)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": "/" + res.Key(), "views": n})
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	if s.views == nil {
		writeError(w, http.StatusNotFound, "view counts are disabled")
		return
	}
	limit, err := parseLimit(r, 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Over-fetch so deleted resources do not shrink the list.
	counts, err := s.views.TopViewed(r.Context(), limit*2)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	lib := s.library()
	entries := make([]popularEntry, 0, limit)
	for _, c := range counts {
		if len(entries) == limit {
			break
		}
		res, ok := lib.Find(c.Category, c.Slug)
		if !ok {
			continue
		}
		entries = append(entries, popularEntry{
			Category: res.Category,
			Slug:     res.Slug,
			Title:    res.Title,
			Views:    c.Count,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"count": len(entries),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.submitter == nil {
		writeError(w, http.StatusNotFound, "submissions are disabled")
		return
	}

	// Room for a handful of attachments plus the text fields.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload*5+(1<<20))

	var files []*multipart.FileHeader
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "malformed form: "+err.Error())
			return
		}
		defer r.MultipartForm.RemoveAll()
		files = r.MultipartForm.File["attachments"]
	} else if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form: "+err.Error())
		return
	}

	sub := submit.Submission{
		Title:    r.FormValue("title"),
		Category: r.FormValue("category"),
		URL:      r.FormValue("url"),
		Overview: r.FormValue("overview"),
		Tags:     resource.SplitTags(r.FormValue("tags")),
		Body:     r.FormValue("body"),
		Email:    r.FormValue("email"),
	}

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.fail(w, r, fmt.Errorf("open attachment %s: %w", fh.Filename, err))
			return
		}
		defer f.Close()
		sub.Attachments = append(sub.Attachments, submit.Attachment{
			Name:   fh.Filename,
			Size:   fh.Size,
			Reader: f,
		})
	}

	res, err := s.submitter.Submit(r.Context(), sub)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Debug("submission stored", zap.String("path", res.Path))
	writeJSON(w, http.StatusCreated, res)
}
