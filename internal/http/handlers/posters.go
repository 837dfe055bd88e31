package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"posterd/internal/domain"
)

type posterRequest struct {
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	Theme        string `json:"theme"`
	Size         string `json:"size"`
	Radius       int    `json:"radius"`
	AddToGallery bool   `json:"add_to_gallery"`
}

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// PostersCreate validates the request, creates the job record and hands
// it to the runner. The response returns immediately; the render runs in
// the background.
func (a *App) PostersCreate(w http.ResponseWriter, r *http.Request) {
	var req posterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.City = strings.TrimSpace(req.City)
	req.State = strings.TrimSpace(req.State)
	req.Country = strings.TrimSpace(req.Country)
	req.Theme = strings.TrimSpace(req.Theme)
	if req.City == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "city is required")
		return
	}
	if req.Country == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "country is required")
		return
	}
	if req.Theme == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "theme is required")
		return
	}
	if _, ok := a.Themes.Get(req.Theme); !ok {
		a.error(w, http.StatusBadRequest, "unknown_theme", fmt.Sprintf("theme %q is not available", req.Theme))
		return
	}
	if req.Size == "" {
		req.Size = "auto"
	}
	if !domain.ValidSize(req.Size) {
		a.error(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("size must be one of: %s", strings.Join(domain.SizePresets, ", ")))
		return
	}
	if req.Radius != 0 && (req.Radius < domain.MinRadiusMeters || req.Radius > domain.MaxRadiusMeters) {
		a.error(w, http.StatusBadRequest, "bad_request",
			fmt.Sprintf("radius must be between %d and %d meters", domain.MinRadiusMeters, domain.MaxRadiusMeters))
		return
	}

	job := a.Store.Create(domain.PosterRequest{
		City:         req.City,
		State:        req.State,
		Country:      req.Country,
		Theme:        req.Theme,
		Size:         req.Size,
		Radius:       req.Radius,
		AddToGallery: req.AddToGallery,
	})
	// The render outlives this request, so it must not inherit the
	// request context.
	a.Runner.Launch(context.Background(), job.ID, job.Request)
	a.json(w, http.StatusAccepted, jobResponse{JobID: job.ID, Status: string(job.Status)})
}

// PosterDownload serves the finished poster PNG.
func (a *App) PosterDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := a.Store.Get(id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if job.Status == domain.JobStatusFailed {
		a.error(w, http.StatusNotFound, "not_found", "poster not available")
		return
	}
	if !job.DownloadAvailable() {
		a.error(w, http.StatusNotFound, "not_ready", "poster not ready")
		return
	}
	key := filepath.Base(job.ResultFile)
	path, err := a.Posters.Path(key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "poster not found")
		return
	}
	if _, err := a.Posters.Stat(key); err != nil {
		a.error(w, http.StatusNotFound, "not_ready", "poster file missing")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", downloadName(job.Request)))
	http.ServeFile(w, r, path)
}

// downloadName mirrors the renderer's own poster naming.
func downloadName(req domain.PosterRequest) string {
	return locationSlug(req.City) + "_poster.png"
}

func locationSlug(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, " ", "_")
	return strings.ReplaceAll(v, ",", "")
}
