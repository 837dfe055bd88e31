package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"posterd/internal/domain"
	"posterd/internal/infra"
	"posterd/internal/jobs"
	"posterd/internal/mapcache"
	"posterd/internal/middleware"
	"posterd/internal/payment"
	"posterd/internal/storage"
	"posterd/internal/themes"
)

// App carries the wired collaborators the handlers work against. Fields
// are set once in main and treated as read-only afterwards.
type App struct {
	Config  *infra.Config
	Logger  zerolog.Logger
	Store   *jobs.Store
	Runner  *jobs.Runner
	Themes  *themes.Catalog
	Gallery domain.GalleryRepository
	Posters *storage.FileStore
	Cache   *mapcache.Cache
	Payment *payment.Gate
	Country middleware.CountryLookup
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
