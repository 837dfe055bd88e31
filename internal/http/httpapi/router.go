package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"posterd/internal/http/handlers"
	"posterd/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.CORSAllowedOrigins),
	)

	// Health
	r.Get("/health", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/posters", func(r chi.Router) {
			r.With(createGuards(app)...).Post("/", app.PostersCreate)
			r.Get("/{id}", app.PosterDownload)
		})
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", app.JobsList)
			r.Get("/{id}", app.JobStatus)
			r.Get("/{id}/ws", app.JobStream)
		})
		r.Get("/themes", app.ThemesList)
		r.Route("/gallery", func(r chi.Router) {
			r.Get("/", app.GalleryList)
			r.Get("/export", app.GalleryExport)
		})
		r.Get("/locate", app.Locate)
		r.Route("/cache", func(r chi.Router) {
			r.Get("/", app.CacheList)
			r.Delete("/", app.CacheClear)
		})
	})

	mountStatic(r, app)

	return r
}

// createGuards protects the render entry point: throttle first, then the
// payment gate.
func createGuards(app *handlers.App) []func(http.Handler) http.Handler {
	var guards []func(http.Handler) http.Handler
	if app.Config.RateLimitPerMin > 0 {
		guards = append(guards, middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute))
	}
	return append(guards, app.Payment.Require)
}

// mountStatic serves the bundled frontend when the static dir exists,
// otherwise / answers with a plain JSON banner.
func mountStatic(r chi.Router, app *handlers.App) {
	dir := app.Config.StaticDir
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		r.Get("/", app.APIRoot)
		return
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, filepath.Join(dir, "index.html"))
	})
}
