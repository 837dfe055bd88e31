package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"posterd/internal/adapter/repo"
	"posterd/internal/domain"
	"posterd/internal/infra"
	"posterd/internal/jobs"
	"posterd/internal/mapcache"
	"posterd/internal/payment"
	"posterd/internal/storage"
	"posterd/internal/themes"
)

// newTestApp wires a fully working App against temp directories. The
// runner executes "true", so launched jobs finish instantly without a
// real renderer. The catalog is seeded with one theme, "noir".
func newTestApp(t *testing.T) *App {
	t.Helper()
	logger := zerolog.Nop()
	cfg := &infra.Config{
		AppEnv:        "test",
		DataDir:       t.TempDir(),
		ThemesDir:     t.TempDir(),
		CacheDir:      t.TempDir(),
		GalleryDBPath: filepath.Join(t.TempDir(), "gallery.db"),
		GalleryLimit:  10,
	}

	writeThemeFile(t, cfg.ThemesDir, "noir", `{"name":"Noir","bg":"#1a1a1a","text":"#e8e8e8"}`)
	catalog := themes.NewCatalog(cfg.ThemesDir, logger)
	if err := catalog.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	posters, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	db, err := infra.NewGalleryDB(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewGalleryDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	gallery := repo.NewGalleryRepository(db, cfg.GalleryLimit)

	store := jobs.NewStore(nil)
	runner := jobs.NewRunner(store, gallery, catalog, logger, jobs.RunnerConfig{
		Bin:       "true",
		OutputDir: cfg.DataDir,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Runner:  runner,
		Themes:  catalog,
		Gallery: gallery,
		Posters: posters,
		Cache:   mapcache.New(cfg.CacheDir, logger),
		Payment: payment.NewGate(payment.Config{}, logger),
	}
}

func writeThemeFile(t *testing.T, dir, id, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write theme %s: %v", id, err)
	}
}

// withURLParam attaches a chi route parameter for direct handler calls.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func validPosterRequest() domain.PosterRequest {
	return domain.PosterRequest{
		City:    "Testville",
		Country: "Nowhere",
		Theme:   "noir",
		Size:    "auto",
	}
}

// completePoster drives a job to completed with a real artifact on disk
// and returns the artifact path.
func completePoster(t *testing.T, app *App, jobID string) string {
	t.Helper()
	path, err := app.Posters.Path(jobID + ".png")
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write poster: %v", err)
	}
	status := domain.JobStatusCompleted
	progress := 100
	if _, ok := app.Store.Update(jobID, jobs.Update{Status: &status, Progress: &progress, ResultFile: &path}); !ok {
		t.Fatalf("Update(%s) did not apply", jobID)
	}
	return path
}
