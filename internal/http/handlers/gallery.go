package handlers

import (
	"fmt"
	"io"
	"net/http"

	"posterd/pkg/zip"
)

func (a *App) GalleryList(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Gallery.Recent(r.Context(), 0)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load gallery")
		return
	}
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"job_id":     e.JobID,
			"location":   e.Location,
			"theme_id":   e.ThemeID,
			"theme_name": e.ThemeName,
			"bg_color":   e.Background,
			"text_color": e.Text,
			"created_at": e.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// GalleryExport bundles the gallery posters still on disk into one zip.
// Entries whose artifact was already swept are skipped.
func (a *App) GalleryExport(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Gallery.Recent(r.Context(), 0)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load gallery")
		return
	}
	var assets []zip.Asset
	for _, e := range entries {
		data := a.posterData(e.JobID)
		if data == nil {
			continue
		}
		name := fmt.Sprintf("%s_%s.png", locationSlug(e.Location), shortID(e.JobID))
		assets = append(assets, zip.Asset{Filename: name, Data: data})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no gallery posters on disk")
		return
	}
	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=gallery.zip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) posterData(jobID string) []byte {
	f, err := a.Posters.Open(jobID + ".png")
	if err != nil {
		return nil
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil
	}
	return data
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
