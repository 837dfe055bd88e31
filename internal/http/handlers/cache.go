package handlers

import (
	"net/http"
	"strings"

	"posterd/internal/mapcache"
)

func (a *App) CacheList(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Cache.List()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to read cache")
		return
	}
	if entries == nil {
		entries = []mapcache.Entry{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}

// CacheClear removes one cached location when the key query parameter is
// given, otherwise the whole cache. Removals are idempotent.
func (a *App) CacheClear(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key != "" {
		if err := a.Cache.Clear(key); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid cache key")
			return
		}
		a.json(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	entries, err := a.Cache.List()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to read cache")
		return
	}
	if err := a.Cache.ClearAll(); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to clear cache")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "cleared": len(entries)})
}
