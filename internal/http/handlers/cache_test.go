package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func seedCacheEntry(t *testing.T, app *App, key, city, country string, distance int) {
	t.Helper()
	dir := filepath.Join(app.Config.CacheDir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", key, err)
	}
	meta := fmt.Sprintf(`{"city":%q,"country":%q,"distance":%d,"coords":[48.85,2.35],"cached_at":"2026-02-01T10:00:00"}`,
		city, country, distance)
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), []byte(meta), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "graph.pkl"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

func TestCacheList(t *testing.T) {
	app := newTestApp(t)
	seedCacheEntry(t, app, "paris_france_12000", "Paris", "France", 12000)
	seedCacheEntry(t, app, "kyoto_japan_8000", "Kyoto", "Japan", 8000)

	rr := httptest.NewRecorder()
	app.CacheList(rr, httptest.NewRequest("GET", "/api/cache", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp struct {
		Items []struct {
			Key      string `json:"key"`
			City     string `json:"city"`
			Distance int    `json:"distance"`
		} `json:"items"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Items) != 2 {
		t.Fatalf("count = %d, items = %d, want 2", resp.Count, len(resp.Items))
	}
	if resp.Items[0].Key != "kyoto_japan_8000" {
		t.Fatalf("first key = %q, want kyoto_japan_8000", resp.Items[0].Key)
	}
}

func TestCacheListEmpty(t *testing.T) {
	app := newTestApp(t)
	rr := httptest.NewRecorder()
	app.CacheList(rr, httptest.NewRequest("GET", "/api/cache", nil))

	var resp struct {
		Items []any `json:"items"`
		Count int   `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Items == nil || resp.Count != 0 {
		t.Fatalf("items = %v count = %d, want [] and 0", resp.Items, resp.Count)
	}
}

func TestCacheClearSingle(t *testing.T) {
	app := newTestApp(t)
	seedCacheEntry(t, app, "paris_france_12000", "Paris", "France", 12000)
	seedCacheEntry(t, app, "kyoto_japan_8000", "Kyoto", "Japan", 8000)

	rr := httptest.NewRecorder()
	app.CacheClear(rr, httptest.NewRequest("DELETE", "/api/cache?key=paris_france_12000", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if _, err := os.Stat(filepath.Join(app.Config.CacheDir, "paris_france_12000")); !os.IsNotExist(err) {
		t.Fatalf("entry still present, err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(app.Config.CacheDir, "kyoto_japan_8000")); err != nil {
		t.Fatalf("other entry touched: %v", err)
	}
}

func TestCacheClearRejectsTraversal(t *testing.T) {
	app := newTestApp(t)
	rr := httptest.NewRecorder()
	app.CacheClear(rr, httptest.NewRequest("DELETE", "/api/cache?key=..%2Fescape", nil))

	assertErrorCode(t, rr, http.StatusBadRequest, "bad_request")
}

func TestCacheClearAll(t *testing.T) {
	app := newTestApp(t)
	seedCacheEntry(t, app, "paris_france_12000", "Paris", "France", 12000)
	seedCacheEntry(t, app, "kyoto_japan_8000", "Kyoto", "Japan", 8000)

	rr := httptest.NewRecorder()
	app.CacheClear(rr, httptest.NewRequest("DELETE", "/api/cache", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp struct {
		Status  string `json:"status"`
		Cleared int    `json:"cleared"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Cleared != 2 {
		t.Fatalf("response = %+v, want ok/2", resp)
	}
	entries, err := app.Cache.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("cache still has %d entries", len(entries))
	}
}
