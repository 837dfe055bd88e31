package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"posterd/internal/domain"
	"posterd/internal/jobs"
	"posterd/internal/mapcache"
	"posterd/internal/storage"
)

func testPosterStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func writeAgedPoster(t *testing.T, store *storage.FileStore, key string, age time.Duration) {
	t.Helper()
	path := filepath.Join(store.BasePath(), key)
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatalf("write poster: %v", err)
	}
	mod := time.Now().Add(-age)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("set mtime: %v", err)
	}
}

func writeCacheEntry(t *testing.T, dir, key string, age time.Duration) {
	t.Helper()
	entryDir := filepath.Join(dir, key)
	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		t.Fatalf("mkdir cache entry: %v", err)
	}
	cachedAt := time.Now().Add(-age).UTC().Format(time.RFC3339)
	meta := fmt.Sprintf(`{"city":"X","country":"Y","distance":6000,"coords":[0,0],"cached_at":%q}`, cachedAt)
	if err := os.WriteFile(filepath.Join(entryDir, "meta.json"), []byte(meta), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
}

func completeJob(t *testing.T, store *jobs.Store, id string) {
	t.Helper()
	status := domain.JobStatusCompleted
	progress := 100
	if _, ok := store.Update(id, jobs.Update{Status: &status, Progress: &progress}); !ok {
		t.Fatalf("complete job %s", id)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(Config{Schedule: "not a schedule", Retention: time.Hour}, nil, nil, nil, zerolog.Nop())
	if err == nil {
		t.Fatal("expected a schedule parse error")
	}
}

func TestRunOnceSweepsEverything(t *testing.T) {
	current := time.Now().Add(-48 * time.Hour)
	store := jobs.NewStore(nil, jobs.WithClock(func() time.Time { return current }))

	oldJob := store.Create(domain.PosterRequest{City: "Old", Country: "X", Theme: "noir"})
	completeJob(t, store, oldJob.ID)

	current = time.Now()
	freshJob := store.Create(domain.PosterRequest{City: "Fresh", Country: "X", Theme: "noir"})
	completeJob(t, store, freshJob.ID)
	pendingJob := store.Create(domain.PosterRequest{City: "Pending", Country: "X", Theme: "noir"})

	posters := testPosterStore(t)
	writeAgedPoster(t, posters, oldJob.ID+".png", 48*time.Hour)
	writeAgedPoster(t, posters, freshJob.ID+".png", 0)

	cacheDir := t.TempDir()
	writeCacheEntry(t, cacheDir, "old_x_6000", 40*24*time.Hour)
	writeCacheEntry(t, cacheDir, "fresh_x_6000", time.Hour)
	cache := mapcache.New(cacheDir, zerolog.Nop())

	j, err := New(Config{Schedule: "@every 1h", Retention: 24 * time.Hour}, store, posters, cache, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.RunOnce(context.Background())

	if _, err := posters.Stat(oldJob.ID + ".png"); err == nil {
		t.Fatal("aged poster survived the sweep")
	}
	if _, err := posters.Stat(freshJob.ID + ".png"); err != nil {
		t.Fatalf("fresh poster was swept: %v", err)
	}

	if _, ok := store.Get(oldJob.ID); ok {
		t.Fatal("aged terminal job was not pruned")
	}
	if _, ok := store.Get(freshJob.ID); !ok {
		t.Fatal("fresh terminal job was pruned")
	}
	if _, ok := store.Get(pendingJob.ID); !ok {
		t.Fatal("pending job was pruned")
	}

	entries, err := cache.List()
	if err != nil {
		t.Fatalf("cache List: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "fresh_x_6000" {
		t.Fatalf("cache entries after sweep = %+v", entries)
	}
}

func TestRunOnceToleratesNilComponents(t *testing.T) {
	j, err := New(Config{Schedule: "@every 1h", Retention: time.Hour}, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.RunOnce(context.Background())
}

func TestStartStop(t *testing.T) {
	j, err := New(Config{Schedule: "@every 1h", Retention: time.Hour}, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.Start()
	j.Stop()
}

func TestScheduledFire(t *testing.T) {
	posters := testPosterStore(t)
	writeAgedPoster(t, posters, "stale.png", 48*time.Hour)

	j, err := New(Config{Schedule: "@every 50ms", Retention: 24 * time.Hour}, nil, posters, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.Start()
	defer j.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := posters.Stat("stale.png"); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scheduled sweep never fired")
}
