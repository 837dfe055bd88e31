package mapcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultExpiry is how long a cached map-data entry stays usable.
const DefaultExpiry = 30 * 24 * time.Hour

// Entry describes one cached location. The renderer owns the payload files
// inside the entry directory; the service only reads the metadata.
type Entry struct {
	Key      string    `json:"key"`
	City     string    `json:"city"`
	Country  string    `json:"country"`
	Distance int       `json:"distance"`
	Coords   []float64 `json:"coords"`
	CachedAt time.Time `json:"cached_at"`
}

type metaFile struct {
	City     string    `json:"city"`
	Country  string    `json:"country"`
	Distance int       `json:"distance"`
	Coords   []float64 `json:"coords"`
	CachedAt string    `json:"cached_at"`
}

// Cache maintains the renderer's map-data cache directory: one subdirectory
// per location/distance pair, each holding a meta.json next to the payload.
type Cache struct {
	dir    string
	logger zerolog.Logger
}

func New(dir string, logger zerolog.Logger) *Cache {
	return &Cache{dir: dir, logger: logger}
}

// Dir returns the cache root handed to the renderer.
func (c *Cache) Dir() string { return c.dir }

// Key builds the normalized cache key for a location and distance.
func Key(city, country string, distance int) string {
	return slug(city) + "_" + slug(country) + "_" + fmt.Sprintf("%d", distance)
}

func slug(v string) string {
	v = strings.ToLower(v)
	v = strings.ReplaceAll(v, " ", "_")
	return strings.ReplaceAll(v, ",", "")
}

// List returns every cached location, ordered by key. A missing cache
// directory is an empty cache, not an error.
func (c *Cache) List() ([]Entry, error) {
	dirs, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	var entries []Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		entry, err := c.readEntry(d.Name())
		if err != nil {
			c.logger.Debug().Err(err).Str("key", d.Name()).Msg("mapcache: skipping entry")
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Find returns a cached entry for the location at any distance, which is
// enough to retheme a poster without refetching map data.
func (c *Cache) Find(city, country string) (Entry, bool) {
	prefix := slug(city) + "_" + slug(country) + "_"
	entries, err := c.List()
	if err != nil {
		return Entry{}, false
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Key, prefix) {
			return entry, true
		}
	}
	return Entry{}, false
}

// Clear removes a single cache entry. Unknown keys are a no-op.
func (c *Cache) Clear(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(c.dir, key)); err != nil {
		return fmt.Errorf("clear cache entry: %w", err)
	}
	return nil
}

// ClearAll removes every cache entry but keeps the cache root in place.
func (c *Cache) ClearAll() error {
	dirs, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, d := range dirs {
		if err := os.RemoveAll(filepath.Join(c.dir, d.Name())); err != nil {
			return fmt.Errorf("clear cache entry: %w", err)
		}
	}
	return nil
}

// SweepExpired removes entries cached longer ago than maxAge and reports how
// many were dropped. Entries whose metadata cannot be read are left alone;
// the renderer treats them as a miss and rewrites them.
func (c *Cache) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	dirs, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !d.IsDir() {
			continue
		}
		entry, err := c.readEntry(d.Name())
		if err != nil || !entry.CachedAt.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.dir, d.Name())); err != nil {
			return removed, fmt.Errorf("sweep cache entry: %w", err)
		}
		removed++
	}
	return removed, nil
}

func (c *Cache) readEntry(key string) (Entry, error) {
	raw, err := os.ReadFile(filepath.Join(c.dir, key, "meta.json"))
	if err != nil {
		return Entry{}, err
	}
	var meta metaFile
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Entry{}, fmt.Errorf("parse meta: %w", err)
	}
	cachedAt, err := parseCachedAt(meta.CachedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse cached_at: %w", err)
	}
	return Entry{
		Key:      key,
		City:     meta.City,
		Country:  meta.Country,
		Distance: meta.Distance,
		Coords:   meta.Coords,
		CachedAt: cachedAt,
	}, nil
}

// parseCachedAt accepts both RFC 3339 and the renderer's zone-less ISO
// timestamps.
func parseCachedAt(v string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

func validateKey(key string) error {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid cache key %q", key)
	}
	return nil
}
