package infra

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const gallerySchema = `
CREATE TABLE IF NOT EXISTS gallery (
	job_id     TEXT PRIMARY KEY,
	location   TEXT NOT NULL,
	theme_id   TEXT NOT NULL,
	theme_name TEXT NOT NULL,
	bg_color   TEXT NOT NULL DEFAULT '#FFFFFF',
	text_color TEXT NOT NULL DEFAULT '#000000',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gallery_created_at ON gallery(created_at);
`

// NewGalleryDB opens the sqlite file backing the poster gallery and ensures
// its schema exists. Writes are serialized through a single connection.
func NewGalleryDB(ctx context.Context, cfg *Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if dir := filepath.Dir(cfg.GalleryDBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create gallery db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.GalleryDBPath)
	if err != nil {
		return nil, fmt.Errorf("open gallery db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping gallery db: %w", err)
	}
	if _, err := db.ExecContext(ctx, gallerySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure gallery schema: %w", err)
	}

	return db, nil
}
