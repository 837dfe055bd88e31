package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"posterd/internal/domain"
)

// GalleryRepositorySQLite implements domain.GalleryRepository.
type GalleryRepositorySQLite struct {
	db    *sql.DB
	limit int
}

// NewGalleryRepository creates a gallery repository backed by sqlite. The
// limit caps how many entries are retained; older rows are trimmed on insert.
func NewGalleryRepository(db *sql.DB, limit int) *GalleryRepositorySQLite {
	return &GalleryRepositorySQLite{db: db, limit: limit}
}

// Add inserts a gallery entry and trims the table down to the retention
// limit, keeping the newest rows. Re-adding the same job is a no-op.
func (r *GalleryRepositorySQLite) Add(ctx context.Context, entry domain.GalleryEntry) error {
	insert := `
INSERT INTO gallery (job_id, location, theme_id, theme_name, bg_color, text_color, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO NOTHING;
`
	trim := `
DELETE FROM gallery
WHERE job_id NOT IN (
	SELECT job_id FROM gallery ORDER BY created_at DESC, job_id DESC LIMIT ?
);
`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin gallery insert: %w", err)
	}
	defer tx.Rollback()

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, insert,
		entry.JobID,
		entry.Location,
		entry.ThemeID,
		entry.ThemeName,
		entry.Background,
		entry.Text,
		createdAt,
	); err != nil {
		return fmt.Errorf("insert gallery entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, trim, r.limit); err != nil {
		return fmt.Errorf("trim gallery: %w", err)
	}
	return tx.Commit()
}

// Recent returns the newest gallery entries, most recent first. A limit of
// zero or less falls back to the repository's retention limit.
func (r *GalleryRepositorySQLite) Recent(ctx context.Context, limit int) ([]domain.GalleryEntry, error) {
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}
	query := `
SELECT job_id, location, theme_id, theme_name, bg_color, text_color, created_at
FROM gallery
ORDER BY created_at DESC, job_id DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query gallery: %w", err)
	}
	defer rows.Close()

	var entries []domain.GalleryEntry
	for rows.Next() {
		var entry domain.GalleryEntry
		if err := rows.Scan(
			&entry.JobID,
			&entry.Location,
			&entry.ThemeID,
			&entry.ThemeName,
			&entry.Background,
			&entry.Text,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
