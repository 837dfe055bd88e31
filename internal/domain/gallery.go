package domain

import "time"

// GalleryEntry is the public record of a completed, gallery-opted-in
// poster. Keyed by the job identifier; display colors come from the
// theme at completion time so later theme edits do not rewrite history.
type GalleryEntry struct {
	JobID      string
	Location   string
	ThemeID    string
	ThemeName  string
	Background string
	Text       string
	CreatedAt  time.Time
}
