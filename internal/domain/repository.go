package domain

import "context"

// GalleryRepository persists the bounded public gallery. Add inserts an
// entry and trims the list to the configured maximum, newest kept.
type GalleryRepository interface {
	Add(ctx context.Context, entry GalleryEntry) error
	Recent(ctx context.Context, limit int) ([]GalleryEntry, error)
}
