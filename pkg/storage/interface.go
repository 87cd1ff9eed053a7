package storage

import (
	"context"
	"time"

	"caption-crawler/pkg/models"
)

// CaptionStore caches fetched caption content keyed by item ID so resumed or
// repeated runs skip provider calls (and their quota cost) for items already
// fetched.
type CaptionStore interface {
	// Get returns the cached content for an item, or (nil, nil) on a miss.
	Get(itemID string) (*models.Content, error)

	// Put stores content for an item, overwriting any previous entry.
	Put(content models.Content) error

	// Has reports whether an item has a cached entry without decoding it.
	Has(itemID string) (bool, error)

	// EntryCount returns the number of cached captions.
	EntryCount() (int, error)

	// RunGC runs periodic value-log garbage collection until ctx ends.
	// Should be run in a goroutine.
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the underlying database.
	Close() error
}
