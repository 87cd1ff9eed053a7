// Package sources defines the provider-facing interfaces the crawl engine
// depends on. Implementations adapt a concrete content provider API; the
// engine itself never talks to the network directly.
package sources

import (
	"context"
	"errors"
	"time"

	"caption-crawler/pkg/models"
)

// ErrChannelNotFound is returned by ChannelMetadataSource implementations
// when an identifier resolves to no channel.
var ErrChannelNotFound = errors.New("channel not found")

// ChannelMetadataSource resolves a channel identifier or handle to its
// metadata.
type ChannelMetadataSource interface {
	Resolve(ctx context.Context, channelRef string) (models.ChannelMetadata, error)
}

// ItemListSource enumerates the items of a channel, optionally bounded by a
// publish-date window (zero times mean unbounded). Implementations return
// the full list; batching is the caller's concern.
type ItemListSource interface {
	List(ctx context.Context, channelID string, from, to time.Time) ([]models.ItemRef, error)
}

// ItemContentSource fetches the caption content for one item in the
// preferred language. A (nil, nil) return means the item exists but has no
// caption available; callers treat that as a skip, not an error.
type ItemContentSource interface {
	Fetch(ctx context.Context, itemID, language string) (*models.Content, error)
}

// ExportSink receives fetched content and the end-of-run summary. Sink
// failures are reported but never fail the item that produced the content.
type ExportSink interface {
	Write(ctx context.Context, content models.Content) error
	WriteSummary(ctx context.Context, result models.BatchResult) error
}
