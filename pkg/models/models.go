package models

import (
	"time"
)

// ChannelMetadata is the resolved identity of a channel, produced by the
// metadata source collaborator.
type ChannelMetadata struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ItemCount   int       `json:"item_count,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// ItemRef is one crawlable content unit belonging to a channel.
type ItemRef struct {
	ID          string        `json:"id"`
	ChannelID   string        `json:"channel_id"`
	Title       string        `json:"title,omitempty"`
	PublishedAt time.Time     `json:"published_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	IsPrivate   bool          `json:"is_private,omitempty"`
	IsLive      bool          `json:"is_live,omitempty"`
}

// Content is the fetched caption/transcript payload for a single item.
type Content struct {
	ItemID    string    `json:"item_id"`
	Language  string    `json:"language"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ChannelProgress tracks per-channel crawl progress. It has exactly one
// writer at a time (the owning worker); callers serialize access themselves.
type ChannelProgress struct {
	ChannelID    string        `json:"channel_id"`
	ChannelTitle string        `json:"channel_title,omitempty"`
	Status       ChannelStatus `json:"status"`

	TotalItems      int `json:"total_items"`
	ProcessedItems  int `json:"processed_items"`
	SuccessfulItems int `json:"successful_items"`
	FailedItems     int `json:"failed_items"`
	SkippedItems    int `json:"skipped_items"`

	LastItemID  string     `json:"last_item_id,omitempty"`
	LastUpdate  *time.Time `json:"last_update,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCount   int    `json:"error_count,omitempty"`
}

// NewChannelProgress returns a pending progress record for a channel.
func NewChannelProgress(channelID string) *ChannelProgress {
	return &ChannelProgress{
		ChannelID: channelID,
		Status:    ChannelStatusPending,
	}
}

// RecordItem registers one processed item in its terminal state and advances
// the counters. Processed always equals successful+failed+skipped.
func (p *ChannelProgress) RecordItem(itemID string, state ItemState) {
	p.ProcessedItems++
	switch state {
	case ItemStateSuccess:
		p.SuccessfulItems++
	case ItemStateFailed:
		p.FailedItems++
	case ItemStateSkipped:
		p.SkippedItems++
	}
	p.LastItemID = itemID
	now := time.Now().UTC()
	p.LastUpdate = &now
}

// ProgressPercentage returns processed items as a percentage of total.
func (p *ChannelProgress) ProgressPercentage() float64 {
	if p.TotalItems == 0 {
		return 0
	}
	return float64(p.ProcessedItems) / float64(p.TotalItems) * 100
}

// SuccessRate returns successful items as a percentage of processed.
func (p *ChannelProgress) SuccessRate() float64 {
	if p.ProcessedItems == 0 {
		return 0
	}
	return float64(p.SuccessfulItems) / float64(p.ProcessedItems) * 100
}

// Duration returns elapsed processing time, zero before start.
func (p *ChannelProgress) Duration() time.Duration {
	if p.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if p.CompletedAt != nil {
		end = *p.CompletedAt
	}
	return end.Sub(*p.StartedAt)
}

// PartialSummary is the per-channel breakdown recorded in BatchResult for
// channels that finished with at least one failed item.
type PartialSummary struct {
	Processed   int     `json:"processed"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	Total       int     `json:"total"`
	SuccessRate float64 `json:"success_rate"`
}

// BatchResult is the aggregate outcome of one orchestrator run. Only the
// orchestrator writes it, and Finalize is called exactly once.
type BatchResult struct {
	RunID         string `json:"run_id"`
	TotalChannels int    `json:"total_channels"`

	SuccessfulChannels []string                  `json:"successful_channels"`
	FailedChannels     map[string]string         `json:"failed_channels"`
	PartialChannels    map[string]PartialSummary `json:"partial_channels"`
	SkippedChannels    []string                  `json:"skipped_channels,omitempty"`

	TotalItemsProcessed  int `json:"total_items_processed"`
	TotalItemsSuccessful int `json:"total_items_successful"`
	TotalItemsFailed     int `json:"total_items_failed"`
	TotalItemsSkipped    int `json:"total_items_skipped"`

	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at,omitempty"`
	TotalDuration time.Duration `json:"total_duration,omitempty"`

	QuotaUsage      map[string]any `json:"quota_usage,omitempty"`
	ErrorSummary    string         `json:"error_summary,omitempty"`
	ErrorCategories map[string]int `json:"error_categories,omitempty"`
}

// NewBatchResult initializes a result for the given run and channel count.
func NewBatchResult(runID string, totalChannels int) *BatchResult {
	return &BatchResult{
		RunID:              runID,
		TotalChannels:      totalChannels,
		SuccessfulChannels: make([]string, 0, totalChannels),
		FailedChannels:     make(map[string]string),
		PartialChannels:    make(map[string]PartialSummary),
		StartedAt:          time.Now().UTC(),
	}
}

// AddChannelResult folds a finished channel's progress into the batch totals.
func (r *BatchResult) AddChannelResult(channelID string, progress *ChannelProgress) {
	switch {
	case progress.Status == ChannelStatusCompleted && progress.FailedItems == 0:
		r.SuccessfulChannels = append(r.SuccessfulChannels, channelID)
	case progress.Status == ChannelStatusFailed:
		msg := progress.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		r.FailedChannels[channelID] = msg
	default:
		r.PartialChannels[channelID] = PartialSummary{
			Processed:   progress.ProcessedItems,
			Successful:  progress.SuccessfulItems,
			Failed:      progress.FailedItems,
			Total:       progress.TotalItems,
			SuccessRate: progress.SuccessRate(),
		}
	}

	r.TotalItemsProcessed += progress.ProcessedItems
	r.TotalItemsSuccessful += progress.SuccessfulItems
	r.TotalItemsFailed += progress.FailedItems
	r.TotalItemsSkipped += progress.SkippedItems
}

// Finalize stamps completion time and duration.
func (r *BatchResult) Finalize() {
	r.CompletedAt = time.Now().UTC()
	r.TotalDuration = r.CompletedAt.Sub(r.StartedAt)
}

// OverallSuccessRate returns the item-level success percentage across channels.
func (r *BatchResult) OverallSuccessRate() float64 {
	if r.TotalItemsProcessed == 0 {
		return 0
	}
	return float64(r.TotalItemsSuccessful) / float64(r.TotalItemsProcessed) * 100
}

// ChannelSuccessRate returns the channel-level success percentage.
func (r *BatchResult) ChannelSuccessRate() float64 {
	total := len(r.SuccessfulChannels) + len(r.FailedChannels) + len(r.PartialChannels)
	if total == 0 {
		return 0
	}
	return float64(len(r.SuccessfulChannels)) / float64(total) * 100
}

// FetchResultKind discriminates the outcome of one item fetch.
type FetchResultKind int

const (
	FetchOK FetchResultKind = iota
	FetchSkip
	FetchFail
)

// FetchResult is the typed outcome of a wrapped item fetch; it lets the
// worker branch on skip-vs-fail without error-based control flow.
type FetchResult struct {
	Kind       FetchResultKind
	Content    *Content // set when Kind == FetchOK
	SkipReason string   // set when Kind == FetchSkip
	Err        error    // set when Kind == FetchFail
}

// FetchOKResult wraps fetched content.
func FetchOKResult(c *Content) FetchResult {
	return FetchResult{Kind: FetchOK, Content: c}
}

// FetchSkipResult marks an item skipped with a reason.
func FetchSkipResult(reason string) FetchResult {
	return FetchResult{Kind: FetchSkip, SkipReason: reason}
}

// FetchFailResult marks an item failed with its error.
func FetchFailResult(err error) FetchResult {
	return FetchResult{Kind: FetchFail, Err: err}
}
