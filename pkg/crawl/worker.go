// Package crawl runs the per-channel fetch pipeline: resolve metadata, list
// items, filter, then batch through the items fetching caption content under
// the shared quota, rate, and breaker policies.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"caption-crawler/pkg/apperrors"
	"caption-crawler/pkg/breaker"
	"caption-crawler/pkg/models"
	"caption-crawler/pkg/progress"
	"caption-crawler/pkg/quota"
	"caption-crawler/pkg/ratelimit"
	"caption-crawler/pkg/retry"
	"caption-crawler/pkg/sources"
	"caption-crawler/pkg/storage"
)

// Breaker names, one circuit per downstream endpoint family.
const (
	breakerChannels = "channels"
	breakerItems    = "items"
	breakerCaptions = "captions"
)

// Deps are the shared collaborators a worker operates through. Everything
// here is shared across workers; the worker owns nothing in Deps.
type Deps struct {
	Meta    sources.ChannelMetadataSource
	List    sources.ItemListSource
	Content sources.ItemContentSource
	Sink    sources.ExportSink // optional

	Quota    *quota.Tracker
	Limiter  *ratelimit.Limiter
	Retry    *retry.Executor
	Breakers *breaker.Registry
	Cache    storage.CaptionStore // optional
	Errors   *apperrors.Aggregator
	ItemSem  *semaphore.Weighted // process-global item concurrency
	Callback progress.Callback   // optional
}

// Options are the per-run knobs affecting a single channel crawl.
type Options struct {
	BatchSize     int
	Language      string
	DateFrom      time.Time
	DateTo        time.Time
	MemoryLimitMB int
	// MinDuration filters out items shorter than this (shorts). Zero keeps
	// everything.
	MinDuration time.Duration
}

// Worker crawls one channel. It is the single writer of its ChannelProgress;
// the internal mutex only serializes the item-goroutine fan-in.
type Worker struct {
	channelRef string
	deps       Deps
	opts       Options
	gate       *memoryGate
	log        *logrus.Entry

	mu       sync.Mutex
	progress *models.ChannelProgress
}

// NewWorker creates a worker for one channel reference (ID or handle).
func NewWorker(channelRef string, deps Deps, opts Options, log *logrus.Entry) *Worker {
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	wlog := log.WithField("channel", channelRef)
	return &Worker{
		channelRef: channelRef,
		deps:       deps,
		opts:       opts,
		gate:       newMemoryGate(opts.MemoryLimitMB, wlog),
		log:        wlog,
		progress:   models.NewChannelProgress(channelRef),
	}
}

// Progress returns a snapshot of the worker's progress record.
func (w *Worker) Progress() models.ChannelProgress {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.progress
}

// Run executes the channel pipeline. The returned progress is always
// populated; err is non-nil only for channel-level failures (metadata or
// listing), not for individual item failures.
func (w *Worker) Run(ctx context.Context) (*models.ChannelProgress, error) {
	startTime := time.Now()
	var runErr error

	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic: %v", r)
			w.log.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in channel worker")
			w.failChannel(runErr)
		}
		w.log.WithFields(logrus.Fields{
			"duration":   time.Since(startTime).String(),
			"status":     w.progress.Status.String(),
			"processed":  w.progress.ProcessedItems,
			"successful": w.progress.SuccessfulItems,
			"failed":     w.progress.FailedItems,
			"skipped":    w.progress.SkippedItems,
		}).Info("Channel crawl finished")
	}()

	// 1. Resolve channel metadata.
	meta, err := w.resolveChannel(ctx)
	if err != nil {
		w.failChannel(err)
		return w.progress, err
	}
	w.mu.Lock()
	w.progress.ChannelID = meta.ID
	w.progress.ChannelTitle = meta.Title
	w.mu.Unlock()
	progress.Emit(w.deps.Callback, progress.Event{
		Kind: progress.EventChannelValidated, ChannelID: meta.ID,
	})

	// 2. List items.
	items, err := w.listItems(ctx, meta.ID)
	if err != nil {
		w.failChannel(err)
		return w.progress, err
	}

	// 3. Mark processing before any item is recorded so every emitted
	// snapshot already carries the totals.
	w.mu.Lock()
	w.progress.TotalItems = len(items)
	w.progress.Status = models.ChannelStatusProcessing
	now := time.Now().UTC()
	w.progress.StartedAt = &now
	w.mu.Unlock()
	progress.Emit(w.deps.Callback, progress.Event{
		Kind: progress.EventChannelStart, ChannelID: meta.ID,
	})

	// Local filter. Skips are recorded without touching quota.
	eligible := w.filterItems(items)
	w.log.Infof("Channel resolved: %q, %d items (%d after filtering)", meta.Title, len(items), len(eligible))

	// 4. Batch through eligible items.
	ids := make([]string, len(eligible))
	byID := make(map[string]models.ItemRef, len(eligible))
	for i, it := range eligible {
		ids[i] = it.ID
		byID[it.ID] = it
	}
	queue := models.NewProcessingQueue(meta.ID, ids, w.opts.BatchSize)

	for {
		if err := ctx.Err(); err != nil {
			return w.progress, err
		}
		if err := w.gate.wait(ctx); err != nil {
			return w.progress, err
		}

		batch := queue.NextBatch()
		if batch == nil {
			break
		}
		w.log.WithFields(logrus.Fields{
			"batch_size": len(batch),
			"remaining":  queue.Remaining(),
		}).Debug("Processing batch")

		var wg sync.WaitGroup
		for _, itemID := range batch {
			item := byID[itemID]
			if err := w.deps.ItemSem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return w.progress, err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer w.deps.ItemSem.Release(1)
				w.processItem(ctx, item)
			}()
		}
		wg.Wait()
	}

	// 5. Finalize.
	w.mu.Lock()
	done := time.Now().UTC()
	w.progress.CompletedAt = &done
	if w.progress.FailedItems == 0 {
		w.progress.Status = models.ChannelStatusCompleted
	} else {
		w.progress.Status = models.ChannelStatusPartial
	}
	w.mu.Unlock()

	progress.Emit(w.deps.Callback, progress.Event{
		Kind: progress.EventChannelComplete, ChannelID: meta.ID, Progress: w.progress,
	})
	return w.progress, nil
}

// failChannel marks the channel failed before any item work happened.
func (w *Worker) failChannel(err error) {
	w.mu.Lock()
	w.progress.Status = models.ChannelStatusFailed
	w.progress.ErrorMessage = err.Error()
	w.progress.ErrorCount++
	now := time.Now().UTC()
	w.progress.CompletedAt = &now
	w.mu.Unlock()

	w.deps.Errors.Add("channel "+w.channelRef, err)
	progress.Emit(w.deps.Callback, progress.Event{
		Kind: progress.EventChannelError, ChannelID: w.channelRef, Err: err,
		Suggested: apperrors.RecoveryActionFor(apperrors.Classify(err).Category),
	})
}

// resolveChannel looks up channel metadata under quota, rate, retry, and
// breaker policy.
func (w *Worker) resolveChannel(ctx context.Context) (models.ChannelMetadata, error) {
	if !w.deps.Quota.ConsumeQuota(quota.OpChannelLookup, 0) {
		return models.ChannelMetadata{}, fmt.Errorf("resolving channel %s: %w", w.channelRef, apperrors.ErrQuotaExceeded)
	}
	cb := w.deps.Breakers.Get(breakerChannels)
	return retry.DoValue(ctx, w.itemRetry(), "resolve_channel", func(ctx context.Context) (models.ChannelMetadata, error) {
		if err := w.deps.Limiter.Acquire(ctx, 1); err != nil {
			return models.ChannelMetadata{}, err
		}
		var meta models.ChannelMetadata
		err := cb.Execute(func() error {
			var ferr error
			meta, ferr = w.deps.Meta.Resolve(ctx, w.channelRef)
			return ferr
		})
		return meta, err
	})
}

// listItems enumerates the channel's items under the same policies.
func (w *Worker) listItems(ctx context.Context, channelID string) ([]models.ItemRef, error) {
	if !w.deps.Quota.ConsumeQuota(quota.OpItemList, 0) {
		return nil, fmt.Errorf("listing items for %s: %w", channelID, apperrors.ErrQuotaExceeded)
	}
	cb := w.deps.Breakers.Get(breakerItems)
	return retry.DoValue(ctx, w.itemRetry(), "list_items", func(ctx context.Context) ([]models.ItemRef, error) {
		if err := w.deps.Limiter.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		var items []models.ItemRef
		err := cb.Execute(func() error {
			var ferr error
			items, ferr = w.deps.List.List(ctx, channelID, w.opts.DateFrom, w.opts.DateTo)
			return ferr
		})
		return items, err
	})
}

// filterItems applies the local skip predicates. Skipped items are recorded
// immediately so they count against progress without consuming quota.
func (w *Worker) filterItems(items []models.ItemRef) []models.ItemRef {
	eligible := make([]models.ItemRef, 0, len(items))
	for _, it := range items {
		reason := ""
		switch {
		case it.IsPrivate:
			reason = "private"
		case it.IsLive:
			reason = "live"
		case w.opts.MinDuration > 0 && it.Duration > 0 && it.Duration < w.opts.MinDuration:
			reason = "below minimum duration"
		}
		if reason == "" {
			eligible = append(eligible, it)
			continue
		}
		w.log.WithFields(logrus.Fields{"item": it.ID, "reason": reason}).Debug("Item skipped by filter")
		w.recordItem(it.ID, models.ItemStateSkipped)
	}
	return eligible
}

// processItem fetches caption content for a single item and records its
// terminal state. Item failures never abort the channel.
func (w *Worker) processItem(ctx context.Context, item models.ItemRef) {
	itemLog := w.log.WithField("item", item.ID)

	result := w.fetchOne(ctx, item, itemLog)
	switch result.Kind {
	case models.FetchOK:
		if w.deps.Cache != nil {
			if err := w.deps.Cache.Put(*result.Content); err != nil {
				itemLog.Warnf("Failed to cache caption: %v", err)
			}
		}
		if w.deps.Sink != nil {
			if err := w.deps.Sink.Write(ctx, *result.Content); err != nil {
				// Export failures are reported, never fatal to the item.
				itemLog.Warnf("Export sink write failed: %v", err)
				w.deps.Errors.Add("export "+item.ID, err)
			}
		}
		w.recordItem(item.ID, models.ItemStateSuccess)
	case models.FetchSkip:
		itemLog.WithField("reason", result.SkipReason).Debug("Item skipped")
		w.recordItem(item.ID, models.ItemStateSkipped)
	case models.FetchFail:
		cls := apperrors.Classify(result.Err)
		itemLog.WithField("category", string(cls.Category)).Warnf("Item failed: %v", result.Err)
		w.deps.Errors.Add("item "+item.ID, result.Err)
		w.mu.Lock()
		w.progress.ErrorCount++
		w.mu.Unlock()
		decision := progress.Emit(w.deps.Callback, progress.Event{
			Kind: progress.EventChannelError, ChannelID: item.ChannelID, ItemID: item.ID,
			Err: result.Err, Suggested: apperrors.RecoveryActionFor(cls.Category),
		})
		// RecoverySkip retires the item for good; anything else leaves it
		// failed and eligible for a later run.
		if decision == models.RecoverySkip {
			w.recordItem(item.ID, models.ItemStateSkipped)
		} else {
			w.recordItem(item.ID, models.ItemStateFailed)
		}
	}
}

// fetchOne runs the cache check, quota debit, and guarded provider fetch for
// one item.
func (w *Worker) fetchOne(ctx context.Context, item models.ItemRef, itemLog *logrus.Entry) models.FetchResult {
	// Cache hit costs no quota.
	if w.deps.Cache != nil {
		cached, err := w.deps.Cache.Get(item.ID)
		if err != nil {
			itemLog.Warnf("Cache read failed, fetching from provider: %v", err)
		} else if cached != nil {
			itemLog.Debug("Caption served from cache")
			return models.FetchOKResult(cached)
		}
	}

	if !w.deps.Quota.ConsumeQuota(quota.OpCaptionFetch, 0) {
		return models.FetchFailResult(fmt.Errorf("fetching caption for %s: %w", item.ID, apperrors.ErrQuotaExceeded))
	}

	cb := w.deps.Breakers.Get(breakerCaptions)
	content, err := retry.DoValue(ctx, w.itemRetry(), "fetch_caption", func(ctx context.Context) (*models.Content, error) {
		if err := w.deps.Limiter.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		var c *models.Content
		err := cb.Execute(func() error {
			var ferr error
			c, ferr = w.deps.Content.Fetch(ctx, item.ID, w.opts.Language)
			return ferr
		})
		return c, err
	})
	if err != nil {
		return models.FetchFailResult(err)
	}
	if content == nil {
		return models.FetchSkipResult("no captions available")
	}
	return models.FetchOKResult(content)
}

// itemRetry clones the shared retry executor with the category routing
// policy applied. Retryable categories get the full budget, unknown errors
// exactly one extra attempt, everything else fails fast. Quota exhaustion
// and an open breaker are never retried inline.
func (w *Worker) itemRetry() *retry.Executor {
	e := *w.deps.Retry
	unknownAttempts := 0
	e.RetryIf = func(err error) bool {
		if errors.Is(err, breaker.ErrBreakerOpen) || errors.Is(err, apperrors.ErrQuotaExceeded) {
			return false
		}
		cls := apperrors.Classify(err)
		if cls.Retryable {
			return true
		}
		if cls.Category == apperrors.CategoryUnknown {
			unknownAttempts++
			return unknownAttempts <= 1
		}
		return false
	}
	return &e
}

// recordItem is the single fan-in point for item outcomes.
func (w *Worker) recordItem(itemID string, state models.ItemState) {
	w.mu.Lock()
	w.progress.RecordItem(itemID, state)
	snapshot := *w.progress
	w.mu.Unlock()

	progress.Emit(w.deps.Callback, progress.Event{
		Kind:      progress.EventItemProcessed,
		ChannelID: snapshot.ChannelID,
		ItemID:    itemID,
		State:     state,
		Progress:  &snapshot,
	})
}
