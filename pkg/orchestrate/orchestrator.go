// Package orchestrate coordinates a batch crawl across many channels with
// shared quota, rate, and breaker policy.
package orchestrate

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"caption-crawler/pkg/apperrors"
	"caption-crawler/pkg/breaker"
	"caption-crawler/pkg/config"
	"caption-crawler/pkg/crawl"
	"caption-crawler/pkg/models"
	"caption-crawler/pkg/progress"
	"caption-crawler/pkg/quota"
	"caption-crawler/pkg/ratelimit"
	"caption-crawler/pkg/retry"
	"caption-crawler/pkg/sources"
	"caption-crawler/pkg/storage"
)

// Sources bundles the provider collaborators handed to the orchestrator.
type Sources struct {
	Meta    sources.ChannelMetadataSource
	List    sources.ItemListSource
	Content sources.ItemContentSource
	Sink    sources.ExportSink // optional
}

// Orchestrator manages parallel crawling of multiple channels.
type Orchestrator struct {
	cfg      *config.AppConfig
	channels []string
	srcs     Sources
	store    *progress.Store
	cache    storage.CaptionStore // optional
	callback progress.Callback    // optional
	log      *logrus.Entry

	// Shared resources
	quotaTracker *quota.Tracker
	limiter      *ratelimit.Limiter
	retryExec    *retry.Executor
	breakers     *breaker.Registry
	aggregator   *apperrors.Aggregator
	channelSem   *semaphore.Weighted
	itemSem      *semaphore.Weighted

	// DateFrom/DateTo bound item listings by publish date when set.
	DateFrom time.Time
	DateTo   time.Time

	finalizeOnce sync.Once
	result       *models.BatchResult
	resultMu     sync.Mutex
}

// NewOrchestrator wires the shared policy machinery from config. The
// progress store must already be loaded.
func NewOrchestrator(cfg *config.AppConfig, channels []string, srcs Sources, store *progress.Store, cache storage.CaptionStore, callback progress.Callback, log *logrus.Entry) *Orchestrator {
	olog := log.WithField("component", "orchestrator")
	return &Orchestrator{
		cfg:          cfg,
		channels:     channels,
		srcs:         srcs,
		store:        store,
		cache:        cache,
		callback:     callback,
		log:          olog,
		quotaTracker: quota.NewTracker(cfg.Quota.DailyLimit, cfg.Quota.Costs, olog),
		limiter:      ratelimit.New(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst),
		retryExec:    retry.NewExecutor(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.Backoff, cfg.Retry.MaxDelay, olog),
		breakers: breaker.NewRegistry(breaker.Settings{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		}, olog),
		aggregator: apperrors.NewAggregator(),
		channelSem: semaphore.NewWeighted(int64(cfg.Batch.ChannelConcurrency)),
		itemSem:    semaphore.NewWeighted(int64(cfg.Batch.ItemConcurrency)),
	}
}

// QuotaTracker exposes the shared tracker for preflight reporting.
func (o *Orchestrator) QuotaTracker() *quota.Tracker { return o.quotaTracker }

// Run crawls all channels and returns the aggregated result. On context
// cancellation it flushes the progress store best-effort and returns the
// context error alongside the partial result.
func (o *Orchestrator) Run(ctx context.Context) (*models.BatchResult, error) {
	startTime := time.Now()
	runID := uuid.NewString()
	o.result = models.NewBatchResult(runID, len(o.channels))
	runLog := o.log.WithField("run_id", runID)

	o.preflight(runLog)

	// Channels completed in a previous run are skipped wholesale.
	pending := make([]string, 0, len(o.channels))
	for _, ch := range o.channels {
		if o.store.IsProcessed(ch) {
			runLog.WithField("channel", ch).Info("Channel already processed, skipping")
			o.result.SkippedChannels = append(o.result.SkippedChannels, ch)
			continue
		}
		pending = append(pending, ch)
	}
	runLog.Infof("Starting batch crawl of %d channels (%d skipped as already processed)", len(pending), len(o.result.SkippedChannels))

	var wg sync.WaitGroup
	for _, channelRef := range pending {
		if err := o.channelSem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			defer o.channelSem.Release(1)
			o.crawlChannel(ctx, ref, runLog)
		}(channelRef)
	}
	wg.Wait()

	o.finalize(runLog)

	if o.srcs.Sink != nil {
		if err := o.srcs.Sink.WriteSummary(ctx, *o.result); err != nil {
			runLog.Warnf("Failed to write run summary to sink: %v", err)
		}
	}
	if err := o.store.Save(); err != nil {
		runLog.Errorf("Failed to persist progress: %v", err)
	}
	o.logSummary(runLog, time.Since(startTime))

	if ctx.Err() != nil {
		return o.result, ctx.Err()
	}
	return o.result, nil
}

// preflight estimates whether the remaining quota plausibly covers the run.
// It only warns; the run proceeds regardless.
func (o *Orchestrator) preflight(runLog *logrus.Entry) {
	remaining := o.quotaTracker.Remaining()
	// Floor estimate: every channel needs at least a lookup and a listing,
	// priced from the configured cost table.
	perChannel := o.quotaTracker.CostOf(quota.OpChannelLookup) + o.quotaTracker.CostOf(quota.OpItemList)
	minimum := len(o.channels) * perChannel
	if remaining < minimum {
		runLog.Warnf("Remaining quota (%d) is below the minimum needed for %d channels (%d); some channels will fail", remaining, len(o.channels), minimum)
	} else {
		runLog.Infof("Quota preflight: %d units remaining, ~%d caption fetches possible", remaining, o.quotaTracker.EstimateOperations(quota.OpCaptionFetch))
	}
}

// crawlChannel runs one channel worker with panic isolation so a single
// channel can never take down the batch.
func (o *Orchestrator) crawlChannel(ctx context.Context, channelRef string, runLog *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			runLog.WithFields(logrus.Fields{
				"channel":     channelRef,
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in channel goroutine")
			failed := models.NewChannelProgress(channelRef)
			failed.Status = models.ChannelStatusFailed
			failed.ErrorMessage = fmt.Sprintf("panic: %v", r)
			o.recordChannel(channelRef, failed)
		}
	}()

	worker := crawl.NewWorker(channelRef, crawl.Deps{
		Meta:     o.srcs.Meta,
		List:     o.srcs.List,
		Content:  o.srcs.Content,
		Sink:     o.srcs.Sink,
		Quota:    o.quotaTracker,
		Limiter:  o.limiter,
		Retry:    o.retryExec,
		Breakers: o.breakers,
		Cache:    o.cache,
		Errors:   o.aggregator,
		ItemSem:  o.itemSem,
		Callback: o.callback,
	}, crawl.Options{
		BatchSize:     o.cfg.Batch.BatchSize,
		Language:      o.cfg.Language,
		DateFrom:      o.DateFrom,
		DateTo:        o.DateTo,
		MemoryLimitMB: o.cfg.Batch.MemoryLimitMB,
	}, runLog)

	prog, err := worker.Run(ctx)
	if err != nil && ctx.Err() != nil {
		// Interrupted channels stay non-terminal and are fully reprocessed
		// on resume.
		o.store.SetChannelProgress(*prog)
		return
	}
	o.recordChannel(channelRef, prog)
}

// recordChannel folds one finished channel into the batch result and the
// progress store.
func (o *Orchestrator) recordChannel(channelRef string, prog *models.ChannelProgress) {
	o.resultMu.Lock()
	o.result.AddChannelResult(channelRef, prog)
	o.resultMu.Unlock()

	o.store.SetChannelProgress(*prog)
	if prog.Status == models.ChannelStatusCompleted || prog.Status == models.ChannelStatusPartial {
		o.store.MarkProcessed(channelRef)
	}
}

// finalize stamps the result exactly once with timings, quota usage, and the
// aggregated error view.
func (o *Orchestrator) finalize(runLog *logrus.Entry) {
	o.finalizeOnce.Do(func() {
		o.result.Finalize()
		o.result.QuotaUsage = o.quotaTracker.UsageSummary()
		o.result.ErrorCategories = o.aggregator.CategoryCounts()
		if o.aggregator.Len() > 0 {
			o.result.ErrorSummary = o.aggregator.UserSummary()
		}
		runLog.Debug("Batch result finalized")
	})
}

// logSummary prints the end-of-run banner.
func (o *Orchestrator) logSummary(runLog *logrus.Entry, totalDuration time.Duration) {
	r := o.result
	runLog.Info("============================================")
	runLog.Infof("Batch crawl completed in %v", totalDuration)
	runLog.Infof("Channels: %d successful, %d partial, %d failed, %d skipped",
		len(r.SuccessfulChannels), len(r.PartialChannels), len(r.FailedChannels), len(r.SkippedChannels))
	runLog.Infof("Items: %d processed (%d successful, %d failed, %d skipped), %.1f%% success",
		r.TotalItemsProcessed, r.TotalItemsSuccessful, r.TotalItemsFailed, r.TotalItemsSkipped, r.OverallSuccessRate())
	if used, ok := r.QuotaUsage["used"].(int); ok {
		runLog.Infof("Quota: %d/%v units used", used, r.QuotaUsage["limit"])
	}
	if r.ErrorSummary != "" {
		runLog.Infof("Errors: %s", r.ErrorSummary)
	}
	for ch, msg := range r.FailedChannels {
		runLog.Infof("  FAILED %s: %s", ch, msg)
	}
	runLog.Info("============================================")
}
