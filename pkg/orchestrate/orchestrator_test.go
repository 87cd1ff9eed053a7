package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-crawler/pkg/config"
	"caption-crawler/pkg/models"
	"caption-crawler/pkg/progress"
	"caption-crawler/pkg/quota"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeProvider serves a fixed universe of channels. Channel IDs double as
// references.
type fakeProvider struct {
	mu sync.Mutex

	channels map[string]models.ChannelMetadata
	items    map[string][]models.ItemRef
	// failFetch marks item IDs whose caption fetch always fails.
	failFetch map[string]error

	summaries []models.BatchResult
	written   []models.Content
}

func (f *fakeProvider) Resolve(ctx context.Context, ref string) (models.ChannelMetadata, error) {
	meta, ok := f.channels[ref]
	if !ok {
		return models.ChannelMetadata{}, errors.New("channel not found")
	}
	return meta, nil
}

func (f *fakeProvider) List(ctx context.Context, channelID string, from, to time.Time) ([]models.ItemRef, error) {
	return f.items[channelID], nil
}

func (f *fakeProvider) Fetch(ctx context.Context, itemID, language string) (*models.Content, error) {
	if err, ok := f.failFetch[itemID]; ok {
		return nil, err
	}
	return &models.Content{ItemID: itemID, Language: language, Text: "captions"}, nil
}

func (f *fakeProvider) Write(ctx context.Context, content models.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, content)
	return nil
}

func (f *fakeProvider) WriteSummary(ctx context.Context, result models.BatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, result)
	return nil
}

func channelItems(channelID string, n int) []models.ItemRef {
	items := make([]models.ItemRef, n)
	for i := range items {
		items[i] = models.ItemRef{ID: fmt.Sprintf("%s-vid%d", channelID, i+1), ChannelID: channelID}
	}
	return items
}

func testConfig(t *testing.T, dailyLimit int) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		Batch: config.BatchConfig{
			ChannelConcurrency: 2,
			ItemConcurrency:    4,
			BatchSize:          10,
			ProgressFile:       filepath.Join(t.TempDir(), "progress.json"),
		},
		Quota:   config.QuotaConfig{DailyLimit: dailyLimit},
		Retry:   config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Backoff: 2, MaxDelay: 5 * time.Millisecond},
		Breaker: config.BreakerConfig{FailureThreshold: 100, RecoveryTimeout: time.Minute},
		Rate:    config.RateConfig{RequestsPerSecond: 1000, Burst: 100},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

func loadedStore(t *testing.T, cfg *config.AppConfig) *progress.Store {
	t.Helper()
	store := progress.NewStore(cfg.Batch.ProgressFile, testLogger())
	require.NoError(t, store.Load())
	return store
}

func TestRunMixedChannelOutcomes(t *testing.T) {
	p := &fakeProvider{
		channels: map[string]models.ChannelMetadata{
			"UC1": {ID: "UC1", Title: "One"},
			"UC2": {ID: "UC2", Title: "Two"},
			"UC3": {ID: "UC3", Title: "Three"},
			"UC4": {ID: "UC4", Title: "Four"},
		},
		items: map[string][]models.ItemRef{
			"UC1": channelItems("UC1", 3),
			"UC2": channelItems("UC2", 2),
			"UC3": channelItems("UC3", 4),
			"UC4": channelItems("UC4", 2),
		},
		failFetch: map[string]error{
			"UC3-vid2": errors.New("subtitles are disabled"),
		},
	}

	cfg := testConfig(t, 10000)
	store := loadedStore(t, cfg)
	o := NewOrchestrator(cfg, []string{"UC1", "UC2", "UC3", "UC4", "UCmissing"}, Sources{Meta: p, List: p, Content: p, Sink: p}, store, nil, nil, testLogger())

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.SuccessfulChannels, 3)
	assert.Contains(t, result.PartialChannels, "UC3")
	assert.Contains(t, result.FailedChannels, "UCmissing")

	assert.Equal(t, 11, result.TotalItemsProcessed)
	assert.Equal(t, 10, result.TotalItemsSuccessful)
	assert.Equal(t, 1, result.TotalItemsFailed)
	assert.Equal(t, result.TotalItemsProcessed,
		result.TotalItemsSuccessful+result.TotalItemsFailed+result.TotalItemsSkipped)

	// Finalized exactly once with the derived fields populated.
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.CompletedAt.IsZero())
	assert.NotNil(t, result.QuotaUsage)
	assert.NotEmpty(t, result.ErrorCategories)

	// Every successful item went through the sink.
	p.mu.Lock()
	assert.Len(t, p.written, 10)
	require.Len(t, p.summaries, 1)
	assert.Equal(t, result.RunID, p.summaries[0].RunID)
	p.mu.Unlock()
}

func TestRunSkipsProcessedChannels(t *testing.T) {
	p := &fakeProvider{
		channels: map[string]models.ChannelMetadata{
			"UC1": {ID: "UC1"},
			"UC2": {ID: "UC2"},
		},
		items: map[string][]models.ItemRef{
			"UC1": channelItems("UC1", 2),
			"UC2": channelItems("UC2", 2),
		},
	}

	cfg := testConfig(t, 10000)
	store := loadedStore(t, cfg)
	store.MarkProcessed("UC1")

	o := NewOrchestrator(cfg, []string{"UC1", "UC2"}, Sources{Meta: p, List: p, Content: p}, store, nil, nil, testLogger())
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"UC1"}, result.SkippedChannels)
	assert.Equal(t, []string{"UC2"}, result.SuccessfulChannels)
	assert.Equal(t, 2, result.TotalItemsProcessed)
}

func TestRunPersistsProgressForResume(t *testing.T) {
	p := &fakeProvider{
		channels: map[string]models.ChannelMetadata{"UC1": {ID: "UC1"}},
		items:    map[string][]models.ItemRef{"UC1": channelItems("UC1", 3)},
	}

	cfg := testConfig(t, 10000)
	store := loadedStore(t, cfg)
	o := NewOrchestrator(cfg, []string{"UC1"}, Sources{Meta: p, List: p, Content: p}, store, nil, nil, testLogger())
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	// A fresh store reading the same file sees the completed channel.
	reloaded := progress.NewStore(cfg.Batch.ProgressFile, testLogger())
	require.NoError(t, reloaded.Load())
	assert.True(t, reloaded.IsProcessed("UC1"))

	prog, ok := reloaded.GetChannelProgress("UC1")
	require.True(t, ok)
	assert.Equal(t, models.ChannelStatusCompleted, prog.Status)
	assert.Equal(t, 3, prog.SuccessfulItems)
}

func TestRunQuotaExhaustionProducesRetryLaterFailures(t *testing.T) {
	p := &fakeProvider{
		channels: map[string]models.ChannelMetadata{"UC1": {ID: "UC1"}},
		items:    map[string][]models.ItemRef{"UC1": channelItems("UC1", 5)},
	}

	// lookup + list + 2 fetches fit; 3 items starve.
	cfg := testConfig(t, 4)
	store := loadedStore(t, cfg)
	o := NewOrchestrator(cfg, []string{"UC1"}, Sources{Meta: p, List: p, Content: p}, store, nil, nil, testLogger())

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, result.PartialChannels, "UC1")
	assert.Equal(t, 2, result.TotalItemsSuccessful)
	assert.Equal(t, 3, result.TotalItemsFailed)
	assert.Equal(t, 3, result.ErrorCategories["quota_exceeded"])

	used, ok := result.QuotaUsage["used"].(int)
	require.True(t, ok)
	assert.Equal(t, 4, used)
}

func TestPreflightWarnsUsingConfiguredCosts(t *testing.T) {
	p := &fakeProvider{
		channels: map[string]models.ChannelMetadata{"UC1": {ID: "UC1"}, "UC2": {ID: "UC2"}},
		items:    map[string][]models.ItemRef{},
	}

	cfg := testConfig(t, 100)
	cfg.Quota.Costs = map[string]int{
		quota.OpChannelLookup: 40,
		quota.OpItemList:      40,
		quota.OpCaptionFetch:  1,
	}
	store := loadedStore(t, cfg)

	logger, hook := logtest.NewNullLogger()
	o := NewOrchestrator(cfg, []string{"UC1", "UC2"}, Sources{Meta: p, List: p, Content: p}, store, nil, nil, logrus.NewEntry(logger))
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	// Two channels at 40+40 units each need 160 of the 100 remaining; the
	// default unit pricing would have estimated only 4.
	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "below the minimum") {
			warned = true
			assert.Contains(t, e.Message, "(160)")
		}
	}
	assert.True(t, warned, "expected a preflight warning priced from the cost table")
}

func TestRunHonorsCancellation(t *testing.T) {
	p := &fakeProvider{
		channels: map[string]models.ChannelMetadata{"UC1": {ID: "UC1"}},
		items:    map[string][]models.ItemRef{"UC1": channelItems("UC1", 100)},
	}

	cfg := testConfig(t, 10000)
	cfg.Batch.BatchSize = 1
	store := loadedStore(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	callback := func(ev progress.Event) models.RecoveryAction {
		if ev.Kind == progress.EventItemProcessed {
			cancel()
		}
		return models.RecoveryRetry
	}

	o := NewOrchestrator(cfg, []string{"UC1"}, Sources{Meta: p, List: p, Content: p}, store, nil, callback, testLogger())
	result, err := o.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.False(t, result.CompletedAt.IsZero())

	// Interrupted channel is not checkpointed as processed.
	assert.False(t, store.IsProcessed("UC1"))
	prog, ok := store.GetChannelProgress("UC1")
	require.True(t, ok)
	assert.Equal(t, models.ChannelStatusProcessing, prog.Status)
}
