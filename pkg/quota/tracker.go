package quota

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Known operation kinds and their default unit costs. Channel lookups, item
// listing, and caption fetches cost one unit each; provider search endpoints
// are far more expensive.
const (
	OpChannelLookup = "channel_lookup"
	OpItemList      = "item_list"
	OpCaptionFetch  = "caption_fetch"
	OpSearch        = "search"
)

// DefaultCosts is the per-operation unit cost table used when no override is
// configured.
var DefaultCosts = map[string]int{
	OpChannelLookup: 1,
	OpItemList:      1,
	OpCaptionFetch:  1,
	OpSearch:        100,
}

// resetOffset shifts the daily reset boundary to the provider's clock
// (midnight Pacific, approximated as UTC-8).
const resetOffset = -8 * time.Hour

// maxWaitChunk bounds each sleep inside WaitUntilAvailable so cancellation
// and quota resets are observed promptly.
const maxWaitChunk = 5 * time.Minute

// Tracker enforces a shared, periodically-resetting operation budget. One
// instance is shared by every worker in a run; a single mutex guards all
// mutation and the reset is performed transactionally inside it.
type Tracker struct {
	mu         sync.Mutex
	dailyLimit int
	used       int
	resetAt    time.Time
	costs      map[string]int
	histogram  map[string]int
	log        *logrus.Entry

	now func() time.Time // injectable clock for tests
}

// NewTracker creates a tracker with the given daily limit. A nil or empty
// cost table falls back to DefaultCosts.
func NewTracker(dailyLimit int, costs map[string]int, log *logrus.Entry) *Tracker {
	if len(costs) == 0 {
		costs = DefaultCosts
	}
	t := &Tracker{
		dailyLimit: dailyLimit,
		costs:      costs,
		histogram:  make(map[string]int),
		log:        log,
		now:        time.Now,
	}
	t.resetAt = t.nextResetTime()
	return t
}

// nextResetTime computes the next daily boundary at the provider offset.
func (t *Tracker) nextResetTime() time.Time {
	shifted := t.now().UTC().Add(resetOffset)
	next := time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, 1).
		Add(-resetOffset)
	return next
}

// maybeResetLocked resets the counters if the boundary has passed. Caller
// must hold the lock; the used counter and histogram reset together.
func (t *Tracker) maybeResetLocked() {
	if t.now().UTC().Before(t.resetAt) {
		return
	}
	t.log.Infof("Resetting quota. Previous usage: %d/%d", t.used, t.dailyLimit)
	t.used = 0
	t.histogram = make(map[string]int)
	t.resetAt = t.nextResetTime()
}

// costOf returns the unit cost for an operation; explicit cost wins, unknown
// operations default to 1.
func (t *Tracker) costOf(op string, cost int) int {
	if cost > 0 {
		return cost
	}
	if c, ok := t.costs[op]; ok {
		return c
	}
	return 1
}

// CheckQuota reports whether the operation could run within the remaining
// budget. Read-only apart from a pending reset; pass cost 0 to use the table.
func (t *Tracker) CheckQuota(op string, cost int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeResetLocked()

	c := t.costOf(op, cost)
	if t.used+c > t.dailyLimit {
		t.log.WithFields(logrus.Fields{
			"used": t.used, "requested": c, "limit": t.dailyLimit, "operation": op,
		}).Warn("Quota limit would be exceeded")
		return false
	}
	return true
}

// ConsumeQuota atomically checks and debits the budget. Returns false with
// no partial debit when the cost does not fit.
func (t *Tracker) ConsumeQuota(op string, cost int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeResetLocked()

	c := t.costOf(op, cost)
	if t.used+c > t.dailyLimit {
		return false
	}
	t.used += c
	t.histogram[op]++

	if t.used%1000 == 0 {
		t.log.Infof("Quota usage: %d/%d (%.1f%%)", t.used, t.dailyLimit, t.usagePercentLocked())
	}
	return true
}

// WaitUntilAvailable blocks until the operation fits the budget or ctx is
// cancelled. It polls in bounded increments so a reset boundary or
// cancellation is observed within maxWaitChunk.
func (t *Tracker) WaitUntilAvailable(ctx context.Context, op string, cost int) error {
	for {
		if t.CheckQuota(op, cost) {
			return nil
		}

		t.mu.Lock()
		untilReset := t.resetAt.Sub(t.now().UTC())
		t.mu.Unlock()

		wait := untilReset
		if wait > maxWaitChunk {
			wait = maxWaitChunk
		}
		if wait <= 0 {
			wait = time.Second
		}
		t.log.Infof("Quota exhausted for %q, waiting %v (reset in %v)", op, wait, untilReset)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Remaining returns the unused portion of the daily budget.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeResetLocked()
	if r := t.dailyLimit - t.used; r > 0 {
		return r
	}
	return 0
}

// CostOf returns the configured unit cost for an operation. Unknown
// operations cost 1.
func (t *Tracker) CostOf(op string) int {
	return t.costOf(op, 0)
}

// EstimateOperations returns how many operations of the given kind still fit.
func (t *Tracker) EstimateOperations(op string) int {
	c := t.costOf(op, 0)
	if c <= 0 {
		return 0
	}
	return t.Remaining() / c
}

func (t *Tracker) usagePercentLocked() float64 {
	if t.dailyLimit == 0 {
		return 0
	}
	return float64(t.used) / float64(t.dailyLimit) * 100
}

// UsageSummary returns a snapshot suitable for reports and persistence.
func (t *Tracker) UsageSummary() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeResetLocked()

	ops := make(map[string]int, len(t.histogram))
	for k, v := range t.histogram {
		ops[k] = v
	}
	remaining := t.dailyLimit - t.used
	if remaining < 0 {
		remaining = 0
	}
	return map[string]any{
		"used":       t.used,
		"limit":      t.dailyLimit,
		"remaining":  remaining,
		"percentage": t.usagePercentLocked(),
		"reset_time": t.resetAt.Format(time.RFC3339),
		"operations": ops,
	}
}
