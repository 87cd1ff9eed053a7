package apperrors

import (
	"fmt"
	"sync"
	"time"
)

// ErrorRecord is one classified failure with its origin context.
type ErrorRecord struct {
	Context   string    `json:"context"`
	Category  Category  `json:"category"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary aggregates error counts across a batch run.
type Summary struct {
	TotalErrors      int              `json:"total_errors"`
	Categories       map[Category]int `json:"categories"`
	DominantCategory Category         `json:"dominant_category,omitempty"`
	DominantCount    int              `json:"dominant_count,omitempty"`
	Percentages      map[Category]float64 `json:"percentages,omitempty"`
}

// Aggregator collects classified errors from concurrent workers. It is safe
// for concurrent use; records are append-only.
type Aggregator struct {
	mu      sync.Mutex
	records []ErrorRecord
	counts  map[Category]int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{counts: make(map[Category]int)}
}

// Add classifies err and appends a record tagged with the given context key
// (typically "channelID" or "channelID:itemID").
func (a *Aggregator) Add(context string, err error) {
	if err == nil {
		return
	}
	cls := Classify(err)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, ErrorRecord{
		Context:   context,
		Category:  cls.Category,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	})
	a.counts[cls.Category]++
}

// Len returns the number of recorded errors.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Records returns a copy of all recorded errors in insertion order.
func (a *Aggregator) Records() []ErrorRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ErrorRecord, len(a.records))
	copy(out, a.records)
	return out
}

// CategoryCounts returns a copy of the per-category counters.
func (a *Aggregator) CategoryCounts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.counts))
	for c, n := range a.counts {
		out[string(c)] = n
	}
	return out
}

// Summary returns totals, the dominant category, and per-category percentages.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		TotalErrors: len(a.records),
		Categories:  make(map[Category]int, len(a.counts)),
	}
	if s.TotalErrors == 0 {
		return s
	}

	s.Percentages = make(map[Category]float64, len(a.counts))
	for c, n := range a.counts {
		s.Categories[c] = n
		s.Percentages[c] = float64(n) / float64(s.TotalErrors) * 100
		if n > s.DominantCount {
			s.DominantCategory = c
			s.DominantCount = n
		}
	}
	return s
}

// UserSummary renders a one-sentence human-readable summary combining the
// dominant category with its recovery hint.
func (a *Aggregator) UserSummary() string {
	s := a.Summary()
	if s.TotalErrors == 0 {
		return "No errors occurred."
	}
	return fmt.Sprintf("%d error(s), most commonly %s (%d occurrence(s)); %s.",
		s.TotalErrors, s.DominantCategory, s.DominantCount, hints[s.DominantCategory])
}
