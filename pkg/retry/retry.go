// Package retry provides bounded retry with exponential backoff for
// transient provider failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrRetriesExhausted wraps the final attempt's error once the budget is
// spent. Callers unwrap it with errors.Is/As to reach the underlying cause.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Executor runs operations with exponential backoff. The zero value is not
// usable; construct with NewExecutor so defaults apply.
type Executor struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     float64
	MaxDelay    time.Duration

	// RetryIf decides whether an error is worth another attempt. Nil means
	// retry everything.
	RetryIf func(error) bool

	log *logrus.Entry
}

// NewExecutor creates an executor with sane defaults for any zero field.
func NewExecutor(maxAttempts int, baseDelay time.Duration, backoff float64, maxDelay time.Duration, log *logrus.Entry) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if backoff < 1 {
		backoff = 2
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &Executor{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Backoff:     backoff,
		MaxDelay:    maxDelay,
		log:         log,
	}
}

// Do runs op until it succeeds, the attempt budget is spent, RetryIf rejects
// the error, or ctx is cancelled. Delays grow geometrically with a small
// jitter and are capped at MaxDelay.
func (e *Executor) Do(ctx context.Context, opName string, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, e, opName, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, e *Executor, opName string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := e.BaseDelay
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if e.RetryIf != nil && !e.RetryIf(err) {
			return zero, err
		}
		if attempt == e.MaxAttempts {
			break
		}

		wait := delay + time.Duration(rand.Int63n(int64(delay)/4+1))
		if e.log != nil {
			e.log.WithFields(logrus.Fields{
				"operation": opName,
				"attempt":   attempt,
				"max":       e.MaxAttempts,
				"wait":      wait.String(),
			}).Warnf("Operation failed, retrying: %v", err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}

		delay = time.Duration(float64(delay) * e.Backoff)
		if delay > e.MaxDelay {
			delay = e.MaxDelay
		}
	}

	return zero, fmt.Errorf("%s: %w after %d attempts: %w", opName, ErrRetriesExhausted, e.MaxAttempts, lastErr)
}
