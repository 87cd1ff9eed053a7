package apperrors

import (
	"context"
	"errors"
	"net"
	"strings"

	"caption-crawler/pkg/models"
)

// --- Sentinel Errors for Classification ---
var (
	ErrNetwork               = errors.New("network error")
	ErrTimeout               = errors.New("operation timed out")
	ErrRateLimited           = errors.New("rate limited by provider")
	ErrQuotaExceeded         = errors.New("daily quota exceeded")
	ErrNotFound              = errors.New("resource not found")
	ErrPermission            = errors.New("access denied")
	ErrValidation            = errors.New("validation error")
	ErrTranscriptUnavailable = errors.New("transcript not available")
)

// Category is the closed taxonomy of failure classes.
type Category string

const (
	CategoryNetwork               Category = "network"
	CategoryTimeout               Category = "timeout"
	CategoryRateLimit             Category = "rate_limit"
	CategoryQuotaExceeded         Category = "quota_exceeded"
	CategoryNotFound              Category = "not_found"
	CategoryPermission            Category = "permission"
	CategoryValidation            Category = "validation"
	CategoryTranscriptUnavailable Category = "transcript_unavailable"
	CategoryUnknown               Category = "unknown"
)

// String implements fmt.Stringer for logging
func (c Category) String() string { return string(c) }

// Classification is the result of classifying one error.
type Classification struct {
	Category  Category
	Retryable bool
	Hint      string
}

// hints are the recovery suggestions attached to each category, surfaced
// verbatim in user-facing summaries.
var hints = map[Category]string{
	CategoryNetwork:               "check your internet connection and try again",
	CategoryTimeout:               "the operation took too long; try again with fewer items",
	CategoryRateLimit:             "too many requests; wait a moment before trying again",
	CategoryQuotaExceeded:         "daily quota exhausted; try again after the quota reset",
	CategoryNotFound:              "verify the channel or item id",
	CategoryPermission:            "the content might be private or region-restricted",
	CategoryValidation:            "check the input values",
	CategoryTranscriptUnavailable: "this item might not have captions available",
	CategoryUnknown:               "try again, or inspect the logs for details",
}

// Classify maps an error to its category, retryability, and recovery hint.
// Sentinel errors win over message-pattern matching; unmatched errors are
// unknown and non-retryable.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryUnknown}
	}

	// Sentinel errors first
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return classification(CategoryQuotaExceeded, false)
	case errors.Is(err, ErrRateLimited):
		return classification(CategoryRateLimit, true)
	case errors.Is(err, ErrNotFound):
		return classification(CategoryNotFound, false)
	case errors.Is(err, ErrPermission):
		return classification(CategoryPermission, false)
	case errors.Is(err, ErrValidation):
		return classification(CategoryValidation, false)
	case errors.Is(err, ErrTranscriptUnavailable):
		return classification(CategoryTranscriptUnavailable, false)
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return classification(CategoryTimeout, true)
	case errors.Is(err, ErrNetwork):
		return classification(CategoryNetwork, true)
	}

	// Typed network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return classification(CategoryTimeout, true)
		}
		return classification(CategoryNetwork, true)
	}

	// Message-pattern fallback
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		return classification(CategoryQuotaExceeded, false)
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit"):
		return classification(CategoryRateLimit, true)
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return classification(CategoryNotFound, false)
	case strings.Contains(msg, "403") || strings.Contains(msg, "401") || strings.Contains(msg, "permission") || strings.Contains(msg, "forbidden"):
		return classification(CategoryPermission, false)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return classification(CategoryTimeout, true)
	case strings.Contains(msg, "no transcript") || strings.Contains(msg, "transcript") || strings.Contains(msg, "captions disabled"):
		return classification(CategoryTranscriptUnavailable, false)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "tls"):
		return classification(CategoryNetwork, true)
	}

	return classification(CategoryUnknown, false)
}

func classification(c Category, retryable bool) Classification {
	return Classification{Category: c, Retryable: retryable, Hint: hints[c]}
}

// RecoveryActionFor maps a category to the action suggested to callers.
// The mapping is exhaustive over the closed category set.
func RecoveryActionFor(c Category) models.RecoveryAction {
	switch c {
	case CategoryNetwork, CategoryTimeout, CategoryRateLimit, CategoryUnknown:
		return models.RecoveryRetry
	case CategoryQuotaExceeded:
		return models.RecoveryRetryLater
	case CategoryNotFound, CategoryPermission, CategoryValidation, CategoryTranscriptUnavailable:
		return models.RecoverySkip
	default:
		return models.RecoverySkip
	}
}
