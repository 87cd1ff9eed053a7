package models

// ChannelStatus represents the processing status of a channel
type ChannelStatus string

const (
	ChannelStatusPending    ChannelStatus = "pending"    // Channel queued but not started
	ChannelStatusProcessing ChannelStatus = "processing" // Channel currently being crawled
	ChannelStatusCompleted  ChannelStatus = "completed"  // All items processed, zero failures
	ChannelStatusFailed     ChannelStatus = "failed"     // Channel failed before any item was processed
	ChannelStatusPartial    ChannelStatus = "partial"    // Finished with at least one failed item
)

// String implements fmt.Stringer for logging
func (s ChannelStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s ChannelStatus) IsValid() bool {
	switch s {
	case ChannelStatusPending, ChannelStatusProcessing, ChannelStatusCompleted, ChannelStatusFailed, ChannelStatusPartial:
		return true
	}
	return false
}

// IsTerminal returns true once a channel can no longer change state
func (s ChannelStatus) IsTerminal() bool {
	switch s {
	case ChannelStatusCompleted, ChannelStatusFailed, ChannelStatusPartial:
		return true
	}
	return false
}

// ItemState represents the terminal state of a single item within a channel
type ItemState string

const (
	ItemStateSuccess ItemState = "success" // Caption content fetched (or found in cache)
	ItemStateFailed  ItemState = "failed"  // Fetch failed after retry/breaker policy
	ItemStateSkipped ItemState = "skipped" // Filtered locally without consuming quota
)

// String implements fmt.Stringer for logging
func (s ItemState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the state is a known value
func (s ItemState) IsValid() bool {
	switch s {
	case ItemStateSuccess, ItemStateFailed, ItemStateSkipped:
		return true
	}
	return false
}

// RecoveryAction is the suggested reaction to a channel-level error,
// returned to the orchestrator through the progress callback.
type RecoveryAction string

const (
	RecoveryRetry      RecoveryAction = "retry"       // Transient; safe to retry immediately
	RecoveryRetryLater RecoveryAction = "retry_later" // Blocked on quota/rate window; retry after reset
	RecoverySkip       RecoveryAction = "skip"        // Terminal for this channel or item
)

// String implements fmt.Stringer for logging
func (a RecoveryAction) String() string {
	if a == "" {
		return "unset"
	}
	return string(a)
}
