package progress

import (
	"time"

	"caption-crawler/pkg/models"
)

// EventKind identifies a point in the channel lifecycle a callback can
// observe.
type EventKind string

const (
	EventChannelValidated EventKind = "channel_validated"
	EventChannelStart     EventKind = "channel_start"
	EventItemProcessed    EventKind = "item_processed"
	EventChannelComplete  EventKind = "channel_complete"
	EventChannelError     EventKind = "channel_error"
)

// Event is a progress notification delivered to a registered Callback. For
// EventChannelError, Suggested carries the recovery action derived from the
// error's category.
type Event struct {
	Kind      EventKind
	ChannelID string
	ItemID    string
	State     models.ItemState
	Progress  *models.ChannelProgress
	Err       error
	Suggested models.RecoveryAction
	Timestamp time.Time
}

// Callback observes events. For an EventChannelError raised by a single item,
// returning RecoverySkip records the item as skipped instead of failed; any
// other value leaves it failed and eligible for a later run. Channel-level
// errors are terminal regardless of the return value; other kinds ignore it.
type Callback func(Event) models.RecoveryAction

// Emit invokes cb with the event if cb is non-nil, returning the callback's
// recovery decision or RecoveryRetry when no callback is registered.
func Emit(cb Callback, ev Event) models.RecoveryAction {
	if cb == nil {
		return models.RecoveryRetry
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return cb(ev)
}
