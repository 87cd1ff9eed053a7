package models

// ProcessingQueue is a per-channel batched cursor over an ordered item-id
// list. It is scoped to one channel's lifetime and accessed only by the
// channel's worker, so it carries no lock.
type ProcessingQueue struct {
	ChannelID string
	ItemIDs   []string
	BatchSize int

	cursor int
}

// NewProcessingQueue builds a queue over itemIDs in their original order.
// A batchSize below 1 is coerced to 1.
func NewProcessingQueue(channelID string, itemIDs []string, batchSize int) *ProcessingQueue {
	if batchSize < 1 {
		batchSize = 1
	}
	return &ProcessingQueue{
		ChannelID: channelID,
		ItemIDs:   itemIDs,
		BatchSize: batchSize,
	}
}

// NextBatch returns the next slice of up to BatchSize item ids and advances
// the cursor by the actual slice length. The last batch may be shorter; an
// exhausted queue returns nil.
func (q *ProcessingQueue) NextBatch() []string {
	if q.cursor >= len(q.ItemIDs) {
		return nil
	}
	end := q.cursor + q.BatchSize
	if end > len(q.ItemIDs) {
		end = len(q.ItemIDs)
	}
	batch := q.ItemIDs[q.cursor:end]
	q.cursor = end
	return batch
}

// IsComplete reports whether the cursor has reached the end of the list.
func (q *ProcessingQueue) IsComplete() bool {
	return q.cursor >= len(q.ItemIDs)
}

// Remaining returns the number of items not yet handed out.
func (q *ProcessingQueue) Remaining() int {
	if q.cursor >= len(q.ItemIDs) {
		return 0
	}
	return len(q.ItemIDs) - q.cursor
}

// ProgressPercentage returns the cursor position as a percentage of the list.
func (q *ProcessingQueue) ProgressPercentage() float64 {
	if len(q.ItemIDs) == 0 {
		return 0
	}
	return float64(q.cursor) / float64(len(q.ItemIDs)) * 100
}
