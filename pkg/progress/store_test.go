package progress

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-crawler/pkg/models"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestLoadMissingFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	s := NewStore(path, testLogger())

	require.NoError(t, s.Load())
	assert.Equal(t, 0, s.ProcessedCount())
	assert.False(t, s.IsProcessed("UC123"))
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "progress.json")
	s := NewStore(path, testLogger())
	require.NoError(t, s.Load())

	s.MarkProcessed("UC111")
	s.MarkProcessed("UC222")
	s.MarkProcessed("UC111") // idempotent

	p := models.NewChannelProgress("UC333")
	p.TotalItems = 10
	p.RecordItem("vid1", models.ItemStateSuccess)
	p.RecordItem("vid2", models.ItemStateFailed)
	s.SetChannelProgress(*p)

	require.NoError(t, s.Save())

	reloaded := NewStore(path, testLogger())
	require.NoError(t, reloaded.Load())

	assert.Equal(t, 2, reloaded.ProcessedCount())
	assert.True(t, reloaded.IsProcessed("UC111"))
	assert.True(t, reloaded.IsProcessed("UC222"))
	assert.False(t, reloaded.IsProcessed("UC333"))

	got, ok := reloaded.GetChannelProgress("UC333")
	require.True(t, ok)
	assert.Equal(t, 2, got.ProcessedItems)
	assert.Equal(t, 1, got.SuccessfulItems)
	assert.Equal(t, 1, got.FailedItems)
	assert.Equal(t, "vid2", got.LastItemID)
}

func TestLoadCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := NewStore(path, testLogger())
	require.NoError(t, s.Load())
	assert.Equal(t, 0, s.ProcessedCount())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "progress.json"), testLogger())
	require.NoError(t, s.Load())
	s.MarkProcessed("UC1")

	snap := s.Snapshot()
	snap.ProcessedChannels[0] = "mutated"
	snap.ChannelProgress["UC9"] = models.ChannelProgress{ChannelID: "UC9"}

	assert.True(t, s.IsProcessed("UC1"))
	_, ok := s.GetChannelProgress("UC9")
	assert.False(t, ok)
}

func TestEmitWithoutCallbackDefaultsToRetry(t *testing.T) {
	action := Emit(nil, Event{Kind: EventChannelError, ChannelID: "UC1"})
	assert.Equal(t, models.RecoveryRetry, action)
}

func TestEmitDeliversEventAndReturnsDecision(t *testing.T) {
	var seen Event
	cb := Callback(func(ev Event) models.RecoveryAction {
		seen = ev
		return models.RecoverySkip
	})

	action := Emit(cb, Event{Kind: EventItemProcessed, ChannelID: "UC1", ItemID: "vid1", State: models.ItemStateSuccess})
	assert.Equal(t, models.RecoverySkip, action)
	assert.Equal(t, EventItemProcessed, seen.Kind)
	assert.Equal(t, "vid1", seen.ItemID)
	assert.False(t, seen.Timestamp.IsZero())
}
