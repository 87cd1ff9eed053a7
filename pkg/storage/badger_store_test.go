package storage

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-crawler/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleContent(itemID string) models.Content {
	return models.Content{
		ItemID:    itemID,
		Language:  "en",
		Text:      "hello from " + itemID,
		FetchedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestGetMissReturnsNilNil(t *testing.T) {
	store := newTestStore(t)

	content, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, content)
}

func TestPutThenGet(t *testing.T) {
	store := newTestStore(t)
	want := sampleContent("vid1")

	require.NoError(t, store.Put(want))

	got, err := store.Get("vid1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ItemID, got.ItemID)
	assert.Equal(t, want.Language, got.Language)
	assert.Equal(t, want.Text, got.Text)
}

func TestPutOverwrites(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(sampleContent("vid1")))

	updated := sampleContent("vid1")
	updated.Text = "updated text"
	require.NoError(t, store.Put(updated))

	got, err := store.Get("vid1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "updated text", got.Text)

	count, err := store.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHas(t *testing.T) {
	store := newTestStore(t)

	ok, err := store.Has("vid1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(sampleContent("vid1")))

	ok, err = store.Has("vid1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEntryCountSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	logger := testLogger()

	store1, err := NewBadgerStore(dir, logger)
	require.NoError(t, err)
	require.NoError(t, store1.Put(sampleContent("vid1")))
	require.NoError(t, store1.Put(sampleContent("vid2")))
	require.NoError(t, store1.Close())

	store2, err := NewBadgerStore(dir, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store2.Close() })

	count, err := store2.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := store2.Get("vid2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello from vid2", got.Text)
}

func TestCloseIsIdempotent(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
