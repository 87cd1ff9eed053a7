package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"caption-crawler/pkg/log"
	"caption-crawler/pkg/models"
)

const captionKeyPrefix = "caption:"

// BadgerStore implements CaptionStore on BadgerDB.
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // cached entry count, O(1) EntryCount
}

// NewBadgerStore opens (or creates) the caption cache at dbPath.
func NewBadgerStore(dbPath string, logger *logrus.Entry) (*BadgerStore, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", dbPath, err)
	}

	logger.Infof("Initializing caption cache at: %s", dbPath)

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}

	store := &BadgerStore{db: db, log: logger}

	count, err := store.countKeys()
	if err != nil {
		logger.Warnf("Failed to count existing cache entries: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		if count > 0 {
			logger.Infof("Caption cache holds %d entries", count)
		}
	}

	return store, nil
}

// countKeys performs a one-time full key scan during initialization.
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(captionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func captionKey(itemID string) []byte {
	return []byte(captionKeyPrefix + itemID)
}

// Get implements CaptionStore. A cache miss returns (nil, nil).
func (s *BadgerStore) Get(itemID string) (*models.Content, error) {
	if s.db == nil {
		return nil, errors.New("caption cache not initialized")
	}

	var content *models.Content
	key := captionKey(itemID)

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("failed getting caption key '%s': %w", string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			var decoded models.Content
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				s.log.Warnf("Failed to unmarshal cached caption for key '%s': %v. Treating as miss.", string(key), errJson)
				return nil
			}
			content = &decoded
			return nil
		})
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB View error in Get: %v", err)
		return nil, err
	}
	return content, nil
}

// Put implements CaptionStore.
func (s *BadgerStore) Put(content models.Content) error {
	if s.db == nil {
		return errors.New("caption cache not initialized")
	}
	key := captionKey(content.ItemID)

	data, errJson := json.Marshal(content)
	if errJson != nil {
		return fmt.Errorf("failed to marshal caption for key '%s': %w", string(key), errJson)
	}

	isNew := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, data))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in Put: %v", err)
		return fmt.Errorf("failed storing caption for key '%s': %w", string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// Has implements CaptionStore.
func (s *BadgerStore) Has(itemID string) (bool, error) {
	if s.db == nil {
		return false, errors.New("caption cache not initialized")
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, errGet := txn.Get(captionKey(itemID))
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		found = true
		return nil
	})
	return found, err
}

// EntryCount implements CaptionStore.
func (s *BadgerStore) EntryCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC implements CaptionStore. Runs value log GC on a ticker until the
// context is cancelled.
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("Caption cache GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for {
				// Rewrite value logs that are at least half reclaimable.
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("Caption cache GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping caption cache GC goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements CaptionStore.
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing caption cache: %v", err)
			return err
		}
		s.log.Info("Caption cache closed.")
	}
	return nil
}
