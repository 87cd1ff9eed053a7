package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"caption-crawler/pkg/models"
)

// RunState is the on-disk checkpoint for a batch run. Channels listed in
// ProcessedChannels are skipped entirely on resume.
type RunState struct {
	ProcessedChannels []string                          `json:"processed_channels"`
	ChannelProgress   map[string]models.ChannelProgress `json:"channel_progress"`
	UpdatedAt         time.Time                         `json:"timestamp"`
}

// Store persists run state as an indented JSON file. All methods are safe
// for concurrent use.
type Store struct {
	path  string
	state RunState
	mu    sync.RWMutex
	log   *logrus.Entry
}

// NewStore creates a store backed by the given file path. Call Load before
// first use.
func NewStore(path string, log *logrus.Entry) *Store {
	return &Store{
		path: path,
		state: RunState{
			ChannelProgress: make(map[string]models.ChannelProgress),
		},
		log: log,
	}
}

// Load reads the checkpoint from disk. A missing file starts fresh; a
// corrupt file is logged and discarded rather than aborting the run.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.state = RunState{
				ChannelProgress: make(map[string]models.ChannelProgress),
			}
			return nil
		}
		return fmt.Errorf("failed to read progress file: %w", err)
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		s.log.WithField("path", s.path).Warnf("Progress file corrupt, starting fresh: %v", err)
		s.state = RunState{
			ChannelProgress: make(map[string]models.ChannelProgress),
		}
		return nil
	}

	if s.state.ChannelProgress == nil {
		s.state.ChannelProgress = make(map[string]models.ChannelProgress)
	}

	return nil
}

// Save writes the checkpoint to disk, creating parent directories as needed.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.UpdatedAt = time.Now().UTC()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create progress directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write progress file: %w", err)
	}

	return nil
}

// MarkProcessed records a channel as done so a resumed run skips it.
// Idempotent.
func (s *Store) MarkProcessed(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.state.ProcessedChannels {
		if id == channelID {
			return
		}
	}
	s.state.ProcessedChannels = append(s.state.ProcessedChannels, channelID)
}

// IsProcessed reports whether a channel finished in a previous run.
func (s *Store) IsProcessed(channelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.state.ProcessedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// SetChannelProgress stores the latest per-channel counters.
func (s *Store) SetChannelProgress(p models.ChannelProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ChannelProgress[p.ChannelID] = p
}

// GetChannelProgress returns the stored counters for a channel.
func (s *Store) GetChannelProgress(channelID string) (models.ChannelProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.ChannelProgress[channelID]
	return p, ok
}

// ProcessedCount returns how many channels are checkpointed as done.
func (s *Store) ProcessedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.ProcessedChannels)
}

// Snapshot returns a copy of the current state for reporting.
func (s *Store) Snapshot() RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := RunState{
		ProcessedChannels: append([]string(nil), s.state.ProcessedChannels...),
		ChannelProgress:   make(map[string]models.ChannelProgress, len(s.state.ChannelProgress)),
		UpdatedAt:         s.state.UpdatedAt,
	}
	for k, v := range s.state.ChannelProgress {
		out.ChannelProgress[k] = v
	}
	return out
}
