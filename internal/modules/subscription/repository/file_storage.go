package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	feedDomain "github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
	"github.com/ellis-vester/backloggd-discord/internal/modules/subscription/domain"
	"github.com/ellis-vester/backloggd-discord/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// FileStorage implements Repository using one JSON document per feed
// URL. States are held in memory and written through on every change,
// so a failed write keeps the current watermark for the next attempt.
type FileStorage struct {
	basePath string
	mu       sync.RWMutex
	states   map[string]*domain.FeedState
}

// NewFileStorage creates a file-based feed state repository, loading
// any previously persisted states.
func NewFileStorage(basePath string) (Repository, error) {
	feedPath := filepath.Join(basePath, "feeds")
	if err := os.MkdirAll(feedPath, 0755); err != nil {
		return nil, &feedDomain.StoreError{
			Kind: feedDomain.StoreErrorUnavailable,
			Err:  oops.With("base_path", basePath, "context", "failed to create feeds directory").Wrap(err),
		}
	}

	s := &FileStorage{
		basePath: feedPath,
		states:   make(map[string]*domain.FeedState),
	}
	s.loadAll()

	return s, nil
}

// loadAll reads every persisted state. A document that cannot be read
// or decoded is logged and treated as absent, which makes the next
// poll of its feed a bootstrap poll.
func (s *FileStorage) loadAll() {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		slog.Error("Failed to read feeds directory", "directory", s.basePath, "error", err)
		return
	}

	states := lo.FilterMap(entries, func(entry os.DirEntry, _ int) (*domain.FeedState, bool) {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			return nil, false
		}

		path := filepath.Join(s.basePath, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Failed to read feed state file", "path", path, "error", err)
			return nil, false
		}

		var state domain.FeedState
		if err := json.Unmarshal(data, &state); err != nil {
			corrupt := &feedDomain.StoreError{Kind: feedDomain.StoreErrorCorrupt, Err: err}
			slog.Warn("Discarding corrupt feed state file", "path", path, "error", corrupt)
			return nil, false
		}
		if state.KnownIDs == nil {
			state.KnownIDs = feedDomain.NewKnownIDs()
		}

		return &state, true
	})

	for _, state := range states {
		s.states[state.FeedURL] = state
	}
}

func (s *FileStorage) GetFeedState(feedURL string) (*domain.FeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[feedURL]
	if !ok {
		return nil, errors.ErrFeedStateNotFound
	}
	return snapshot(state), nil
}

func (s *FileStorage) GetAllFeedStates() ([]*domain.FeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*domain.FeedState, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, snapshot(state))
	}
	return states, nil
}

func (s *FileStorage) MutateFeedState(feedURL string, fn func(*domain.FeedState)) (*domain.FeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[feedURL]
	if !ok {
		state = domain.NewFeedState(feedURL)
		s.states[feedURL] = state
	}

	fn(state)

	if err := s.persist(state); err != nil {
		// Memory already holds the new watermark; the next mutation
		// retries the write.
		return snapshot(state), err
	}
	return snapshot(state), nil
}

func (s *FileStorage) DeleteFeedState(feedURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, feedURL)

	path := s.statePath(feedURL)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &feedDomain.StoreError{
			Kind: feedDomain.StoreErrorUnavailable,
			Err:  oops.With("feed_url", feedURL, "context", "failed to delete feed state").Wrap(err),
		}
	}
	return nil
}

func (s *FileStorage) persist(state *domain.FeedState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &feedDomain.StoreError{
			Kind: feedDomain.StoreErrorUnavailable,
			Err:  oops.With("feed_url", state.FeedURL, "context", "failed to marshal feed state").Wrap(err),
		}
	}

	if err := os.WriteFile(s.statePath(state.FeedURL), data, 0644); err != nil {
		return &feedDomain.StoreError{
			Kind: feedDomain.StoreErrorUnavailable,
			Err:  oops.With("feed_url", state.FeedURL, "context", "failed to write feed state").Wrap(err),
		}
	}
	return nil
}

// statePath derives a filesystem-safe name from the feed URL.
func (s *FileStorage) statePath(feedURL string) string {
	sum := sha256.Sum256([]byte(feedURL))
	return filepath.Join(s.basePath, hex.EncodeToString(sum[:8])+".json")
}

func snapshot(state *domain.FeedState) *domain.FeedState {
	copied := *state
	copied.ChannelIDs = append([]string(nil), state.ChannelIDs...)
	if state.KnownIDs != nil {
		copied.KnownIDs = state.KnownIDs.Clone()
	}
	return &copied
}
