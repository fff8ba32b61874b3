package autopost

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// cursorState marks the last-processed point per interaction stream, so a
// restart does not reprocess old items.
type cursorState struct {
	LastMentions time.Time `json:"last_mentions"`
	LastReplies  time.Time `json:"last_replies"`
}

// CursorStore persists cursorState as a JSON file guarded by a file lock.
// The mutex covers the in-memory state; the mentions and replies loops
// advance their cursors from separate goroutines.
type CursorStore struct {
	mu     sync.Mutex
	path   string
	flk    *flock.Flock
	state  cursorState
	logger *slog.Logger
}

// NewCursorStore loads (or initializes) the cursor file at path. A corrupt
// file resets to zero cursors rather than failing.
func NewCursorStore(path string, logger *slog.Logger) (*CursorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating cursor directory: %w", err)
	}

	s := &CursorStore{path: path, flk: flock.New(path + ".lock"), logger: logger}
	s.load()
	return s, nil
}

func (s *CursorStore) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flk.Lock(); err != nil {
		s.logger.Warn("cursor lock failed, starting fresh", "error", err)
		return
	}
	defer func() { _ = s.flk.Unlock() }()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil || json.Unmarshal(data, &s.state) != nil {
		s.logger.Warn("cursor file unreadable, resetting", "path", s.path)
		_ = os.Remove(s.path)
		s.state = cursorState{}
	}
}

// persist writes the state to disk. Caller holds s.mu.
func (s *CursorStore) persist() error {
	data, err := json.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("encoding cursors: %w", err)
	}

	if err := s.flk.Lock(); err != nil {
		return fmt.Errorf("locking cursor file: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	if err := os.WriteFile(s.path, data, 0o640); err != nil {
		return fmt.Errorf("writing cursor file: %w", err)
	}
	return nil
}

// Mentions returns the last-processed mention time.
func (s *CursorStore) Mentions() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastMentions
}

// Replies returns the last-processed reply time.
func (s *CursorStore) Replies() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastReplies
}

// AdvanceMentions moves the mention cursor forward. Earlier times are ignored.
func (s *CursorStore) AdvanceMentions(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.After(s.state.LastMentions) {
		return nil
	}
	s.state.LastMentions = t
	return s.persist()
}

// AdvanceReplies moves the reply cursor forward. Earlier times are ignored.
func (s *CursorStore) AdvanceReplies(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.After(s.state.LastReplies) {
		return nil
	}
	s.state.LastReplies = t
	return s.persist()
}
