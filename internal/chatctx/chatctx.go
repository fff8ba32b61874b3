// Package chatctx persists per-user conversation context in a single JSON
// file. The in-memory map is the working copy; the file is the source of
// truth across restarts. Every mutation rewrites the whole file under a
// file lock so concurrent processes cannot interleave partial writes.
package chatctx

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

// Turn is one user/bot exchange.
type Turn struct {
	User      string    `json:"user"`
	Bot       string    `json:"bot"`
	Timestamp time.Time `json:"timestamp"`
}

// userContext is the stored state of one user's conversation.
type userContext struct {
	Messages        []Turn    `json:"messages"`
	LastInteraction time.Time `json:"last_interaction"`
}

// Store is a file-backed, user-keyed conversation context store with FIFO
// truncation and expiry-based eviction. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	path       string
	flk        *flock.Flock
	contexts   map[string]*userContext
	maxHistory int
	expiry     time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// New opens (or creates) the store at path. A corrupt or unreadable file is
// deleted and replaced with an empty store; that is never an error.
func New(path string, maxHistory int, expiry time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create context directory: %w", err)
	}

	s := &Store{
		path:       path,
		flk:        flock.New(path + ".lock"),
		contexts:   make(map[string]*userContext),
		maxHistory: maxHistory,
		expiry:     expiry,
		now:        time.Now,
		logger:     logger,
	}
	s.load()
	return s, nil
}

// load reads the context file into memory. Called once at startup.
func (s *Store) load() {
	if err := s.flk.Lock(); err != nil {
		s.logger.Warn("could not lock context file, starting empty", "error", err)
		return
	}
	defer func() { _ = s.flk.Unlock() }()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.logger.Warn("context file unreadable, resetting", "path", s.path, "error", err)
		_ = os.Remove(s.path)
		return
	}

	var contexts map[string]*userContext
	if err := json.Unmarshal(data, &contexts); err != nil {
		s.logger.Warn("context file corrupt, resetting", "path", s.path, "error", err)
		_ = os.Remove(s.path)
		return
	}
	// A file holding JSON null decodes into a nil map; keep the store
	// writable rather than panicking on the first recorded turn.
	if contexts == nil {
		contexts = make(map[string]*userContext)
	}
	s.contexts = contexts
}

// persist writes the whole store to disk. Caller holds s.mu.
func (s *Store) persist() error {
	data, err := json.Marshal(s.contexts)
	if err != nil {
		return fmt.Errorf("marshal contexts: %w", err)
	}

	if err := s.flk.Lock(); err != nil {
		return fmt.Errorf("lock context file: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	if err := os.WriteFile(s.path, data, 0640); err != nil {
		return fmt.Errorf("write context file: %w", err)
	}
	return nil
}

// History returns the user's last n turns in chronological order. Unknown
// users yield nil.
func (s *Store) History(userID string, n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	uc, ok := s.contexts[userID]
	if !ok || n <= 0 {
		return nil
	}

	msgs := uc.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Turn, len(msgs))
	copy(out, msgs)
	return out
}

// RecordTurn appends an exchange to the user's context, truncates to the
// history limit, stamps the interaction time, and persists.
func (s *Store) RecordTurn(userID, userText, botText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	uc, ok := s.contexts[userID]
	if !ok {
		uc = &userContext{}
		s.contexts[userID] = uc
	}

	uc.Messages = append(uc.Messages, Turn{
		User:      userText,
		Bot:       botText,
		Timestamp: now,
	})
	if len(uc.Messages) > s.maxHistory {
		uc.Messages = uc.Messages[len(uc.Messages)-s.maxHistory:]
	}
	uc.LastInteraction = now

	return s.persist()
}

// EvictExpired removes users whose last interaction is older than the
// expiry window, returning their IDs. Persists only when something was
// removed.
func (s *Store) EvictExpired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.expiry)
	var evicted []string
	for userID, uc := range s.contexts {
		if uc.LastInteraction.Before(cutoff) {
			evicted = append(evicted, userID)
			delete(s.contexts, userID)
		}
	}

	if len(evicted) > 0 {
		if err := s.persist(); err != nil {
			s.logger.Warn("failed to persist after eviction", "error", err)
		}
		s.logger.Debug("evicted expired contexts", "users", len(evicted))
	}
	return evicted
}

// Users returns the IDs currently held in memory.
func (s *Store) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	return ids
}
