// Package answer coordinates one question-answering turn per chat user:
// serialize, recall history, ask the agent, record the exchange.
package answer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/movecult/movebot/internal/chatctx"
)

// apologyMsg is what chat users see when the agent fails. Provider details
// stay in the logs.
const apologyMsg = "Sorry, I ran into a problem answering that. Please try again in a moment."

// Agent answers a question given the user's recent conversation turns.
type Agent interface {
	Answer(ctx context.Context, question string, history []chatctx.Turn) (string, error)
}

// Service answers questions with per-user serialization. Concurrent calls
// for the same user run one at a time, so the second call sees the first
// call's turn in its history. Distinct users proceed independently.
type Service struct {
	agent    Agent
	contexts *chatctx.Store
	window   int
	timeout  time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	logger *slog.Logger
}

// New creates a Service. window is the number of past turns replayed to the
// agent; timeout bounds a single agent call.
func New(agent Agent, contexts *chatctx.Store, window int, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		agent:    agent,
		contexts: contexts,
		window:   window,
		timeout:  timeout,
		locks:    make(map[string]*sync.Mutex),
		logger:   logger,
	}
}

// Answer runs one turn for userID. Expired contexts are evicted first, and
// their locks dropped with them, so the lock map does not grow without
// bound over the bot's lifetime.
func (s *Service) Answer(ctx context.Context, userID, question string) string {
	s.dropLocks(s.contexts.EvictExpired())

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	history := s.contexts.History(userID, s.window)

	agentCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		agentCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reply, err := s.agent.Answer(agentCtx, question, history)
	if err != nil {
		s.logger.Error("agent call failed", "user_id", userID, "error", err)
		return apologyMsg
	}

	if err := s.contexts.RecordTurn(userID, question, reply); err != nil {
		s.logger.Warn("recording turn failed", "user_id", userID, "error", err)
	}
	return reply
}

// userLock returns the mutex for userID, creating it on first use.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// dropLocks removes the per-user locks of evicted contexts. A lock that is
// currently held stays in the map: deleting it would let a concurrent call
// for the same user mint a fresh mutex and break serialization. The held
// lock is dropped on a later eviction pass once it is free.
func (s *Service) dropLocks(userIDs []string) {
	if len(userIDs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		lock, ok := s.locks[id]
		if !ok {
			continue
		}
		if lock.TryLock() {
			lock.Unlock()
			delete(s.locks, id)
		}
	}
}
