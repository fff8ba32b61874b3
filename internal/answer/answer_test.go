package answer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/movecult/movebot/internal/chatctx"
	"github.com/movecult/movebot/internal/testutil"
)

// mockAgent echoes questions and records the history it was handed.
type mockAgent struct {
	mu        sync.Mutex
	err       error
	delay     time.Duration
	histories [][]chatctx.Turn
}

func (m *mockAgent) Answer(ctx context.Context, question string, history []chatctx.Turn) (string, error) {
	m.mu.Lock()
	cp := make([]chatctx.Turn, len(history))
	copy(cp, history)
	m.histories = append(m.histories, cp)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}
	return "answer: " + question, nil
}

func (m *mockAgent) seenHistories() [][]chatctx.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.histories
}

func newTestService(t *testing.T, agent *mockAgent) *Service {
	t.Helper()

	path := filepath.Join(t.TempDir(), "contexts.json")
	contexts, err := chatctx.New(path, 10, time.Hour, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("chatctx.New() error = %v", err)
	}
	return New(agent, contexts, 3, time.Second, testutil.DiscardLogger())
}

func TestService_Answer(t *testing.T) {
	agent := &mockAgent{}
	svc := newTestService(t, agent)

	got := svc.Answer(context.Background(), "u1", "what is move")
	if got != "answer: what is move" {
		t.Errorf("Answer() = %q, want agent reply", got)
	}

	histories := agent.seenHistories()
	if len(histories) != 1 || len(histories[0]) != 0 {
		t.Errorf("first call history = %v, want empty", histories)
	}
}

func TestService_AnswerRecordsTurn(t *testing.T) {
	agent := &mockAgent{}
	svc := newTestService(t, agent)
	ctx := context.Background()

	svc.Answer(ctx, "u1", "first question")
	svc.Answer(ctx, "u1", "second question")

	histories := agent.seenHistories()
	if len(histories) != 2 {
		t.Fatalf("agent calls = %d, want 2", len(histories))
	}
	second := histories[1]
	if len(second) != 1 {
		t.Fatalf("second call history length = %d, want 1", len(second))
	}
	if second[0].User != "first question" || second[0].Bot != "answer: first question" {
		t.Errorf("second call history = %+v, want first turn", second[0])
	}
}

func TestService_AgentErrorReturnsApology(t *testing.T) {
	agent := &mockAgent{err: errors.New("model exploded")}
	svc := newTestService(t, agent)
	ctx := context.Background()

	got := svc.Answer(ctx, "u1", "broken question")
	if got != apologyMsg {
		t.Errorf("Answer() = %q, want apology", got)
	}

	// Failed turns are not recorded.
	agent.mu.Lock()
	agent.err = nil
	agent.mu.Unlock()
	svc.Answer(ctx, "u1", "next question")

	histories := agent.seenHistories()
	if len(histories[1]) != 0 {
		t.Errorf("history after failed turn = %+v, want empty", histories[1])
	}
}

func TestService_SameUserSerialized(t *testing.T) {
	agent := &mockAgent{delay: 50 * time.Millisecond}
	svc := newTestService(t, agent)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.Answer(ctx, "u1", "question A")
	}()
	// Give the first call a head start so ordering is deterministic.
	time.Sleep(10 * time.Millisecond)
	go func() {
		defer wg.Done()
		svc.Answer(ctx, "u1", "question B")
	}()
	wg.Wait()

	histories := agent.seenHistories()
	if len(histories) != 2 {
		t.Fatalf("agent calls = %d, want 2", len(histories))
	}
	if len(histories[1]) != 1 {
		t.Fatalf("second call history length = %d, want 1 (serialized)", len(histories[1]))
	}
	if histories[1][0].User != "question A" {
		t.Errorf("second call saw turn %q, want %q", histories[1][0].User, "question A")
	}
}

func TestService_DistinctUsersIndependent(t *testing.T) {
	agent := &mockAgent{}
	svc := newTestService(t, agent)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.Answer(ctx, fmt.Sprintf("user-%d", i), "hello")
		}(i)
	}
	wg.Wait()

	for _, h := range agent.seenHistories() {
		if len(h) != 0 {
			t.Errorf("cross-user history leak: %+v", h)
		}
	}
}

func TestService_HistoryWindow(t *testing.T) {
	agent := &mockAgent{}
	svc := newTestService(t, agent)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Answer(ctx, "u1", fmt.Sprintf("question %d", i))
	}

	histories := agent.seenHistories()
	last := histories[len(histories)-1]
	if len(last) != 3 {
		t.Fatalf("window length = %d, want 3", len(last))
	}
	if last[0].User != "question 1" || last[2].User != "question 3" {
		t.Errorf("window = %+v, want questions 1-3", last)
	}
}

func TestService_AgentTimeout(t *testing.T) {
	agent := &mockAgent{delay: 500 * time.Millisecond}
	path := filepath.Join(t.TempDir(), "contexts.json")
	contexts, err := chatctx.New(path, 10, time.Hour, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("chatctx.New() error = %v", err)
	}
	svc := New(agent, contexts, 3, 30*time.Millisecond, testutil.DiscardLogger())

	start := time.Now()
	got := svc.Answer(context.Background(), "u1", "slow question")
	if got != apologyMsg {
		t.Errorf("Answer() = %q, want apology on timeout", got)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("Answer() took %v, want timeout near 30ms", elapsed)
	}
}

func TestService_EvictionKeepsHeldLockSerialized(t *testing.T) {
	// A user whose context expires during a long agent call must not lose
	// their lock to eviction: a follow-up call for the same user has to
	// wait for the in-flight one, not run beside it on a fresh mutex.
	agent := &mockAgent{delay: 50 * time.Millisecond}
	path := filepath.Join(t.TempDir(), "contexts.json")
	contexts, err := chatctx.New(path, 10, time.Nanosecond, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("chatctx.New() error = %v", err)
	}
	svc := New(agent, contexts, 3, time.Second, testutil.DiscardLogger())
	ctx := context.Background()

	svc.Answer(ctx, "u1", "seed")
	time.Sleep(5 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		svc.Answer(ctx, "u1", "question A")
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		// Another user's turn evicts u1's expired context while u1's
		// lock is held by the in-flight question A.
		defer wg.Done()
		svc.Answer(ctx, "u2", "trigger eviction")
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		defer wg.Done()
		svc.Answer(ctx, "u1", "question B")
	}()
	wg.Wait()

	var historyB []chatctx.Turn
	found := false
	for _, h := range agent.seenHistories() {
		for _, turn := range h {
			if turn.User == "question A" {
				historyB = h
				found = true
			}
		}
	}
	if !found {
		t.Fatal("question B ran without seeing question A's turn; same-user calls overlapped")
	}
	if len(historyB) != 1 {
		t.Errorf("question B history = %+v, want only question A's turn", historyB)
	}
}

func TestService_DropsLocksForEvictedUsers(t *testing.T) {
	agent := &mockAgent{}
	path := filepath.Join(t.TempDir(), "contexts.json")
	contexts, err := chatctx.New(path, 10, time.Nanosecond, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("chatctx.New() error = %v", err)
	}
	svc := New(agent, contexts, 3, time.Second, testutil.DiscardLogger())
	ctx := context.Background()

	svc.Answer(ctx, "u1", "hello")
	time.Sleep(5 * time.Millisecond)
	// Next turn for another user triggers eviction of u1.
	svc.Answer(ctx, "u2", "hi")

	svc.mu.Lock()
	_, ok := svc.locks["u1"]
	svc.mu.Unlock()
	if ok {
		t.Error("lock for evicted user still present")
	}
}
