package autopost

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/movecult/movebot/internal/testutil"
)

func newTestCursorStore(t *testing.T) (*CursorStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cursors.json")
	store, err := NewCursorStore(path, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewCursorStore() error = %v", err)
	}
	return store, path
}

func TestCursorStore_FreshStartsAtZero(t *testing.T) {
	store, _ := newTestCursorStore(t)

	if !store.Mentions().IsZero() || !store.Replies().IsZero() {
		t.Errorf("fresh cursors = (%v, %v), want zero", store.Mentions(), store.Replies())
	}
}

func TestCursorStore_AdvanceAndReload(t *testing.T) {
	store, path := newTestCursorStore(t)

	mentionTime := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	replyTime := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
	if err := store.AdvanceMentions(mentionTime); err != nil {
		t.Fatalf("AdvanceMentions() error = %v", err)
	}
	if err := store.AdvanceReplies(replyTime); err != nil {
		t.Fatalf("AdvanceReplies() error = %v", err)
	}

	reloaded, err := NewCursorStore(path, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if !reloaded.Mentions().Equal(mentionTime) {
		t.Errorf("Mentions() after reload = %v, want %v", reloaded.Mentions(), mentionTime)
	}
	if !reloaded.Replies().Equal(replyTime) {
		t.Errorf("Replies() after reload = %v, want %v", reloaded.Replies(), replyTime)
	}
}

func TestCursorStore_IgnoresBackwardAdvance(t *testing.T) {
	store, _ := newTestCursorStore(t)

	later := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)
	if err := store.AdvanceMentions(later); err != nil {
		t.Fatalf("AdvanceMentions() error = %v", err)
	}
	if err := store.AdvanceMentions(earlier); err != nil {
		t.Fatalf("AdvanceMentions(earlier) error = %v", err)
	}
	if !store.Mentions().Equal(later) {
		t.Errorf("Mentions() = %v, want %v to survive backward advance", store.Mentions(), later)
	}
}

func TestCursorStore_CorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o640); err != nil {
		t.Fatalf("seeding corrupt file: %v", err)
	}

	store, err := NewCursorStore(path, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewCursorStore() error = %v", err)
	}
	if !store.Mentions().IsZero() {
		t.Errorf("Mentions() = %v, want zero after corrupt reset", store.Mentions())
	}

	// The store must be writable again.
	if err := store.AdvanceMentions(time.Now()); err != nil {
		t.Errorf("AdvanceMentions() after reset error = %v", err)
	}
}

func TestCursorStore_ConcurrentAdvance(t *testing.T) {
	// The mentions and replies loops advance their cursors from separate
	// goroutines; both streams must land under the race detector.
	store, _ := newTestCursorStore(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if err := store.AdvanceMentions(base.Add(time.Duration(i) * time.Minute)); err != nil {
				t.Errorf("AdvanceMentions() error = %v", err)
			}
			store.Replies()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if err := store.AdvanceReplies(base.Add(time.Duration(i) * time.Minute)); err != nil {
				t.Errorf("AdvanceReplies() error = %v", err)
			}
			store.Mentions()
		}
	}()
	wg.Wait()

	want := base.Add(19 * time.Minute)
	if !store.Mentions().Equal(want) || !store.Replies().Equal(want) {
		t.Errorf("cursors = (%v, %v), want both %v", store.Mentions(), store.Replies(), want)
	}
}
