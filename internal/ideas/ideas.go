// Package ideas stores content ideas in a local SQLite table. Ideas are
// produced by trend analysis and consumed one at a time by the posting loop.
package ideas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/movecult/movebot/internal/database"
)

// ErrNoUnusedIdeas indicates every stored idea has been posted already.
var ErrNoUnusedIdeas = errors.New("no unused ideas")

// Idea is one content idea. The JSON tags double as the structured-output
// schema requested from the model.
type Idea struct {
	ID             string    `json:"-"`
	Title          string    `json:"title" jsonschema_description:"Short title of the content idea"`
	KeyPoints      string    `json:"key_points" jsonschema_description:"Key points to cover, comma separated"`
	TargetAudience string    `json:"target_audience" jsonschema_description:"Audience segment the idea targets"`
	Tone           string    `json:"tone" jsonschema_description:"Suggested tone of voice"`
	CreatedAt      time.Time `json:"-"`
	Used           bool      `json:"-"`
}

// Store persists ideas in SQLite. Safe for concurrent use; the
// read-and-mark operation runs in a single transaction.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Open opens (or creates) the idea database at path and applies migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open idea database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate idea database: %w", err)
	}
	return NewStore(db, logger), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts the given ideas as unused, in one transaction. Ideas without
// an ID are assigned one.
func (s *Store) Save(ctx context.Context, list []Idea) error {
	if len(list) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ideas (id, title, key_points, target_audience, tone, created_at, used)
		VALUES (?, ?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, idea := range list {
		id := idea.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			id, idea.Title, idea.KeyPoints, idea.TargetAudience, idea.Tone, now); err != nil {
			return fmt.Errorf("insert idea %q: %w", idea.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.logger.Debug("saved ideas", "count", len(list))
	return nil
}

// UnusedIdea selects one unused idea at random and marks it used in the
// same transaction, so two concurrent posters can never draw the same idea.
// Returns ErrNoUnusedIdeas when the pool is exhausted.
func (s *Store) UnusedIdea(ctx context.Context) (Idea, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Idea{}, fmt.Errorf("begin draw: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var idea Idea
	err = tx.QueryRowContext(ctx, `
		SELECT id, title, key_points, target_audience, tone, created_at
		FROM ideas WHERE used = 0
		ORDER BY RANDOM() LIMIT 1`).Scan(
		&idea.ID, &idea.Title, &idea.KeyPoints, &idea.TargetAudience, &idea.Tone, &idea.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Idea{}, ErrNoUnusedIdeas
	}
	if err != nil {
		return Idea{}, fmt.Errorf("select unused idea: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE ideas SET used = 1 WHERE id = ?`, idea.ID); err != nil {
		return Idea{}, fmt.Errorf("mark idea used: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Idea{}, fmt.Errorf("commit draw: %w", err)
	}

	idea.Used = true
	return idea, nil
}

// Count returns the total and unused idea counts.
func (s *Store) Count(ctx context.Context) (total, unused int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN used = 0 THEN 1 ELSE 0 END), 0) FROM ideas`).
		Scan(&total, &unused)
	if err != nil {
		return 0, 0, fmt.Errorf("count ideas: %w", err)
	}
	return total, unused, nil
}
