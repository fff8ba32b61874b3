// Package knowledge stores documentation chunks with vector embeddings and
// retrieves them by semantic similarity using PostgreSQL + pgvector.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// Querier defines the database operations Store needs. The interface is
// defined here, by the consumer, so tests can substitute an in-memory
// implementation.
type Querier interface {
	// UpsertDocument inserts or updates a document chunk.
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error

	// SearchDocuments performs vector search, optionally metadata-filtered.
	SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error)

	// CountDocuments counts documents matching the filter (nil = all).
	CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error)

	// DeleteDocumentsByRepo removes all chunks of one repository.
	DeleteDocumentsByRepo(ctx context.Context, repo string) (int64, error)
}

// Store manages documentation chunks with vector search capabilities.
// It generates embeddings on write and on query.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default.
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds a document's content and upserts it.
func (s *Store) Add(ctx context.Context, doc Document) error {
	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	createdAt := pgtype.Timestamptz{
		Time:  doc.CreateAt,
		Valid: !doc.CreateAt.IsZero(),
	}

	if err := s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: embedding,
		Metadata:  metadataJSON,
		CreatedAt: createdAt,
	}); err != nil {
		return fmt.Errorf("upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// AddAll adds every document, collecting per-document failures rather than
// aborting the batch. It returns how many were stored and the joined errors,
// if any. A cancelled context stops the batch.
func (s *Store) AddAll(ctx context.Context, docs []Document) (int, error) {
	var errs []error
	stored := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.Add(ctx, doc); err != nil {
			s.logger.Warn("skipping document", "id", doc.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		stored++
	}
	return stored, errors.Join(errs...)
}

// Search returns the documents most similar to the query, ordered by
// similarity. An empty index yields no results and no error.
//
// Example:
//
//	results, err := store.Search(ctx, "how do gas fees work",
//	    knowledge.WithTopK(10),
//	    knowledge.WithRepo("movementlabsxyz/movement-docs"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// The filter is always produced by json.Marshal from a typed map, so
	// the JSONB containment argument never carries raw user input.
	var filterJSON []byte
	if cfg.repo != "" {
		filterJSON, err = json.Marshal(map[string]string{MetaRepo: cfg.repo})
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
	}

	rows, err := s.queries.SearchDocuments(queryCtx, SearchDocumentsParams{
		QueryEmbedding: embedding,
		FilterMetadata: filterJSON,
		ResultLimit:    cfg.topK,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return s.rowsToResults(rows), nil
}

// Count returns the number of indexed chunks, optionally restricted to one
// repository (empty repo = all).
func (s *Store) Count(ctx context.Context, repo string) (int, error) {
	var filterJSON []byte
	if repo != "" {
		var err error
		filterJSON, err = json.Marshal(map[string]string{MetaRepo: repo})
		if err != nil {
			return 0, fmt.Errorf("marshal filter: %w", err)
		}
	}

	count, err := s.queries.CountDocuments(ctx, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// DeleteRepo drops every chunk previously indexed from repo, returning the
// number removed. Called before re-ingesting so stale chunks do not linger.
func (s *Store) DeleteRepo(ctx context.Context, repo string) (int64, error) {
	n, err := s.queries.DeleteDocumentsByRepo(ctx, repo)
	if err != nil {
		return 0, fmt.Errorf("delete repo %q: %w", repo, err)
	}
	s.logger.Debug("deleted repository chunks", "repo", repo, "count", n)
	return n, nil
}

func (s *Store) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("embedder returned no embedding")
	}
	v := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &v, nil
}

func (s *Store) rowsToResults(rows []SearchDocumentsRow) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}

		var createAt time.Time
		if row.CreatedAt.Valid {
			createAt = row.CreatedAt.Time
		}

		results = append(results, Result{
			Document: Document{
				ID:       row.ID,
				Content:  row.Content,
				Metadata: metadata,
				CreateAt: createAt,
			},
			Similarity: row.Similarity,
		})
	}
	return results
}
