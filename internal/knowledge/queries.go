package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// UpsertDocumentParams holds the column values for an insert-or-update.
type UpsertDocumentParams struct {
	ID        string
	Content   string
	Embedding *pgvector.Vector
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
}

// SearchDocumentsParams holds the parameters for a vector similarity search.
// FilterMetadata is a JSONB containment filter; nil means no filter.
type SearchDocumentsParams struct {
	QueryEmbedding *pgvector.Vector
	FilterMetadata []byte
	ResultLimit    int
}

// SearchDocumentsRow is one row of a vector search result.
type SearchDocumentsRow struct {
	ID         string
	Content    string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
	Similarity float32
}

// Queries executes document SQL against a pgx connection pool.
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries wraps a connection pool. The pool's lifetime is managed by the
// caller.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

// UpsertDocument inserts a document, replacing content, embedding and
// metadata if the ID already exists.
func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	const query = `
		INSERT INTO documents (id, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`

	var createdAt any
	if arg.CreatedAt.Valid {
		createdAt = arg.CreatedAt
	}
	_, err := q.pool.Exec(ctx, query, arg.ID, arg.Content, arg.Embedding, arg.Metadata, createdAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// SearchDocuments returns the documents nearest to the query embedding by
// cosine distance, optionally restricted by JSONB metadata containment.
func (q *Queries) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error) {
	const filtered = `
		SELECT id, content, metadata, created_at,
		       (1 - (embedding <=> $1))::float4 AS similarity
		FROM documents
		WHERE metadata @> $2
		ORDER BY embedding <=> $1
		LIMIT $3`
	const unfiltered = `
		SELECT id, content, metadata, created_at,
		       (1 - (embedding <=> $1))::float4 AS similarity
		FROM documents
		ORDER BY embedding <=> $1
		LIMIT $2`

	var (
		rows pgx.Rows
		err  error
	)
	if arg.FilterMetadata != nil {
		rows, err = q.pool.Query(ctx, filtered, arg.QueryEmbedding, arg.FilterMetadata, arg.ResultLimit)
	} else {
		rows, err = q.pool.Query(ctx, unfiltered, arg.QueryEmbedding, arg.ResultLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var results []SearchDocumentsRow
	for rows.Next() {
		var row SearchDocumentsRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Metadata, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read search rows: %w", err)
	}
	return results, nil
}

// CountDocuments counts documents whose metadata contains the filter.
// A nil filter counts every document.
func (q *Queries) CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error) {
	var count int64
	var err error
	if filterMetadata != nil {
		err = q.pool.QueryRow(ctx,
			`SELECT count(*) FROM documents WHERE metadata @> $1`, filterMetadata).Scan(&count)
	} else {
		err = q.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// DeleteDocumentsByRepo removes every chunk indexed from one repository.
// Used before re-ingesting a repository to drop stale chunks.
func (q *Queries) DeleteDocumentsByRepo(ctx context.Context, repo string) (int64, error) {
	tag, err := q.pool.Exec(ctx,
		`DELETE FROM documents WHERE metadata->>'repo' = $1`, repo)
	if err != nil {
		return 0, fmt.Errorf("delete documents for %q: %w", repo, err)
	}
	return tag.RowsAffected(), nil
}
