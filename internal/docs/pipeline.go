package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/movecult/movebot/internal/chunk"
	"github.com/movecult/movebot/internal/knowledge"
)

// Indexer is the subset of the knowledge store the pipeline writes through.
type Indexer interface {
	AddAll(ctx context.Context, docs []knowledge.Document) (int, error)
	DeleteRepo(ctx context.Context, repo string) (int64, error)
}

// Pipeline ingests configured repositories: fetch, dump locally, chunk,
// embed and index. One repository's failure never aborts the others.
type Pipeline struct {
	fetcher      Fetcher
	indexer      Indexer
	dumper       *Dumper
	sources      []Source
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

// NewPipeline creates an ingestion pipeline. dumper may be nil to disable
// the local dump side channel.
func NewPipeline(fetcher Fetcher, indexer Indexer, dumper *Dumper, sources []Source,
	chunkSize, chunkOverlap int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		fetcher:      fetcher,
		indexer:      indexer,
		dumper:       dumper,
		sources:      sources,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// Ingest processes every configured source. Failed repositories are logged
// and reported in the joined error; the rest are still ingested.
func (p *Pipeline) Ingest(ctx context.Context) error {
	var errs []error
	for _, src := range p.sources {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := p.ingestRepo(ctx, src); err != nil {
			p.logger.Error("repository ingestion failed", "repo", src.Repo(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) ingestRepo(ctx context.Context, src Source) error {
	docs, err := p.fetcher.FetchDocs(ctx, src)
	if err != nil {
		return err
	}

	if p.dumper != nil {
		if err := p.dumper.Dump(docs); err != nil {
			p.logger.Warn("local dump incomplete", "repo", src.Repo(), "error", err)
		}
	}

	// Drop chunks from the previous run so removed files do not linger.
	if _, err := p.indexer.DeleteRepo(ctx, src.Repo()); err != nil {
		p.logger.Warn("failed to clear previous chunks", "repo", src.Repo(), "error", err)
	}

	var kdocs []knowledge.Document
	for _, doc := range docs {
		chunks, err := chunk.Split(doc.Text, p.chunkSize, p.chunkOverlap)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", doc.Path, err)
		}
		for i, c := range chunks {
			kdocs = append(kdocs, knowledge.Document{
				ID:      fmt.Sprintf("%s/%s#%d", doc.Repo, doc.Path, i),
				Content: c,
				Metadata: map[string]string{
					knowledge.MetaRepo:      doc.Repo,
					knowledge.MetaPath:      doc.Path,
					knowledge.MetaSourceURL: doc.SourceURL,
				},
			})
		}
	}

	stored, err := p.indexer.AddAll(ctx, kdocs)
	p.logger.Info("indexed repository",
		"repo", src.Repo(), "files", len(docs), "chunks", stored)
	if err != nil {
		if stored == 0 {
			return fmt.Errorf("index %s: %w", src.Repo(), err)
		}
		p.logger.Warn("some chunks were not indexed", "repo", src.Repo(), "error", err)
	}
	return nil
}
