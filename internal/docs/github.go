package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

// requestTimeout bounds every GitHub API request.
const requestTimeout = 30 * time.Second

// Fetcher retrieves the documentation files of one repository.
type Fetcher interface {
	FetchDocs(ctx context.Context, src Source) ([]Document, error)
}

// APIFetcher walks a repository subtree through the GitHub Contents API.
// Per-file failures are logged and skipped; only a failure to list the
// configured subtree itself aborts the fetch.
type APIFetcher struct {
	client  *gh.Client
	limiter *rateLimiter
	logger  *slog.Logger
}

// NewAPIFetcher creates a fetcher authenticated with token. An empty token
// falls back to anonymous access and its much lower quota.
func NewAPIFetcher(ctx context.Context, token string, logger *slog.Logger) *APIFetcher {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
		hc.Timeout = requestTimeout
	}
	return NewAPIFetcherWithClient(gh.NewClient(hc), logger)
}

// NewAPIFetcherWithClient wraps an existing go-github client. Tests use this
// with a client pointed at a local httptest server.
func NewAPIFetcherWithClient(client *gh.Client, logger *slog.Logger) *APIFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIFetcher{
		client:  client,
		limiter: newRateLimiter(),
		logger:  logger,
	}
}

// FetchDocs walks src.Path recursively and returns every documentation file
// it could read.
func (f *APIFetcher) FetchDocs(ctx context.Context, src Source) ([]Document, error) {
	if src.Path == "" {
		src.Path = DefaultDocsPath
	}

	docs, err := f.fetchDir(ctx, src, src.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, src.Repo(), err)
	}

	f.logger.Info("fetched documentation",
		"repo", src.Repo(), "path", src.Path, "files", len(docs))
	return docs, nil
}

func (f *APIFetcher) fetchDir(ctx context.Context, src Source, dirPath string) ([]Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	_, entries, resp, err := f.client.Repositories.GetContents(
		ctx, src.Owner, src.Name, dirPath, f.contentOpts(src))
	f.updateLimiter(resp)
	if err != nil {
		return nil, fmt.Errorf("list %q: %v", dirPath, err)
	}

	var docs []Document
	for _, entry := range entries {
		switch entry.GetType() {
		case "file":
			if !IsDocFile(entry.GetName()) {
				continue
			}
			doc, err := f.fetchFile(ctx, src, entry.GetPath())
			if err != nil {
				if ctx.Err() != nil {
					return docs, ctx.Err()
				}
				f.logger.Warn("skipping file",
					"repo", src.Repo(), "path", entry.GetPath(), "error", err)
				continue
			}
			docs = append(docs, doc)

		case "dir":
			sub, err := f.fetchDir(ctx, src, entry.GetPath())
			if err != nil {
				if ctx.Err() != nil {
					return docs, ctx.Err()
				}
				f.logger.Warn("skipping directory",
					"repo", src.Repo(), "path", entry.GetPath(), "error", err)
				continue
			}
			docs = append(docs, sub...)
		}
	}
	return docs, nil
}

func (f *APIFetcher) fetchFile(ctx context.Context, src Source, filePath string) (Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Document{}, err
	}

	file, _, resp, err := f.client.Repositories.GetContents(
		ctx, src.Owner, src.Name, filePath, f.contentOpts(src))
	f.updateLimiter(resp)
	if err != nil {
		return Document{}, err
	}
	if file == nil {
		return Document{}, errors.New("path resolved to a directory")
	}

	text, err := file.GetContent()
	if err != nil {
		return Document{}, fmt.Errorf("decode content: %w", err)
	}

	return Document{
		Text:      text,
		Repo:      src.Repo(),
		Path:      file.GetPath(),
		SourceURL: file.GetHTMLURL(),
	}, nil
}

func (f *APIFetcher) contentOpts(src Source) *gh.RepositoryContentGetOptions {
	if src.Branch == "" {
		return nil
	}
	return &gh.RepositoryContentGetOptions{Ref: src.Branch}
}

func (f *APIFetcher) updateLimiter(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	f.limiter.UpdateFromResponse(resp.Response)
}
