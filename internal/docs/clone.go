package docs

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"unicode/utf8"
)

// runner executes external commands. Tests substitute a fake that lays down
// a directory tree instead of shelling out to git.
type runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(out))
	}
	return nil
}

// CloneFetcher fetches documentation via a shallow git clone. It is the
// fallback for repositories too large to walk file-by-file over the API.
type CloneFetcher struct {
	run    runner
	logger *slog.Logger
}

// NewCloneFetcher creates a fetcher that shells out to git.
func NewCloneFetcher(logger *slog.Logger) *CloneFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloneFetcher{run: execRunner{}, logger: logger}
}

// FetchDocs clones src at depth 1 into a temporary directory, walks the
// configured subtree for documentation files, and removes the clone before
// returning. A failed clone or a missing subtree yields ErrFetch and no
// documents; unreadable or non-UTF-8 files are skipped.
func (f *CloneFetcher) FetchDocs(ctx context.Context, src Source) ([]Document, error) {
	if src.Path == "" {
		src.Path = DefaultDocsPath
	}

	tmp, err := os.MkdirTemp("", "movebot-clone-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp dir: %v", ErrFetch, err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			f.logger.Warn("failed to remove clone directory", "dir", tmp, "error", err)
		}
	}()

	cloneURL := fmt.Sprintf("https://github.com/%s/%s.git", src.Owner, src.Name)
	args := []string{"clone", "--depth", "1"}
	if src.Branch != "" {
		args = append(args, "--branch", src.Branch)
	}
	args = append(args, cloneURL, tmp)

	if err := f.run.Run(ctx, "git", args...); err != nil {
		return nil, fmt.Errorf("%w: clone %s: %v", ErrFetch, src.Repo(), err)
	}

	root := filepath.Join(tmp, filepath.FromSlash(src.Path))
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("%w: subtree %q not found in %s", ErrFetch, src.Path, src.Repo())
	}

	ref := src.Branch
	if ref == "" {
		ref = "HEAD"
	}

	var docs []Document
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			f.logger.Warn("skipping path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsDocFile(d.Name()) {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			f.logger.Warn("skipping file", "path", p, "error", err)
			return nil
		}
		if !utf8.Valid(data) {
			f.logger.Warn("skipping non-UTF-8 file", "path", p)
			return nil
		}

		rel, err := filepath.Rel(tmp, p)
		if err != nil {
			return nil
		}
		repoPath := filepath.ToSlash(rel)

		docs = append(docs, Document{
			Text:      string(data),
			Repo:      src.Repo(),
			Path:      repoPath,
			SourceURL: fmt.Sprintf("https://github.com/%s/blob/%s/%s", src.Repo(), ref, repoPath),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: walk clone of %s: %v", ErrFetch, src.Repo(), walkErr)
	}

	f.logger.Info("fetched documentation from clone",
		"repo", src.Repo(), "path", src.Path, "files", len(docs))
	return docs, nil
}
