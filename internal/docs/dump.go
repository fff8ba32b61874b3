package docs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Dumper writes fetched documents to a local directory, one file per
// document, so an ingestion run leaves an inspectable copy on disk.
type Dumper struct {
	dir    string
	logger *slog.Logger
}

// NewDumper creates a dumper rooted at dir.
func NewDumper(dir string, logger *slog.Logger) *Dumper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dumper{dir: dir, logger: logger}
}

// Dump writes every document under <dir>/<owner_name>/, deriving flat file
// names from repository paths. Failures are collected, not fatal per file.
func (d *Dumper) Dump(docs []Document) error {
	var errs []error
	for _, doc := range docs {
		repoDir := filepath.Join(d.dir, safeName(doc.Repo))
		if err := os.MkdirAll(repoDir, 0750); err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", repoDir, err))
			continue
		}

		target := filepath.Join(repoDir, safeName(doc.Path))
		if err := os.WriteFile(target, []byte(doc.Text), 0640); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", target, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("dump documents: %w", errors.Join(errs...))
	}
	return nil
}

// safeName flattens a repository path into a single file name.
func safeName(p string) string {
	return strings.ReplaceAll(p, "/", "_")
}
