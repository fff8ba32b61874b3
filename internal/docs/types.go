// Package docs fetches documentation files from source repositories and
// feeds them through the indexing pipeline.
package docs

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrFetch indicates a repository could not be listed or fetched at all.
// Per-file failures inside a repository are logged and skipped instead.
var ErrFetch = errors.New("documentation fetch failed")

// DefaultDocsPath is the repository subtree fetched when none is configured.
const DefaultDocsPath = "docs"

// Document is one documentation file fetched from a source repository.
type Document struct {
	Text      string // full file content, UTF-8
	Repo      string // "owner/name"
	Path      string // path within the repository
	SourceURL string // canonical URL of the file
}

// Source identifies a repository subtree to ingest.
type Source struct {
	Owner  string
	Name   string
	Branch string // empty = repository default branch
	Path   string // subtree to walk, default DefaultDocsPath
}

// Repo returns the "owner/name" form.
func (s Source) Repo() string {
	return s.Owner + "/" + s.Name
}

// ParseSource parses a github.com repository URL into a Source.
// Accepted form: https://github.com/owner/name with no deeper path.
func ParseSource(rawURL string) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Source{}, fmt.Errorf("%w: parse %q: %v", ErrFetch, rawURL, err)
	}
	if u.Host != "github.com" {
		return Source{}, fmt.Errorf("%w: unsupported host %q (only github.com)", ErrFetch, u.Host)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Source{}, fmt.Errorf("%w: URL %q is not owner/name form", ErrFetch, rawURL)
	}

	return Source{
		Owner: parts[0],
		Name:  strings.TrimSuffix(parts[1], ".git"),
		Path:  DefaultDocsPath,
	}, nil
}

// docExtensions are the file types treated as documentation.
var docExtensions = map[string]struct{}{
	".md":  {},
	".mdx": {},
	".txt": {},
	".rst": {},
}

// IsDocFile reports whether name has a documentation extension.
func IsDocFile(name string) bool {
	_, ok := docExtensions[strings.ToLower(path.Ext(name))]
	return ok
}
