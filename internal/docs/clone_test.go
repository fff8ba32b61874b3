package docs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/movecult/movebot/internal/testutil"
)

// fakeRunner simulates git clone by writing files into the destination
// directory (the last argument).
type fakeRunner struct {
	files   map[string][]byte // relative path -> content
	err     error
	lastDir string
	args    []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.args = append([]string{name}, args...)
	if f.err != nil {
		return f.err
	}

	dest := args[len(args)-1]
	f.lastDir = dest
	for rel, content := range f.files {
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0640); err != nil {
			return err
		}
	}
	return nil
}

func newTestCloneFetcher(run runner) *CloneFetcher {
	return &CloneFetcher{run: run, logger: testutil.DiscardLogger()}
}

func TestCloneFetcher_FetchDocs(t *testing.T) {
	run := &fakeRunner{files: map[string][]byte{
		"docs/intro.md":        []byte("# Intro"),
		"docs/guides/setup.md": []byte("## Setup"),
		"docs/logo.png":        {0x89, 0x50, 0x4e, 0x47},
		"docs/binary.md":       {0xff, 0xfe, 0x00, 0x01}, // invalid UTF-8, skipped
		"README.md":            []byte("outside the docs subtree"),
	}}
	fetcher := newTestCloneFetcher(run)

	src := Source{Owner: "movementlabsxyz", Name: "movement", Branch: "main", Path: "docs"}
	docs, err := fetcher.FetchDocs(context.Background(), src)
	if err != nil {
		t.Fatalf("FetchDocs() error = %v", err)
	}

	if len(docs) != 2 {
		t.Fatalf("FetchDocs() returned %d documents, want 2", len(docs))
	}

	byPath := map[string]Document{}
	for _, d := range docs {
		byPath[d.Path] = d
	}
	if byPath["docs/intro.md"].Text != "# Intro" {
		t.Errorf("intro = %+v", byPath["docs/intro.md"])
	}
	if byPath["docs/guides/setup.md"].SourceURL !=
		"https://github.com/movementlabsxyz/movement/blob/main/docs/guides/setup.md" {
		t.Errorf("source URL = %q", byPath["docs/guides/setup.md"].SourceURL)
	}

	// Shallow clone with the requested branch.
	want := []string{"git", "clone", "--depth", "1", "--branch", "main",
		"https://github.com/movementlabsxyz/movement.git", run.lastDir}
	if len(run.args) != len(want) {
		t.Fatalf("git args = %v, want %v", run.args, want)
	}
	for i := range want {
		if run.args[i] != want[i] {
			t.Errorf("git arg[%d] = %q, want %q", i, run.args[i], want[i])
		}
	}

	// Temporary clone directory is removed.
	if _, err := os.Stat(run.lastDir); !os.IsNotExist(err) {
		t.Errorf("clone directory %s still exists", run.lastDir)
	}
}

func TestCloneFetcher_CloneFailure(t *testing.T) {
	run := &fakeRunner{err: errors.New("fatal: repository not found")}
	fetcher := newTestCloneFetcher(run)

	src := Source{Owner: "o", Name: "missing", Path: "docs"}
	docs, err := fetcher.FetchDocs(context.Background(), src)
	if !errors.Is(err, ErrFetch) {
		t.Errorf("FetchDocs() error = %v, want ErrFetch", err)
	}
	if len(docs) != 0 {
		t.Errorf("FetchDocs() returned %d documents on failure, want 0", len(docs))
	}
}

func TestCloneFetcher_MissingSubtree(t *testing.T) {
	run := &fakeRunner{files: map[string][]byte{"README.md": []byte("no docs dir")}}
	fetcher := newTestCloneFetcher(run)

	src := Source{Owner: "o", Name: "r", Path: "docs"}
	_, err := fetcher.FetchDocs(context.Background(), src)
	if !errors.Is(err, ErrFetch) {
		t.Errorf("FetchDocs() error = %v, want ErrFetch", err)
	}

	if _, statErr := os.Stat(run.lastDir); !os.IsNotExist(statErr) {
		t.Errorf("clone directory %s still exists", run.lastDir)
	}
}
