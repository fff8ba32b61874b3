package knowledge

import "time"

// VectorDimension is the embedding width of the documents table. Every
// embed request asks for exactly this many dimensions; gemini-embedding-001
// defaults to 3072, which the vector(768) column would reject.
const VectorDimension int32 = 768

// Metadata keys stored alongside each document chunk.
const (
	// MetaRepo is the "owner/name" of the source repository.
	MetaRepo = "repo"

	// MetaPath is the file path within the repository.
	MetaPath = "path"

	// MetaSourceURL is the canonical URL of the source file.
	MetaSourceURL = "source_url"
)

// Document is one indexed chunk of documentation text.
type Document struct {
	ID       string            // Unique identifier
	Content  string            // Chunk text content
	Metadata map[string]string // Source metadata (repo, path, source_url)
	CreateAt time.Time         // Indexing timestamp
}

// Result is a single search hit with its similarity score.
type Result struct {
	Document   Document
	Similarity float32 // Cosine similarity (0-1)
}

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	repo    string
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithRepo restricts results to documents from one source repository
// ("owner/name"). The zero value means no restriction.
func WithRepo(repo string) SearchOption {
	return func(c *searchConfig) {
		c.repo = repo
	}
}

// WithTimeout overrides the per-search query timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
