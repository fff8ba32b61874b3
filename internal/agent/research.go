// Package agent wires the language model to the documentation index. It
// holds the research agent that answers user questions over retrieved docs
// and the generator that turns community trends into content ideas.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/movecult/movebot/internal/chatctx"
	"github.com/movecult/movebot/internal/knowledge"
)

// ErrAgentUnavailable indicates the model call itself failed. Callers show
// a generic apology instead of surfacing provider errors to chat users.
var ErrAgentUnavailable = errors.New("agent unavailable")

// SearchDocsName is the Genkit tool name for documentation search.
const SearchDocsName = "search_movement_docs"

const researchSystemPrompt = `You are a Movement Labs documentation expert with deep knowledge
of Move Language, the Movement blockchain, and related technologies. Your role is to help users
understand technical concepts and solve problems by searching and analyzing the official
documentation.

Use the search tool to find relevant documentation before answering.
Provide a clear and accurate answer based on the documentation.
If information is missing or unclear, say so explicitly.
Maintain conversation context and reference previous discussion if relevant.`

// Messages returned by the search tool when retrieval yields nothing or fails.
// These reach the model, not the user, so they stay short and directive.
const (
	noDocsFoundMsg  = "No relevant documentation found."
	searchFailedMsg = "Error searching documentation. Please try again."
)

// DocSearcher retrieves documentation chunks relevant to a query.
type DocSearcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// SearchDocsInput defines input for the search_movement_docs tool.
type SearchDocsInput struct {
	Query string `json:"query" jsonschema_description:"The search query string"`
}

// Research answers documentation questions with retrieval-augmented
// generation. One instance serves all users; per-user serialization is the
// caller's concern.
type Research struct {
	g        *genkit.Genkit
	model    string
	searcher DocSearcher
	topK     int
	tool     ai.Tool
	logger   *slog.Logger
}

// NewResearch creates the research agent and registers its search tool.
// topK bounds how many documentation chunks each search returns; zero or
// negative falls back to the store default.
func NewResearch(g *genkit.Genkit, model string, searcher DocSearcher, topK int, logger *slog.Logger) (*Research, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Research{g: g, model: model, searcher: searcher, topK: topK, logger: logger}
	r.tool = genkit.DefineTool(g, SearchDocsName,
		"Search Movement Labs documentation for relevant information. "+
			"Returns matching documentation excerpts with their source paths.",
		r.searchDocs)
	return r, nil
}

// searchDocs is the tool handler. Errors are reported as text so the model
// can tell the user retrieval failed instead of aborting the whole turn.
func (r *Research) searchDocs(ctx *ai.ToolContext, input SearchDocsInput) (string, error) {
	var opts []knowledge.SearchOption
	if r.topK > 0 {
		opts = append(opts, knowledge.WithTopK(r.topK))
	}
	results, err := r.searcher.Search(ctx, input.Query, opts...)
	if err != nil {
		r.logger.Warn("documentation search failed", "query", input.Query, "error", err)
		return searchFailedMsg, nil
	}
	if len(results) == 0 {
		return noDocsFoundMsg, nil
	}

	sections := make([]string, 0, len(results))
	for _, res := range results {
		path := res.Document.Metadata[knowledge.MetaPath]
		if path == "" {
			path = res.Document.ID
		}
		sections = append(sections, fmt.Sprintf("From %s:\n%s", path, res.Document.Content))
	}
	return strings.Join(sections, "\n\n"), nil
}

// Answer runs one retrieval-augmented turn. History is replayed as prior
// user and model messages so the model can resolve follow-up questions.
func (r *Research) Answer(ctx context.Context, question string, history []chatctx.Turn) (string, error) {
	messages := make([]*ai.Message, 0, len(history)*2+1)
	for _, turn := range history {
		messages = append(messages,
			ai.NewUserMessage(ai.NewTextPart(turn.User)),
			ai.NewModelMessage(ai.NewTextPart(turn.Bot)),
		)
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(question)))

	resp, err := genkit.Generate(ctx, r.g,
		ai.WithModelName(r.model),
		ai.WithSystem(researchSystemPrompt),
		ai.WithMessages(messages...),
		ai.WithTools(r.tool),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	return resp.Text(), nil
}
