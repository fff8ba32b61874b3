package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/movecult/movebot/internal/ideas"
)

const ideaSystemPrompt = `You are a seasoned content strategist with deep knowledge of blockchain,
particularly Move Language and Movement Labs. You understand the technical aspects while being
able to communicate them effectively to different audience segments.`

const ideaPromptTemplate = `Based on these recent tweets about Movement Labs and Move Language:

%s

Generate 5 new content ideas that would resonate with the community.
Each idea should include:
- Title
- Key points to cover
- Target audience
- Suggested tone

Format as a JSON list of objects with keys "title", "key_points", "target_audience", "tone".`

// fallbackIdea is used when the model response cannot be parsed as JSON, so
// the posting loop always has something to work with.
var fallbackIdea = ideas.Idea{
	Title:          "Understanding Move Language Smart Contracts",
	KeyPoints:      "Safety, Performance, Developer Experience",
	TargetAudience: "Web3 Developers",
	Tone:           "Technical but accessible",
}

// IdeaGenerator turns recent community posts into content ideas.
type IdeaGenerator struct {
	g      *genkit.Genkit
	model  string
	logger *slog.Logger
}

// NewIdeaGenerator creates an idea generator bound to the given model.
func NewIdeaGenerator(g *genkit.Genkit, model string, logger *slog.Logger) (*IdeaGenerator, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdeaGenerator{g: g, model: model, logger: logger}, nil
}

// Generate produces content ideas from recent post texts. A response the
// model returns in a shape we cannot parse degrades to a single fallback
// idea rather than an error.
func (ig *IdeaGenerator) Generate(ctx context.Context, posts []string) ([]ideas.Idea, error) {
	lines := make([]string, 0, len(posts))
	for _, p := range posts {
		lines = append(lines, "- "+p)
	}

	resp, err := genkit.Generate(ctx, ig.g,
		ai.WithModelName(ig.model),
		ai.WithSystem(ideaSystemPrompt),
		ai.WithPrompt(ideaPromptTemplate, strings.Join(lines, "\n")),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}

	parsed := parseIdeas(resp.Text())
	if parsed == nil {
		ig.logger.Warn("unparseable idea response, using fallback",
			"response_len", len(resp.Text()))
		return []ideas.Idea{fallbackIdea}, nil
	}
	return parsed, nil
}

// parseIdeas extracts a JSON idea list from model output. Returns nil when
// nothing usable can be recovered.
func parseIdeas(text string) []ideas.Idea {
	cleaned := stripCodeFence(text)

	var list []ideas.Idea
	if err := json.Unmarshal([]byte(cleaned), &list); err != nil {
		// Models sometimes wrap the list in prose; try the bracketed slice.
		start := strings.Index(cleaned, "[")
		end := strings.LastIndex(cleaned, "]")
		if start < 0 || end <= start {
			return nil
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &list); err != nil {
			return nil
		}
	}

	valid := make([]ideas.Idea, 0, len(list))
	for _, idea := range list {
		if strings.TrimSpace(idea.Title) == "" {
			continue
		}
		valid = append(valid, idea)
	}
	if len(valid) == 0 {
		return nil
	}
	return valid
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
