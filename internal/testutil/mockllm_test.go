package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/go-cmp/cmp"
)

func generateText(t *testing.T, g *genkit.Genkit, prompt string) string {
	t.Helper()

	resp, err := genkit.Generate(context.Background(), g,
		ai.WithModelName(MockLLMName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return resp.Text()
}

func TestMockLLM_MatchesPattern(t *testing.T) {
	g := genkit.Init(context.Background())
	llm := NewMockLLM("I don't know.")
	llm.AddResponse("gas fees", "Gas is paid in MOVE.")
	llm.RegisterModel(g)

	if got := generateText(t, g, "How do GAS FEES work?"); got != "Gas is paid in MOVE." {
		t.Errorf("Generate() = %q, want canned answer (match is case-insensitive)", got)
	}
}

func TestMockLLM_FallbackWhenNoMatch(t *testing.T) {
	g := genkit.Init(context.Background())
	llm := NewMockLLM("I don't know.")
	llm.AddResponse("resource model", "Resources are linear.")
	llm.RegisterModel(g)

	if got := generateText(t, g, "unrelated question"); got != "I don't know." {
		t.Errorf("Generate() = %q, want fallback", got)
	}
}

func TestMockLLM_FirstRegistrationWins(t *testing.T) {
	g := genkit.Init(context.Background())
	llm := NewMockLLM("fallback")
	llm.AddResponse("move", "first")
	llm.AddResponse("move language", "second")
	llm.RegisterModel(g)

	if got := generateText(t, g, "tell me about the move language"); got != "first" {
		t.Errorf("Generate() = %q, want earliest matching registration", got)
	}
}

func TestMockLLM_RecordsCalls(t *testing.T) {
	g := genkit.Init(context.Background())
	llm := NewMockLLM("ok")
	llm.RegisterModel(g)

	generateText(t, g, "first question")
	generateText(t, g, "second question")

	want := []MockCall{
		{UserMessage: "first question", Response: "ok"},
		{UserMessage: "second question", Response: "ok"},
	}
	if diff := cmp.Diff(want, llm.Calls()); diff != "" {
		t.Errorf("Calls() mismatch (-want +got):\n%s", diff)
	}
}

func TestMockLLM_LastUserMessageWins(t *testing.T) {
	// History replay sends several user messages; the match target is the
	// most recent one, the way the research agent appends the question last.
	g := genkit.Init(context.Background())
	llm := NewMockLLM("fallback")
	llm.AddResponse("older question", "stale")
	llm.AddResponse("newest question", "fresh")
	llm.RegisterModel(g)

	resp, err := genkit.Generate(context.Background(), g,
		ai.WithModelName(MockLLMName),
		ai.WithMessages(
			ai.NewUserMessage(ai.NewTextPart("older question")),
			ai.NewModelMessage(ai.NewTextPart("old answer")),
			ai.NewUserMessage(ai.NewTextPart("newest question")),
		),
	)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text() != "fresh" {
		t.Errorf("Generate() = %q, want match against the last user message", resp.Text())
	}
}

func TestMockLLM_ConcurrentUse(t *testing.T) {
	g := genkit.Init(context.Background())
	llm := NewMockLLM("ok")
	llm.RegisterModel(g)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := genkit.Generate(context.Background(), g,
				ai.WithModelName(MockLLMName),
				ai.WithPrompt("concurrent question"),
			)
			if err != nil {
				t.Errorf("Generate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	calls := llm.Calls()
	if len(calls) != 8 {
		t.Fatalf("Calls() = %d entries, want 8", len(calls))
	}
	for _, c := range calls {
		if !strings.Contains(c.UserMessage, "concurrent") {
			t.Errorf("unexpected recorded message %q", c.UserMessage)
		}
	}
}
