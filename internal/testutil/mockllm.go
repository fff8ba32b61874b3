package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLMName is the model name the mock registers under.
const MockLLMName = "mock/test-model"

// MockLLM is a deterministic stand-in for the Gemini model. Agent tests
// register canned answers keyed by a substring of the user message: a
// documentation question maps to a fixed answer, a trend prompt maps to a
// fixed idea JSON blob. Unmatched messages get the fallback.
//
// Safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	answers  []cannedAnswer
	fallback string
	calls    []MockCall
}

type cannedAnswer struct {
	pattern string // lowercased substring of the user message
	reply   string
}

// MockCall records one model invocation.
type MockCall struct {
	UserMessage string // last user message in the request
	Response    string // text the mock replied with
}

// NewMockLLM creates a mock whose unmatched requests return fallback.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse maps messages containing pattern (case-insensitive) to reply.
// Earlier registrations win.
func (m *MockLLM) AddResponse(pattern, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, cannedAnswer{
		pattern: strings.ToLower(pattern),
		reply:   reply,
	})
}

// Calls returns a copy of every recorded invocation, oldest first.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// RegisterModel defines the mock as a Genkit model named MockLLMName.
// Tool and system-role support is declared so the research agent can
// attach its search tool without Generate rejecting the request.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockLLMName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}

	m.mu.Lock()
	reply := m.fallback
	lower := strings.ToLower(userText)
	for _, a := range m.answers {
		if strings.Contains(lower, a.pattern) {
			reply = a.reply
			break
		}
	}
	m.calls = append(m.calls, MockCall{UserMessage: userText, Response: reply})
	m.mu.Unlock()

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(reply)},
		},
	}, nil
}
