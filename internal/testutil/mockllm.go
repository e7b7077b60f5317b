package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the registered name of the mock model.
const MockModelName = "mock/test-model"

// MockLLM provides deterministic model responses for testing. It matches the
// latest user message against registered patterns (first match wins) and
// returns the corresponding response text and tool requests.
//
// After a tool response message, a rule's tool requests are not repeated
// unless the rule was registered with AddRepeatingToolResponse; this lets one
// rule drive a request-then-answer exchange, and a repeating rule drive a
// loop that never terminates.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	intents  []mockRule
	fallback string
	calls    []MockCall
}

type mockRule struct {
	pattern     string // substring match in user message, lowercase
	response    string
	tools       []*ai.ToolRequest
	repeatTools bool
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage string
	Response    string
	ToolRound   bool // the request already contained a tool response
}

// NewMockLLM creates a mock model with the given fallback response.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair. When a user message contains
// the pattern (case-insensitive), the response is returned.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// AddIntent registers a classification for structured-output calls whose user
// message contains the pattern. Structured calls check these first and fall
// through to the regular rules, so one mock can serve both a classifier and
// the agent it routes to.
func (m *MockLLM) AddIntent(pattern, intent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents = append(m.intents, mockRule{
		pattern:  strings.ToLower(pattern),
		response: fmt.Sprintf(`{"intent":%q}`, intent),
	})
}

// AddToolResponse registers a pattern that first requests the given tools,
// then answers with textResponse once a tool response is in the request.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest, textResponse string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: textResponse,
		tools:    tools,
	})
}

// AddRepeatingToolResponse registers a pattern that requests the given tools
// on every call, never settling on a final answer.
func (m *MockLLM) AddRepeatingToolResponse(pattern string, tools []*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:     strings.ToLower(pattern),
		tools:       tools,
		repeatTools: true,
	})
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset clears recorded calls, keeping registered rules.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// RegisterModel registers the mock as a genkit model and returns a reference.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockModelName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      false,
		},
	}, m.generate)
}

// generate is the genkit model function.
func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	toolRound := false
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser && userText == "" {
			userText = req.Messages[i].Text()
		}
	}
	if len(req.Messages) > 0 && req.Messages[len(req.Messages)-1].Role == ai.RoleTool {
		toolRound = true
	}

	m.mu.Lock()
	var matched *mockRule
	lower := strings.ToLower(userText)
	if req.Output != nil && req.Output.Schema != nil {
		for i := range m.intents {
			if strings.Contains(lower, m.intents[i].pattern) {
				matched = &m.intents[i]
				break
			}
		}
	}
	if matched == nil {
		for i := range m.rules {
			if strings.Contains(lower, m.rules[i].pattern) {
				matched = &m.rules[i]
				break
			}
		}
	}

	responseText := m.fallback
	emitTools := false
	if matched != nil {
		responseText = matched.response
		emitTools = len(matched.tools) > 0 && (matched.repeatTools || !toolRound)
		if emitTools {
			// The text answer belongs to the round after the tool
			// responses come back.
			responseText = ""
		}
	}

	m.calls = append(m.calls, MockCall{
		UserMessage: userText,
		Response:    responseText,
		ToolRound:   toolRound,
	})
	m.mu.Unlock()

	if cb != nil && responseText != "" {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		})
	}

	var parts []*ai.Part
	if emitTools {
		for _, tr := range matched.tools {
			parts = append(parts, &ai.Part{
				Kind:        ai.PartToolRequest,
				ToolRequest: tr,
			})
		}
	}
	if responseText != "" || len(parts) == 0 {
		parts = append(parts, ai.NewTextPart(responseText))
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}, nil
}

// MockEmbedder provides deterministic embedding vectors for testing.
//
// By default it derives a unit vector from the content's SHA-256, so the same
// text always embeds identically. Explicit mappings can be added for precise
// cosine similarity control.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
}

// NewMockEmbedder creates a mock embedder with the given dimensions.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a content string.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// RegisterEmbedder registers the mock as a genkit embedder.
func (e *MockEmbedder) RegisterEmbedder(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		embeddings[i] = &ai.Embedding{
			Embedding: e.vectorFor(documentText(doc)),
		}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (e *MockEmbedder) vectorFor(content string) []float32 {
	e.mu.Lock()
	if v, ok := e.vectors[content]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()

	return deterministicVector(content, e.dim)
}

func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// deterministicVector generates a normalized vector from content via SHA-256.
func deterministicVector(content string, dim int) []float32 {
	hash := sha256.Sum256([]byte(content))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}
