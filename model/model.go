// Package model defines the normalized text-generation and embedding
// provider abstractions plus the cost router that picks an economy or
// premium provider/model pair per call site. Concrete adapters live in the
// openai and anthropic subpackages.
package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/hupe1980/contextmesh/core"
)

// Constraints bound a single generation call. Zero values fall back to the
// adapter's defaults.
type Constraints struct {
	System      string  `json:"system,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Generation is the raw provider output of one generation call.
type Generation struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// Info contains metadata about a generator implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Generator is the minimal interface required to drive text generation.
// Implementations are rate-limited RPC endpoints; calls must respect ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string, c Constraints) (Generation, error)

	// Info returns information about the generator implementation.
	Info() Info
}

// Embedder produces fixed-width embedding vectors for retrieval. Tokens is
// the provider-reported usage for cost accounting.
type Embedder interface {
	Embed(ctx context.Context, text string) (vector []float32, tokens int, err error)
}

// MockGenerator is a lightweight in-memory Generator useful for tests.
type MockGenerator struct {
	info       Info
	responses  map[string]string
	fallback   string
	tokens     int
	err        error
	mu         sync.Mutex
	promptsLog []string
}

// NewMockGenerator constructs a MockGenerator reporting the given token
// usage for every call.
func NewMockGenerator(name, provider string, tokens int) *MockGenerator {
	return &MockGenerator{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
		tokens:    tokens,
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockGenerator) AddResponse(prompt, response string) { m.responses[prompt] = response }

// SetFallback sets the completion returned for prompts without a canned
// response.
func (m *MockGenerator) SetFallback(response string) { m.fallback = response }

// FailWith makes every subsequent call return err.
func (m *MockGenerator) FailWith(err error) { m.err = err }

// Prompts returns every prompt received, in call order.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.promptsLog...)
}

// Generate implements Generator returning a canned or echoed completion.
func (m *MockGenerator) Generate(_ context.Context, prompt string, _ Constraints) (Generation, error) {
	m.mu.Lock()
	m.promptsLog = append(m.promptsLog, prompt)
	m.mu.Unlock()

	if m.err != nil {
		return Generation{}, m.err
	}
	text := m.responses[prompt]
	if text == "" {
		text = m.fallback
	}
	if text == "" {
		text = fmt.Sprintf("Mock response to: %s", prompt)
	}
	return Generation{Text: text, Tokens: m.tokens}, nil
}

// Info implements Generator.
func (m *MockGenerator) Info() Info { return m.info }

// MockEmbedder derives a deterministic unit-length vector from the input
// text so retrieval tests are reproducible without a provider.
type MockEmbedder struct {
	tokens int
	err    error
}

// NewMockEmbedder constructs a MockEmbedder reporting the given token usage.
func NewMockEmbedder(tokens int) *MockEmbedder { return &MockEmbedder{tokens: tokens} }

// FailWith makes every subsequent call return err.
func (m *MockEmbedder) FailWith(err error) { m.err = err }

// Embed implements Embedder.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, core.EmbeddingDimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33))/float32(1<<31) + 1e-6
	}
	return vec, m.tokens, nil
}
