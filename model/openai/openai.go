// Package openai provides model.Generator and model.Embedder implementations
// backed by the OpenAI API. It serves the economy generation tier and the
// embedding provider by default.
package openai

import (
	"context"
	"fmt"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/model"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI adapter. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	EmbeddingModel      openai.EmbeddingModel
	Temperature         float64
	MaxCompletionTokens int64
}

// Generator wraps the OpenAI Chat Completions API behind model.Generator.
type Generator struct {
	client *openai.Client
	opts   Options
}

// NewGenerator creates a new OpenAI generator using the official client.
func NewGenerator(optFns ...func(o *Options)) *Generator {
	client := openai.NewClient()
	return NewGeneratorFromClient(&client, optFns...)
}

// NewGeneratorFromClient creates a new OpenAI generator from an existing client.
func NewGeneratorFromClient(client *openai.Client, optFns ...func(o *Options)) *Generator {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		EmbeddingModel:      openai.EmbeddingModelTextEmbedding3Small,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts}
}

// Generate implements model.Generator with a non-streaming completion.
func (g *Generator) Generate(ctx context.Context, prompt string, c model.Constraints) (model.Generation, error) {
	params := openai.ChatCompletionNewParams{
		Model:               g.opts.Model,
		Temperature:         openai.Float(g.opts.Temperature),
		MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
	}
	if c.Temperature > 0 {
		params.Temperature = openai.Float(c.Temperature)
	}
	if c.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.MaxTokens)
	}
	if c.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(c.System))
	}
	params.Messages = append(params.Messages, openai.UserMessage(prompt))

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.Generation{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Generation{}, fmt.Errorf("no choices returned")
	}

	return model.Generation{
		Text:   resp.Choices[0].Message.Content,
		Tokens: int(resp.Usage.TotalTokens),
	}, nil
}

// Info returns metadata describing this OpenAI generator.
func (g *Generator) Info() model.Info {
	return model.Info{Name: g.opts.Model, Provider: "openai"}
}

// Embedder wraps the OpenAI Embeddings API behind model.Embedder producing
// core.EmbeddingDimensions wide vectors.
type Embedder struct {
	client *openai.Client
	opts   Options
}

// NewEmbedder creates a new OpenAI embedder using the official client.
func NewEmbedder(optFns ...func(o *Options)) *Embedder {
	client := openai.NewClient()
	return NewEmbedderFromClient(&client, optFns...)
}

// NewEmbedderFromClient creates a new OpenAI embedder from an existing client.
func NewEmbedderFromClient(client *openai.Client, optFns ...func(o *Options)) *Embedder {
	opts := Options{EmbeddingModel: openai.EmbeddingModelTextEmbedding3Small}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Embedder{client: client, opts: opts}
}

// Embed implements model.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, int, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.opts.EmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, 0, fmt.Errorf("no embedding returned")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != core.EmbeddingDimensions {
		return nil, 0, fmt.Errorf("unexpected embedding width %d", len(raw))
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}

	return vec, int(resp.Usage.PromptTokens), nil
}
