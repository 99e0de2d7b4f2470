package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/logging"
	"github.com/hupe1980/contextmesh/model"
	"github.com/hupe1980/contextmesh/vector"
	"github.com/hupe1980/contextmesh/workflow"
)

// RetrieverOptions configure the retrieval agent.
type RetrieverOptions struct {
	// Threshold is the minimum similarity for a chunk to count as relevant.
	Threshold float64

	// Limit caps the number of returned chunks (top-k).
	Limit int

	// EmbeddingCostPerThousandTokens prices the query embedding call.
	EmbeddingCostPerThousandTokens float64

	// Keyword enables hybrid scoring: thresholded semantic matches and
	// keyword scores are blended with the given weights and ranked by the
	// blended score. Nil keeps pure semantic search.
	Keyword        vector.KeywordSearcher
	SemanticWeight float64
	KeywordWeight  float64

	Logger logging.Logger
}

// Retriever embeds the query text and searches the vector index for relevant
// context chunks scoped to the query namespace. Zero matches above threshold
// is a valid outcome, not an error.
type Retriever struct {
	embedder model.Embedder
	searcher core.VectorSearcher
	opts     RetrieverOptions
}

// NewRetriever creates a new retrieval agent.
func NewRetriever(embedder model.Embedder, searcher core.VectorSearcher, optFns ...func(o *RetrieverOptions)) *Retriever {
	opts := RetrieverOptions{
		Threshold:      0.7,
		Limit:          5,
		SemanticWeight: 0.7,
		KeywordWeight:  0.3,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Retriever{embedder: embedder, searcher: searcher, opts: opts}
}

// Name implements workflow.Step.
func (r *Retriever) Name() string { return StepRetrieval }

// Run implements workflow.Step.
func (r *Retriever) Run(ctx context.Context, state *core.WorkflowState) (workflow.Usage, error) {
	embedding, tokens, err := r.embedder.Embed(ctx, state.Query.Text)
	if err != nil {
		return workflow.Usage{}, fmt.Errorf("embed query: %w", err)
	}

	usage := workflow.Usage{
		CostUSD: float64(tokens) / 1000.0 * r.opts.EmbeddingCostPerThousandTokens,
		Tokens:  tokens,
	}

	matches, err := r.search(ctx, embedding, state.Query)
	if err != nil {
		return usage, fmt.Errorf("vector search: %w", err)
	}

	chunks := make([]core.Chunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, core.Chunk{
			Source: m.SourcePath,
			Text:   m.Text,
			Score:  m.Similarity,
		})
	}

	state.SetRetrievedChunks(chunks)
	r.opts.Logger.Debug("context retrieved", "workflow_id", state.ID, "chunks", len(chunks), "threshold", r.opts.Threshold)
	return usage, nil
}

func (r *Retriever) search(ctx context.Context, embedding []float32, q core.Query) ([]core.Match, error) {
	if r.opts.Keyword == nil {
		return r.searcher.Search(ctx, embedding, q.Namespace, r.opts.Threshold, r.opts.Limit)
	}

	// Hybrid mode: the threshold applies to the raw semantic candidates, not
	// to the blended score. Both candidate sets are oversized so the blend
	// has room to reorder before the limit cuts it down.
	semantic, err := r.searcher.Search(ctx, embedding, q.Namespace, r.opts.Threshold, r.opts.Limit*2)
	if err != nil {
		return nil, err
	}
	keyword, err := r.opts.Keyword.KeywordSearch(ctx, q.Text, q.Namespace, r.opts.Limit*2)
	if err != nil {
		return nil, err
	}

	return vector.BlendScores(semantic, keyword, r.opts.SemanticWeight, r.opts.KeywordWeight, r.opts.Limit), nil
}
