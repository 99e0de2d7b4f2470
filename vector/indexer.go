package vector

import (
	"context"
	"fmt"

	"github.com/hupe1980/contextmesh/logging"
	"github.com/hupe1980/contextmesh/model"
)

// IndexerOptions configure the document indexer.
type IndexerOptions struct {
	Chunker *Chunker
	Logger  logging.Logger
}

// Indexer turns raw documents into embedded chunks in a vector index:
// chunk, embed, upsert. Re-indexing a source path replaces its previous
// chunks.
type Indexer struct {
	embedder model.Embedder
	writer   Writer
	opts     IndexerOptions
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder model.Embedder, writer Writer, optFns ...func(o *IndexerOptions)) *Indexer {
	opts := IndexerOptions{
		Chunker: NewChunker(),
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Indexer{embedder: embedder, writer: writer, opts: opts}
}

// Index chunks and embeds one document and writes it to the index under the
// given namespace and source path. Returns the number of chunks written and
// the embedding tokens spent.
func (ix *Indexer) Index(ctx context.Context, namespace, sourcePath, content string) (chunks, tokens int, err error) {
	parts := ix.opts.Chunker.Chunk(content)
	if len(parts) == 0 {
		return 0, 0, nil
	}

	entries := make([]Entry, 0, len(parts))
	for i, text := range parts {
		embedding, t, err := ix.embedder.Embed(ctx, text)
		if err != nil {
			return 0, tokens, fmt.Errorf("embed chunk %d of %s: %w", i, sourcePath, err)
		}
		tokens += t
		entries = append(entries, Entry{
			ID:         fmt.Sprintf("%s:%s:%d", namespace, sourcePath, i),
			Namespace:  namespace,
			SourcePath: sourcePath,
			ChunkIndex: i,
			Text:       text,
			Embedding:  embedding,
		})
	}

	if err := ix.writer.Clear(ctx, namespace, sourcePath); err != nil {
		return 0, tokens, fmt.Errorf("clear previous chunks of %s: %w", sourcePath, err)
	}
	if err := ix.writer.Upsert(ctx, entries); err != nil {
		return 0, tokens, fmt.Errorf("index %s: %w", sourcePath, err)
	}

	ix.opts.Logger.Info("document indexed", "namespace", namespace, "source", sourcePath, "chunks", len(entries), "tokens", tokens)
	return len(entries), tokens, nil
}
