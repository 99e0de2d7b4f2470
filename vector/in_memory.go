package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hupe1980/contextmesh/core"
)

// Entry is one embedded chunk stored in an index.
type Entry struct {
	ID         string
	Namespace  string
	SourcePath string
	ChunkIndex int
	Text       string
	Embedding  []float32
	Metadata   map[string]string
}

// Writer is the indexing side of a vector index.
type Writer interface {
	// Upsert inserts or replaces entries by id.
	Upsert(ctx context.Context, entries []Entry) error

	// Clear removes every entry of a source path within a namespace, used
	// before re-indexing a document.
	Clear(ctx context.Context, namespace, sourcePath string) error
}

// InMemoryIndex is a thread-safe in-memory vector index with cosine
// similarity. It backs tests and small single-process deployments; the
// pgvector index is the production implementation of the same contracts.
type InMemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

// NewInMemoryIndex creates an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{entries: map[string]Entry{}}
}

// Upsert implements Writer.
func (idx *InMemoryIndex) Upsert(_ context.Context, entries []Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, e := range entries {
		if len(e.Embedding) != core.EmbeddingDimensions {
			return fmt.Errorf("entry %s: embedding width %d, want %d", e.ID, len(e.Embedding), core.EmbeddingDimensions)
		}
		if _, exists := idx.entries[e.ID]; !exists {
			idx.order = append(idx.order, e.ID)
		}
		idx.entries[e.ID] = e
	}
	return nil
}

// Clear implements Writer.
func (idx *InMemoryIndex) Clear(_ context.Context, namespace, sourcePath string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	keep := idx.order[:0]
	for _, id := range idx.order {
		e := idx.entries[id]
		if e.Namespace == namespace && e.SourcePath == sourcePath {
			delete(idx.entries, id)
			continue
		}
		keep = append(keep, id)
	}
	idx.order = keep
	return nil
}

// Len returns the number of stored entries.
func (idx *InMemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Search implements core.VectorSearcher with cosine similarity. Insertion
// order breaks score ties so results are deterministic.
func (idx *InMemoryIndex) Search(_ context.Context, embedding []float32, namespace string, threshold float64, limit int) ([]core.Match, error) {
	if len(embedding) != core.EmbeddingDimensions {
		return nil, fmt.Errorf("query embedding width %d, want %d", len(embedding), core.EmbeddingDimensions)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		match core.Match
		pos   int
	}
	var hits []scored
	for pos, id := range idx.order {
		e := idx.entries[id]
		if e.Namespace != namespace {
			continue
		}
		sim := cosine(embedding, e.Embedding)
		if sim < threshold {
			continue
		}
		hits = append(hits, scored{pos: pos, match: core.Match{
			ID:         e.ID,
			Namespace:  e.Namespace,
			SourcePath: e.SourcePath,
			ChunkIndex: e.ChunkIndex,
			Text:       e.Text,
			Similarity: sim,
			Metadata:   e.Metadata,
		}})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].match.Similarity != hits[j].match.Similarity {
			return hits[i].match.Similarity > hits[j].match.Similarity
		}
		return hits[i].pos < hits[j].pos
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]core.Match, len(hits))
	for i, h := range hits {
		out[i] = h.match
	}
	return out, nil
}

// KeywordSearch implements KeywordSearcher over the stored chunk texts.
func (idx *InMemoryIndex) KeywordSearch(_ context.Context, query, namespace string, limit int) ([]core.Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var hits []core.Match
	for _, id := range idx.order {
		e := idx.entries[id]
		if e.Namespace != namespace {
			continue
		}
		score := keywordScore(e.Text, query)
		if score <= 0 {
			continue
		}
		hits = append(hits, core.Match{
			ID:         e.ID,
			Namespace:  e.Namespace,
			SourcePath: e.SourcePath,
			ChunkIndex: e.ChunkIndex,
			Text:       e.Text,
			Similarity: score,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
