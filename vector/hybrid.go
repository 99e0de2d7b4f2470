package vector

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/hupe1980/contextmesh/core"
)

// maxKeywords caps how many leading query terms participate in keyword
// scoring.
const maxKeywords = 3

// KeywordSearcher scores chunks by keyword occurrence in the chunk text.
// A chunk's score is the sum over the query keywords of min(count/10, 1.0),
// where count is how often the keyword occurs in the chunk.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, query, namespace string, limit int) ([]core.Match, error)
}

// BlendScores merges a semantic and a keyword result set into one ranking.
// A chunk's blended score is semanticWeight*similarity + keywordWeight*score;
// a chunk present in only one set contributes zero from the other. The
// semantic set is expected to be pre-thresholded by the caller; no threshold
// applies to the blended score. Results come back in descending blended
// order capped at limit, with the chunk id as a deterministic tie-break.
func BlendScores(semantic, keyword []core.Match, semanticWeight, keywordWeight float64, limit int) []core.Match {
	blended := map[string]core.Match{}

	for _, m := range semantic {
		m.Similarity = semanticWeight * m.Similarity
		blended[m.ID] = m
	}
	for _, m := range keyword {
		if existing, ok := blended[m.ID]; ok {
			existing.Similarity += keywordWeight * m.Similarity
			blended[m.ID] = existing
			continue
		}
		m.Similarity = keywordWeight * m.Similarity
		blended[m.ID] = m
	}

	out := make([]core.Match, 0, len(blended))
	for _, m := range blended {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// keywordScore sums min(occurrences/10, 1.0) per query keyword. Used by the
// in-memory keyword searcher; the Postgres implementation pushes the same
// calculation into SQL.
func keywordScore(text, query string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, term := range queryTerms(query) {
		count := strings.Count(lower, term)
		score += math.Min(float64(count)/10.0, 1.0)
	}
	return score
}

// queryTerms lowercases the query and keeps its leading keywords.
func queryTerms(query string) []string {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) > maxKeywords {
		terms = terms[:maxKeywords]
	}
	return terms
}
