package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hupe1980/contextmesh/core"
)

// PgIndex is the pgvector-backed implementation of core.VectorSearcher,
// Writer and KeywordSearcher. It expects a context_embeddings table with a
// vector(1536) column and a cosine distance index.
type PgIndex struct {
	db *sqlx.DB
}

// NewPgIndex creates a PgIndex on an existing connection pool.
func NewPgIndex(db *sqlx.DB) *PgIndex {
	return &PgIndex{db: db}
}

type pgMatchRow struct {
	ID         string  `db:"id"`
	Namespace  string  `db:"namespace"`
	SourcePath string  `db:"source_path"`
	ChunkIndex int     `db:"chunk_index"`
	Content    string  `db:"content"`
	Similarity float64 `db:"similarity"`
	Metadata   []byte  `db:"metadata"`
}

// Search implements core.VectorSearcher via pgvector cosine distance.
func (p *PgIndex) Search(ctx context.Context, embedding []float32, namespace string, threshold float64, limit int) ([]core.Match, error) {
	if len(embedding) != core.EmbeddingDimensions {
		return nil, fmt.Errorf("query embedding width %d, want %d", len(embedding), core.EmbeddingDimensions)
	}

	const query = `
		SELECT id, namespace, source_path, chunk_index, content, metadata,
		       1 - (embedding <=> $1) AS similarity
		FROM context_embeddings
		WHERE namespace = $2
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1, id
		LIMIT $4`

	var rows []pgMatchRow
	if err := p.db.SelectContext(ctx, &rows, query, vectorLiteral(embedding), namespace, threshold, limit); err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	return matchesFromRows(rows), nil
}

// KeywordSearch implements KeywordSearcher. Each keyword contributes
// min(occurrences/10, 1.0) to the score, computed in SQL so only matching
// rows cross the wire.
func (p *PgIndex) KeywordSearch(ctx context.Context, query, namespace string, limit int) ([]core.Match, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	// Occurrences counted by length delta after stripping the keyword.
	var scores []string
	args := []any{namespace}
	for _, term := range terms {
		args = append(args, term)
		scores = append(scores, fmt.Sprintf(
			"LEAST((length(lower(content)) - length(replace(lower(content), $%d, '')))::float / (length($%d) * 10), 1.0)",
			len(args), len(args)))
	}
	args = append(args, limit)

	sql := fmt.Sprintf(`
		SELECT id, namespace, source_path, chunk_index, content, metadata,
		       (%s) AS similarity
		FROM context_embeddings
		WHERE namespace = $1
		  AND (%s) > 0
		ORDER BY similarity DESC, id
		LIMIT $%d`,
		strings.Join(scores, " + "), strings.Join(scores, " + "), len(args))

	var rows []pgMatchRow
	if err := p.db.SelectContext(ctx, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	return matchesFromRows(rows), nil
}

// Upsert implements Writer.
func (p *PgIndex) Upsert(ctx context.Context, entries []Entry) error {
	const stmt = `
		INSERT INTO context_embeddings (id, namespace, source_path, chunk_index, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if len(e.Embedding) != core.EmbeddingDimensions {
			return fmt.Errorf("entry %s: embedding width %d, want %d", e.ID, len(e.Embedding), core.EmbeddingDimensions)
		}
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, e.ID, e.Namespace, e.SourcePath, e.ChunkIndex, e.Text, vectorLiteral(e.Embedding), meta); err != nil {
			return fmt.Errorf("upsert entry %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// Clear implements Writer.
func (p *PgIndex) Clear(ctx context.Context, namespace, sourcePath string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM context_embeddings WHERE namespace = $1 AND source_path = $2`,
		namespace, sourcePath)
	if err != nil {
		return fmt.Errorf("clear %s/%s: %w", namespace, sourcePath, err)
	}
	return nil
}

// vectorLiteral renders an embedding in pgvector's input syntax.
func vectorLiteral(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func matchesFromRows(rows []pgMatchRow) []core.Match {
	out := make([]core.Match, len(rows))
	for i, r := range rows {
		m := core.Match{
			ID:         r.ID,
			Namespace:  r.Namespace,
			SourcePath: r.SourcePath,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Content,
			Similarity: r.Similarity,
		}
		if len(r.Metadata) > 0 {
			_ = json.Unmarshal(r.Metadata, &m.Metadata)
		}
		out[i] = m
	}
	return out
}
