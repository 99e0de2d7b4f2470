package vector

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/contextmesh/core"
)

func newMockIndex(t *testing.T) (*PgIndex, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPgIndex(sqlx.NewDb(db, "sqlmock")), mock
}

func TestPgIndexSearch(t *testing.T) {
	idx, mock := newMockIndex(t)

	embedding := make([]float32, core.EmbeddingDimensions)
	embedding[0] = 1

	mock.ExpectQuery(`SELECT id, namespace, source_path, chunk_index, content, metadata`).
		WithArgs(vectorLiteral(embedding), "ns", 0.7, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "namespace", "source_path", "chunk_index", "content", "metadata", "similarity"}).
			AddRow("a", "ns", "a.md", 0, "oauth flows", []byte(`{"lang":"en"}`), 0.93).
			AddRow("b", "ns", "b.md", 2, "token lifetimes", nil, 0.81))

	matches, err := idx.Search(context.Background(), embedding, "ns", 0.7, 5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, matches, 2)
	assert.Equal(t, "a.md", matches[0].SourcePath)
	assert.InDelta(t, 0.93, matches[0].Similarity, 1e-9)
	assert.Equal(t, map[string]string{"lang": "en"}, matches[0].Metadata)
	assert.Equal(t, 2, matches[1].ChunkIndex)
}

func TestPgIndexSearchRejectsWrongWidth(t *testing.T) {
	idx, _ := newMockIndex(t)
	_, err := idx.Search(context.Background(), []float32{1, 2}, "ns", 0.7, 5)
	assert.Error(t, err)
}

func TestPgIndexKeywordSearch(t *testing.T) {
	idx, mock := newMockIndex(t)

	// Only the first three keywords are scored, lowercased.
	mock.ExpectQuery(`LEAST\(\(length\(lower\(content\)\)`).
		WithArgs("ns", "oauth", "token", "lifetime", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "namespace", "source_path", "chunk_index", "content", "metadata", "similarity"}).
			AddRow("a", "ns", "a.md", 0, "oauth token docs", nil, 0.2))

	matches, err := idx.KeywordSearch(context.Background(), "OAuth Token Lifetime refresh", "ns", 5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 0.2, matches[0].Similarity, 1e-9)
}

func TestPgIndexKeywordSearchEmptyQuery(t *testing.T) {
	idx, _ := newMockIndex(t)

	matches, err := idx.KeywordSearch(context.Background(), "   ", "ns", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPgIndexUpsertTransaction(t *testing.T) {
	idx, mock := newMockIndex(t)

	embedding := make([]float32, core.EmbeddingDimensions)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO context_embeddings`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := idx.Upsert(context.Background(), []Entry{{
		ID:         "ns:a.md:0",
		Namespace:  "ns",
		SourcePath: "a.md",
		Text:       "chunk text",
		Embedding:  embedding,
	}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgIndexClear(t *testing.T) {
	idx, mock := newMockIndex(t)

	mock.ExpectExec(`DELETE FROM context_embeddings`).
		WithArgs("ns", "a.md").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, idx.Clear(context.Background(), "ns", "a.md"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0]", vectorLiteral([]float32{0.5, -1, 0}))
}
