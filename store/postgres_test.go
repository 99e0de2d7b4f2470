package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/contextmesh/core"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestPgRowStoreQueryRows(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPgRowStore(db)

	mock.ExpectQuery(`SELECT name, plan FROM customers`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "plan"}).
			AddRow([]byte("acme"), []byte("pro")).
			AddRow([]byte("globex"), []byte("free")).
			AddRow([]byte("initech"), []byte("pro")))

	rows, err := s.QueryRows(context.Background(), "SELECT name, plan FROM customers", 2)
	require.NoError(t, err)

	// limit applies regardless of the statement
	require.Len(t, rows, 2)
	assert.Equal(t, "acme", rows[0]["name"])
	assert.Equal(t, "pro", rows[0]["plan"])
}

func TestPgConversationStoreGetMissingReturnsEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPgConversationStore(db)

	mock.ExpectQuery(`SELECT state, created, updated`).
		WithArgs("ns", "u1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"state", "created", "updated"}))

	rec, err := s.Get(context.Background(), core.ConversationKey{Namespace: "ns", UserID: "u1", ConversationID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, rec.Turns)
	assert.False(t, rec.Created.IsZero())
}

func TestPgConversationStoreGetWithTurns(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPgConversationStore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT state, created, updated`).
		WithArgs("ns", "u1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"state", "created", "updated"}).
			AddRow([]byte(`{"entity":"acme"}`), now, now))
	mock.ExpectQuery(`SELECT query, answer, ts`).
		WithArgs("ns", "u1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"query", "answer", "ts"}).
			AddRow("q1", "a1", now))

	rec, err := s.Get(context.Background(), core.ConversationKey{Namespace: "ns", UserID: "u1", ConversationID: "c1"})
	require.NoError(t, err)
	require.Len(t, rec.Turns, 1)
	assert.Equal(t, "q1", rec.Turns[0].Query)
	assert.Equal(t, []byte(`{"entity":"acme"}`), rec.State)
}

func TestPgConversationStoreAppendTurn(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPgConversationStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO conversations`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO conversation_turns`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.AppendTurn(context.Background(),
		core.ConversationKey{Namespace: "ns", UserID: "u1", ConversationID: "c1"},
		core.Turn{Query: "q", Answer: "a", Timestamp: time.Now()}, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAnalyticsStoreRecord(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPgAnalyticsStore(db)

	mock.ExpectExec(`INSERT INTO analytics_events`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.Record(context.Background(), core.AnalyticsEvent{
		WorkflowID: "w1",
		Namespace:  "ns",
		Intent:     []core.IntentTag{core.IntentDataQuery},
		AgentsUsed: []string{"structured_query", "synthesis"},
		Tokens:     500,
		CostUSD:    0.004,
		Success:    true,
		At:         time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStateStoreSaveSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPgStateStore(db)

	mock.ExpectExec(`INSERT INTO workflow_snapshots`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.SaveSnapshot(context.Background(), core.StateSnapshot{
		ID:        "w1",
		Status:    core.StatusRunning,
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
