package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/hupe1980/contextmesh/core"
)

// Connect opens a Postgres connection pool and verifies it.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PgRowStore executes validated read-only statements against Postgres and
// returns rows as field mappings.
type PgRowStore struct {
	db *sqlx.DB
}

// NewPgRowStore creates a PgRowStore on an existing pool.
func NewPgRowStore(db *sqlx.DB) *PgRowStore {
	return &PgRowStore{db: db}
}

// QueryRows implements core.RowStore. The limit is enforced on the result
// set regardless of the statement's own LIMIT clause.
func (s *PgRowStore) QueryRows(ctx context.Context, statement string, limit int) ([]core.Row, error) {
	rows, err := s.db.QueryxContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Row
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		row := core.Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// PgConversationStore persists conversations in the conversations and
// conversation_turns tables.
type PgConversationStore struct {
	db *sqlx.DB
}

// NewPgConversationStore creates a PgConversationStore on an existing pool.
func NewPgConversationStore(db *sqlx.DB) *PgConversationStore {
	return &PgConversationStore{db: db}
}

type conversationRow struct {
	State   []byte    `db:"state"`
	Created time.Time `db:"created"`
	Updated time.Time `db:"updated"`
}

type turnRow struct {
	Query     string    `db:"query"`
	Answer    string    `db:"answer"`
	Timestamp time.Time `db:"ts"`
}

// Get implements core.ConversationStore. A conversation without stored rows
// is returned as an empty record rather than an error.
func (s *PgConversationStore) Get(ctx context.Context, key core.ConversationKey) (*core.ConversationRecord, error) {
	rec := &core.ConversationRecord{Key: key}

	var head conversationRow
	err := s.db.GetContext(ctx, &head, `
		SELECT state, created, updated
		FROM conversations
		WHERE namespace = $1 AND user_id = $2 AND conversation_id = $3`,
		key.Namespace, key.UserID, key.ConversationID)
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now()
		rec.Created, rec.Updated = now, now
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	rec.State = head.State
	rec.Created = head.Created
	rec.Updated = head.Updated

	var turns []turnRow
	if err := s.db.SelectContext(ctx, &turns, `
		SELECT query, answer, ts
		FROM conversation_turns
		WHERE namespace = $1 AND user_id = $2 AND conversation_id = $3
		ORDER BY ts, id`,
		key.Namespace, key.UserID, key.ConversationID); err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	for _, t := range turns {
		rec.Turns = append(rec.Turns, core.Turn{Query: t.Query, Answer: t.Answer, Timestamp: t.Timestamp})
	}
	return rec, nil
}

// AppendTurn implements core.ConversationStore.
func (s *PgConversationStore) AppendTurn(ctx context.Context, key core.ConversationKey, turn core.Turn, state []byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append turn: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (namespace, user_id, conversation_id, state, created, updated)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (namespace, user_id, conversation_id) DO UPDATE
		SET state = COALESCE($4, conversations.state), updated = now()`,
		key.Namespace, key.UserID, key.ConversationID, state); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_turns (namespace, user_id, conversation_id, query, answer, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		key.Namespace, key.UserID, key.ConversationID, turn.Query, turn.Answer, turn.Timestamp); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	return tx.Commit()
}

// PgAnalyticsStore appends to the analytics_events ledger table.
type PgAnalyticsStore struct {
	db *sqlx.DB
}

// NewPgAnalyticsStore creates a PgAnalyticsStore on an existing pool.
func NewPgAnalyticsStore(db *sqlx.DB) *PgAnalyticsStore {
	return &PgAnalyticsStore{db: db}
}

// Record implements core.AnalyticsStore.
func (s *PgAnalyticsStore) Record(ctx context.Context, event core.AnalyticsEvent) error {
	intents, err := json.Marshal(event.Intent)
	if err != nil {
		return fmt.Errorf("marshal intents: %w", err)
	}
	agents, err := json.Marshal(event.AgentsUsed)
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}
	tiers, err := json.Marshal(event.ModelTiers)
	if err != nil {
		return fmt.Errorf("marshal tiers: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_events
			(workflow_id, namespace, user_id, intents, agents_used, latency_ms, tokens, cost_usd, model_tiers, success, err_summary, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.WorkflowID, event.Namespace, event.UserID, intents, agents,
		event.Latency.Milliseconds(), event.Tokens, event.CostUSD, tiers,
		event.Success, event.ErrSummary, event.At); err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

// PgStateStore appends workflow snapshots to the workflow_snapshots table as
// an audit trail; the latest row per workflow id is the recovery point.
type PgStateStore struct {
	db *sqlx.DB
}

// NewPgStateStore creates a PgStateStore on an existing pool.
func NewPgStateStore(db *sqlx.DB) *PgStateStore {
	return &PgStateStore{db: db}
}

// SaveSnapshot implements core.StateStore.
func (s *PgStateStore) SaveSnapshot(ctx context.Context, snapshot core.StateSnapshot) error {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_snapshots (workflow_id, status, snapshot, at)
		VALUES ($1, $2, $3, $4)`,
		snapshot.ID, string(snapshot.Status), blob, snapshot.UpdatedAt); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
