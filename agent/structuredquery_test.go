package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/internal/testutil"
	"github.com/hupe1980/contextmesh/model"
)

func TestValidateReadOnly(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		wantErr   bool
	}{
		{name: "plain select", statement: "SELECT id FROM users", wantErr: false},
		{name: "lowercase select", statement: "select count(*) from events", wantErr: false},
		{name: "cte", statement: "WITH t AS (SELECT 1) SELECT * FROM t", wantErr: false},
		{name: "leading whitespace", statement: "   \n SELECT 1", wantErr: false},
		{name: "empty", statement: "   ", wantErr: true},
		{name: "insert", statement: "INSERT INTO users VALUES (1)", wantErr: true},
		{name: "delete", statement: "DELETE FROM users", wantErr: true},
		{name: "drop behind select", statement: "SELECT 1; DROP TABLE users", wantErr: true},
		{name: "mixed case keyword", statement: "SELECT * FROM t WHERE id IN (SELECT id FROM s); TrUnCaTe t", wantErr: true},
		{name: "update disguised by whitespace", statement: "SELECT 1;\n\tUPDATE users SET a = 1", wantErr: true},
		{name: "column named like keyword is fine", statement: "SELECT updated_at, created_at FROM users", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReadOnly(tt.statement)
			if tt.wantErr {
				var unsafeErr *core.UnsafeQueryError
				require.ErrorAs(t, err, &unsafeErr)
				assert.Equal(t, tt.statement, unsafeErr.Statement)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStructuredQueryExecutesSafeStatement(t *testing.T) {
	economy := model.NewMockGenerator("mock-economy", "mock", 80)
	economy.SetFallback("SELECT name, plan FROM customers ORDER BY name")

	rows := &testutil.StubRowStore{Rows: []core.Row{{"name": "acme", "plan": "pro"}}}
	agent := NewStructuredQuery(newTestRouter(t, economy, model.NewMockGenerator("mock-premium", "mock", 10)), rows)

	state := core.NewWorkflowState(core.NewQuery("list customers", "ns", "u1", ""))
	usage, err := agent.Run(context.Background(), state)
	require.NoError(t, err)

	snap := state.Snapshot()
	require.Len(t, snap.StructuredResults, 1)
	assert.Equal(t, "acme", snap.StructuredResults[0]["name"])
	assert.Empty(t, snap.StructuredNote)
	assert.Equal(t, []string{"SELECT name, plan FROM customers ORDER BY name"}, rows.Statements())
	assert.Equal(t, 80, usage.Tokens)
}

func TestStructuredQueryUnsafeStatementNeverReachesStore(t *testing.T) {
	economy := model.NewMockGenerator("mock-economy", "mock", 80)
	economy.SetFallback("DROP TABLE customers")

	rows := &testutil.StubRowStore{Rows: []core.Row{{"should": "never appear"}}}
	agent := NewStructuredQuery(newTestRouter(t, economy, model.NewMockGenerator("mock-premium", "mock", 10)), rows)

	state := core.NewWorkflowState(core.NewQuery("delete everything", "ns", "u1", ""))
	_, err := agent.Run(context.Background(), state)
	require.NoError(t, err)

	snap := state.Snapshot()
	assert.Empty(t, snap.StructuredResults)
	assert.Contains(t, snap.StructuredNote, "rejected")
	assert.Empty(t, rows.Statements())
}

func TestStructuredQueryStripsCodeFence(t *testing.T) {
	economy := model.NewMockGenerator("mock-economy", "mock", 80)
	economy.SetFallback("```sql\nSELECT 1\n```")

	rows := &testutil.StubRowStore{Rows: []core.Row{{"?column?": 1}}}
	agent := NewStructuredQuery(newTestRouter(t, economy, model.NewMockGenerator("mock-premium", "mock", 10)), rows)

	state := core.NewWorkflowState(core.NewQuery("anything", "ns", "u1", ""))
	_, err := agent.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 1"}, rows.Statements())
}

func TestStructuredQueryEnforcesRowLimit(t *testing.T) {
	economy := model.NewMockGenerator("mock-economy", "mock", 10)
	economy.SetFallback("SELECT id FROM big_table")

	var canned []core.Row
	for i := 0; i < 10; i++ {
		canned = append(canned, core.Row{"id": i})
	}
	rows := &testutil.StubRowStore{Rows: canned}
	agent := NewStructuredQuery(newTestRouter(t, economy, model.NewMockGenerator("mock-premium", "mock", 10)), rows, func(o *StructuredQueryOptions) {
		o.RowLimit = 3
	})

	state := core.NewWorkflowState(core.NewQuery("all ids", "ns", "u1", ""))
	_, err := agent.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Len(t, state.Snapshot().StructuredResults, 3)
}

func TestStructuredQueryUsesNamespaceSchema(t *testing.T) {
	economy := model.NewMockGenerator("mock-economy", "mock", 10)
	economy.SetFallback("SELECT 1")

	agent := NewStructuredQuery(newTestRouter(t, economy, model.NewMockGenerator("mock-premium", "mock", 10)), &testutil.StubRowStore{}, func(o *StructuredQueryOptions) {
		o.Schemas = map[string]string{"tenant-a": "TABLE widgets (id int)"}
		o.DefaultSchema = "TABLE fallback (id int)"
	})

	state := core.NewWorkflowState(core.NewQuery("count widgets", "tenant-a", "u1", ""))
	_, err := agent.Run(context.Background(), state)
	require.NoError(t, err)

	prompts := economy.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "TABLE widgets")
	assert.NotContains(t, prompts[0], "TABLE fallback")
}
