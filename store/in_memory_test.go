package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/contextmesh/core"
)

func TestInMemoryConversationStore(t *testing.T) {
	s := NewInMemoryConversationStore()
	key := core.ConversationKey{Namespace: "ns", UserID: "u1", ConversationID: "c1"}

	rec, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, rec.Turns)

	require.NoError(t, s.AppendTurn(context.Background(), key, core.Turn{Query: "q1", Answer: "a1", Timestamp: time.Now()}, []byte("state1")))
	require.NoError(t, s.AppendTurn(context.Background(), key, core.Turn{Query: "q2", Answer: "a2", Timestamp: time.Now()}, nil))

	rec, err = s.Get(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, rec.Turns, 2)
	assert.Equal(t, "q1", rec.Turns[0].Query)
	assert.Equal(t, "q2", rec.Turns[1].Query)
	// nil state leaves the previous blob in place
	assert.Equal(t, []byte("state1"), rec.State)

	// mutations of the returned copy must not leak back
	rec.Turns[0].Query = "mutated"
	fresh, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "q1", fresh.Turns[0].Query)
}

func TestInMemoryConversationStoreIsolatesKeys(t *testing.T) {
	s := NewInMemoryConversationStore()
	k1 := core.ConversationKey{Namespace: "ns", UserID: "u1", ConversationID: "c1"}
	k2 := core.ConversationKey{Namespace: "ns", UserID: "u2", ConversationID: "c1"}

	require.NoError(t, s.AppendTurn(context.Background(), k1, core.Turn{Query: "q", Answer: "a"}, nil))

	rec, err := s.Get(context.Background(), k2)
	require.NoError(t, err)
	assert.Empty(t, rec.Turns)
}

func TestInMemoryAnalyticsStore(t *testing.T) {
	s := NewInMemoryAnalyticsStore()

	require.NoError(t, s.Record(context.Background(), core.AnalyticsEvent{WorkflowID: "w1", CostUSD: 0.01}))
	require.NoError(t, s.Record(context.Background(), core.AnalyticsEvent{WorkflowID: "w2", CostUSD: 0.02}))

	events := s.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "w1", events[0].WorkflowID)
}

func TestInMemoryStateStore(t *testing.T) {
	s := NewInMemoryStateStore()

	require.NoError(t, s.SaveSnapshot(context.Background(), core.StateSnapshot{ID: "w1", Status: core.StatusPending}))
	require.NoError(t, s.SaveSnapshot(context.Background(), core.StateSnapshot{ID: "w1", Status: core.StatusSucceeded}))

	latest, ok := s.Latest("w1")
	require.True(t, ok)
	assert.Equal(t, core.StatusSucceeded, latest.Status)
	assert.Len(t, s.History(), 2)

	_, ok = s.Latest("missing")
	assert.False(t, ok)
}
