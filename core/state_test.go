package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowStateStatusMonotone(t *testing.T) {
	t.Run("forward transitions apply", func(t *testing.T) {
		state := NewWorkflowState(NewQuery("q", "ns", "u1", ""))
		assert.Equal(t, StatusPending, state.GetStatus())

		state.SetStatus(StatusRunning)
		assert.Equal(t, StatusRunning, state.GetStatus())

		state.SetStatus(StatusSucceeded)
		assert.Equal(t, StatusSucceeded, state.GetStatus())
	})

	t.Run("backward transitions are ignored", func(t *testing.T) {
		state := NewWorkflowState(NewQuery("q", "ns", "u1", ""))
		state.SetStatus(StatusRunning)

		state.SetStatus(StatusPending)
		assert.Equal(t, StatusRunning, state.GetStatus())
	})

	t.Run("terminal states are sticky", func(t *testing.T) {
		state := NewWorkflowState(NewQuery("q", "ns", "u1", ""))
		state.SetStatus(StatusRunning)
		state.SetStatus(StatusFailed)

		state.SetStatus(StatusSucceeded)
		assert.Equal(t, StatusFailed, state.GetStatus())

		state.SetStatus(StatusRunning)
		assert.Equal(t, StatusFailed, state.GetStatus())
	})
}

func TestWorkflowStateAddUsage(t *testing.T) {
	state := NewWorkflowState(NewQuery("q", "ns", "u1", ""))

	state.AddUsage(0.02, 150, 10*time.Millisecond)
	state.AddUsage(0.01, 50, 5*time.Millisecond)
	assert.InDelta(t, 0.03, state.Cost(), 1e-9)

	// Negative deltas must never reduce the accumulated totals.
	state.AddUsage(-1, -100, -time.Second)
	assert.InDelta(t, 0.03, state.Cost(), 1e-9)

	snap := state.Snapshot()
	assert.Equal(t, 200, snap.AccumulatedTokens)
	assert.Equal(t, 15*time.Millisecond, snap.AccumulatedLatency)
}

func TestWorkflowStateTraceAppendOnly(t *testing.T) {
	state := NewWorkflowState(NewQuery("q", "ns", "u1", ""))

	state.AppendTrace(TraceEntry{Step: "a", Outcome: OutcomeCompleted})
	state.AppendTrace(TraceEntry{Step: "b", Outcome: OutcomeFailed, Err: "boom"})

	trace := state.Trace()
	require.Len(t, trace, 2)
	assert.Equal(t, "a", trace[0].Step)
	assert.Equal(t, "b", trace[1].Step)
	assert.False(t, trace[0].At.IsZero())

	// Mutating the returned copy must not touch the state.
	trace[0].Step = "mutated"
	assert.Equal(t, "a", state.Trace()[0].Step)
}

func TestWorkflowStateSnapshotIsDeepCopy(t *testing.T) {
	state := NewWorkflowState(NewQuery("q", "ns", "u1", ""))
	state.SetIntent([]IntentTag{IntentDataQuery}, map[string]string{"metric": "revenue"})
	state.SetRetrievedChunks([]Chunk{{Source: "doc.md", Text: "text", Score: 0.9}})
	state.SetStructuredResults([]Row{{"count": 42}}, "")
	state.SetDelegateResult(&DelegateResult{Subject: "acme", Payload: []byte("p")})

	snap := state.Snapshot()
	snap.Entities["metric"] = "users"
	snap.RetrievedChunks[0].Source = "other.md"
	snap.StructuredResults[0]["count"] = 0
	snap.Delegate.Payload[0] = 'x'

	fresh := state.Snapshot()
	assert.Equal(t, "revenue", fresh.Entities["metric"])
	assert.Equal(t, "doc.md", fresh.RetrievedChunks[0].Source)
	assert.Equal(t, 42, fresh.StructuredResults[0]["count"])
	assert.Equal(t, []byte("p"), fresh.Delegate.Payload)
}

func TestHasIntentAndEntity(t *testing.T) {
	state := NewWorkflowState(NewQuery("q", "ns", "u1", ""))
	state.SetIntent([]IntentTag{IntentCompetitive, IntentDocumentation}, map[string]string{"competitor_name": "acme"})

	assert.True(t, state.HasIntent(IntentCompetitive))
	assert.True(t, state.HasIntent(IntentDocumentation))
	assert.False(t, state.HasIntent(IntentDataQuery))

	name, ok := state.Entity("competitor_name")
	assert.True(t, ok)
	assert.Equal(t, "acme", name)

	_, ok = state.Entity("missing")
	assert.False(t, ok)
}

func TestConversationKeyFor(t *testing.T) {
	q := NewQuery("q", "ns", "u1", "c1")
	key := ConversationKeyFor(q)
	assert.Equal(t, ConversationKey{Namespace: "ns", UserID: "u1", ConversationID: "c1"}, key)
}
