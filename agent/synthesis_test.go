package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/model"
)

func TestSynthesizerAllEmptyInputsAnswersInsufficient(t *testing.T) {
	economy := model.NewMockGenerator("mock-economy", "mock", 10)
	premium := model.NewMockGenerator("mock-premium", "mock", 10)
	synth := NewSynthesizer(newTestRouter(t, economy, premium))

	state := core.NewWorkflowState(core.NewQuery("tell me things", "ns", "u1", ""))
	usage, err := synth.Run(context.Background(), state)
	require.NoError(t, err)

	snap := state.Snapshot()
	assert.Equal(t, InsufficientAnswer, snap.Answer)
	assert.Empty(t, snap.Citations)
	// No model call is spent on an unanswerable query.
	assert.Zero(t, usage.Tokens)
	assert.Empty(t, premium.Prompts())
}

func TestSynthesizerComposesAnswerWithCitations(t *testing.T) {
	economy := model.NewMockGenerator("mock-economy", "mock", 10)
	premium := model.NewMockGenerator("mock-premium", "mock", 400)
	premium.SetFallback(`{"answer": "Auth uses OAuth2.", "suggested_actions": ["read the auth guide"], "follow_up_questions": ["Which grant types?"]}`)

	synth := NewSynthesizer(newTestRouter(t, economy, premium))

	state := core.NewWorkflowState(core.NewQuery("how does auth work", "ns", "u1", ""))
	state.SetRetrievedChunks([]core.Chunk{
		{Source: "auth.md", Text: "OAuth2 flows", Score: 0.93},
		{Source: "auth.md", Text: "token lifetimes", Score: 0.91},
	})
	state.SetStructuredResults([]core.Row{{"active_tokens": 12}}, "")
	state.SetDelegateResult(&core.DelegateResult{Subject: "acme", Summary: "competitor overview", CompletedAt: time.Now()})

	usage, err := synth.Run(context.Background(), state)
	require.NoError(t, err)

	snap := state.Snapshot()
	assert.Equal(t, "Auth uses OAuth2.", snap.Answer)
	assert.Equal(t, []string{"auth.md", "structured_query", "analysis:acme"}, snap.Citations)
	assert.Equal(t, []string{"read the auth guide"}, snap.SuggestedActions)
	assert.Equal(t, []string{"Which grant types?"}, snap.FollowUpQuestions)
	assert.Equal(t, []string{"premium"}, usage.Tiers)
	assert.Equal(t, 400, usage.Tokens)

	prompts := premium.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "OAuth2 flows")
	assert.Contains(t, prompts[0], "active_tokens")
	assert.Contains(t, prompts[0], "competitor overview")
	assert.Contains(t, prompts[0], "how does auth work")
}

func TestSynthesizerPlainTextReplyUsedVerbatim(t *testing.T) {
	economy := model.NewMockGenerator("mock-economy", "mock", 10)
	premium := model.NewMockGenerator("mock-premium", "mock", 50)
	premium.SetFallback("The answer, plainly.")

	synth := NewSynthesizer(newTestRouter(t, economy, premium))

	state := core.NewWorkflowState(core.NewQuery("q", "ns", "u1", ""))
	state.SetRetrievedChunks([]core.Chunk{{Source: "a.md", Text: "context", Score: 0.9}})

	_, err := synth.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "The answer, plainly.", state.Snapshot().Answer)
}

func TestSynthesizerRejectedStructuredQueryNoteReachesPrompt(t *testing.T) {
	economy := model.NewMockGenerator("mock-economy", "mock", 10)
	premium := model.NewMockGenerator("mock-premium", "mock", 50)
	premium.SetFallback(`{"answer": "Cannot run that query."}`)

	synth := NewSynthesizer(newTestRouter(t, economy, premium))

	state := core.NewWorkflowState(core.NewQuery("drop the table", "ns", "u1", ""))
	state.SetStructuredResults(nil, "structured query rejected: unsafe statement")

	_, err := synth.Run(context.Background(), state)
	require.NoError(t, err)

	prompts := premium.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "rejected")
	// The rejection note is context, not a source.
	assert.Empty(t, state.Snapshot().Citations)
}
