package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/logging"
	"github.com/hupe1980/contextmesh/model"
	"github.com/hupe1980/contextmesh/workflow"
)

// InsufficientAnswer is returned when no upstream agent produced any input
// worth synthesizing. An honest refusal beats a hallucinated answer.
const InsufficientAnswer = "I don't have enough information to answer that question."

const synthesisSystem = `You synthesize a grounded answer from the provided
context sections. Use only the provided material; if it does not support an
answer, say so. Respond with JSON only:
{"answer": "...", "suggested_actions": ["...", ...], "follow_up_questions": ["...", ...]}`

// SynthesizerOptions configure the synthesis agent.
type SynthesizerOptions struct {
	// ContextProvider supplies prior conversation turns for continuity.
	// Optional.
	ContextProvider func(ctx context.Context, q core.Query) (string, error)

	Logger logging.Logger
}

// Synthesizer composes the final answer from whatever upstream agents
// produced, via the premium model tier. Missing inputs are simply omitted
// from the prompt; if every input is empty the agent short-circuits to an
// explicit insufficient-information answer without spending a model call.
type Synthesizer struct {
	router *model.Router
	opts   SynthesizerOptions
}

// NewSynthesizer creates a new synthesis agent.
func NewSynthesizer(router *model.Router, optFns ...func(o *SynthesizerOptions)) *Synthesizer {
	opts := SynthesizerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Synthesizer{router: router, opts: opts}
}

// Name implements workflow.Step.
func (s *Synthesizer) Name() string { return StepSynthesis }

// Run implements workflow.Step.
func (s *Synthesizer) Run(ctx context.Context, state *core.WorkflowState) (workflow.Usage, error) {
	snap := state.Snapshot()

	prompt, citations := s.buildPrompt(ctx, snap)
	if prompt == "" {
		state.SetAnswer(InsufficientAnswer, nil, nil, nil)
		s.opts.Logger.Debug("no upstream input, answering insufficient", "workflow_id", snap.ID)
		return workflow.Usage{}, nil
	}

	completion, err := s.router.Call(ctx, model.ComplexityOpenEnded, prompt, model.Constraints{
		System:    synthesisSystem,
		MaxTokens: 1500,
	})
	if err != nil {
		return workflow.Usage{}, fmt.Errorf("synthesis: %w", err)
	}

	usage := workflow.Usage{
		CostUSD: completion.CostUSD,
		Tokens:  completion.Tokens,
		Tiers:   []string{string(completion.Tier)},
	}

	answer, actions, followUps := parseSynthesis(completion.Text)
	state.SetAnswer(answer, citations, actions, followUps)
	s.opts.Logger.Debug("answer synthesized", "workflow_id", snap.ID, "citations", len(citations))
	return usage, nil
}

// buildPrompt assembles the synthesis prompt from the populated inputs and
// collects the citation list. An empty prompt means there was nothing to
// synthesize from.
func (s *Synthesizer) buildPrompt(ctx context.Context, snap core.StateSnapshot) (string, []string) {
	var sections []string
	var citations []string

	if len(snap.RetrievedChunks) > 0 {
		var sb strings.Builder
		sb.WriteString("Documentation context:\n")
		for _, chunk := range snap.RetrievedChunks {
			fmt.Fprintf(&sb, "[%s] %s\n", chunk.Source, chunk.Text)
			citations = append(citations, chunk.Source)
		}
		sections = append(sections, sb.String())
	}

	if len(snap.StructuredResults) > 0 {
		rows, err := json.Marshal(snap.StructuredResults)
		if err == nil {
			sections = append(sections, "Query results:\n"+string(rows))
			citations = append(citations, "structured_query")
		}
	} else if snap.StructuredNote != "" {
		sections = append(sections, "Note: "+snap.StructuredNote)
	}

	if snap.Delegate != nil && snap.Delegate.Summary != "" {
		sections = append(sections, fmt.Sprintf("Analysis of %s:\n%s", snap.Delegate.Subject, snap.Delegate.Summary))
		citations = append(citations, "analysis:"+snap.Delegate.Subject)
	}

	if len(sections) == 0 {
		return "", nil
	}

	var sb strings.Builder
	if s.opts.ContextProvider != nil {
		if history, err := s.opts.ContextProvider(ctx, snap.Query); err == nil && history != "" {
			sb.WriteString("Conversation so far:\n")
			sb.WriteString(history)
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString(strings.Join(sections, "\n\n"))
	sb.WriteString("\n\nQuestion:\n")
	sb.WriteString(snap.Query.Text)

	return sb.String(), dedupeStrings(citations)
}

type synthesisReply struct {
	Answer            string   `json:"answer"`
	SuggestedActions  []string `json:"suggested_actions"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// parseSynthesis decodes the model's JSON reply; a reply that is not valid
// JSON is used verbatim as the answer.
func parseSynthesis(text string) (string, []string, []string) {
	var reply synthesisReply
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &reply); err != nil || reply.Answer == "" {
		return strings.TrimSpace(text), nil, nil
	}
	return reply.Answer, reply.SuggestedActions, reply.FollowUpQuestions
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
