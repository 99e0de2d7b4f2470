// Package contextmesh orchestrates specialized retrieval agents behind a
// single query entrypoint: an intent classifier routes each query to a
// conditional graph of retrieval, structured-query and delegate agents whose
// outputs a synthesis agent composes into one grounded, cited answer.
package contextmesh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/contextmesh/agent"
	"github.com/hupe1980/contextmesh/checkpoint"
	"github.com/hupe1980/contextmesh/config"
	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/delegate"
	"github.com/hupe1980/contextmesh/logging"
	"github.com/hupe1980/contextmesh/model"
	"github.com/hupe1980/contextmesh/store"
	"github.com/hupe1980/contextmesh/vector"
	"github.com/hupe1980/contextmesh/workflow"
)

// historyTurns caps how many prior turns feed the classifier and synthesizer
// prompts.
const historyTurns = 5

// Options configure a Mesh.
type Options struct {
	// Config tunes retrieval, structured queries, the delegate workflow and
	// step timeouts. Defaults to config.Default().
	Config config.Config

	// Keyword enables hybrid retrieval when non-nil.
	Keyword vector.KeywordSearcher

	// Rows backs the structured-query agent. Nil disables the agent; queries
	// routed to it degrade instead of failing.
	Rows core.RowStore

	// StageRunner backs the delegate agent. Nil disables the agent.
	StageRunner core.StageRunner

	// Conversations enables cross-turn continuity when non-nil.
	Conversations core.ConversationStore

	// Analytics receives one ledger event per query. Optional.
	Analytics core.AnalyticsStore

	// States persists workflow snapshots. Defaults to in-memory.
	States core.StateStore

	// Checkpoints persists delegate progress. Defaults to in-memory.
	Checkpoints core.CheckpointStore

	Logger logging.Logger
}

// Mesh is the assembled query pipeline. Construct once with New and call Run
// per query; a Mesh is safe for concurrent use.
type Mesh struct {
	engine        *workflow.Engine
	conversations core.ConversationStore
	opts          Options
}

// New assembles the agent graph. The router drives both model tiers, the
// embedder and searcher drive retrieval.
func New(router *model.Router, embedder model.Embedder, searcher core.VectorSearcher, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if router == nil || embedder == nil || searcher == nil {
		return nil, fmt.Errorf("mesh requires a router, an embedder and a vector searcher")
	}
	if opts.States == nil {
		opts.States = store.NewInMemoryStateStore()
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = checkpoint.NewInMemoryStore()
	}

	m := &Mesh{conversations: opts.Conversations, opts: opts}

	engine, err := workflow.New(opts.States, func(o *workflow.Options) {
		o.Analytics = opts.Analytics
		o.Logger = opts.Logger
		if opts.Config.Workflow.StepTimeout > 0 {
			o.DefaultTimeout = opts.Config.Workflow.StepTimeout
		}
	})
	if err != nil {
		return nil, err
	}

	classifier := agent.NewClassifier(router, func(o *agent.ClassifierOptions) {
		o.Logger = opts.Logger
		o.ContextProvider = m.history
	})
	if err := engine.AddStep(classifier, func(o *workflow.StepOptions) {
		o.Required = true
	}); err != nil {
		return nil, err
	}

	retriever := agent.NewRetriever(embedder, searcher, func(o *agent.RetrieverOptions) {
		o.Threshold = opts.Config.Retrieval.Threshold
		o.Limit = opts.Config.Retrieval.Limit
		o.EmbeddingCostPerThousandTokens = opts.Config.Models.EmbeddingCostPer1K
		o.Logger = opts.Logger
		if opts.Config.Retrieval.Hybrid && opts.Keyword != nil {
			o.Keyword = opts.Keyword
			o.SemanticWeight = opts.Config.Retrieval.SemanticWeight
			o.KeywordWeight = opts.Config.Retrieval.KeywordWeight
		}
	})
	if err := engine.AddStep(retriever, func(o *workflow.StepOptions) {
		o.DependsOn = []string{agent.StepClassifier}
		o.Guard = agent.GuardFor(agent.StepRetrieval)
	}); err != nil {
		return nil, err
	}

	synthesisDeps := []string{agent.StepRetrieval}

	if opts.Rows != nil {
		structured := agent.NewStructuredQuery(router, opts.Rows, func(o *agent.StructuredQueryOptions) {
			o.RowLimit = opts.Config.Structured.RowLimit
			o.Schemas = opts.Config.Structured.Schemas
			o.DefaultSchema = opts.Config.Structured.DefaultSchema
			o.Logger = opts.Logger
		})
		if err := engine.AddStep(structured, func(o *workflow.StepOptions) {
			o.DependsOn = []string{agent.StepClassifier}
			o.Guard = agent.GuardFor(agent.StepStructuredQuery)
		}); err != nil {
			return nil, err
		}
		synthesisDeps = append(synthesisDeps, agent.StepStructuredQuery)
	}

	if opts.StageRunner != nil {
		wf := delegate.New(opts.Checkpoints, opts.StageRunner, func(o *delegate.Options) {
			o.StalenessWindow = opts.Config.Delegate.StalenessWindow
			o.Logger = opts.Logger
		})
		delegateAgent := agent.NewDelegateAgent(wf, func(o *agent.DelegateAgentOptions) {
			o.Logger = opts.Logger
		})
		if err := engine.AddStep(delegateAgent, func(o *workflow.StepOptions) {
			o.DependsOn = []string{agent.StepClassifier}
			o.Guard = agent.GuardFor(agent.StepDelegate)
		}); err != nil {
			return nil, err
		}
		synthesisDeps = append(synthesisDeps, agent.StepDelegate)
	}

	synthesizer := agent.NewSynthesizer(router, func(o *agent.SynthesizerOptions) {
		o.Logger = opts.Logger
		o.ContextProvider = m.history
	})
	if err := engine.AddStep(synthesizer, func(o *workflow.StepOptions) {
		o.DependsOn = synthesisDeps
		o.Required = true
	}); err != nil {
		return nil, err
	}

	m.engine = engine
	return m, nil
}

// Run answers one query. The returned snapshot always carries the agent
// trace and accumulated cost; on failure it holds status failed and any
// partial answer alongside the error.
func (m *Mesh) Run(ctx context.Context, query core.Query) (core.StateSnapshot, error) {
	state, err := m.engine.Run(ctx, query)
	snap := state.Snapshot()

	if err == nil && m.conversations != nil && query.ConversationID != "" {
		turn := core.Turn{Query: query.Text, Answer: snap.Answer, Timestamp: time.Now()}
		if cerr := m.conversations.AppendTurn(ctx, core.ConversationKeyFor(query), turn, nil); cerr != nil {
			m.opts.Logger.Warn("append conversation turn failed", "workflow_id", snap.ID, "error", cerr)
		}
	}

	return snap, err
}

// history renders the most recent conversation turns for prompt context.
func (m *Mesh) history(ctx context.Context, q core.Query) (string, error) {
	if m.conversations == nil || q.ConversationID == "" {
		return "", nil
	}
	rec, err := m.conversations.Get(ctx, core.ConversationKeyFor(q))
	if err != nil {
		return "", err
	}

	turns := rec.Turns
	if len(turns) > historyTurns {
		turns = turns[len(turns)-historyTurns:]
	}

	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", t.Query, t.Answer)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
