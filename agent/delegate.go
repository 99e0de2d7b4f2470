package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/delegate"
	"github.com/hupe1980/contextmesh/logging"
	"github.com/hupe1980/contextmesh/workflow"
)

// DelegateAgentOptions configure the delegate agent.
type DelegateAgentOptions struct {
	Logger logging.Logger
}

// DelegateAgent hands off to the long-running, checkpointed analysis
// workflow. The subject is taken from the extracted competitor_name entity
// when present, otherwise the raw query text; the analysis kind follows the
// classified intent.
type DelegateAgent struct {
	wf   *delegate.Workflow
	opts DelegateAgentOptions
}

// NewDelegateAgent creates a new delegate agent.
func NewDelegateAgent(wf *delegate.Workflow, optFns ...func(o *DelegateAgentOptions)) *DelegateAgent {
	opts := DelegateAgentOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DelegateAgent{wf: wf, opts: opts}
}

// Name implements workflow.Step.
func (d *DelegateAgent) Name() string { return StepDelegate }

// Run implements workflow.Step.
func (d *DelegateAgent) Run(ctx context.Context, state *core.WorkflowState) (workflow.Usage, error) {
	subject := state.Query.Text
	if name, ok := state.Entity("competitor_name"); ok && name != "" {
		subject = name
	}

	kind := "external_lookup"
	if state.HasIntent(core.IntentCompetitive) {
		kind = "competitive_analysis"
	}

	result, err := d.wf.Run(ctx, delegate.Request{
		Namespace: state.Query.Namespace,
		Subject:   subject,
		Kind:      kind,
	})
	if err != nil {
		return workflow.Usage{}, fmt.Errorf("delegate analysis: %w", err)
	}

	state.SetDelegateResult(result)
	d.opts.Logger.Debug("delegate analysis finished", "workflow_id", state.ID, "subject", subject, "from_cache", result.FromCache)
	return workflow.Usage{}, nil
}
