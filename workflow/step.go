package workflow

import (
	"context"
	"time"

	"github.com/hupe1980/contextmesh/core"
)

// Usage is the resource accounting one step reports back to the engine.
// The engine folds it into the workflow state's accumulated totals.
type Usage struct {
	CostUSD float64
	Tokens  int

	// Tiers lists the model tiers exercised by the step ("economy",
	// "premium"); used for the analytics ledger.
	Tiers []string
}

// Add folds another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.CostUSD += other.CostUSD
	u.Tokens += other.Tokens
	u.Tiers = append(u.Tiers, other.Tiers...)
}

// Guard decides at scheduling time whether a step should run given the
// current workflow state. A nil guard always runs.
type Guard func(state *core.WorkflowState) bool

// Step is one node in the workflow graph. Run owns exclusive write access to
// its own fields on the workflow state; it must only block inside
// collaborator calls and must respect ctx cancellation.
type Step interface {
	// Name returns the unique step name used for dependencies and the trace.
	Name() string

	// Run executes the step against the shared state and reports its usage.
	Run(ctx context.Context, state *core.WorkflowState) (Usage, error)
}

// StepOptions configure how the engine schedules one step.
type StepOptions struct {
	// DependsOn orders this step after the named steps. A dependency that
	// failed or was skipped still satisfies the ordering constraint; the
	// guard decides whether running is still worthwhile.
	DependsOn []string

	// Guard gates execution once dependencies settled. When it returns
	// false the step is marked skipped in the trace and its dependents
	// proceed.
	Guard Guard

	// Timeout bounds the step's Run call. Zero uses the engine default.
	Timeout time.Duration

	// Required marks a step whose failure fails the whole workflow with a
	// WorkflowError instead of degrading it.
	Required bool
}

// StepFunc adapts a plain function to the Step interface for tests and
// small inline steps.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, state *core.WorkflowState) (Usage, error)
}

// Name implements Step.
func (s StepFunc) Name() string { return s.StepName }

// Run implements Step.
func (s StepFunc) Run(ctx context.Context, state *core.WorkflowState) (Usage, error) {
	return s.Fn(ctx, state)
}
