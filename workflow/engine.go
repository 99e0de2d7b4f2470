package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/logging"
)

// Options configure an Engine instance.
type Options struct {
	// StateStore persists a snapshot after every step. Required; a snapshot
	// write failure is the engine's only fatal condition.
	StateStore core.StateStore

	// Analytics receives one ledger event per terminal workflow. Optional;
	// recording failures are logged, never surfaced.
	Analytics core.AnalyticsStore

	// DefaultTimeout bounds steps that do not declare their own timeout.
	DefaultTimeout time.Duration

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Engine drives the agent graph for one query at a time. Register steps with
// AddStep, then call Run per query; a single Engine is safe for concurrent
// Run calls since all mutable per-query state lives on the WorkflowState.
type Engine struct {
	steps map[string]*node
	order []string
	opts  Options
}

type node struct {
	step Step
	opts StepOptions
}

// New creates an Engine. StateStore must be provided.
func New(stateStore core.StateStore, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		StateStore:     stateStore,
		DefaultTimeout: 30 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.StateStore == nil {
		return nil, fmt.Errorf("engine requires a state store")
	}
	return &Engine{steps: map[string]*node{}, opts: opts}, nil
}

// AddStep registers a step in the graph. Step names must be unique and
// dependencies must refer to previously added steps, which also rules out
// cycles.
func (e *Engine) AddStep(step Step, optFns ...func(o *StepOptions)) error {
	var opts StepOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	name := step.Name()
	if name == "" {
		return fmt.Errorf("step name must not be empty")
	}
	if _, exists := e.steps[name]; exists {
		return fmt.Errorf("duplicate step %q", name)
	}
	for _, dep := range opts.DependsOn {
		if _, ok := e.steps[dep]; !ok {
			return fmt.Errorf("step %q depends on unknown step %q", name, dep)
		}
	}

	e.steps[name] = &node{step: step, opts: opts}
	e.order = append(e.order, name)
	return nil
}

// runState tracks scheduling progress of one step during a Run call.
type runState struct {
	launched bool
	settled  bool
	outcome  core.StepOutcome
	err      error
}

type stepResult struct {
	name     string
	usage    Usage
	err      error
	duration time.Duration
}

// Run executes the registered graph for the query and returns the terminal
// workflow state. The state is always non-nil; on failure it carries status
// failed, the partial trace and any partial answer, and the returned error
// is a *core.WorkflowError (or the snapshot-persistence error, which is
// fatal).
func (e *Engine) Run(ctx context.Context, query core.Query) (*core.WorkflowState, error) {
	state := core.NewWorkflowState(query)
	started := time.Now()

	log := e.opts.Logger
	log.Info("workflow started", "workflow_id", state.ID, "namespace", query.Namespace)

	// Status moves to running before the first persist so a failed write
	// still leaves a pending -> running -> failed transition.
	state.SetStatus(core.StatusRunning)
	if err := e.persist(ctx, state); err != nil {
		state.SetStatus(core.StatusFailed)
		return state, fmt.Errorf("persist initial snapshot: %w", err)
	}

	progress := make(map[string]*runState, len(e.steps))
	for name := range e.steps {
		progress[name] = &runState{}
	}

	results := make(chan stepResult, len(e.steps))
	running := 0
	var tiers []string

	var fatal error
	for {
		// Launch every step whose dependencies have settled.
		for _, name := range e.order {
			rs := progress[name]
			if rs.launched || rs.settled {
				continue
			}
			n := e.steps[name]
			if !e.depsSettled(n, progress) {
				continue
			}
			if n.opts.Guard != nil && !n.opts.Guard(state) {
				rs.settled = true
				rs.outcome = core.OutcomeSkipped
				state.AppendTrace(core.TraceEntry{Step: name, Outcome: core.OutcomeSkipped})
				log.Debug("step skipped by guard", "workflow_id", state.ID, "step", name)
				continue
			}
			rs.launched = true
			running++
			go e.launch(ctx, n, state, results)
		}

		if running == 0 {
			break
		}

		res := <-results
		running--

		rs := progress[res.name]
		rs.settled = true
		tiers = append(tiers, res.usage.Tiers...)

		entry := core.TraceEntry{Step: res.name, Duration: res.duration}
		switch {
		case res.err == nil:
			rs.outcome = core.OutcomeCompleted
			entry.Outcome = core.OutcomeCompleted
		case errors.Is(res.err, context.Canceled) || ctx.Err() != nil:
			rs.outcome = core.OutcomeCancelled
			rs.err = res.err
			entry.Outcome = core.OutcomeCancelled
			entry.Err = res.err.Error()
		default:
			rs.outcome = core.OutcomeFailed
			rs.err = res.err
			entry.Outcome = core.OutcomeFailed
			entry.Err = res.err.Error()
		}
		state.AppendTrace(entry)
		state.AddUsage(res.usage.CostUSD, res.usage.Tokens, res.duration)

		if entry.Outcome == core.OutcomeFailed {
			log.Warn("step failed", "workflow_id", state.ID, "step", res.name, "error", res.err)
		} else {
			log.Debug("step settled", "workflow_id", state.ID, "step", res.name, "outcome", entry.Outcome)
		}

		if err := e.persist(ctx, state); err != nil {
			fatal = fmt.Errorf("persist snapshot after step %s: %w", res.name, err)
			break
		}
	}

	if fatal != nil {
		// Drain remaining in-flight steps so goroutines do not leak.
		for running > 0 {
			<-results
			running--
		}
		state.SetStatus(core.StatusFailed)
		return state, fatal
	}

	wfErr := e.resolve(ctx, state, progress)
	if err := e.persist(context.WithoutCancel(ctx), state); err != nil {
		return state, fmt.Errorf("persist terminal snapshot: %w", err)
	}

	e.recordAnalytics(context.WithoutCancel(ctx), state, tiers, time.Since(started), wfErr)

	if wfErr != nil {
		log.Warn("workflow failed", "workflow_id", state.ID, "error", wfErr)
		return state, wfErr
	}
	log.Info("workflow succeeded", "workflow_id", state.ID, "cost_usd", state.Cost(), "duration", time.Since(started))
	return state, nil
}

// depsSettled reports whether every dependency of n reached a terminal
// outcome. Failed or skipped dependencies satisfy ordering; the dependent's
// guard decides whether running is still worthwhile.
func (e *Engine) depsSettled(n *node, progress map[string]*runState) bool {
	for _, dep := range n.opts.DependsOn {
		if !progress[dep].settled {
			return false
		}
	}
	return true
}

// launch runs one step with its timeout and reports the result. Timeouts are
// translated into *core.TimeoutError so the resolver can apply the
// step-failure rules.
func (e *Engine) launch(ctx context.Context, n *node, state *core.WorkflowState, results chan<- stepResult) {
	timeout := n.opts.Timeout
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	usage, err := n.step.Run(stepCtx, state)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = &core.TimeoutError{Step: n.step.Name()}
	}

	results <- stepResult{name: n.step.Name(), usage: usage, err: err, duration: time.Since(start)}
}

// resolve applies the terminal-status rules after all steps settled:
//   - a cancelled run fails with the cancellation as cause
//   - a failed required step fails the workflow at that stage
//   - optional failures degrade the result; if no optional step completed at
//     all the workflow is surfaced as failed, keeping any partial answer
func (e *Engine) resolve(ctx context.Context, state *core.WorkflowState, progress map[string]*runState) error {
	if ctx.Err() != nil {
		state.MarkDegraded("query cancelled")
		state.SetStatus(core.StatusFailed)
		return &core.WorkflowError{Stage: "cancelled", Cause: ctx.Err()}
	}

	var optionalFailed, optionalCompleted int
	for _, name := range e.order {
		rs := progress[name]
		n := e.steps[name]
		if rs.outcome == core.OutcomeFailed {
			if n.opts.Required {
				state.MarkDegraded(rs.err.Error())
				state.SetStatus(core.StatusFailed)
				return &core.WorkflowError{Stage: name, Cause: rs.err}
			}
			optionalFailed++
			continue
		}
		if rs.outcome == core.OutcomeCompleted && !n.opts.Required {
			optionalCompleted++
		}
	}

	if optionalFailed > 0 {
		state.MarkDegraded(fmt.Sprintf("%d step(s) failed", optionalFailed))
		if optionalCompleted == 0 {
			state.SetStatus(core.StatusFailed)
			firstFailed, err := e.firstFailure(progress)
			return &core.WorkflowError{Stage: firstFailed, Cause: err}
		}
	}

	state.SetStatus(core.StatusSucceeded)
	return nil
}

func (e *Engine) firstFailure(progress map[string]*runState) (string, error) {
	for _, name := range e.order {
		if progress[name].outcome == core.OutcomeFailed {
			return name, progress[name].err
		}
	}
	return "", nil
}

func (e *Engine) persist(ctx context.Context, state *core.WorkflowState) error {
	return e.opts.StateStore.SaveSnapshot(ctx, state.Snapshot())
}

func (e *Engine) recordAnalytics(ctx context.Context, state *core.WorkflowState, tiers []string, latency time.Duration, wfErr error) {
	if e.opts.Analytics == nil {
		return
	}

	snap := state.Snapshot()
	event := core.AnalyticsEvent{
		WorkflowID: snap.ID,
		Namespace:  snap.Query.Namespace,
		UserID:     snap.Query.UserID,
		Intent:     snap.Intent,
		Latency:    latency,
		Tokens:     snap.AccumulatedTokens,
		CostUSD:    snap.AccumulatedCost,
		ModelTiers: dedupe(tiers),
		Success:    snap.Status == core.StatusSucceeded,
		At:         time.Now(),
	}
	for _, entry := range snap.AgentTrace {
		if entry.Outcome == core.OutcomeCompleted {
			event.AgentsUsed = append(event.AgentsUsed, entry.Step)
		}
	}
	if wfErr != nil {
		event.ErrSummary = wfErr.Error()
	}

	if err := e.opts.Analytics.Record(ctx, event); err != nil {
		e.opts.Logger.Warn("analytics record failed", "workflow_id", snap.ID, "error", err)
	}
}

func dedupe(in []string) []string {
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
