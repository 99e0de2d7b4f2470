// Package delegate implements the long-running analysis workflow: a staged
// state machine that checkpoints after every stage, resumes interrupted runs
// at the last completed stage and serves recent results from cache within a
// configurable staleness window.
package delegate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/logging"
)

// Request identifies one analysis to run or resume.
type Request struct {
	Namespace string
	Subject   string
	Kind      string
}

// AnalysisID is the deterministic checkpoint key for a request: identical
// requests in the same namespace share checkpoints and cache.
func (r Request) AnalysisID() string {
	return fmt.Sprintf("%s/%s/%s", r.Namespace, r.Kind, r.Subject)
}

// Options configure the delegate workflow.
type Options struct {
	// StalenessWindow is how long a completed analysis is served from cache
	// before it is recomputed. Zero disables caching entirely.
	StalenessWindow time.Duration

	Logger logging.Logger

	// now is stubbed in tests.
	now func() time.Time
}

// Workflow drives a multi-stage analysis through the stage runner,
// persisting a checkpoint after every stage. Writes are conditional on the
// last observed stage index so two concurrent runs for the same subject
// cannot both advance past the same stage; on a lost race the run re-reads
// the checkpoint and continues from wherever the winner left it.
type Workflow struct {
	checkpoints core.CheckpointStore
	runner      core.StageRunner
	opts        Options
}

// New creates a delegate workflow.
func New(checkpoints core.CheckpointStore, runner core.StageRunner, optFns ...func(o *Options)) *Workflow {
	opts := Options{
		Logger: logging.NoOpLogger{},
		now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Workflow{checkpoints: checkpoints, runner: runner, opts: opts}
}

// Run executes or resumes the analysis for req and returns its result. A
// completed analysis newer than the staleness window is returned from cache
// without re-running any stage.
func (w *Workflow) Run(ctx context.Context, req Request) (*core.DelegateResult, error) {
	id := req.AnalysisID()

	record, found, err := w.checkpoints.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", id, err)
	}

	expectedStage := -1
	switch {
	case !found:
		record = &core.CheckpointRecord{
			AnalysisID: id,
			Subject:    req.Subject,
			Kind:       req.Kind,
			Status:     core.CheckpointRunning,
		}
	case record.Status == core.CheckpointCompleted && w.fresh(record):
		w.opts.Logger.Debug("serving analysis from cache", "analysis_id", id, "age", w.opts.now().Sub(record.UpdatedAt))
		return w.result(record, true), nil
	case record.Status == core.CheckpointCompleted:
		// Stale: recompute from scratch, conditional on the stored stage.
		expectedStage = record.StageIndex
		record.StageIndex = 0
		record.StateBlob = nil
		record.Result = nil
		record.Status = core.CheckpointRunning
	default:
		// Running or failed: resume at the last completed stage. Completed
		// stage side effects are never repeated.
		expectedStage = record.StageIndex
		record.Status = core.CheckpointRunning
		w.opts.Logger.Info("resuming analysis", "analysis_id", id, "stage", record.StageIndex)
	}

	return w.advance(ctx, req, record, expectedStage)
}

// advance runs stages until done, checkpointing after each one.
func (w *Workflow) advance(ctx context.Context, req Request, record *core.CheckpointRecord, expectedStage int) (*core.DelegateResult, error) {
	retried := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		blob, nextStage, done, err := w.runner.RunStage(ctx, req.Subject, record.StageIndex, record.StateBlob)
		if err != nil {
			w.markFailed(ctx, record, expectedStage)
			return nil, fmt.Errorf("analysis %s stage %d: %w", record.AnalysisID, record.StageIndex, err)
		}

		prev := record.StageIndex
		record.StateBlob = blob
		record.StageIndex = nextStage
		record.UpdatedAt = w.opts.now()
		if done {
			record.Status = core.CheckpointCompleted
			record.Result = blob
		}

		if err := w.checkpoints.Put(ctx, *record, expectedStage); err != nil {
			var conflict *core.CheckpointConflict
			if errors.As(err, &conflict) && !retried {
				// Lost the race to a concurrent run. Re-read and continue
				// from whatever it committed.
				retried = true
				latest, found, getErr := w.checkpoints.Get(ctx, record.AnalysisID)
				if getErr != nil || !found {
					return nil, fmt.Errorf("reload checkpoint after conflict: %w", getErr)
				}
				if latest.Status == core.CheckpointCompleted {
					return w.result(latest, true), nil
				}
				record = latest
				expectedStage = latest.StageIndex
				continue
			}
			return nil, fmt.Errorf("checkpoint analysis %s at stage %d: %w", record.AnalysisID, prev, err)
		}
		expectedStage = record.StageIndex

		w.opts.Logger.Debug("stage checkpointed", "analysis_id", record.AnalysisID, "stage", prev, "next", record.StageIndex, "done", done)

		if done {
			return w.result(record, false), nil
		}
	}
}

// markFailed records the failure so the next run resumes at the last
// completed stage. Best effort; the stage error is what gets surfaced.
func (w *Workflow) markFailed(ctx context.Context, record *core.CheckpointRecord, expectedStage int) {
	record.Status = core.CheckpointFailed
	record.UpdatedAt = w.opts.now()
	if err := w.checkpoints.Put(context.WithoutCancel(ctx), *record, expectedStage); err != nil {
		w.opts.Logger.Warn("failed to record analysis failure", "analysis_id", record.AnalysisID, "error", err)
	}
}

func (w *Workflow) fresh(record *core.CheckpointRecord) bool {
	return w.opts.StalenessWindow > 0 && w.opts.now().Sub(record.UpdatedAt) <= w.opts.StalenessWindow
}

func (w *Workflow) result(record *core.CheckpointRecord, fromCache bool) *core.DelegateResult {
	return &core.DelegateResult{
		Subject:     record.Subject,
		Kind:        record.Kind,
		Summary:     string(record.Result),
		Payload:     append([]byte(nil), record.Result...),
		FromCache:   fromCache,
		CompletedAt: record.UpdatedAt,
	}
}
