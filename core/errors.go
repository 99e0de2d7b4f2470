package core

import (
	"errors"
	"fmt"
)

// ErrClassificationAmbiguous signals that intent classification could not
// map the query to any known tag. Recovered locally by falling back to the
// default agent set; never surfaced to callers.
var ErrClassificationAmbiguous = errors.New("intent classification ambiguous")

// WorkflowError is the terminal error of a failed workflow run: a required
// step raised and no fallback applied. The workflow state it accompanies
// carries status failed and the partial trace.
type WorkflowError struct {
	Stage string
	Cause error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow failed at stage %s: %v", e.Stage, e.Cause)
}

func (e *WorkflowError) Unwrap() error { return e.Cause }

// UnsafeQueryError reports a translated statement rejected by the
// structured-query safety gate. It is recovered locally: the agent returns
// empty rows plus an explanatory note and the statement never reaches the
// store collaborator.
type UnsafeQueryError struct {
	Statement string
	Reason    string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("unsafe statement rejected: %s", e.Reason)
}

// TimeoutError reports that a step exceeded its collaborator-call timeout.
// The engine treats it as a step failure subject to the guard/fallback rules.
type TimeoutError struct {
	Step string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out", e.Step)
}

// CheckpointConflict reports a lost optimistic-concurrency race on a
// delegate checkpoint: another run advanced past the expected stage first.
// Recovered by re-reading the latest checkpoint and retrying once.
type CheckpointConflict struct {
	AnalysisID    string
	ExpectedStage int
}

func (e *CheckpointConflict) Error() string {
	return fmt.Sprintf("checkpoint conflict for %s at stage %d", e.AnalysisID, e.ExpectedStage)
}
