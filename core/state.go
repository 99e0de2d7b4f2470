package core

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a workflow instance. Transitions are
// monotone: pending -> running -> succeeded | failed. Backward transitions
// are ignored.
type Status string

const (
	// StatusPending means the workflow was created but not started.
	StatusPending Status = "pending"
	// StatusRunning means at least one step has begun executing.
	StatusRunning Status = "running"
	// StatusSucceeded is the successful terminal state.
	StatusSucceeded Status = "succeeded"
	// StatusFailed is the unsuccessful terminal state.
	StatusFailed Status = "failed"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusRunning:   1,
	StatusSucceeded: 2,
	StatusFailed:    2,
}

// IntentTag labels a classified query intent. Any combination of tags may
// apply to a single query.
type IntentTag string

const (
	// IntentDataQuery asks for rows from the relational store.
	IntentDataQuery IntentTag = "data_query"
	// IntentDocumentation asks about how something works.
	IntentDocumentation IntentTag = "documentation"
	// IntentCompetitive asks about competitors or market intelligence.
	IntentCompetitive IntentTag = "competitive"
	// IntentExternalLookup needs live data from an external analysis workflow.
	IntentExternalLookup IntentTag = "external_lookup"
)

// Chunk is one retrieved context fragment with its provenance and score.
type Chunk struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Row is one result row from the structured-query agent, field name to value.
type Row map[string]any

// DelegateResult is the structured payload returned by the long-running
// delegate workflow.
type DelegateResult struct {
	Subject     string    `json:"subject"`
	Kind        string    `json:"kind"`
	Summary     string    `json:"summary"`
	Payload     []byte    `json:"payload,omitempty"`
	FromCache   bool      `json:"from_cache"`
	CompletedAt time.Time `json:"completed_at"`
}

// StepOutcome labels how one step in the agent trace finished.
type StepOutcome string

const (
	// OutcomeCompleted means the step ran to completion.
	OutcomeCompleted StepOutcome = "completed"
	// OutcomeFailed means the step raised an error.
	OutcomeFailed StepOutcome = "failed"
	// OutcomeSkipped means the step's guard declined to run it.
	OutcomeSkipped StepOutcome = "skipped"
	// OutcomeCancelled means the query-level context was cancelled mid-step.
	OutcomeCancelled StepOutcome = "cancelled"
)

// TraceEntry records one step in completion order.
type TraceEntry struct {
	Step     string        `json:"step"`
	Outcome  StepOutcome   `json:"outcome"`
	Err      string        `json:"err,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// WorkflowState is the single mutable record threaded through the pipeline
// for one query. Each step owns exclusive write access to its own fields
// (single-writer discipline); the internal mutex only serializes the
// individual setter calls so concurrent steps never observe torn values.
//
// Invariants enforced here:
//   - the agent trace only grows
//   - status transitions are monotone
//   - accumulated cost never decreases
type WorkflowState struct {
	mu sync.RWMutex

	ID    string `json:"id"`
	Query Query  `json:"query"`

	// Written by the intent classifier step.
	Intent   []IntentTag       `json:"intent,omitempty"`
	Entities map[string]string `json:"entities,omitempty"`

	// Written by the retrieval step.
	RetrievedChunks []Chunk `json:"retrieved_chunks,omitempty"`

	// Written by the structured-query step.
	StructuredResults []Row  `json:"structured_results,omitempty"`
	StructuredNote    string `json:"structured_note,omitempty"`

	// Written by the delegate step.
	Delegate *DelegateResult `json:"delegate_result,omitempty"`

	// Written by the synthesis step.
	Answer            string   `json:"synthesized_answer,omitempty"`
	Citations         []string `json:"citations,omitempty"`
	SuggestedActions  []string `json:"suggested_actions,omitempty"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`

	// Written by the engine.
	AgentTrace         []TraceEntry  `json:"agent_trace"`
	Status             Status        `json:"status"`
	Degraded           bool          `json:"degraded"`
	FailureReason      string        `json:"failure_reason,omitempty"`
	AccumulatedCost    float64       `json:"accumulated_cost"`
	AccumulatedTokens  int           `json:"accumulated_tokens"`
	AccumulatedLatency time.Duration `json:"accumulated_latency"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWorkflowState creates the state record for one query in pending status.
func NewWorkflowState(q Query) *WorkflowState {
	now := time.Now()
	return &WorkflowState{
		ID:        NewWorkflowID(),
		Query:     q,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetIntent records the classified intent tags and extracted entities.
func (s *WorkflowState) SetIntent(tags []IntentTag, entities map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Intent = append([]IntentTag(nil), tags...)
	s.Entities = entities
	s.touchLocked()
}

// HasIntent reports whether the given tag was classified for this query.
func (s *WorkflowState) HasIntent(tag IntentTag) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.Intent {
		if t == tag {
			return true
		}
	}
	return false
}

// Entity returns an extracted entity value by name.
func (s *WorkflowState) Entity(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Entities[name]
	return v, ok
}

// SetRetrievedChunks records the retrieval step output.
func (s *WorkflowState) SetRetrievedChunks(chunks []Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RetrievedChunks = append([]Chunk(nil), chunks...)
	s.touchLocked()
}

// SetStructuredResults records the structured-query step output and an
// optional explanatory note (set when the safety gate rejected a statement).
func (s *WorkflowState) SetStructuredResults(rows []Row, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StructuredResults = append([]Row(nil), rows...)
	s.StructuredNote = note
	s.touchLocked()
}

// SetDelegateResult records the delegate step output.
func (s *WorkflowState) SetDelegateResult(r *DelegateResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Delegate = r
	s.touchLocked()
}

// SetAnswer records the synthesis step output.
func (s *WorkflowState) SetAnswer(answer string, citations, actions, followUps []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Answer = answer
	s.Citations = append([]string(nil), citations...)
	s.SuggestedActions = append([]string(nil), actions...)
	s.FollowUpQuestions = append([]string(nil), followUps...)
	s.touchLocked()
}

// AppendTrace appends one entry to the agent trace. The trace is append-only
// and reflects true completion order, not invocation order.
func (s *WorkflowState) AppendTrace(entry TraceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	s.AgentTrace = append(s.AgentTrace, entry)
	s.touchLocked()
}

// SetStatus applies a monotone status transition. Transitions that would
// move backward (or out of a terminal state) are ignored.
func (s *WorkflowState) SetStatus(next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if statusRank[next] <= statusRank[s.Status] && next != s.Status {
		return
	}
	if statusRank[s.Status] >= statusRank[StatusSucceeded] {
		return
	}
	s.Status = next
	s.touchLocked()
}

// GetStatus returns the current lifecycle status.
func (s *WorkflowState) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// MarkDegraded flags the state as a partial result and records the reason.
func (s *WorkflowState) MarkDegraded(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Degraded = true
	if reason != "" {
		s.FailureReason = reason
	}
	s.touchLocked()
}

// AddUsage accumulates cost, token and latency totals for one completed
// step. Negative cost or token deltas are ignored to keep the accumulated
// totals monotone.
func (s *WorkflowState) AddUsage(costUSD float64, tokens int, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if costUSD > 0 {
		s.AccumulatedCost += costUSD
	}
	if tokens > 0 {
		s.AccumulatedTokens += tokens
	}
	if latency > 0 {
		s.AccumulatedLatency += latency
	}
	s.touchLocked()
}

// Cost returns the accumulated cost in USD.
func (s *WorkflowState) Cost() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.AccumulatedCost
}

// Trace returns a defensive copy of the agent trace.
func (s *WorkflowState) Trace() []TraceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trace := make([]TraceEntry, len(s.AgentTrace))
	copy(trace, s.AgentTrace)
	return trace
}

// touchLocked updates the modification timestamp; caller holds the lock.
func (s *WorkflowState) touchLocked() { s.UpdatedAt = time.Now() }

// Snapshot returns an immutable deep copy of the state suitable for
// persistence. Taken by the engine after every completed step.
func (s *WorkflowState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StateSnapshot{
		ID:                 s.ID,
		Query:              s.Query,
		Intent:             append([]IntentTag(nil), s.Intent...),
		RetrievedChunks:    append([]Chunk(nil), s.RetrievedChunks...),
		StructuredNote:     s.StructuredNote,
		Answer:             s.Answer,
		Citations:          append([]string(nil), s.Citations...),
		SuggestedActions:   append([]string(nil), s.SuggestedActions...),
		FollowUpQuestions:  append([]string(nil), s.FollowUpQuestions...),
		AgentTrace:         append([]TraceEntry(nil), s.AgentTrace...),
		Status:             s.Status,
		Degraded:           s.Degraded,
		FailureReason:      s.FailureReason,
		AccumulatedCost:    s.AccumulatedCost,
		AccumulatedTokens:  s.AccumulatedTokens,
		AccumulatedLatency: s.AccumulatedLatency,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}

	if s.Entities != nil {
		snap.Entities = make(map[string]string, len(s.Entities))
		for k, v := range s.Entities {
			snap.Entities[k] = v
		}
	}
	if s.StructuredResults != nil {
		snap.StructuredResults = make([]Row, len(s.StructuredResults))
		for i, row := range s.StructuredResults {
			cp := make(Row, len(row))
			for k, v := range row {
				cp[k] = v
			}
			snap.StructuredResults[i] = cp
		}
	}
	if s.Delegate != nil {
		cp := *s.Delegate
		cp.Payload = append([]byte(nil), s.Delegate.Payload...)
		snap.Delegate = &cp
	}

	return snap
}

// StateSnapshot is an immutable point-in-time copy of a WorkflowState.
type StateSnapshot struct {
	ID                 string            `json:"id"`
	Query              Query             `json:"query"`
	Intent             []IntentTag       `json:"intent,omitempty"`
	Entities           map[string]string `json:"entities,omitempty"`
	RetrievedChunks    []Chunk           `json:"retrieved_chunks,omitempty"`
	StructuredResults  []Row             `json:"structured_results,omitempty"`
	StructuredNote     string            `json:"structured_note,omitempty"`
	Delegate           *DelegateResult   `json:"delegate_result,omitempty"`
	Answer             string            `json:"synthesized_answer,omitempty"`
	Citations          []string          `json:"citations,omitempty"`
	SuggestedActions   []string          `json:"suggested_actions,omitempty"`
	FollowUpQuestions  []string          `json:"follow_up_questions,omitempty"`
	AgentTrace         []TraceEntry      `json:"agent_trace"`
	Status             Status            `json:"status"`
	Degraded           bool              `json:"degraded"`
	FailureReason      string            `json:"failure_reason,omitempty"`
	AccumulatedCost    float64           `json:"accumulated_cost"`
	AccumulatedTokens  int               `json:"accumulated_tokens"`
	AccumulatedLatency time.Duration     `json:"accumulated_latency"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}
