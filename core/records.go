package core

import "time"

// Turn is one completed exchange within a conversation.
type Turn struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationRecord owns the append-only turn history of one conversation
// plus an opaque state blob for cross-turn context (last mentioned entity and
// the like). One record exists per ConversationKey; the core never deletes
// records, retention is an external concern.
type ConversationRecord struct {
	Key     ConversationKey `json:"key"`
	Turns   []Turn          `json:"turns"`
	State   []byte          `json:"state,omitempty"`
	Created time.Time       `json:"created"`
	Updated time.Time       `json:"updated"`
}

// AnalyticsEvent is the write-once ledger entry emitted for every completed
// or failed query. Never mutated after creation.
type AnalyticsEvent struct {
	WorkflowID string        `json:"workflow_id"`
	Namespace  string        `json:"namespace"`
	UserID     string        `json:"user_id"`
	Intent     []IntentTag   `json:"intent"`
	AgentsUsed []string      `json:"agents_used"`
	Latency    time.Duration `json:"latency"`
	Tokens     int           `json:"tokens"`
	CostUSD    float64       `json:"cost_usd"`
	ModelTiers []string      `json:"model_tiers,omitempty"`
	Success    bool          `json:"success"`
	ErrSummary string        `json:"err_summary,omitempty"`
	At         time.Time     `json:"at"`
}

// CheckpointStatus labels the lifecycle of a delegate analysis checkpoint.
type CheckpointStatus string

const (
	// CheckpointRunning means the analysis is mid-flight; a new run for the
	// same subject resumes from StageIndex instead of restarting.
	CheckpointRunning CheckpointStatus = "running"
	// CheckpointCompleted means the analysis finished and Result is valid.
	CheckpointCompleted CheckpointStatus = "completed"
	// CheckpointFailed means the last run gave up; a new run restarts from
	// the recorded StageIndex.
	CheckpointFailed CheckpointStatus = "failed"
)

// CheckpointRecord is the durable progress snapshot of one long-running
// delegate analysis, keyed by (subject, analysis kind). Updated at each
// stage boundary so a failed run resumes at the last completed stage.
type CheckpointRecord struct {
	AnalysisID string           `json:"analysis_id"`
	Subject    string           `json:"subject"`
	Kind       string           `json:"kind"`
	StageIndex int              `json:"stage_index"`
	StateBlob  []byte           `json:"state_blob,omitempty"`
	Status     CheckpointStatus `json:"status"`
	Result     []byte           `json:"result,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
