package core

import "context"

// EmbeddingDimensions is the vector width produced by the embedding provider
// and expected by every VectorSearcher implementation.
const EmbeddingDimensions = 1536

// Match is one ranked hit from the vector-search collaborator. Similarity is
// cosine-derived, higher is better.
type Match struct {
	ID         string            `json:"id"`
	Namespace  string            `json:"namespace"`
	SourcePath string            `json:"source_path"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// VectorSearcher is the black-box vector-similarity index. Implementations
// return matches above threshold ordered by descending similarity, capped at
// limit, scoped to the tenant namespace.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, namespace string, threshold float64, limit int) ([]Match, error)
}

// RowStore executes a single read-only statement against the relational
// collaborator and returns rows as ordered field mappings capped at limit.
// Implementations may assume the statement already passed the safety gate.
type RowStore interface {
	QueryRows(ctx context.Context, statement string, limit int) ([]Row, error)
}

// ConversationStore persists conversation records with append-only turns.
type ConversationStore interface {
	// Get returns the record for key, creating an empty one if none exists.
	Get(ctx context.Context, key ConversationKey) (*ConversationRecord, error)

	// AppendTurn appends a completed turn and optionally replaces the opaque
	// cross-turn state blob (nil leaves it unchanged).
	AppendTurn(ctx context.Context, key ConversationKey, turn Turn, state []byte) error
}

// AnalyticsStore records the append-only analytics ledger.
type AnalyticsStore interface {
	Record(ctx context.Context, event AnalyticsEvent) error
}

// StateStore persists workflow state snapshots after every step for crash
// recovery and audit. A failing StateStore is the engine's only fatal
// condition.
type StateStore interface {
	SaveSnapshot(ctx context.Context, snapshot StateSnapshot) error
}

// CheckpointStore persists delegate analysis checkpoints. Writes are
// conditional on the last known stage index (optimistic concurrency) so two
// concurrent runs for the same subject cannot both advance past the same
// stage; a lost race returns *CheckpointConflict.
type CheckpointStore interface {
	// Get returns the checkpoint for analysisID, reporting whether it exists.
	Get(ctx context.Context, analysisID string) (*CheckpointRecord, bool, error)

	// Put writes the record if the stored stage index still equals
	// expectedStage. Use -1 as expectedStage to create a new record; that
	// fails with *CheckpointConflict when a record already exists.
	Put(ctx context.Context, record CheckpointRecord, expectedStage int) error
}

// StageRunner is the external delegate workflow collaborator. RunStage
// executes one analysis stage and returns the next state blob, the index of
// the next stage and whether the analysis is complete.
type StageRunner interface {
	RunStage(ctx context.Context, subject string, stageIndex int, stateBlob []byte) (next []byte, nextStage int, done bool, err error)
}
