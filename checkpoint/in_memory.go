package checkpoint

import (
	"context"
	"sync"

	"github.com/hupe1980/contextmesh/core"
)

// InMemoryStore is a thread-safe in-memory core.CheckpointStore with the same
// optimistic-concurrency semantics as the Redis store.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]core.CheckpointRecord
}

// NewInMemoryStore creates an empty checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: map[string]core.CheckpointRecord{}}
}

// Get implements core.CheckpointStore.
func (s *InMemoryStore) Get(_ context.Context, analysisID string) (*core.CheckpointRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[analysisID]
	if !ok {
		return nil, false, nil
	}
	cp := rec
	cp.StateBlob = append([]byte(nil), rec.StateBlob...)
	cp.Result = append([]byte(nil), rec.Result...)
	return &cp, true, nil
}

// Put implements core.CheckpointStore.
func (s *InMemoryStore) Put(_ context.Context, record core.CheckpointRecord, expectedStage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[record.AnalysisID]
	switch {
	case expectedStage == -1 && exists:
		return &core.CheckpointConflict{AnalysisID: record.AnalysisID, ExpectedStage: expectedStage}
	case expectedStage != -1 && !exists:
		return &core.CheckpointConflict{AnalysisID: record.AnalysisID, ExpectedStage: expectedStage}
	case expectedStage != -1 && current.StageIndex != expectedStage:
		return &core.CheckpointConflict{AnalysisID: record.AnalysisID, ExpectedStage: expectedStage}
	}

	record.StateBlob = append([]byte(nil), record.StateBlob...)
	record.Result = append([]byte(nil), record.Result...)
	s.records[record.AnalysisID] = record
	return nil
}
