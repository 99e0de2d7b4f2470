package store

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/contextmesh/core"
)

// InMemoryConversationStore is a thread-safe in-memory core.ConversationStore.
type InMemoryConversationStore struct {
	mu      sync.Mutex
	records map[core.ConversationKey]*core.ConversationRecord
}

// NewInMemoryConversationStore creates an empty conversation store.
func NewInMemoryConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{records: map[core.ConversationKey]*core.ConversationRecord{}}
}

// Get implements core.ConversationStore. A missing record is created empty.
func (s *InMemoryConversationStore) Get(_ context.Context, key core.ConversationKey) (*core.ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getLocked(key)

	cp := *rec
	cp.Turns = append([]core.Turn(nil), rec.Turns...)
	cp.State = append([]byte(nil), rec.State...)
	return &cp, nil
}

// AppendTurn implements core.ConversationStore.
func (s *InMemoryConversationStore) AppendTurn(_ context.Context, key core.ConversationKey, turn core.Turn, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getLocked(key)
	rec.Turns = append(rec.Turns, turn)
	if state != nil {
		rec.State = append([]byte(nil), state...)
	}
	rec.Updated = time.Now()
	return nil
}

func (s *InMemoryConversationStore) getLocked(key core.ConversationKey) *core.ConversationRecord {
	rec, ok := s.records[key]
	if !ok {
		now := time.Now()
		rec = &core.ConversationRecord{Key: key, Created: now, Updated: now}
		s.records[key] = rec
	}
	return rec
}

// InMemoryAnalyticsStore is a thread-safe in-memory core.AnalyticsStore.
type InMemoryAnalyticsStore struct {
	mu     sync.Mutex
	events []core.AnalyticsEvent
}

// NewInMemoryAnalyticsStore creates an empty analytics ledger.
func NewInMemoryAnalyticsStore() *InMemoryAnalyticsStore {
	return &InMemoryAnalyticsStore{}
}

// Record implements core.AnalyticsStore.
func (s *InMemoryAnalyticsStore) Record(_ context.Context, event core.AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded ledger.
func (s *InMemoryAnalyticsStore) Events() []core.AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.AnalyticsEvent(nil), s.events...)
}

// InMemoryStateStore is a thread-safe in-memory core.StateStore retaining the
// latest snapshot per workflow plus a full write history for inspection.
type InMemoryStateStore struct {
	mu      sync.Mutex
	latest  map[string]core.StateSnapshot
	history []core.StateSnapshot
}

// NewInMemoryStateStore creates an empty state store.
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{latest: map[string]core.StateSnapshot{}}
}

// SaveSnapshot implements core.StateStore.
func (s *InMemoryStateStore) SaveSnapshot(_ context.Context, snapshot core.StateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[snapshot.ID] = snapshot
	s.history = append(s.history, snapshot)
	return nil
}

// Latest returns the most recent snapshot for a workflow id.
func (s *InMemoryStateStore) Latest(workflowID string) (core.StateSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.latest[workflowID]
	return snap, ok
}

// History returns every snapshot written, in write order.
func (s *InMemoryStateStore) History() []core.StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.StateSnapshot(nil), s.history...)
}
