// Package testutil provides scripted collaborator stubs shared by the
// package test suites.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/contextmesh/core"
)

// StubVectorSearcher returns a canned match set for every search.
type StubVectorSearcher struct {
	Matches []core.Match
	Err     error

	mu    sync.Mutex
	calls []SearchCall
}

// SearchCall records the arguments of one Search invocation.
type SearchCall struct {
	Namespace string
	Threshold float64
	Limit     int
}

// Search implements core.VectorSearcher, applying threshold and limit to the
// canned matches.
func (s *StubVectorSearcher) Search(_ context.Context, _ []float32, namespace string, threshold float64, limit int) ([]core.Match, error) {
	s.mu.Lock()
	s.calls = append(s.calls, SearchCall{Namespace: namespace, Threshold: threshold, Limit: limit})
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	var out []core.Match
	for _, m := range s.Matches {
		if m.Namespace == namespace && m.Similarity >= threshold {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Calls returns the recorded search invocations.
func (s *StubVectorSearcher) Calls() []SearchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SearchCall(nil), s.calls...)
}

// StubRowStore returns canned rows and records every executed statement.
type StubRowStore struct {
	Rows []core.Row
	Err  error

	mu         sync.Mutex
	statements []string
}

// QueryRows implements core.RowStore.
func (s *StubRowStore) QueryRows(_ context.Context, statement string, limit int) ([]core.Row, error) {
	s.mu.Lock()
	s.statements = append(s.statements, statement)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	rows := s.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Statements returns every statement that reached the store.
func (s *StubRowStore) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statements...)
}

// StageScript defines one scripted stage of a StubStageRunner.
type StageScript struct {
	Blob []byte
	Err  error
}

// StubStageRunner plays back a fixed stage script and records which stages
// actually ran, so tests can assert that resumed runs skip completed stages.
type StubStageRunner struct {
	Stages []StageScript

	mu  sync.Mutex
	ran []int
}

// RunStage implements core.StageRunner.
func (s *StubStageRunner) RunStage(_ context.Context, _ string, stageIndex int, _ []byte) ([]byte, int, bool, error) {
	s.mu.Lock()
	s.ran = append(s.ran, stageIndex)
	s.mu.Unlock()

	if stageIndex < 0 || stageIndex >= len(s.Stages) {
		return nil, stageIndex, false, fmt.Errorf("no scripted stage %d", stageIndex)
	}
	stage := s.Stages[stageIndex]
	if stage.Err != nil {
		return nil, stageIndex, false, stage.Err
	}
	done := stageIndex == len(s.Stages)-1
	return stage.Blob, stageIndex + 1, done, nil
}

// Ran returns the stage indexes executed, in order.
func (s *StubStageRunner) Ran() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.ran...)
}

// FailingStateStore fails every snapshot write after Allow successes.
// LastSnapshot holds the most recently attempted write, accepted or not.
type FailingStateStore struct {
	Allow int
	Err   error

	LastSnapshot core.StateSnapshot

	mu     sync.Mutex
	writes int
}

// SaveSnapshot implements core.StateStore.
func (s *FailingStateStore) SaveSnapshot(_ context.Context, snap core.StateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.LastSnapshot = snap
	if s.writes > s.Allow {
		if s.Err != nil {
			return s.Err
		}
		return fmt.Errorf("snapshot store unavailable")
	}
	return nil
}
