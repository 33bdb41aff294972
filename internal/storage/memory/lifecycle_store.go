package memory

import (
	"context"
	"sort"
	"sync"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// LifecycleStore is an in-memory implementation of storage.LifecycleStore.
type LifecycleStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.Transition // keyed by candidate_id, ordered by seq
}

// NewLifecycleStore creates a new in-memory lifecycle store.
func NewLifecycleStore() *LifecycleStore {
	return &LifecycleStore{
		data: make(map[string][]*domain.Transition),
	}
}

// Append adds t at position t.Seq. Returns ErrConflict if the position is taken.
func (s *LifecycleStore) Append(_ context.Context, t *domain.Transition) error {
	if t == nil || t.CandidateID == "" || t.Seq < 0 || !t.To.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.data[t.CandidateID]
	if t.Seq != len(history) {
		return storage.ErrConflict
	}

	tCopy := *t
	s.data[t.CandidateID] = append(history, &tCopy)
	return nil
}

// History retrieves a candidate's transitions ordered by seq ASC.
func (s *LifecycleStore) History(_ context.Context, candidateID string) ([]*domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[candidateID]
	result := make([]*domain.Transition, len(history))
	for i, t := range history {
		tCopy := *t
		result[i] = &tCopy
	}
	return result, nil
}

// ListByStage retrieves the last transition of every candidate currently at stage.
func (s *LifecycleStore) ListByStage(_ context.Context, stage domain.Stage) ([]*domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transition
	for _, history := range s.data {
		last := history[len(history)-1]
		if last.To == stage {
			tCopy := *last
			result = append(result, &tCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CandidateID < result[j].CandidateID
	})
	return result, nil
}

// CountByStage returns the number of candidates at each current stage.
func (s *LifecycleStore) CountByStage(_ context.Context) (map[domain.Stage]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.Stage]int)
	for _, history := range s.data {
		counts[history[len(history)-1].To]++
	}
	return counts, nil
}

// Verify interface compliance at compile time.
var _ storage.LifecycleStore = (*LifecycleStore)(nil)
