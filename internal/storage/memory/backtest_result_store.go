package memory

import (
	"context"
	"sort"
	"sync"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// BacktestResultStore is an in-memory implementation of storage.BacktestResultStore.
type BacktestResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BacktestResult // keyed by run_id|candidate_id|scenario_id
}

// NewBacktestResultStore creates a new in-memory backtest result store.
func NewBacktestResultStore() *BacktestResultStore {
	return &BacktestResultStore{
		data: make(map[string]*domain.BacktestResult),
	}
}

func backtestKey(r *domain.BacktestResult) string {
	return r.RunID + "|" + r.CandidateID + "|" + r.ScenarioID
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *BacktestResultStore) InsertBulk(_ context.Context, results []*domain.BacktestResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(results))
	for _, r := range results {
		if r == nil || r.CandidateID == "" || r.ScenarioID == "" {
			return storage.ErrInvalidInput
		}
		key := backtestKey(r)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range results {
		rCopy := *r
		s.data[backtestKey(r)] = &rCopy
	}
	return nil
}

// GetByCandidateID retrieves results ordered by (run_id, scenario_id) ASC.
func (s *BacktestResultStore) GetByCandidateID(_ context.Context, candidateID string) ([]*domain.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BacktestResult
	for _, r := range s.data {
		if r.CandidateID == candidateID {
			rCopy := *r
			result = append(result, &rCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].RunID != result[j].RunID {
			return result[i].RunID < result[j].RunID
		}
		return result[i].ScenarioID < result[j].ScenarioID
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.BacktestResultStore = (*BacktestResultStore)(nil)
