package memory

import (
	"context"
	"sort"
	"sync"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// OutcomeStore is an in-memory implementation of storage.OutcomeStore.
type OutcomeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ValidationOutcome // keyed by outcome_id
}

// NewOutcomeStore creates a new in-memory outcome store.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{
		data: make(map[string]*domain.ValidationOutcome),
	}
}

func copyOutcome(o *domain.ValidationOutcome) *domain.ValidationOutcome {
	out := *o
	out.Gates = append([]domain.GateResult(nil), o.Gates...)
	out.FailureReasons = append([]string(nil), o.FailureReasons...)
	return &out
}

// Insert adds a new outcome. Returns ErrDuplicateKey if outcome_id exists.
func (s *OutcomeStore) Insert(_ context.Context, o *domain.ValidationOutcome) error {
	if o == nil || o.OutcomeID == "" || o.CandidateID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.OutcomeID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[o.OutcomeID] = copyOutcome(o)
	return nil
}

// GetByID retrieves an outcome. Returns ErrNotFound if not exists.
func (s *OutcomeStore) GetByID(_ context.Context, outcomeID string) (*domain.ValidationOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[outcomeID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyOutcome(o), nil
}

// GetByCandidateID retrieves all outcomes of a candidate, ordered by created_at ASC.
func (s *OutcomeStore) GetByCandidateID(_ context.Context, candidateID string) ([]*domain.ValidationOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ValidationOutcome
	for _, o := range s.data {
		if o.CandidateID == candidateID {
			result = append(result, copyOutcome(o))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAtMs != result[j].CreatedAtMs {
			return result[i].CreatedAtMs < result[j].CreatedAtMs
		}
		return result[i].RunID < result[j].RunID
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.OutcomeStore = (*OutcomeStore)(nil)
