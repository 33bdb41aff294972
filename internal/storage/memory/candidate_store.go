package memory

import (
	"context"
	"sort"
	"sync"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// CandidateStore is an in-memory implementation of storage.CandidateStore.
type CandidateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CandidateSpec // keyed by param_hash
}

// NewCandidateStore creates a new in-memory candidate store.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{
		data: make(map[string]*domain.CandidateSpec),
	}
}

// Insert adds a new candidate. Returns ErrDuplicateKey if param_hash exists.
func (s *CandidateStore) Insert(_ context.Context, c *domain.CandidateSpec) error {
	if c == nil || c.ParamHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ParamHash]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	candidateCopy := *c
	s.data[c.ParamHash] = &candidateCopy
	return nil
}

// GetByID retrieves a candidate by its param hash. Returns ErrNotFound if not exists.
func (s *CandidateStore) GetByID(_ context.Context, paramHash string) (*domain.CandidateSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[paramHash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	candidateCopy := *c
	return &candidateCopy, nil
}

// GetByInstrument retrieves all candidates for an instrument.
func (s *CandidateStore) GetByInstrument(_ context.Context, instrument string) ([]*domain.CandidateSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CandidateSpec
	for _, c := range s.data {
		if c.Instrument == instrument {
			candidateCopy := *c
			result = append(result, &candidateCopy)
		}
	}

	sortCandidates(result)
	return result, nil
}

// List retrieves all candidates.
func (s *CandidateStore) List(_ context.Context) ([]*domain.CandidateSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CandidateSpec, 0, len(s.data))
	for _, c := range s.data {
		candidateCopy := *c
		result = append(result, &candidateCopy)
	}

	sortCandidates(result)
	return result, nil
}

// sortCandidates orders by (created_at, param_hash) ASC.
func sortCandidates(cs []*domain.CandidateSpec) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAtMs != cs[j].CreatedAtMs {
			return cs[i].CreatedAtMs < cs[j].CreatedAtMs
		}
		return cs[i].ParamHash < cs[j].ParamHash
	})
}

// Verify interface compliance at compile time.
var _ storage.CandidateStore = (*CandidateStore)(nil)
