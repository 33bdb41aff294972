package memory

import (
	"context"
	"sort"
	"sync"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// GenerationRunStore is an in-memory implementation of storage.GenerationRunStore.
type GenerationRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.GenerationRun // keyed by run_id
}

// NewGenerationRunStore creates a new in-memory generation run store.
func NewGenerationRunStore() *GenerationRunStore {
	return &GenerationRunStore{
		data: make(map[string]*domain.GenerationRun),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *GenerationRunStore) Insert(_ context.Context, r *domain.GenerationRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	rCopy := *r
	rCopy.Instruments = append([]string(nil), r.Instruments...)
	s.data[r.RunID] = &rCopy
	return nil
}

// List retrieves all runs ordered by at_ms ASC.
func (s *GenerationRunStore) List(_ context.Context) ([]*domain.GenerationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.GenerationRun, 0, len(s.data))
	for _, r := range s.data {
		rCopy := *r
		rCopy.Instruments = append([]string(nil), r.Instruments...)
		result = append(result, &rCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].AtMs != result[j].AtMs {
			return result[i].AtMs < result[j].AtMs
		}
		return result[i].RunID < result[j].RunID
	})
	return result, nil
}

// TestAuditStore is an in-memory implementation of storage.TestAuditStore.
type TestAuditStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TestAuditRow // keyed by run_id|candidate_id|test_id
}

// NewTestAuditStore creates a new in-memory test audit store.
func NewTestAuditStore() *TestAuditStore {
	return &TestAuditStore{
		data: make(map[string]*domain.TestAuditRow),
	}
}

func testAuditKey(r *domain.TestAuditRow) string {
	return r.RunID + "|" + r.CandidateID + "|" + r.TestID
}

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *TestAuditStore) InsertBulk(_ context.Context, rows []*domain.TestAuditRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(rows))

	for _, r := range rows {
		if r == nil || r.CandidateID == "" || r.TestID == "" {
			return storage.ErrInvalidInput
		}
		key := testAuditKey(r)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range rows {
		rCopy := *r
		s.data[testAuditKey(r)] = &rCopy
	}
	return nil
}

// GetByCandidateID retrieves rows of a candidate ordered by (created_at, test_id) ASC.
func (s *TestAuditStore) GetByCandidateID(_ context.Context, candidateID string) ([]*domain.TestAuditRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TestAuditRow
	for _, r := range s.data {
		if r.CandidateID == candidateID {
			rCopy := *r
			result = append(result, &rCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAtMs != result[j].CreatedAtMs {
			return result[i].CreatedAtMs < result[j].CreatedAtMs
		}
		if result[i].RunID != result[j].RunID {
			return result[i].RunID < result[j].RunID
		}
		return result[i].TestID < result[j].TestID
	})
	return result, nil
}

// LiveTrackingStore is an in-memory implementation of storage.LiveTrackingStore.
type LiveTrackingStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LiveTrackingRecord // keyed by param_hash
}

// NewLiveTrackingStore creates a new in-memory live tracking store.
func NewLiveTrackingStore() *LiveTrackingStore {
	return &LiveTrackingStore{
		data: make(map[string]*domain.LiveTrackingRecord),
	}
}

// Insert adds a placeholder. Returns ErrDuplicateKey if param_hash exists.
func (s *LiveTrackingStore) Insert(_ context.Context, r *domain.LiveTrackingRecord) error {
	if r == nil || r.ParamHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ParamHash]; exists {
		return storage.ErrDuplicateKey
	}
	rCopy := *r
	s.data[r.ParamHash] = &rCopy
	return nil
}

// List retrieves all placeholders ordered by activated_ms ASC.
func (s *LiveTrackingStore) List(_ context.Context) ([]*domain.LiveTrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.LiveTrackingRecord, 0, len(s.data))
	for _, r := range s.data {
		rCopy := *r
		result = append(result, &rCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ActivatedMs != result[j].ActivatedMs {
			return result[i].ActivatedMs < result[j].ActivatedMs
		}
		return result[i].ParamHash < result[j].ParamHash
	})
	return result, nil
}

// Verify interface compliance at compile time.
var (
	_ storage.GenerationRunStore = (*GenerationRunStore)(nil)
	_ storage.TestAuditStore     = (*TestAuditStore)(nil)
	_ storage.LiveTrackingStore  = (*LiveTrackingStore)(nil)
)
