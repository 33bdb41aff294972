package memory

import (
	"context"
	"sort"
	"sync"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// ManifestStore is an in-memory implementation of storage.ManifestStore.
type ManifestStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ManifestEntry // keyed by param_hash
}

// NewManifestStore creates a new in-memory manifest store.
func NewManifestStore() *ManifestStore {
	return &ManifestStore{
		data: make(map[string]*domain.ManifestEntry),
	}
}

// Insert adds a new entry. Returns ErrDuplicateKey if param_hash exists.
func (s *ManifestStore) Insert(_ context.Context, e *domain.ManifestEntry) error {
	if e == nil || e.ParamHash == "" || e.Spec == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ParamHash]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[e.ParamHash] = e.Clone()
	return nil
}

// GetByParamHash retrieves an entry. Returns ErrNotFound if not exists.
func (s *ManifestStore) GetByParamHash(_ context.Context, paramHash string) (*domain.ManifestEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[paramHash]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return e.Clone(), nil
}

// List retrieves all entries ordered by (approved_at, param_hash) ASC.
func (s *ManifestStore) List(_ context.Context) ([]*domain.ManifestEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ManifestEntry, 0, len(s.data))
	for _, e := range s.data {
		result = append(result, e.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ApprovedAtMs != result[j].ApprovedAtMs {
			return result[i].ApprovedAtMs < result[j].ApprovedAtMs
		}
		return result[i].ParamHash < result[j].ParamHash
	})
	return result, nil
}

// CountByLineage returns the number of entries sharing a lineage hash.
func (s *ManifestStore) CountByLineage(_ context.Context, lineageHash string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.data {
		if e.LineageHash == lineageHash {
			n++
		}
	}
	return n, nil
}

// MarkSynced sets a consumer's sync flag and returns the updated entry.
func (s *ManifestStore) MarkSynced(_ context.Context, paramHash, consumer string) (*domain.ManifestEntry, error) {
	if consumer == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[paramHash]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if e.SyncFlags == nil {
		e.SyncFlags = make(map[string]bool)
	}
	e.SyncFlags[consumer] = true
	return e.Clone(), nil
}

// SetStatus updates the downstream status.
func (s *ManifestStore) SetStatus(_ context.Context, paramHash string, status domain.ManifestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.data[paramHash]
	if !exists {
		return storage.ErrNotFound
	}
	e.Status = status
	return nil
}

// Verify interface compliance at compile time.
var _ storage.ManifestStore = (*ManifestStore)(nil)
