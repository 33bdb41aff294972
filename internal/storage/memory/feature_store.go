package memory

import (
	"context"
	"sort"
	"sync"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
type FeatureStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SessionFeatures // keyed by instrument|window_key|session_date
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{
		data: make(map[string]*domain.SessionFeatures),
	}
}

func featureKey(f *domain.SessionFeatures) string {
	return f.Instrument + "|" + f.WindowKey + "|" + f.SessionDate
}

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *FeatureStore) InsertBulk(_ context.Context, features []*domain.SessionFeatures) error {
	if len(features) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(features))
	for _, f := range features {
		if f == nil || f.Instrument == "" || f.WindowKey == "" || f.SessionDate == "" {
			return storage.ErrInvalidInput
		}
		key := featureKey(f)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, f := range features {
		fCopy := *f
		s.data[featureKey(f)] = &fCopy
	}
	return nil
}

// GetByWindow retrieves features for [startDate, endDate], ordered by session_date ASC.
func (s *FeatureStore) GetByWindow(_ context.Context, instrument, windowKey, startDate, endDate string) ([]*domain.SessionFeatures, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SessionFeatures
	for _, f := range s.data {
		if f.Instrument != instrument || f.WindowKey != windowKey {
			continue
		}
		// YYYY-MM-DD compares lexicographically
		if f.SessionDate < startDate || f.SessionDate > endDate {
			continue
		}
		fCopy := *f
		result = append(result, &fCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SessionDate < result[j].SessionDate
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.FeatureStore = (*FeatureStore)(nil)
