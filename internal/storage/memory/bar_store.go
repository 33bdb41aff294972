package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.Bar // keyed by instrument, sorted by timestamp
	keys map[string]struct{}      // instrument|timestamp_ms
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string][]*domain.Bar),
		keys: make(map[string]struct{}),
	}
}

func barKey(b *domain.Bar) string {
	return fmt.Sprintf("%s|%d", b.Instrument, b.TimestampMs)
}

// InsertBulk adds multiple bars atomically. Fails entire batch on any duplicate.
func (s *BarStore) InsertBulk(_ context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.Instrument == "" {
			return storage.ErrInvalidInput
		}
		key := barKey(b)
		if _, exists := s.keys[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	touched := make(map[string]struct{})
	for _, b := range bars {
		bCopy := *b
		s.data[b.Instrument] = append(s.data[b.Instrument], &bCopy)
		s.keys[barKey(b)] = struct{}{}
		touched[b.Instrument] = struct{}{}
	}

	for inst := range touched {
		series := s.data[inst]
		sort.Slice(series, func(i, j int) bool {
			return series[i].TimestampMs < series[j].TimestampMs
		})
	}
	return nil
}

// GetByTimeRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetByTimeRange(_ context.Context, instrument string, start, end int64) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[instrument]
	lo := sort.Search(len(series), func(i int) bool { return series[i].TimestampMs >= start })

	var result []*domain.Bar
	for i := lo; i < len(series) && series[i].TimestampMs <= end; i++ {
		bCopy := *series[i]
		result = append(result, &bCopy)
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.BarStore = (*BarStore)(nil)
