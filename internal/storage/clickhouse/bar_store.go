package clickhouse

import (
	"context"
	"fmt"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds multiple bars. Fails entire batch on duplicate (instrument, timestamp_ms).
// MergeTree does not enforce keys, so duplicates are checked before the insert.
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		instrument  string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(bars))
	span := make(map[string][2]int64) // instrument -> [min, max] timestamp
	for _, b := range bars {
		if b == nil || b.Instrument == "" {
			return storage.ErrInvalidInput
		}
		k := key{b.Instrument, b.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}

		r, ok := span[b.Instrument]
		if !ok {
			r = [2]int64{b.TimestampMs, b.TimestampMs}
		}
		r[0], r[1] = min(r[0], b.TimestampMs), max(r[1], b.TimestampMs)
		span[b.Instrument] = r
	}

	for inst, r := range span {
		existing, err := s.timestamps(ctx, inst, r[0], r[1])
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, ts := range existing {
			if _, dup := seen[key{inst, ts}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO minute_bars (instrument, timestamp_ms, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, b := range bars {
		if err := batch.Append(b.Instrument, b.TimestampMs, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetByTimeRange(ctx context.Context, instrument string, start, end int64) ([]*domain.Bar, error) {
	query := `
		SELECT instrument, timestamp_ms, open, high, low, close, volume
		FROM minute_bars
		WHERE instrument = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, instrument, start, end)
	if err != nil {
		return nil, fmt.Errorf("query bars by time range: %w", err)
	}
	defer rows.Close()

	var bars []*domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Instrument, &b.TimestampMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	return bars, nil
}

// timestamps lists stored bar times of an instrument within [start, end].
func (s *BarStore) timestamps(ctx context.Context, instrument string, start, end int64) ([]int64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT timestamp_ms FROM minute_bars
		WHERE instrument = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
	`, instrument, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}
