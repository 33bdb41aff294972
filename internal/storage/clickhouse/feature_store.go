package clickhouse

import (
	"context"
	"fmt"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// FeatureStore implements storage.FeatureStore using ClickHouse.
type FeatureStore struct {
	conn *Conn
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(conn *Conn) *FeatureStore {
	return &FeatureStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

const featureColumns = `
	instrument, window_key, session_date, anchor_ms, session_end_ms,
	or_high, or_low, or_formed_at_ms, atr, atr_available_at_ms,
	prev_session_range, prev_range_avail_ms, bar_count`

// InsertBulk adds multiple rows. Fails entire batch on duplicate (instrument, window_key, session_date).
func (s *FeatureStore) InsertBulk(ctx context.Context, features []*domain.SessionFeatures) error {
	if len(features) == 0 {
		return nil
	}

	type series struct{ instrument, windowKey string }
	type key struct {
		series
		date string
	}
	seen := make(map[key]struct{}, len(features))
	span := make(map[series][2]string)
	for _, f := range features {
		if f == nil || f.Instrument == "" || f.WindowKey == "" || f.SessionDate == "" {
			return storage.ErrInvalidInput
		}
		sr := series{f.Instrument, f.WindowKey}
		k := key{sr, f.SessionDate}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}

		r, ok := span[sr]
		if !ok {
			r = [2]string{f.SessionDate, f.SessionDate}
		}
		r[0], r[1] = min(r[0], f.SessionDate), max(r[1], f.SessionDate)
		span[sr] = r
	}

	for sr, r := range span {
		stored, err := s.GetByWindow(ctx, sr.instrument, sr.windowKey, r[0], r[1])
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, f := range stored {
			if _, dup := seen[key{sr, f.SessionDate}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO session_features (`+featureColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, f := range features {
		err := batch.Append(
			f.Instrument, f.WindowKey, f.SessionDate, f.AnchorMs, f.SessionEndMs,
			f.ORHigh, f.ORLow, f.ORFormedAtMs, f.ATR, f.ATRAvailableAtMs,
			f.PrevSessionRange, f.PrevRangeAvailMs, int32(f.BarCount),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByWindow retrieves features for [startDate, endDate] (inclusive, YYYY-MM-DD),
// ordered by session_date ASC. Empty bounds are open.
func (s *FeatureStore) GetByWindow(ctx context.Context, instrument, windowKey, startDate, endDate string) ([]*domain.SessionFeatures, error) {
	query := `
		SELECT ` + featureColumns + `
		FROM session_features
		WHERE instrument = ? AND window_key = ?
			AND (? = '' OR session_date >= ?)
			AND (? = '' OR session_date <= ?)
		ORDER BY session_date ASC
	`

	rows, err := s.conn.Query(ctx, query, instrument, windowKey, startDate, startDate, endDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("query features by window: %w", err)
	}
	defer rows.Close()

	return scanFeatures(rows)
}

func scanFeatures(rows chRows) ([]*domain.SessionFeatures, error) {
	var result []*domain.SessionFeatures
	for rows.Next() {
		var f domain.SessionFeatures
		var barCount int32
		err := rows.Scan(
			&f.Instrument, &f.WindowKey, &f.SessionDate, &f.AnchorMs, &f.SessionEndMs,
			&f.ORHigh, &f.ORLow, &f.ORFormedAtMs, &f.ATR, &f.ATRAvailableAtMs,
			&f.PrevSessionRange, &f.PrevRangeAvailMs, &barCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session features: %w", err)
		}
		f.BarCount = int(barCount)
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session features: %w", err)
	}
	return result, nil
}
