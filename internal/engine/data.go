package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"edge-lab/internal/domain"
	"edge-lab/internal/features"
	"edge-lab/internal/storage"
)

// ImportSummary reports a bar import.
type ImportSummary struct {
	Bars     int            `json:"bars"`
	Features map[string]int `json:"features"` // window key -> sessions stored
}

// ImportBars stores bars and precomputes session features for each window.
// Re-importing a bar that already exists fails the whole batch with
// storage.ErrDuplicateKey.
func (e *Engine) ImportBars(ctx context.Context, bars []*domain.Bar, windows []domain.TimeWindow) (*ImportSummary, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars", storage.ErrInvalidInput)
	}
	if err := e.stores.Bars.InsertBulk(ctx, bars); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, storage.ErrInvalidInput) {
			return nil, err
		}
		return nil, e.storageErr("insert bars", err)
	}

	sum := &ImportSummary{Bars: len(bars), Features: make(map[string]int)}
	byInstrument := make(map[string][]*domain.Bar)
	for _, b := range bars {
		byInstrument[b.Instrument] = append(byInstrument[b.Instrument], b)
	}
	instruments := make([]string, 0, len(byInstrument))
	for inst := range byInstrument {
		instruments = append(instruments, inst)
	}
	sort.Strings(instruments)

	for _, w := range windows {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		for _, inst := range instruments {
			feats, err := features.Build(inst, byInstrument[inst], w)
			if errors.Is(err, features.ErrNoBars) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("build features %s %s: %w", inst, w.Key(), err)
			}
			if err := e.stores.Features.InsertBulk(ctx, feats); err != nil {
				if errors.Is(err, storage.ErrDuplicateKey) {
					return nil, err
				}
				return nil, e.storageErr("insert features", err)
			}
			sum.Features[w.Key()] += len(feats)
		}
	}

	e.logger.Info("bars imported", "bars", sum.Bars, "instruments", len(instruments), "windows", len(windows))
	return sum, nil
}
