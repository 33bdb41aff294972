package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edge-lab/internal/domain"
	"edge-lab/internal/features"
	"edge-lab/internal/storage"
)

// warmupDays of bars are loaded before the requested start so that ATR is
// formed from completed sessions on the first requested day.
const warmupDays = 30

// Loader assembles sessions for a candidate from the market data stores.
type Loader struct {
	barStore     storage.BarStore
	featureStore storage.FeatureStore
}

// LoaderOptions contains configuration for creating a Loader.
type LoaderOptions struct {
	BarStore     storage.BarStore
	FeatureStore storage.FeatureStore // optional; features are built from bars when nil or empty
}

// NewLoader creates a session loader.
func NewLoader(opts LoaderOptions) *Loader {
	return &Loader{
		barStore:     opts.BarStore,
		featureStore: opts.FeatureStore,
	}
}

// Load returns the sessions of [startDate, endDate] (inclusive, YYYY-MM-DD)
// for the spec's instrument and window, plus warmup sessions before start.
// Callers pass the same date range to Options so warmup sessions are not traded.
// Steps:
//  1. Resolve the UTC millisecond range, widened by warmup and a day on each side
//  2. Load bars
//  3. Prefer stored features for the window; fall back to building from bars
//  4. Return ErrDataUnavailable if no session inside the range has bars
func (l *Loader) Load(ctx context.Context, spec *domain.CandidateSpec, startDate, endDate string) ([]features.Session, error) {
	if l.barStore == nil {
		return nil, errors.New("loader: bar store not configured")
	}

	// 1. Resolve range
	start, end, err := msRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	// 2. Load bars
	bars, err := l.barStore.GetByTimeRange(ctx, spec.Instrument, start, end)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", ErrDataUnavailable, spec.Instrument)
	}

	// 3. Stored features, if any
	if l.featureStore != nil && startDate != "" && endDate != "" {
		stored, err := l.featureStore.GetByWindow(ctx, spec.Instrument, spec.Window.Key(), startDate, endDate)
		if err != nil {
			return nil, fmt.Errorf("load features: %w", err)
		}
		if len(stored) > 0 {
			return covered(features.Attach(bars, stored), startDate, endDate)
		}
	}

	sessions, err := features.Split(spec.Instrument, bars, spec.Window)
	if err != nil {
		if errors.Is(err, features.ErrNoBars) {
			return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		}
		return nil, err
	}
	return covered(sessions, startDate, endDate)
}

// covered fails with ErrDataUnavailable when only warmup sessions have bars.
func covered(sessions []features.Session, startDate, endDate string) ([]features.Session, error) {
	for _, s := range sessions {
		d := s.Features.SessionDate
		if len(s.Bars) > 0 && (startDate == "" || d >= startDate) && (endDate == "" || d <= endDate) {
			return sessions, nil
		}
	}
	return nil, fmt.Errorf("%w: no session in [%s, %s]", ErrDataUnavailable, startDate, endDate)
}

// msRange converts an inclusive date range into a UTC millisecond range
// padded so that every session of every time zone is covered.
func msRange(startDate, endDate string) (int64, int64, error) {
	start := int64(0)
	end := int64(1<<63 - 1)

	if startDate != "" {
		t, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return 0, 0, fmt.Errorf("parse start date: %w", err)
		}
		start = t.AddDate(0, 0, -warmupDays-1).UnixMilli()
	}
	if endDate != "" {
		t, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return 0, 0, fmt.Errorf("parse end date: %w", err)
		}
		end = t.AddDate(0, 0, 2).UnixMilli()
	}
	return start, end, nil
}
