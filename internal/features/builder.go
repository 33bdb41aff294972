// Package features derives per-session reference values from minute bars.
// Every value is stamped with the time it becomes known so that consumers
// can refuse to use it earlier.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"edge-lab/internal/domain"
)

// ATRPeriod is the number of completed prior sessions averaged into ATR.
const ATRPeriod = 14

// ErrNoBars is returned when no bar falls inside any session window.
var ErrNoBars = errors.New("no bars inside session windows")

// Session pairs one session's features with the bars inside the session window.
type Session struct {
	Features *domain.SessionFeatures
	Bars     []*domain.Bar // ordered by timestamp, all within [AnchorMs, SessionEndMs)
}

// sessionStats is the completed-session summary used for ATR.
type sessionStats struct {
	high, low, close float64
}

// Build computes session features for every session of the window found in bars.
// Bars must belong to one instrument; they are sorted internally.
// A session without any bar inside its opening range is omitted.
func Build(instrument string, bars []*domain.Bar, window domain.TimeWindow) ([]*domain.SessionFeatures, error) {
	sessions, err := Split(instrument, bars, window)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.SessionFeatures, len(sessions))
	for i, s := range sessions {
		out[i] = s.Features
	}
	return out, nil
}

// Split groups bars into sessions and computes their features.
func Split(instrument string, bars []*domain.Bar, window domain.TimeWindow) ([]Session, error) {
	loc, err := window.Location()
	if err != nil {
		return nil, fmt.Errorf("load session tz: %w", err)
	}

	sorted := make([]*domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TimestampMs < sorted[j].TimestampMs
	})

	grouped, dates := groupBySession(sorted, window, loc)
	if len(dates) == 0 {
		return nil, ErrNoBars
	}

	var (
		result  []Session
		history []sessionStats // completed sessions, oldest first
	)

	for _, date := range dates {
		g := grouped[date]
		f := &domain.SessionFeatures{
			Instrument:   instrument,
			WindowKey:    window.Key(),
			SessionDate:  date,
			AnchorMs:     g.anchorMs,
			SessionEndMs: g.anchorMs + int64(window.SessionMinutes)*60_000,
			ORFormedAtMs: g.anchorMs + int64(window.RangeMinutes)*60_000,
			BarCount:     len(g.bars),
		}

		orFound := false
		f.ORHigh = math.Inf(-1)
		f.ORLow = math.Inf(1)
		for _, b := range g.bars {
			if b.TimestampMs >= f.ORFormedAtMs {
				break
			}
			orFound = true
			f.ORHigh = math.Max(f.ORHigh, b.High)
			f.ORLow = math.Min(f.ORLow, b.Low)
		}

		// Prior-session values are known at the anchor.
		f.ATRAvailableAtMs = f.AnchorMs
		f.PrevRangeAvailMs = f.AnchorMs
		if n := len(history); n > 0 {
			f.PrevSessionRange = history[n-1].high - history[n-1].low
			f.ATR = averageTrueRange(history)
		}

		history = append(history, summarize(g.bars))

		if !orFound {
			continue
		}
		result = append(result, Session{Features: f, Bars: g.bars})
	}

	return result, nil
}

type sessionGroup struct {
	anchorMs int64
	bars     []*domain.Bar
}

// groupBySession assigns each bar to the session whose window contains it.
// Returns the groups and their dates in chronological order.
func groupBySession(sorted []*domain.Bar, window domain.TimeWindow, loc *time.Location) (map[string]*sessionGroup, []string) {
	groups := make(map[string]*sessionGroup)
	var dates []string

	sessionMs := int64(window.SessionMinutes) * 60_000
	for _, b := range sorted {
		local := time.UnixMilli(b.TimestampMs).In(loc)
		anchor := time.Date(local.Year(), local.Month(), local.Day(),
			window.AnchorMinute/60, window.AnchorMinute%60, 0, 0, loc).UnixMilli()
		if b.TimestampMs < anchor || b.TimestampMs >= anchor+sessionMs {
			continue
		}

		date := local.Format("2006-01-02")
		g, ok := groups[date]
		if !ok {
			g = &sessionGroup{anchorMs: anchor}
			groups[date] = g
			dates = append(dates, date)
		}
		g.bars = append(g.bars, b)
	}
	return groups, dates
}

func summarize(bars []*domain.Bar) sessionStats {
	s := sessionStats{high: math.Inf(-1), low: math.Inf(1)}
	for _, b := range bars {
		s.high = math.Max(s.high, b.High)
		s.low = math.Min(s.low, b.Low)
	}
	s.close = bars[len(bars)-1].Close
	return s
}

// averageTrueRange averages session true ranges over the last ATRPeriod
// completed sessions. The oldest session in history has no prior close and
// contributes its plain high-low range.
func averageTrueRange(history []sessionStats) float64 {
	start := len(history) - ATRPeriod
	if start < 0 {
		start = 0
	}

	sum := 0.0
	for i := start; i < len(history); i++ {
		h, l := history[i].high, history[i].low
		if i > 0 {
			prev := history[i-1].close
			h = math.Max(h, prev)
			l = math.Min(l, prev)
		}
		sum += h - l
	}
	return sum / float64(len(history)-start)
}

// Attach pairs externally supplied features with bars, e.g. features read
// from a FeatureStore. Features are matched to bars by their session bounds.
func Attach(bars []*domain.Bar, feats []*domain.SessionFeatures) []Session {
	sorted := make([]*domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TimestampMs < sorted[j].TimestampMs
	})

	fs := make([]*domain.SessionFeatures, len(feats))
	copy(fs, feats)
	sort.Slice(fs, func(i, j int) bool {
		return fs[i].AnchorMs < fs[j].AnchorMs
	})

	result := make([]Session, 0, len(fs))
	for _, f := range fs {
		lo := sort.Search(len(sorted), func(i int) bool { return sorted[i].TimestampMs >= f.AnchorMs })
		hi := sort.Search(len(sorted), func(i int) bool { return sorted[i].TimestampMs >= f.SessionEndMs })
		if lo == hi {
			continue
		}
		result = append(result, Session{Features: f, Bars: sorted[lo:hi]})
	}
	return result
}
