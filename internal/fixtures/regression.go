// Package fixtures provides deterministic market data with known outcomes.
package fixtures

import (
	"time"

	"edge-lab/internal/domain"
	"edge-lab/internal/idhash"
)

// Regression fixture parameters.
const (
	RegressionInstrument = "FIXT"
	RegressionSessions   = 522
	RegressionWins       = 293
	RegressionStartDate  = "2022-01-03"

	sessionBars = 60
	orBars      = 5
)

// scales vary the opening-range width per session so that ATR and the
// volatility regimes are not degenerate. All values are multiples of 1/16
// so every derived price is exact in binary floating point.
var scales = []float64{1, 1.25, 0.75, 1.5, 2, 0.5, 1.75, 1.125}

// RegressionWindow is the 09:30 New York, five-minute opening-range window.
func RegressionWindow() domain.TimeWindow {
	return domain.TimeWindow{
		SessionTZ:          "America/New_York",
		AnchorMinute:       570,
		RangeMinutes:       orBars,
		EntryCutoffMinutes: 30,
		SessionMinutes:     sessionBars,
	}
}

// RegressionCandidate is "first close beyond a 5-minute opening range, stop
// at range midpoint, target at 1.5x risk".
func RegressionCandidate() *domain.CandidateSpec {
	return idhash.Seal(&domain.CandidateSpec{
		Instrument: RegressionInstrument,
		Window:     RegressionWindow(),
		Entry:      domain.CloseConfirmEntry{Confirmations: 1},
		Exit:       domain.FixedMultipleExit{Target: 1.5},
		Risk:       domain.RangeMidpointStop{},
	})
}

// RegressionDates returns the fixture's session dates: consecutive weekdays
// from RegressionStartDate.
func RegressionDates() []time.Time {
	loc, _ := time.LoadLocation("America/New_York")
	d, _ := time.ParseInLocation("2006-01-02", RegressionStartDate, loc)

	dates := make([]time.Time, 0, RegressionSessions)
	for len(dates) < RegressionSessions {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return dates
}

// IsWinSession spreads RegressionWins winners evenly over the sessions.
func IsWinSession(i int) bool {
	return (i+1)*RegressionWins/RegressionSessions > i*RegressionWins/RegressionSessions
}

// RegressionBars returns the fixture's minute bars. Each session forms an
// opening range of base±5s, closes the first post-range bar at base±6s in
// an alternating direction, then trends 1s per bar toward the 1.5R target on
// winning sessions or back through the midpoint on losing ones.
func RegressionBars() []*domain.Bar {
	dates := RegressionDates()
	bars := make([]*domain.Bar, 0, len(dates)*sessionBars)

	for i, day := range dates {
		s := scales[i%len(scales)]
		base := 4000.0 + float64(i%40)
		dir := 1.0
		if i%2 == 1 {
			dir = -1.0
		}
		anchor := time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, day.Location()).UnixMilli()
		bars = append(bars, sessionOf(anchor, base, s, dir, IsWinSession(i))...)
	}
	return bars
}

func sessionOf(anchorMs int64, base, s, dir float64, win bool) []*domain.Bar {
	out := make([]*domain.Bar, 0, sessionBars)
	add := func(o, h, l, c float64) {
		out = append(out, &domain.Bar{
			Instrument:  RegressionInstrument,
			TimestampMs: anchorMs + int64(len(out))*domain.BarIntervalMs,
			Open:        o,
			High:        h,
			Low:         l,
			Close:       c,
			Volume:      1000,
		})
	}
	// p maps a signed offset in scale units to a price.
	p := func(units float64) float64 { return base + dir*units*s }

	// Opening range.
	for k := 0; k < orBars; k++ {
		add(base, base+5*s, base-5*s, base)
	}

	// Signal bar closes beyond the range.
	if dir > 0 {
		add(p(0), p(6), p(-0.25), p(6))
	} else {
		add(p(0), p(-0.25), p(6), p(6))
	}

	// Trend: 1s per bar with a quarter-unit wick on either side.
	step := 1.0
	if !win {
		step = -1.0
	}
	level := 6.0
	for len(out) < sessionBars {
		next := level + step
		if len(out) >= orBars+1+12 {
			// Drift sideways once the trade has resolved.
			next = level
		}
		favorable, adverse := p(max(level, next)+0.25), p(min(level, next)-0.25)
		if dir > 0 {
			add(p(level), favorable, adverse, p(next))
		} else {
			add(p(level), adverse, favorable, p(next))
		}
		level = next
	}
	return out
}
