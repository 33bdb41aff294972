package simulation

import (
	"math"

	"edge-lab/internal/domain"
)

// Session skip reasons, the keys of Result.Skipped.
const (
	SkipFlatRange   = "flat_range"
	SkipFilter      = "filter"
	SkipNoSignal    = "no_signal"
	SkipAmbiguous   = "ambiguous_bar"
	SkipInvalidRisk = "invalid_risk"
	SkipNoFill      = "no_fill"
)

// signal is an entry decision.
type signal struct {
	dir        domain.Direction
	idx        int     // bar on which the decision was made
	decisionMs int64   // bar open for intrabar signals, bar close otherwise
	price      float64 // reference entry price
	intrabar   bool
}

// levels are the entry trigger prices derived from the opening range.
type levels struct {
	up, down float64
}

func entryLevels(f *domain.SessionFeatures, buffer float64) levels {
	w := f.ORWidth()
	return levels{up: f.ORHigh + buffer*w, down: f.ORLow - buffer*w}
}

// detectSignal scans bars after opening-range formation for the first entry
// decision permitted before cutoffMs. Only bars already closed at the decision
// time, plus the decision bar itself for intrabar entries, are consulted.
func detectSignal(rule domain.EntryRule, f *domain.SessionFeatures, bars []*domain.Bar, cutoffMs int64) (signal, string) {
	switch e := rule.(type) {
	case domain.BreakoutEntry:
		return detectBreakout(e, f, bars, cutoffMs)
	case domain.CloseConfirmEntry:
		return detectCloseConfirm(e, f, bars, cutoffMs)
	case domain.FadeEntry:
		return detectFade(e, f, bars, cutoffMs)
	default:
		return signal{}, SkipNoSignal
	}
}

func detectBreakout(e domain.BreakoutEntry, f *domain.SessionFeatures, bars []*domain.Bar, cutoffMs int64) (signal, string) {
	lv := entryLevels(f, e.Buffer)
	for i, b := range bars {
		if b.TimestampMs < f.ORFormedAtMs {
			continue
		}
		if b.TimestampMs >= cutoffMs {
			break
		}

		hitUp := b.High > lv.up
		hitDown := b.Low < lv.down
		switch {
		case hitUp && hitDown:
			// Order of touches inside the bar is unknowable.
			return signal{}, SkipAmbiguous
		case hitUp:
			// A gap through the level fills at the open.
			return signal{dir: domain.Long, idx: i, decisionMs: b.TimestampMs, price: math.Max(b.Open, lv.up), intrabar: true}, ""
		case hitDown:
			return signal{dir: domain.Short, idx: i, decisionMs: b.TimestampMs, price: math.Min(b.Open, lv.down), intrabar: true}, ""
		}
	}
	return signal{}, SkipNoSignal
}

func detectCloseConfirm(e domain.CloseConfirmEntry, f *domain.SessionFeatures, bars []*domain.Bar, cutoffMs int64) (signal, string) {
	lv := entryLevels(f, e.Buffer)
	nUp, nDown := 0, 0
	for i, b := range bars {
		if b.TimestampMs < f.ORFormedAtMs {
			continue
		}
		if b.CloseTimeMs() >= cutoffMs {
			break
		}

		if b.Close > lv.up {
			nUp++
		} else {
			nUp = 0
		}
		if b.Close < lv.down {
			nDown++
		} else {
			nDown = 0
		}

		if nUp >= e.Confirmations {
			return signal{dir: domain.Long, idx: i, decisionMs: b.CloseTimeMs(), price: b.Close}, ""
		}
		if nDown >= e.Confirmations {
			return signal{dir: domain.Short, idx: i, decisionMs: b.CloseTimeMs(), price: b.Close}, ""
		}
	}
	return signal{}, SkipNoSignal
}

func detectFade(e domain.FadeEntry, f *domain.SessionFeatures, bars []*domain.Bar, cutoffMs int64) (signal, string) {
	lv := entryLevels(f, e.Buffer)
	piercedUp, piercedDown := false, false
	inUp, inDown := 0, 0
	for i, b := range bars {
		if b.TimestampMs < f.ORFormedAtMs {
			continue
		}
		if b.CloseTimeMs() >= cutoffMs {
			break
		}

		if b.High > lv.up {
			piercedUp = true
		}
		if b.Low < lv.down {
			piercedDown = true
		}
		inside := b.Close <= f.ORHigh && b.Close >= f.ORLow
		if piercedUp {
			if inside {
				inUp++
			} else {
				inUp = 0
			}
		}
		if piercedDown {
			if inside {
				inDown++
			} else {
				inDown = 0
			}
		}

		upReady := piercedUp && inUp >= e.Confirmations
		downReady := piercedDown && inDown >= e.Confirmations
		switch {
		case upReady && downReady:
			return signal{}, SkipAmbiguous
		case upReady:
			return signal{dir: domain.Short, idx: i, decisionMs: b.CloseTimeMs(), price: b.Close}, ""
		case downReady:
			return signal{dir: domain.Long, idx: i, decisionMs: b.CloseTimeMs(), price: b.Close}, ""
		}
	}
	return signal{}, SkipNoSignal
}

// passesFilters applies the session filter set. usesATR reports whether the
// filter consulted ATR.
func passesFilters(fs domain.FilterSet, f *domain.SessionFeatures) (pass bool, usesATR bool) {
	if !fs.Active() {
		return true, false
	}
	if f.ATR <= 0 {
		return false, true
	}
	ratio := f.ORWidth() / f.ATR
	if fs.RangeATRMin > 0 && ratio < fs.RangeATRMin {
		return false, true
	}
	if fs.RangeATRMax > 0 && ratio > fs.RangeATRMax {
		return false, true
	}
	return true, true
}

// stopDistance returns the planned risk per unit for the risk model, and
// whether the model consulted ATR.
func stopDistance(risk domain.RiskModel, f *domain.SessionFeatures, sig signal) (float64, bool) {
	switch r := risk.(type) {
	case domain.RangeMidpointStop:
		return math.Abs(sig.price - f.ORMid()), false
	case domain.RangeOppositeStop:
		if sig.dir == domain.Long {
			return sig.price - f.ORLow, false
		}
		return f.ORHigh - sig.price, false
	case domain.ATRStop:
		return r.Multiple * f.ATR, true
	default:
		return 0, false
	}
}
