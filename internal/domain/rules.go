package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// Rule validation errors.
var (
	ErrUnknownRuleKind = errors.New("unknown rule kind")
	ErrInvalidRule     = errors.New("invalid rule parameters")
)

// EntryKind identifies an entry rule variant.
type EntryKind string

// Entry kinds.
const (
	EntryKindBreakout     EntryKind = "BREAKOUT"
	EntryKindCloseConfirm EntryKind = "CLOSE_CONFIRM"
	EntryKindFade         EntryKind = "FADE"
)

// ExitKind identifies an exit rule variant.
type ExitKind string

// Exit kinds.
const (
	ExitKindFixedMultiple ExitKind = "FIXED_MULTIPLE"
	ExitKindTrailing      ExitKind = "TRAILING"
	ExitKindTime          ExitKind = "TIME"
)

// RiskKind identifies a stop placement policy.
type RiskKind string

// Risk kinds.
const (
	RiskKindRangeMidpoint RiskKind = "RANGE_MIDPOINT"
	RiskKindRangeOpposite RiskKind = "RANGE_OPPOSITE"
	RiskKindATRMultiple   RiskKind = "ATR_MULTIPLE"
)

// EntryRule is a closed set of entry variants. Only types in this package
// implement it, so a type switch over the variants below is exhaustive.
type EntryRule interface {
	EntryKind() EntryKind
	Validate() error
	canonical() string
	isEntryRule()
}

// BreakoutEntry enters intrabar when price trades through the opening-range
// boundary extended by Buffer × range width.
type BreakoutEntry struct {
	Buffer float64
}

// CloseConfirmEntry enters at the close of the Confirmations-th consecutive
// bar closing beyond the extended boundary.
type CloseConfirmEntry struct {
	Confirmations int
	Buffer        float64
}

// FadeEntry enters against a boundary pierce once Confirmations consecutive
// bars have closed back inside the range.
type FadeEntry struct {
	Confirmations int
	Buffer        float64
}

// EntryKind returns EntryKindBreakout.
func (BreakoutEntry) EntryKind() EntryKind { return EntryKindBreakout }

// EntryKind returns EntryKindCloseConfirm.
func (CloseConfirmEntry) EntryKind() EntryKind { return EntryKindCloseConfirm }

// EntryKind returns EntryKindFade.
func (FadeEntry) EntryKind() EntryKind { return EntryKindFade }

func (BreakoutEntry) isEntryRule()     {}
func (CloseConfirmEntry) isEntryRule() {}
func (FadeEntry) isEntryRule()         {}

// Validate rejects a negative buffer.
func (e BreakoutEntry) Validate() error {
	if e.Buffer < 0 {
		return fmt.Errorf("%w: breakout buffer %v < 0", ErrInvalidRule, e.Buffer)
	}
	return nil
}

// Validate requires at least one confirmation and a non-negative buffer.
func (e CloseConfirmEntry) Validate() error {
	if e.Confirmations < 1 {
		return fmt.Errorf("%w: close-confirm confirmations %d < 1", ErrInvalidRule, e.Confirmations)
	}
	if e.Buffer < 0 {
		return fmt.Errorf("%w: close-confirm buffer %v < 0", ErrInvalidRule, e.Buffer)
	}
	return nil
}

// Validate requires at least one confirmation and a non-negative buffer.
func (e FadeEntry) Validate() error {
	if e.Confirmations < 1 {
		return fmt.Errorf("%w: fade confirmations %d < 1", ErrInvalidRule, e.Confirmations)
	}
	if e.Buffer < 0 {
		return fmt.Errorf("%w: fade buffer %v < 0", ErrInvalidRule, e.Buffer)
	}
	return nil
}

func (e BreakoutEntry) canonical() string {
	return fmt.Sprintf("%s(buf=%s)", e.EntryKind(), fmtFloat(e.Buffer))
}

func (e CloseConfirmEntry) canonical() string {
	return fmt.Sprintf("%s(n=%d,buf=%s)", e.EntryKind(), e.Confirmations, fmtFloat(e.Buffer))
}

func (e FadeEntry) canonical() string {
	return fmt.Sprintf("%s(n=%d,buf=%s)", e.EntryKind(), e.Confirmations, fmtFloat(e.Buffer))
}

// ExitRule is a closed set of exit variants.
type ExitRule interface {
	ExitKind() ExitKind
	Validate() error
	canonical() string
	isExitRule()
}

// FixedMultipleExit takes profit at Target × initial risk.
type FixedMultipleExit struct {
	Target float64
}

// TrailingExit trails the stop TrailR × initial risk behind the best price
// seen at a bar close. There is no profit target.
type TrailingExit struct {
	TrailR float64
}

// TimeExit exits at the close of the HoldBars-th bar after entry.
type TimeExit struct {
	HoldBars int
}

// ExitKind returns ExitKindFixedMultiple.
func (FixedMultipleExit) ExitKind() ExitKind { return ExitKindFixedMultiple }

// ExitKind returns ExitKindTrailing.
func (TrailingExit) ExitKind() ExitKind { return ExitKindTrailing }

// ExitKind returns ExitKindTime.
func (TimeExit) ExitKind() ExitKind { return ExitKindTime }

func (FixedMultipleExit) isExitRule() {}
func (TrailingExit) isExitRule()      {}
func (TimeExit) isExitRule()          {}

// Validate requires a positive target multiple.
func (x FixedMultipleExit) Validate() error {
	if x.Target <= 0 {
		return fmt.Errorf("%w: fixed multiple target %v <= 0", ErrInvalidRule, x.Target)
	}
	return nil
}

// Validate requires a positive trailing distance.
func (x TrailingExit) Validate() error {
	if x.TrailR <= 0 {
		return fmt.Errorf("%w: trailing distance %v <= 0", ErrInvalidRule, x.TrailR)
	}
	return nil
}

// Validate requires holding for at least one bar.
func (x TimeExit) Validate() error {
	if x.HoldBars < 1 {
		return fmt.Errorf("%w: time exit hold bars %d < 1", ErrInvalidRule, x.HoldBars)
	}
	return nil
}

func (x FixedMultipleExit) canonical() string {
	return fmt.Sprintf("%s(r=%s)", x.ExitKind(), fmtFloat(x.Target))
}

func (x TrailingExit) canonical() string {
	return fmt.Sprintf("%s(trail=%s)", x.ExitKind(), fmtFloat(x.TrailR))
}

func (x TimeExit) canonical() string {
	return fmt.Sprintf("%s(bars=%d)", x.ExitKind(), x.HoldBars)
}

// RiskModel is a closed set of stop placement policies.
type RiskModel interface {
	RiskKind() RiskKind
	Validate() error
	canonical() string
	isRiskModel()
}

// RangeMidpointStop risks the distance from entry to the opening-range midpoint.
type RangeMidpointStop struct{}

// RangeOppositeStop risks the distance from entry to the opposite boundary.
type RangeOppositeStop struct{}

// ATRStop risks Multiple × ATR.
type ATRStop struct {
	Multiple float64
}

// RiskKind returns RiskKindRangeMidpoint.
func (RangeMidpointStop) RiskKind() RiskKind { return RiskKindRangeMidpoint }

// RiskKind returns RiskKindRangeOpposite.
func (RangeOppositeStop) RiskKind() RiskKind { return RiskKindRangeOpposite }

// RiskKind returns RiskKindATRMultiple.
func (ATRStop) RiskKind() RiskKind { return RiskKindATRMultiple }

func (RangeMidpointStop) isRiskModel() {}
func (RangeOppositeStop) isRiskModel() {}
func (ATRStop) isRiskModel()           {}

// Validate always succeeds; the policy has no parameters.
func (RangeMidpointStop) Validate() error { return nil }

// Validate always succeeds; the policy has no parameters.
func (RangeOppositeStop) Validate() error { return nil }

// Validate requires a positive ATR multiple.
func (r ATRStop) Validate() error {
	if r.Multiple <= 0 {
		return fmt.Errorf("%w: atr multiple %v <= 0", ErrInvalidRule, r.Multiple)
	}
	return nil
}

func (r RangeMidpointStop) canonical() string { return string(r.RiskKind()) }
func (r RangeOppositeStop) canonical() string { return string(r.RiskKind()) }

func (r ATRStop) canonical() string {
	return fmt.Sprintf("%s(m=%s)", r.RiskKind(), fmtFloat(r.Multiple))
}

// FilterSet gates sessions before any entry is considered.
// Zero values disable the corresponding bound.
type FilterSet struct {
	RangeATRMin float64 // minimum opening-range width / ATR
	RangeATRMax float64 // maximum opening-range width / ATR
}

// Active reports whether any filter bound is set.
func (f FilterSet) Active() bool {
	return f.RangeATRMin > 0 || f.RangeATRMax > 0
}

// Validate checks filter bounds.
func (f FilterSet) Validate() error {
	if f.RangeATRMin < 0 || f.RangeATRMax < 0 {
		return fmt.Errorf("%w: negative range/atr bound", ErrInvalidRule)
	}
	if f.RangeATRMax > 0 && f.RangeATRMin > f.RangeATRMax {
		return fmt.Errorf("%w: range/atr min %v > max %v", ErrInvalidRule, f.RangeATRMin, f.RangeATRMax)
	}
	return nil
}

func (f FilterSet) canonical() string {
	return fmt.Sprintf("RANGE_ATR(min=%s,max=%s)", fmtFloat(f.RangeATRMin), fmtFloat(f.RangeATRMax))
}

// fmtFloat formats floats with the shortest exact representation so that the
// canonical form, and therefore the parameter hash, is stable.
func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
