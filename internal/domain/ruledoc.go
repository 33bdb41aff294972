package domain

import "fmt"

// RuleSetDoc is the flat, serializable shape of a candidate's rule set.
// It is the stable form stored in PostgreSQL JSONB and exported to consumers.
type RuleSetDoc struct {
	Window  WindowDoc `json:"window" yaml:"window"`
	Entry   EntryDoc  `json:"entry" yaml:"entry"`
	Exit    ExitDoc   `json:"exit" yaml:"exit"`
	Risk    RiskDoc   `json:"risk" yaml:"risk"`
	Filters FilterDoc `json:"filters" yaml:"filters"`
}

// WindowDoc mirrors TimeWindow.
type WindowDoc struct {
	SessionTZ          string `json:"session_tz" yaml:"session_tz"`
	AnchorMinute       int    `json:"anchor_minute" yaml:"anchor_minute"`
	RangeMinutes       int    `json:"range_minutes" yaml:"range_minutes"`
	EntryCutoffMinutes int    `json:"entry_cutoff_minutes" yaml:"entry_cutoff_minutes"`
	SessionMinutes     int    `json:"session_minutes" yaml:"session_minutes"`
}

// EntryDoc is the tagged form of an EntryRule.
type EntryDoc struct {
	Kind          EntryKind `json:"kind" yaml:"kind"`
	Confirmations int       `json:"confirmations,omitempty" yaml:"confirmations,omitempty"`
	Buffer        float64   `json:"buffer" yaml:"buffer"`
}

// ExitDoc is the tagged form of an ExitRule.
type ExitDoc struct {
	Kind     ExitKind `json:"kind" yaml:"kind"`
	Target   float64  `json:"target,omitempty" yaml:"target,omitempty"`
	TrailR   float64  `json:"trail_r,omitempty" yaml:"trail_r,omitempty"`
	HoldBars int      `json:"hold_bars,omitempty" yaml:"hold_bars,omitempty"`
}

// RiskDoc is the tagged form of a RiskModel.
type RiskDoc struct {
	Kind     RiskKind `json:"kind" yaml:"kind"`
	Multiple float64  `json:"multiple,omitempty" yaml:"multiple,omitempty"`
}

// FilterDoc mirrors FilterSet.
type FilterDoc struct {
	RangeATRMin float64 `json:"range_atr_min" yaml:"range_atr_min"`
	RangeATRMax float64 `json:"range_atr_max" yaml:"range_atr_max"`
}

// RuleDoc converts the spec's rules into their serializable form.
func (c *CandidateSpec) RuleDoc() RuleSetDoc {
	doc := RuleSetDoc{
		Window: WindowDoc(c.Window),
		Filters: FilterDoc{
			RangeATRMin: c.Filters.RangeATRMin,
			RangeATRMax: c.Filters.RangeATRMax,
		},
	}

	switch e := c.Entry.(type) {
	case BreakoutEntry:
		doc.Entry = EntryDoc{Kind: EntryKindBreakout, Buffer: e.Buffer}
	case CloseConfirmEntry:
		doc.Entry = EntryDoc{Kind: EntryKindCloseConfirm, Confirmations: e.Confirmations, Buffer: e.Buffer}
	case FadeEntry:
		doc.Entry = EntryDoc{Kind: EntryKindFade, Confirmations: e.Confirmations, Buffer: e.Buffer}
	}

	switch x := c.Exit.(type) {
	case FixedMultipleExit:
		doc.Exit = ExitDoc{Kind: ExitKindFixedMultiple, Target: x.Target}
	case TrailingExit:
		doc.Exit = ExitDoc{Kind: ExitKindTrailing, TrailR: x.TrailR}
	case TimeExit:
		doc.Exit = ExitDoc{Kind: ExitKindTime, HoldBars: x.HoldBars}
	}

	switch r := c.Risk.(type) {
	case RangeMidpointStop:
		doc.Risk = RiskDoc{Kind: RiskKindRangeMidpoint}
	case RangeOppositeStop:
		doc.Risk = RiskDoc{Kind: RiskKindRangeOpposite}
	case ATRStop:
		doc.Risk = RiskDoc{Kind: RiskKindATRMultiple, Multiple: r.Multiple}
	}

	return doc
}

// ApplyRuleDoc decodes a rule document into the spec's rule fields.
func (c *CandidateSpec) ApplyRuleDoc(doc RuleSetDoc) error {
	c.Window = TimeWindow(doc.Window)
	c.Filters = FilterSet{RangeATRMin: doc.Filters.RangeATRMin, RangeATRMax: doc.Filters.RangeATRMax}

	switch doc.Entry.Kind {
	case EntryKindBreakout:
		c.Entry = BreakoutEntry{Buffer: doc.Entry.Buffer}
	case EntryKindCloseConfirm:
		c.Entry = CloseConfirmEntry{Confirmations: doc.Entry.Confirmations, Buffer: doc.Entry.Buffer}
	case EntryKindFade:
		c.Entry = FadeEntry{Confirmations: doc.Entry.Confirmations, Buffer: doc.Entry.Buffer}
	default:
		return fmt.Errorf("%w: entry %q", ErrUnknownRuleKind, doc.Entry.Kind)
	}

	switch doc.Exit.Kind {
	case ExitKindFixedMultiple:
		c.Exit = FixedMultipleExit{Target: doc.Exit.Target}
	case ExitKindTrailing:
		c.Exit = TrailingExit{TrailR: doc.Exit.TrailR}
	case ExitKindTime:
		c.Exit = TimeExit{HoldBars: doc.Exit.HoldBars}
	default:
		return fmt.Errorf("%w: exit %q", ErrUnknownRuleKind, doc.Exit.Kind)
	}

	switch doc.Risk.Kind {
	case RiskKindRangeMidpoint:
		c.Risk = RangeMidpointStop{}
	case RiskKindRangeOpposite:
		c.Risk = RangeOppositeStop{}
	case RiskKindATRMultiple:
		c.Risk = ATRStop{Multiple: doc.Risk.Multiple}
	default:
		return fmt.Errorf("%w: risk %q", ErrUnknownRuleKind, doc.Risk.Kind)
	}

	return nil
}
