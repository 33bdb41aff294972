package simulation

import (
	"github.com/shopspring/decimal"

	"edge-lab/internal/domain"
)

// TieBreak decides which exit fills when one bar spans both stop and target.
type TieBreak int

// Tie-break policies.
const (
	// StopFirst assumes the stop traded first. Default; conservative.
	StopFirst TieBreak = iota
	// TargetFirst assumes the target traded first. Used to probe StopFirst bias.
	TargetFirst
)

// String returns the policy name.
func (t TieBreak) String() string {
	if t == TargetFirst {
		return "target_first"
	}
	return "stop_first"
}

// CostModel prices the execution cost of one round trip, in price units.
type CostModel interface {
	RoundTrip(entryPrice, exitPrice float64) float64
}

// NoCost charges nothing.
type NoCost struct{}

// RoundTrip returns 0.
func (NoCost) RoundTrip(_, _ float64) float64 { return 0 }

// TickCost charges a fixed number of ticks on each side of the trade.
type TickCost struct {
	TicksPerSide int
	TickSize     float64
}

// RoundTrip returns 2 × ticks × tick size, computed in decimal so that
// common tick sizes (0.25, 0.01) do not accumulate binary error.
func (c TickCost) RoundTrip(_, _ float64) float64 {
	cost := decimal.NewFromFloat(c.TickSize).
		Mul(decimal.NewFromInt(int64(c.TicksPerSide))).
		Mul(decimal.NewFromInt(2))
	f, _ := cost.Float64()
	return f
}

// FillModel decides whether, where and at what price an entry signal fills.
// The set is closed: ImmediateFill, DelayedFill and LimitRetestFill.
type FillModel interface {
	fill(sig signal, bars []*domain.Bar) (entryFill, bool)
}

// ImmediateFill fills at the signal price on the signal bar.
type ImmediateFill struct{}

// DelayedFill fills at the open of the bar Bars bars after the signal bar.
type DelayedFill struct {
	Bars int
}

// LimitRetestFill rests a limit order at the signal price and fills only if
// the next bar trades through it by PenetrationTicks. Otherwise no trade.
type LimitRetestFill struct {
	PenetrationTicks int
	TickSize         float64
}

// entryFill describes where position management starts.
type entryFill struct {
	price    float64
	timeMs   int64
	startIdx int  // first bar evaluated for exits
	partial  bool // startIdx is the fill bar itself; only the stop is checked on it
}

func (ImmediateFill) fill(sig signal, _ []*domain.Bar) (entryFill, bool) {
	if sig.intrabar {
		return entryFill{price: sig.price, timeMs: sig.decisionMs, startIdx: sig.idx, partial: true}, true
	}
	return entryFill{price: sig.price, timeMs: sig.decisionMs, startIdx: sig.idx + 1}, true
}

func (d DelayedFill) fill(sig signal, bars []*domain.Bar) (entryFill, bool) {
	if d.Bars <= 0 {
		return ImmediateFill{}.fill(sig, bars)
	}
	j := sig.idx + d.Bars
	if j >= len(bars) {
		return entryFill{}, false
	}
	return entryFill{price: bars[j].Open, timeMs: bars[j].TimestampMs, startIdx: j}, true
}

func (l LimitRetestFill) fill(sig signal, bars []*domain.Bar) (entryFill, bool) {
	j := sig.idx + 1
	if j >= len(bars) {
		return entryFill{}, false
	}
	pen := decimal.NewFromFloat(l.TickSize).Mul(decimal.NewFromInt(int64(l.PenetrationTicks)))
	limit := decimal.NewFromFloat(sig.price)

	b := bars[j]
	var touched bool
	if sig.dir == domain.Long {
		through, _ := limit.Sub(pen).Float64()
		touched = b.Low <= through
	} else {
		through, _ := limit.Add(pen).Float64()
		touched = b.High >= through
	}
	if !touched {
		return entryFill{}, false
	}
	return entryFill{price: sig.price, timeMs: b.TimestampMs, startIdx: j, partial: true}, true
}

// Options configures one simulation run.
type Options struct {
	ScenarioID    string              // stamped on trades; default "baseline"
	Kind          domain.ScenarioKind // default BASELINE
	TieBreak      TieBreak
	Cost          CostModel // nil = NoCost
	Fill          FillModel // nil = ImmediateFill
	ExitDelayBars int       // exits fill this many bars after they trigger
	StartDate     string    // inclusive YYYY-MM-DD; "" = unbounded
	EndDate       string    // inclusive YYYY-MM-DD; "" = unbounded
}

func (o Options) withDefaults() Options {
	if o.ScenarioID == "" {
		o.ScenarioID = domain.ScenarioBaseline
	}
	if o.Kind == "" {
		o.Kind = domain.ScenarioKindBaseline
	}
	if o.Cost == nil {
		o.Cost = NoCost{}
	}
	if o.Fill == nil {
		o.Fill = ImmediateFill{}
	}
	return o
}

// ForCostScenario converts a domain cost scenario into options.
func ForCostScenario(cs domain.CostScenario) Options {
	opts := Options{
		ScenarioID: cs.ScenarioID,
		Kind:       domain.ScenarioKindCost,
		Cost:       TickCost{TicksPerSide: cs.TicksPerSide, TickSize: cs.TickSize},
	}
	if cs.MissedFill {
		opts.Fill = LimitRetestFill{PenetrationTicks: cs.Penetration, TickSize: cs.TickSize}
	}
	return opts
}
