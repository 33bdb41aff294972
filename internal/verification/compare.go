// Package verification replays a stored validation run and checks that the
// stored backtest results and outcome are reproduced exactly.
package verification

import (
	"math"

	"edge-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-9

// FieldDivergence is a mismatch between a stored and a replayed value.
type FieldDivergence struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"` // stored value
	Actual   any    `json:"actual"`   // replayed value
}

// CompareResults compares two backtest results of the same scenario.
// Identity fields (candidate, scenario, run) are the caller's join key and
// are not compared.
func CompareResults(stored, replayed *domain.BacktestResult) []FieldDivergence {
	var d []FieldDivergence
	ints := []struct {
		field    string
		exp, act int
	}{
		{"TradeCount", stored.TradeCount, replayed.TradeCount},
		{"Wins", stored.Wins, replayed.Wins},
		{"Losses", stored.Losses, replayed.Losses},
		{"MaxConsecutiveLosses", stored.MaxConsecutiveLosses, replayed.MaxConsecutiveLosses},
	}
	for _, c := range ints {
		if c.exp != c.act {
			d = append(d, FieldDivergence{Field: c.field, Expected: c.exp, Actual: c.act})
		}
	}

	floats := []struct {
		field    string
		exp, act float64
	}{
		{"WinRate", stored.WinRate, replayed.WinRate},
		{"AvgR", stored.AvgR, replayed.AvgR},
		{"TotalR", stored.TotalR, replayed.TotalR},
		{"MaxDrawdownR", stored.MaxDrawdownR, replayed.MaxDrawdownR},
		{"ProfitFactor", stored.ProfitFactor, replayed.ProfitFactor},
	}
	for _, c := range floats {
		if !floatEquals(c.exp, c.act) {
			d = append(d, FieldDivergence{Field: c.field, Expected: c.exp, Actual: c.act})
		}
	}

	if stored.Kind != replayed.Kind {
		d = append(d, FieldDivergence{Field: "Kind", Expected: stored.Kind, Actual: replayed.Kind})
	}
	return d
}

// CompareOutcomes compares the verdict fields of two outcomes of the same run.
func CompareOutcomes(stored, replayed *domain.ValidationOutcome) []FieldDivergence {
	var d []FieldDivergence
	if stored.Passed != replayed.Passed {
		d = append(d, FieldDivergence{Field: "Passed", Expected: stored.Passed, Actual: replayed.Passed})
	}
	if !floatEquals(stored.SurvivalScore, replayed.SurvivalScore) {
		d = append(d, FieldDivergence{Field: "SurvivalScore", Expected: stored.SurvivalScore, Actual: replayed.SurvivalScore})
	}
	if stored.Tier != replayed.Tier {
		d = append(d, FieldDivergence{Field: "Tier", Expected: stored.Tier, Actual: replayed.Tier})
	}

	gates := make(map[string]bool, len(replayed.Gates))
	for _, g := range replayed.Gates {
		gates[g.Gate] = g.Pass
	}
	for _, g := range stored.Gates {
		pass, ok := gates[g.Gate]
		switch {
		case !ok:
			d = append(d, FieldDivergence{Field: "Gate." + g.Gate, Expected: g.Pass, Actual: nil})
		case pass != g.Pass:
			d = append(d, FieldDivergence{Field: "Gate." + g.Gate, Expected: g.Pass, Actual: pass})
		}
	}
	if len(replayed.Gates) > len(stored.Gates) {
		d = append(d, FieldDivergence{Field: "Gates", Expected: len(stored.Gates), Actual: len(replayed.Gates)})
	}

	for _, bd := range CompareResults(&stored.Baseline, &replayed.Baseline) {
		bd.Field = "Baseline." + bd.Field
		d = append(d, bd)
	}
	return d
}

// floatEquals compares two floats with tolerance. Infinities must match exactly.
func floatEquals(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= FloatTolerance
}
