package metrics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"edge-lab/internal/domain"
)

// Compute calculates a BacktestResult from a slice of trades.
// Trades are sorted by EntryTimeMs ASC, TradeID ASC before computing
// order-dependent metrics (MaxDrawdownR, MaxConsecutiveLosses).
func Compute(trades []*domain.TradeRecord, candidateID, scenarioID string, kind domain.ScenarioKind) *domain.BacktestResult {
	res := &domain.BacktestResult{
		CandidateID: candidateID,
		ScenarioID:  scenarioID,
		Kind:        kind,
	}
	n := len(trades)
	if n == 0 {
		return res
	}

	sorted := SortChronological(trades)

	rs := make([]float64, n)
	grossWin, grossLoss := 0.0, 0.0
	for i, t := range sorted {
		rs[i] = t.RMultiple
		if t.RMultiple > 0 {
			res.Wins++
			grossWin += t.RMultiple
		} else {
			res.Losses++
			grossLoss -= t.RMultiple
		}
	}

	res.TradeCount = n
	res.WinRate = computeWinRate(res.Wins, n)
	res.TotalR = Sum(rs)
	res.AvgR = res.TotalR / float64(n)
	res.MaxDrawdownR = MaxDrawdown(rs)
	res.ProfitFactor = computeProfitFactor(grossWin, grossLoss)
	res.MaxConsecutiveLosses = computeMaxConsecutiveLosses(rs)
	return res
}

// SortChronological returns a copy of trades ordered by EntryTimeMs ASC, TradeID ASC.
func SortChronological(trades []*domain.TradeRecord) []*domain.TradeRecord {
	sorted := make([]*domain.TradeRecord, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].EntryTimeMs != sorted[j].EntryTimeMs {
			return sorted[i].EntryTimeMs < sorted[j].EntryTimeMs
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})
	return sorted
}

// RMultiples extracts R values in the given order.
func RMultiples(trades []*domain.TradeRecord) []float64 {
	rs := make([]float64, len(trades))
	for i, t := range trades {
		rs[i] = t.RMultiple
	}
	return rs
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeProfitFactor divides gross win R by gross loss R, capped at
// domain.ProfitFactorCap when there are no losses.
func computeProfitFactor(grossWin, grossLoss float64) float64 {
	if grossLoss <= 0 {
		if grossWin > 0 {
			return domain.ProfitFactorCap
		}
		return 0
	}
	return math.Min(grossWin/grossLoss, domain.ProfitFactorCap)
}

// Sum adds values in order.
func Sum(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}

// Mean calculates the arithmetic mean; 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Percentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.95 = 95th percentile).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	// Index for percentile (0-based, continuous)
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	// Linear interpolation
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// MaxDrawdown calculates worst peak-to-trough on cumulative R.
// max_drawdown = MAX(peak_cumulative - trough_cumulative)
// Values must be in chronological order.
func MaxDrawdown(rs []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, r := range rs {
		cumulative += r
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of R <= 0.
func computeMaxConsecutiveLosses(rs []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, r := range rs {
		if r <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}

// Round rounds v to places decimal places, half away from zero.
// Used to freeze metric snapshots without binary float noise.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
