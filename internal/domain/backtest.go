package domain

// ProfitFactorCap bounds the profit factor when there are no losing trades.
const ProfitFactorCap = 100.0

// BacktestResult aggregates a trade set for one candidate under one scenario.
// Derived and recomputable; corresponds to backtest_results in ClickHouse.
type BacktestResult struct {
	CandidateID string // candidate param hash
	ScenarioID  string // baseline, cost, attack or regime slice id
	Kind        ScenarioKind
	RunID       string // validation run ulid

	TradeCount           int
	Wins                 int
	Losses               int
	WinRate              float64 // wins / trade count
	AvgR                 float64 // mean R per trade
	TotalR               float64 // sum of R
	MaxDrawdownR         float64 // peak-to-trough of cumulative R, >= 0
	ProfitFactor         float64 // gross win R / gross loss R, capped
	MaxConsecutiveLosses int
}

// Profitable reports whether the slice has positive average R.
func (r *BacktestResult) Profitable() bool {
	return r.TradeCount > 0 && r.AvgR > 0
}
