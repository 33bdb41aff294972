package domain

// Direction of a trade.
type Direction int

// Directions.
const (
	Long  Direction = 1
	Short Direction = -1
)

// String returns "LONG" or "SHORT".
func (d Direction) String() string {
	if d == Short {
		return "SHORT"
	}
	return "LONG"
}

// TradeRecord represents one simulated trade.
// Corresponds to trade_records in the simulator output; immutable once written.
type TradeRecord struct {
	TradeID     string // deterministic hash
	CandidateID string // candidate param hash
	ScenarioID  string // scenario the trade was simulated under
	SessionDate string // YYYY-MM-DD in session zone

	Direction Direction

	// Decision
	DecisionTimeMs int64   // when the entry decision was made (ms)
	FeaturesAsOfMs int64   // latest availability time of any feature consulted (ms)
	SignalPrice    float64 // reference price at decision

	// Entry
	EntryTimeMs int64    // fill timestamp (ms)
	EntryPrice  float64  // fill price
	StopPrice   float64  // initial protective stop
	TargetPrice *float64 // nil for exits without a fixed target
	InitialRisk float64  // |signal price - stop|, price units

	// Exit
	ExitTimeMs int64   // exit timestamp (ms)
	ExitPrice  float64 // exit fill price
	ExitReason string  // reason code

	// Outcome
	CostPoints float64 // round-trip execution cost, price units
	RMultiple  float64 // realized R after costs
	MAE        float64 // maximum adverse excursion in R (<= 0)
	MFE        float64 // maximum favorable excursion in R (>= 0)
}

// IsWin reports whether the trade realized a positive R.
func (t *TradeRecord) IsWin() bool {
	return t.RMultiple > 0
}

// Exit reason codes
const (
	ExitReasonTarget       = "TARGET"
	ExitReasonStop         = "STOP"
	ExitReasonTrailingStop = "TRAILING_STOP"
	ExitReasonTimeExit     = "TIME_EXIT"
)
