package domain

// Generation modes.
const (
	GenerationModeEnumerate = "enumerate"
	GenerationModeSample    = "sample"
)

// GenerationRun is one generation audit record.
type GenerationRun struct {
	RunID       string // ulid
	AtMs        int64
	Mode        string // "enumerate" | "sample"
	Instruments []string
	Requested   int
	Generated   int // distinct specs produced from the space
	Accepted    int // newly persisted
	Duplicates  int // rejected by the hash index
}

// Test audit categories.
const (
	TestCategoryBaseline = "baseline"
	TestCategoryCost     = "cost"
	TestCategoryAttack   = "attack"
	TestCategoryRegime   = "regime"
	TestCategoryAborted  = "aborted" // a stage stopped by a simulation error
)

// TestAuditRow records one attack, cost or regime test executed.
type TestAuditRow struct {
	RunID        string
	CandidateID  string
	Category     string  // baseline | cost | attack | regime
	TestID       string  // e.g. "delay_2", "noise_0.10", "quarter:2023Q1"
	Severity     float64 // attack severity; 0 where not applicable
	Pass         bool
	TradeCount   int
	AvgR         float64
	TotalR       float64
	MaxDrawdownR float64
	Detail       string
	CreatedAtMs  int64
}

// LiveTrackingRecord is the placeholder handed to the external monitoring
// component when an edge becomes active.
type LiveTrackingRecord struct {
	ParamHash   string
	EdgeCode    string
	Instrument  string
	ActivatedMs int64
	Status      string // "PENDING" until the monitor attaches
}

// Live tracking statuses.
const (
	LiveTrackingPending = "PENDING"
)
