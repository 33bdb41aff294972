package domain

// ConfidenceTier is the band a survival score falls in.
type ConfidenceTier string

// Confidence tiers, lowest first.
const (
	TierLow      ConfidenceTier = "LOW"
	TierMedium   ConfidenceTier = "MEDIUM"
	TierHigh     ConfidenceTier = "HIGH"
	TierVeryHigh ConfidenceTier = "VERY_HIGH"
)

// Rank orders tiers; unknown tiers rank below LOW.
func (t ConfidenceTier) Rank() int {
	switch t {
	case TierLow:
		return 1
	case TierMedium:
		return 2
	case TierHigh:
		return 3
	case TierVeryHigh:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether t is a known tier.
func (t ConfidenceTier) IsValid() bool {
	return t.Rank() > 0
}

// AtLeast reports whether t ranks at or above min.
func (t ConfidenceTier) AtLeast(min ConfidenceTier) bool {
	return t.Rank() >= min.Rank()
}

// Gate names.
const (
	GateBaseline = "baseline"
	GateCost     = "cost_realism"
	GateAttack   = "robustness_attacks"
	GateRegime   = "regime_splits"
)

// GateResult is the pass/fail of one validation gate.
type GateResult struct {
	Gate   string  `json:"gate" yaml:"gate"`
	Pass   bool    `json:"pass" yaml:"pass"`
	Score  float64 `json:"score" yaml:"score"` // gate component in [0,1]
	Detail string  `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// ScoreComponents are the normalized inputs of the survival score, each in [0,1].
type ScoreComponents struct {
	Expectancy   float64 `json:"expectancy" yaml:"expectancy"`
	TradeCount   float64 `json:"trade_count" yaml:"trade_count"`
	CostPass     float64 `json:"cost_pass" yaml:"cost_pass"`
	AttackSmooth float64 `json:"attack_smooth" yaml:"attack_smooth"`
	RegimePass   float64 `json:"regime_pass" yaml:"regime_pass"`
}

// ValidationOutcome synthesizes one candidate's validation run.
// One row per candidate per run; never overwritten.
type ValidationOutcome struct {
	OutcomeID      string // deterministic hash of (candidate, run)
	CandidateID    string
	RunID          string
	Gates          []GateResult
	Passed         bool
	SurvivalScore  float64 // 0..100
	Tier           ConfidenceTier
	FailureReasons []string
	Components     ScoreComponents
	Baseline       BacktestResult
	CreatedAtMs    int64
}

// Gate returns the named gate result, if present.
func (o *ValidationOutcome) Gate(name string) (GateResult, bool) {
	for _, g := range o.Gates {
		if g.Gate == name {
			return g, true
		}
	}
	return GateResult{}, false
}
