package domain

// ScenarioKind groups scenarios by the validation stage that produced them.
type ScenarioKind string

// Scenario kinds.
const (
	ScenarioKindBaseline ScenarioKind = "BASELINE"
	ScenarioKindCost     ScenarioKind = "COST"
	ScenarioKindAttack   ScenarioKind = "ATTACK"
	ScenarioKindRegime   ScenarioKind = "REGIME"
)

// Scenario ID constants
const (
	ScenarioBaseline   = "baseline"
	ScenarioMissedFill = "missed_fill"
)

// CostScenario describes one execution-cost assumption.
type CostScenario struct {
	ScenarioID   string  // "cost_1tick" | "cost_2tick" | "cost_4tick" | "missed_fill"
	TicksPerSide int     // slippage + fees per side in ticks
	TickSize     float64 // price units per tick
	MissedFill   bool    // require a limit re-test fill instead of a market fill
	Penetration  int     // ticks price must trade through the limit to fill
}
