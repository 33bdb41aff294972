package validation

import (
	"fmt"

	"edge-lab/internal/domain"
	"edge-lab/internal/simulation"
)

// costRealism re-simulates under each cost scenario. The gate passes when at
// least CostMinPasses scenarios keep a positive average R.
func (b *battery) costRealism() (domain.GateResult, error) {
	scenarios := b.cfg.CostScenarios(b.in.Spec.Instrument)
	gate := domain.GateResult{Gate: domain.GateCost}
	if len(scenarios) == 0 {
		gate.Pass, gate.Score = true, 1
		return gate, nil
	}

	passes := 0
	for _, cs := range scenarios {
		res, err := b.simulate(b.in.Sessions, simulation.ForCostScenario(cs))
		if err != nil {
			return gate, fmt.Errorf("%s: %w", cs.ScenarioID, err)
		}
		ok := res.Summary.Profitable()
		if ok {
			passes++
		}
		detail := fmt.Sprintf("%d ticks/side @ %g", cs.TicksPerSide, cs.TickSize)
		if cs.MissedFill {
			detail += fmt.Sprintf(", limit re-test %d tick, %d missed", cs.Penetration, res.Skipped[simulation.SkipNoFill])
		}
		b.record(domain.TestCategoryCost, cs.ScenarioID, float64(cs.TicksPerSide), ok, res.Summary, detail)
	}

	gate.Score = float64(passes) / float64(len(scenarios))
	gate.Pass = passes >= b.cfg.CostMinPasses
	if !gate.Pass {
		gate.Detail = fmt.Sprintf("cost realism: %d/%d scenarios profitable, need %d",
			passes, len(scenarios), b.cfg.CostMinPasses)
	}
	return gate, nil
}
