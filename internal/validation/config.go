package validation

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"edge-lab/internal/domain"
)

// ScoreWeights weight the survival score components. Only ratios matter.
type ScoreWeights struct {
	Expectancy   float64 `mapstructure:"expectancy"`
	TradeCount   float64 `mapstructure:"trade_count"`
	CostPass     float64 `mapstructure:"cost_pass"`
	AttackSmooth float64 `mapstructure:"attack_smooth"`
	RegimePass   float64 `mapstructure:"regime_pass"`
}

func (w ScoreWeights) total() float64 {
	return w.Expectancy + w.TradeCount + w.CostPass + w.AttackSmooth + w.RegimePass
}

// TierBands are the minimum scores of each tier above LOW.
type TierBands struct {
	VeryHigh float64 `mapstructure:"very_high"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
}

// Config holds every threshold of the validation battery.
type Config struct {
	// Cost realism
	TickSize      float64            `mapstructure:"tick_size"`       // default tick size
	TickSizes     map[string]float64 `mapstructure:"tick_sizes"`      // per-instrument override
	CostTicks     []int              `mapstructure:"cost_ticks"`      // per-side cost ladder
	MissedFill    bool               `mapstructure:"missed_fill"`     // include the limit re-test scenario
	CostMinPasses int                `mapstructure:"cost_min_passes"` // scenarios with avg R > 0 required

	// Robustness attacks
	DelayBars         []int     `mapstructure:"delay_bars"`
	NoiseLevels       []float64 `mapstructure:"noise_levels"` // fraction of median bar range
	NoiseSeed         int64     `mapstructure:"noise_seed"`
	ReorderShuffles   int       `mapstructure:"reorder_shuffles"`
	ReorderSeed       int64     `mapstructure:"reorder_seed"`
	ReorderDDMultiple float64   `mapstructure:"reorder_dd_multiple"` // p95 shuffled DD limit, × max(baseline DD, 1R)
	MaxStepDrop       float64   `mapstructure:"max_step_drop"`       // retention drop between severities that counts as a cliff

	// Regime splits
	RegimeMinProfitable int     `mapstructure:"regime_min_profitable"`
	ConcentrationMax    float64 `mapstructure:"concentration_max"`

	// Survival score
	Weights        ScoreWeights `mapstructure:"weights"`
	ExpectancyCapR float64      `mapstructure:"expectancy_cap_r"`
	TradeCountCap  int          `mapstructure:"trade_count_cap"`
	Tiers          TierBands    `mapstructure:"tiers"`
}

// DefaultConfig returns the standard battery.
func DefaultConfig() Config {
	return Config{
		TickSize:      0.25,
		CostTicks:     []int{1, 2, 4},
		MissedFill:    true,
		CostMinPasses: 2,

		DelayBars:         []int{1, 2, 3},
		NoiseLevels:       []float64{0.05, 0.10, 0.20},
		NoiseSeed:         7,
		ReorderShuffles:   1000,
		ReorderSeed:       11,
		ReorderDDMultiple: 2.5,
		MaxStepDrop:       0.5,

		RegimeMinProfitable: 2,
		ConcentrationMax:    0.70,

		Weights: ScoreWeights{
			Expectancy:   25,
			TradeCount:   15,
			CostPass:     20,
			AttackSmooth: 20,
			RegimePass:   20,
		},
		ExpectancyCapR: 0.5,
		TradeCountCap:  200,
		Tiers:          TierBands{VeryHigh: 80, High: 70, Medium: 60},
	}
}

// Validate checks thresholds for internal consistency.
func (c Config) Validate() error {
	var errs []error
	if c.TickSize <= 0 {
		errs = append(errs, fmt.Errorf("tick_size must be > 0, got %v", c.TickSize))
	}
	for inst, ts := range c.TickSizes {
		if ts <= 0 {
			errs = append(errs, fmt.Errorf("tick_sizes[%s] must be > 0", inst))
		}
	}
	if c.CostMinPasses < 0 {
		errs = append(errs, errors.New("cost_min_passes must be >= 0"))
	}
	if n := c.costScenarioCount(); n < c.CostMinPasses {
		errs = append(errs, fmt.Errorf("cost ladder has %d scenarios, cost_min_passes needs %d", n, c.CostMinPasses))
	}
	if !slices.IsSorted(c.DelayBars) {
		errs = append(errs, fmt.Errorf("delay_bars must be ascending, got %v", c.DelayBars))
	}
	if !slices.IsSorted(c.NoiseLevels) {
		errs = append(errs, fmt.Errorf("noise_levels must be ascending, got %v", c.NoiseLevels))
	}
	if c.ReorderShuffles < 0 {
		errs = append(errs, errors.New("reorder_shuffles must be >= 0"))
	}
	if c.MaxStepDrop <= 0 {
		errs = append(errs, errors.New("max_step_drop must be > 0"))
	}
	if c.ConcentrationMax <= 0 || c.ConcentrationMax > 1 {
		errs = append(errs, fmt.Errorf("concentration_max must be in (0,1], got %v", c.ConcentrationMax))
	}
	if c.Weights.total() <= 0 {
		errs = append(errs, errors.New("score weights must sum to > 0"))
	}
	if c.ExpectancyCapR <= 0 || c.TradeCountCap <= 0 {
		errs = append(errs, errors.New("expectancy_cap_r and trade_count_cap must be > 0"))
	}
	if !(c.Tiers.VeryHigh >= c.Tiers.High && c.Tiers.High >= c.Tiers.Medium) {
		errs = append(errs, errors.New("tier bands must be descending"))
	}
	return errors.Join(errs...)
}

func (c Config) costScenarioCount() int {
	n := len(c.CostTicks)
	if c.MissedFill {
		n++
	}
	return n
}

// CostScenarios returns the cost ladder for an instrument.
func (c Config) CostScenarios(instrument string) []domain.CostScenario {
	tick := c.TickSize
	if ts, ok := c.TickSizes[instrument]; ok {
		tick = ts
	} else if ts, ok := c.TickSizes[strings.ToLower(instrument)]; ok {
		// config keys arrive lowercased
		tick = ts
	}
	out := make([]domain.CostScenario, 0, len(c.CostTicks)+1)
	for _, n := range c.CostTicks {
		out = append(out, domain.CostScenario{
			ScenarioID:   fmt.Sprintf("cost_%dtick", n),
			TicksPerSide: n,
			TickSize:     tick,
		})
	}
	if c.MissedFill {
		out = append(out, domain.CostScenario{
			ScenarioID:   domain.ScenarioMissedFill,
			TicksPerSide: 1,
			TickSize:     tick,
			MissedFill:   true,
			Penetration:  1,
		})
	}
	return out
}
