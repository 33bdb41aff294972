package validation

import (
	"strings"
	"testing"

	"edge-lab/internal/domain"
)

func TestSurvivalScore(t *testing.T) {
	w := DefaultConfig().Weights

	tests := []struct {
		name  string
		comps domain.ScoreComponents
		want  float64
	}{
		{"all zero", domain.ScoreComponents{}, 0},
		{"all one", domain.ScoreComponents{Expectancy: 1, TradeCount: 1, CostPass: 1, AttackSmooth: 1, RegimePass: 1}, 100},
		{"expectancy only", domain.ScoreComponents{Expectancy: 1}, 25},
		{"half everything", domain.ScoreComponents{Expectancy: 0.5, TradeCount: 0.5, CostPass: 0.5, AttackSmooth: 0.5, RegimePass: 0.5}, 50},
		{"no trade count", domain.ScoreComponents{Expectancy: 1, CostPass: 1, AttackSmooth: 1, RegimePass: 1}, 85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := survivalScore(tt.comps, w); got != tt.want {
				t.Errorf("survivalScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSurvivalScore_WeightsAreRatios(t *testing.T) {
	comps := domain.ScoreComponents{Expectancy: 0.8, TradeCount: 0.3, CostPass: 0.75, AttackSmooth: 0.6, RegimePass: 1}
	w := DefaultConfig().Weights
	doubled := ScoreWeights{
		Expectancy:   w.Expectancy * 2,
		TradeCount:   w.TradeCount * 2,
		CostPass:     w.CostPass * 2,
		AttackSmooth: w.AttackSmooth * 2,
		RegimePass:   w.RegimePass * 2,
	}
	if a, b := survivalScore(comps, w), survivalScore(comps, doubled); a != b {
		t.Errorf("scaling weights changed score: %v vs %v", a, b)
	}
}

func TestTierFor(t *testing.T) {
	bands := DefaultConfig().Tiers

	tests := []struct {
		score float64
		want  domain.ConfidenceTier
	}{
		{100, domain.TierVeryHigh},
		{80, domain.TierVeryHigh},
		{79.99, domain.TierHigh},
		{70, domain.TierHigh},
		{69.5, domain.TierMedium},
		{60, domain.TierMedium},
		{59.99, domain.TierLow},
		{0, domain.TierLow},
	}

	for _, tt := range tests {
		if got := tierFor(tt.score, bands); got != tt.want {
			t.Errorf("tierFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"concentration and weights", func(c *Config) {
			c.ConcentrationMax = 1.5
			c.Weights = ScoreWeights{}
		}, "concentration_max"},
		{"ladder shorter than min passes", func(c *Config) {
			c.CostTicks = []int{1}
			c.MissedFill = false
		}, "cost ladder has 1 scenarios"},
		{"delays out of order", func(c *Config) { c.DelayBars = []int{2, 1, 3} }, "delay_bars must be ascending"},
		{"noise out of order", func(c *Config) { c.NoiseLevels = []float64{0.2, 0.05} }, "noise_levels must be ascending"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	single := DefaultConfig()
	single.CostTicks = []int{1}
	single.MissedFill = false
	single.CostMinPasses = 1
	if err := single.Validate(); err != nil {
		t.Errorf("one scenario with one required pass should be valid: %v", err)
	}
}

func TestConfig_CostScenarios(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickSizes = map[string]float64{"CL": 0.01}

	got := cfg.CostScenarios("CL")
	if len(got) != 4 {
		t.Fatalf("got %d scenarios, want 4", len(got))
	}
	wantIDs := []string{"cost_1tick", "cost_2tick", "cost_4tick", domain.ScenarioMissedFill}
	for i, cs := range got {
		if cs.ScenarioID != wantIDs[i] {
			t.Errorf("scenario %d = %s, want %s", i, cs.ScenarioID, wantIDs[i])
		}
		if cs.TickSize != 0.01 {
			t.Errorf("scenario %s tick size = %v, want 0.01", cs.ScenarioID, cs.TickSize)
		}
	}
	if !got[3].MissedFill || got[3].Penetration != 1 {
		t.Errorf("missed fill scenario = %+v", got[3])
	}
}
