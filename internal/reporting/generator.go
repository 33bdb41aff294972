package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"edge-lab/internal/domain"
	"edge-lab/internal/storage"
)

// StageReader reads lifecycle stages.
type StageReader interface {
	Current(ctx context.Context, candidateID string) (domain.Stage, error)
	Counts(ctx context.Context) (map[domain.Stage]int, error)
}

// Generator produces reports from stored data.
type Generator struct {
	candidates storage.CandidateStore
	outcomes   storage.OutcomeStore
	results    storage.BacktestResultStore
	manifest   storage.ManifestStore
	runs       storage.GenerationRunStore
	stages     StageReader
	now        func() time.Time // injectable for deterministic output
}

// GeneratorOptions contains the stores a Generator reads.
type GeneratorOptions struct {
	Candidates storage.CandidateStore
	Outcomes   storage.OutcomeStore
	Results    storage.BacktestResultStore
	Manifest   storage.ManifestStore
	Runs       storage.GenerationRunStore
	Stages     StageReader
}

// NewGenerator creates a report generator.
func NewGenerator(opts GeneratorOptions) *Generator {
	return &Generator{
		candidates: opts.Candidates,
		outcomes:   opts.Outcomes,
		results:    opts.Results,
		manifest:   opts.Manifest,
		runs:       opts.Runs,
		stages:     opts.Stages,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	specs, err := g.candidates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	stages, err := g.stages.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count stages: %w", err)
	}
	runs, err := g.runs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list generation runs: %w", err)
	}

	r := &Report{
		GeneratedAt: g.now(),
		Summary: Summary{
			Candidates:     len(specs),
			Stages:         stages,
			GenerationRuns: len(runs),
			ManifestByTier: make(map[domain.ConfidenceTier]int),
		},
	}

	gateFailures := make(map[string]int)
	for _, spec := range specs {
		row, latest, err := g.candidateRow(ctx, spec)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			continue
		}
		r.Summary.Validated++
		if latest.Passed {
			r.Summary.Passed++
		}
		for _, gate := range latest.Gates {
			if !gate.Pass {
				gateFailures[gate.Gate]++
			}
		}
		r.Candidates = append(r.Candidates, row)

		sens, ok, err := g.costSensitivity(ctx, latest)
		if err != nil {
			return nil, err
		}
		if ok {
			r.CostSensitivity = append(r.CostSensitivity, sens)
		}
	}

	sort.Slice(r.Candidates, func(i, j int) bool {
		a, b := r.Candidates[i], r.Candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.CandidateID < b.CandidateID
	})
	sort.Slice(r.CostSensitivity, func(i, j int) bool {
		return r.CostSensitivity[i].CandidateID < r.CostSensitivity[j].CandidateID
	})

	for _, gate := range []string{domain.GateBaseline, domain.GateCost, domain.GateAttack, domain.GateRegime} {
		n := gateFailures[gate]
		row := GateFailureRow{Gate: gate, Failures: n}
		if r.Summary.Validated > 0 {
			row.Share = float64(n) / float64(r.Summary.Validated)
		}
		r.GateFailures = append(r.GateFailures, row)
	}

	edges, err := g.edges(ctx)
	if err != nil {
		return nil, err
	}
	r.Edges = edges
	for _, e := range edges {
		r.Summary.ManifestByTier[e.Tier]++
	}
	return r, nil
}

// candidateRow returns the row for spec's latest outcome, or a nil outcome
// when the candidate was never validated.
func (g *Generator) candidateRow(ctx context.Context, spec *domain.CandidateSpec) (CandidateRow, *domain.ValidationOutcome, error) {
	id := spec.ID()
	outcomes, err := g.outcomes.GetByCandidateID(ctx, id)
	if err != nil {
		return CandidateRow{}, nil, fmt.Errorf("load outcomes %s: %w", id, err)
	}
	if len(outcomes) == 0 {
		return CandidateRow{}, nil, nil
	}
	o := outcomes[len(outcomes)-1]

	stage, err := g.stages.Current(ctx, id)
	if err != nil {
		return CandidateRow{}, nil, fmt.Errorf("load stage %s: %w", id, err)
	}

	return CandidateRow{
		CandidateID:    id,
		Instrument:     spec.Instrument,
		Window:         spec.Window.Key(),
		Entry:          spec.Entry.EntryKind(),
		Exit:           spec.Exit.ExitKind(),
		Risk:           spec.Risk.RiskKind(),
		Stage:          stage,
		RunID:          o.RunID,
		Passed:         o.Passed,
		Score:          o.SurvivalScore,
		Tier:           o.Tier,
		Trades:         o.Baseline.TradeCount,
		WinRate:        o.Baseline.WinRate,
		AvgR:           o.Baseline.AvgR,
		MaxDrawdownR:   o.Baseline.MaxDrawdownR,
		ProfitFactor:   o.Baseline.ProfitFactor,
		FailureReasons: o.FailureReasons,
	}, o, nil
}

// costSensitivity compares the baseline with the lowest-expectancy cost
// scenario of the outcome's run. Baseline hard fails have no cost scenarios.
func (g *Generator) costSensitivity(ctx context.Context, o *domain.ValidationOutcome) (CostSensitivityRow, bool, error) {
	results, err := g.results.GetByCandidateID(ctx, o.CandidateID)
	if err != nil {
		return CostSensitivityRow{}, false, fmt.Errorf("load backtest results %s: %w", o.CandidateID, err)
	}

	var worst *domain.BacktestResult
	for _, res := range results {
		if res.RunID != o.RunID || res.Kind != domain.ScenarioKindCost {
			continue
		}
		if worst == nil || res.AvgR < worst.AvgR {
			worst = res
		}
	}
	if worst == nil {
		return CostSensitivityRow{}, false, nil
	}

	row := CostSensitivityRow{
		CandidateID:   o.CandidateID,
		BaselineAvgR:  o.Baseline.AvgR,
		WorstScenario: worst.ScenarioID,
		WorstAvgR:     worst.AvgR,
	}
	if row.BaselineAvgR > 0 {
		row.DegradationPct = (row.BaselineAvgR - row.WorstAvgR) / row.BaselineAvgR * 100
	}
	return row, true, nil
}

func (g *Generator) edges(ctx context.Context) ([]EdgeRow, error) {
	entries, err := g.manifest.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list manifest: %w", err)
	}
	rows := make([]EdgeRow, 0, len(entries))
	for _, e := range entries {
		row := EdgeRow{
			EdgeCode:  e.EdgeCode,
			Version:   e.Version,
			ParamHash: e.ParamHash,
			Tier:      e.Metrics.Tier,
			Score:     e.Metrics.SurvivalScore,
			Status:    e.Status,
		}
		if e.Spec != nil {
			row.Instrument = e.Spec.Instrument
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EdgeCode != rows[j].EdgeCode {
			return rows[i].EdgeCode < rows[j].EdgeCode
		}
		return rows[i].Version < rows[j].Version
	})
	return rows, nil
}
