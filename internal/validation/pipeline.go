// Package validation runs the brutal-validation battery on one candidate:
// baseline, cost realism, robustness attacks and regime splits, then folds
// the results into a survival score and confidence tier.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"edge-lab/internal/domain"
	"edge-lab/internal/features"
	"edge-lab/internal/idhash"
	"edge-lab/internal/simulation"
)

// Hard-fail errors. Their messages are the recorded failure reasons.
var (
	ErrZeroTrades          = errors.New("zero trades")
	ErrNonPositiveBaseline = errors.New("non-positive baseline")
)

// Input is one candidate's validation request.
type Input struct {
	Spec      *domain.CandidateSpec
	Sessions  []features.Session // may include warmup sessions before StartDate
	StartDate string             // inclusive YYYY-MM-DD; "" = unbounded
	EndDate   string             // inclusive YYYY-MM-DD; "" = unbounded
	RunID     string
	NowMs     int64
}

// Report is everything one validation run produced.
type Report struct {
	Outcome *domain.ValidationOutcome
	Results []*domain.BacktestResult // one per scenario and regime slice
	Audit   []*domain.TestAuditRow   // one per test executed
	Trades  []*domain.TradeRecord    // baseline ledger
}

// Pipeline runs the validation battery.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// PipelineOptions contains configuration for creating a Pipeline.
type PipelineOptions struct {
	Config Config
	Logger *slog.Logger // nil = slog.Default()
}

// NewPipeline creates a validation pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: opts.Config, logger: logger}
}

// Config returns the pipeline thresholds.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run validates one candidate. The baseline is simulated first; a candidate
// with zero trades or non-positive average R fails there without running the
// remaining stages. Simulation errors (missing data, lookahead, invalid spec)
// are returned unchanged in the chain so callers can classify them, together
// with a report whose failed outcome names the stage that stopped and keeps
// the results and audit rows of the stages before it.
func (p *Pipeline) Run(in Input) (*Report, error) {
	b := &battery{in: in, cfg: p.cfg}

	// 1. Baseline
	base, err := b.simulate(in.Sessions, simulation.Options{})
	if err != nil {
		empty := &domain.BacktestResult{CandidateID: in.Spec.ID(), ScenarioID: domain.ScenarioBaseline, RunID: in.RunID}
		return b.abort(nil, empty, nil, domain.GateBaseline, fmt.Errorf("baseline: %w", err))
	}
	baseline := base.Summary

	baseGate := domain.GateResult{Gate: domain.GateBaseline, Pass: true, Score: 1}
	switch {
	case baseline.TradeCount == 0:
		baseGate = domain.GateResult{Gate: domain.GateBaseline, Detail: ErrZeroTrades.Error()}
	case baseline.AvgR <= 0:
		baseGate = domain.GateResult{Gate: domain.GateBaseline, Detail: ErrNonPositiveBaseline.Error()}
	}
	b.record(domain.TestCategoryBaseline, domain.ScenarioBaseline, 0, baseGate.Pass, baseline, baseGate.Detail)

	if !baseGate.Pass {
		p.logger.Info("baseline hard fail",
			"candidate_id", in.Spec.ID(),
			"reason", baseGate.Detail,
			"trades", baseline.TradeCount,
		)
		return b.report(base.Trades, baseline, []domain.GateResult{baseGate}, domain.ScoreComponents{}), nil
	}

	// 2. Cost realism
	costGate, err := b.costRealism()
	if err != nil {
		return b.abort(base.Trades, baseline, []domain.GateResult{baseGate}, domain.GateCost, fmt.Errorf("cost realism: %w", err))
	}

	// 3. Robustness attacks
	attackGate, err := b.attacks(base)
	if err != nil {
		return b.abort(base.Trades, baseline, []domain.GateResult{baseGate, costGate}, domain.GateAttack, fmt.Errorf("attacks: %w", err))
	}

	// 4. Regime splits
	regimeGate := b.regimes(base.Trades)

	comps := domain.ScoreComponents{
		Expectancy:   clamp01(baseline.AvgR / p.cfg.ExpectancyCapR),
		TradeCount:   clamp01(float64(baseline.TradeCount) / float64(p.cfg.TradeCountCap)),
		CostPass:     costGate.Score,
		AttackSmooth: attackGate.Score,
		RegimePass:   regimeGate.Score,
	}
	gates := []domain.GateResult{baseGate, costGate, attackGate, regimeGate}
	return b.report(base.Trades, baseline, gates, comps), nil
}

// battery accumulates the results and audit rows of one run.
type battery struct {
	in      Input
	cfg     Config
	results []*domain.BacktestResult
	audit   []*domain.TestAuditRow
}

// simulate runs one scenario over the input date range and keeps its summary.
func (b *battery) simulate(sessions []features.Session, opts simulation.Options) (*simulation.Result, error) {
	opts.StartDate = b.in.StartDate
	opts.EndDate = b.in.EndDate
	res, err := simulation.Simulate(b.in.Spec, sessions, opts)
	if err != nil {
		return nil, err
	}
	res.Summary.RunID = b.in.RunID
	b.results = append(b.results, res.Summary)
	return res, nil
}

// keep stores a derived result (regime slice) with the run id.
func (b *battery) keep(r *domain.BacktestResult) {
	r.RunID = b.in.RunID
	b.results = append(b.results, r)
}

func (b *battery) record(category, testID string, severity float64, pass bool, r *domain.BacktestResult, detail string) {
	b.audit = append(b.audit, &domain.TestAuditRow{
		RunID:        b.in.RunID,
		CandidateID:  b.in.Spec.ID(),
		Category:     category,
		TestID:       testID,
		Severity:     severity,
		Pass:         pass,
		TradeCount:   r.TradeCount,
		AvgR:         r.AvgR,
		TotalR:       r.TotalR,
		MaxDrawdownR: r.MaxDrawdownR,
		Detail:       detail,
		CreatedAtMs:  b.in.NowMs,
	})
}

// abort closes a run stopped by err in stage gate. The outcome fails with the
// error as that gate's detail and scores zero.
func (b *battery) abort(trades []*domain.TradeRecord, baseline *domain.BacktestResult, done []domain.GateResult, gate string, err error) (*Report, error) {
	gates := append(done, domain.GateResult{Gate: gate, Detail: err.Error()})
	b.record(domain.TestCategoryAborted, gate, 0, false, baseline, err.Error())
	return b.report(trades, baseline, gates, domain.ScoreComponents{}), err
}

func (b *battery) report(trades []*domain.TradeRecord, baseline *domain.BacktestResult, gates []domain.GateResult, comps domain.ScoreComponents) *Report {
	passed := true
	var reasons []string
	for _, g := range gates {
		if g.Pass {
			continue
		}
		passed = false
		if g.Detail != "" {
			reasons = append(reasons, g.Detail)
		} else {
			reasons = append(reasons, g.Gate+" failed")
		}
	}

	score := survivalScore(comps, b.cfg.Weights)
	outcome := &domain.ValidationOutcome{
		OutcomeID:      idhash.ComputeOutcomeID(b.in.Spec.ID(), b.in.RunID),
		CandidateID:    b.in.Spec.ID(),
		RunID:          b.in.RunID,
		Gates:          gates,
		Passed:         passed,
		SurvivalScore:  score,
		Tier:           tierFor(score, b.cfg.Tiers),
		FailureReasons: reasons,
		Components:     comps,
		Baseline:       *baseline,
		CreatedAtMs:    b.in.NowMs,
	}
	return &Report{
		Outcome: outcome,
		Results: b.results,
		Audit:   b.audit,
		Trades:  trades,
	}
}

// FailureSummary joins an outcome's failure reasons for a lifecycle entry.
func FailureSummary(o *domain.ValidationOutcome) string {
	return strings.Join(o.FailureReasons, "; ")
}
