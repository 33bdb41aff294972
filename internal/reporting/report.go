// Package reporting renders a validation report from stored candidates,
// outcomes, backtest results and the manifest.
package reporting

import (
	"time"

	"edge-lab/internal/domain"
)

// Report is the validation report.
type Report struct {
	GeneratedAt time.Time

	Summary Summary

	// Latest outcome per candidate, sorted by survival score DESC then candidate id
	Candidates []CandidateRow

	// Failures per gate across latest outcomes, in gate order
	GateFailures []GateFailureRow

	// Baseline vs cost-stressed expectancy per candidate, sorted by candidate id
	CostSensitivity []CostSensitivityRow

	// Manifest entries, sorted by edge code then version
	Edges []EdgeRow
}

// Summary counts pipeline state.
type Summary struct {
	Candidates     int
	Validated      int // candidates with at least one outcome
	Passed         int // latest outcome passed
	Stages         map[domain.Stage]int
	GenerationRuns int
	ManifestByTier map[domain.ConfidenceTier]int
}

// CandidateRow is one candidate's latest validation verdict.
type CandidateRow struct {
	CandidateID    string
	Instrument     string
	Window         string
	Entry          domain.EntryKind
	Exit           domain.ExitKind
	Risk           domain.RiskKind
	Stage          domain.Stage
	RunID          string
	Passed         bool
	Score          float64
	Tier           domain.ConfidenceTier
	Trades         int
	WinRate        float64
	AvgR           float64
	MaxDrawdownR   float64
	ProfitFactor   float64
	FailureReasons []string
}

// GateFailureRow counts failures of one gate.
type GateFailureRow struct {
	Gate     string
	Failures int
	Share    float64 // failures / validated candidates
}

// CostSensitivityRow compares baseline expectancy with the harshest cost scenario.
type CostSensitivityRow struct {
	CandidateID    string
	BaselineAvgR   float64
	WorstScenario  string
	WorstAvgR      float64
	DegradationPct float64 // (baseline - worst) / baseline * 100, 0 if baseline <= 0
}

// EdgeRow is one manifest entry.
type EdgeRow struct {
	EdgeCode   string
	Version    int
	ParamHash  string
	Instrument string
	Tier       domain.ConfidenceTier
	Score      float64
	Status     domain.ManifestStatus
}
