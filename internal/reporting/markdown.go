package reporting

import (
	"fmt"
	"strings"
	"time"

	"edge-lab/internal/domain"
)

var stageOrder = []domain.Stage{
	domain.StageGenerated, domain.StageTesting, domain.StageFailed, domain.StageSurvivor,
	domain.StageApproved, domain.StageActive, domain.StageSuspended,
}

var tierOrder = []domain.ConfidenceTier{domain.TierVeryHigh, domain.TierHigh, domain.TierMedium, domain.TierLow}

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Validation Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Candidates | %d |\n", r.Summary.Candidates))
	sb.WriteString(fmt.Sprintf("| Validated | %d |\n", r.Summary.Validated))
	sb.WriteString(fmt.Sprintf("| Passed | %d |\n", r.Summary.Passed))
	sb.WriteString(fmt.Sprintf("| Generation runs | %d |\n", r.Summary.GenerationRuns))
	for _, s := range stageOrder {
		sb.WriteString(fmt.Sprintf("| Stage %s | %d |\n", s, r.Summary.Stages[s]))
	}
	for _, t := range tierOrder {
		if n := r.Summary.ManifestByTier[t]; n > 0 {
			sb.WriteString(fmt.Sprintf("| Edges %s | %d |\n", t, n))
		}
	}
	sb.WriteString("\n")

	// Gate failures
	sb.WriteString("## Gate Failures\n\n")
	if r.Summary.Validated > 0 {
		sb.WriteString("| Gate | Failures | Share |\n")
		sb.WriteString("|------|----------|-------|\n")
		for _, g := range r.GateFailures {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f |\n", g.Gate, g.Failures, g.Share))
		}
	} else {
		sb.WriteString("No candidates validated.\n")
	}
	sb.WriteString("\n")

	// Candidates
	sb.WriteString("## Candidates\n\n")
	if len(r.Candidates) > 0 {
		sb.WriteString("| Candidate | Instrument | Entry | Exit | Risk | Stage | Score | Tier | Trades | WinRate | AvgR | MaxDD | PF | Failures |\n")
		sb.WriteString("|-----------|------------|-------|------|------|-------|-------|------|--------|---------|------|-------|----|----------|\n")
		for _, c := range r.Candidates {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %.2f | %s | %d | %.4f | %.4f | %.4f | %.2f | %s |\n",
				short(c.CandidateID), c.Instrument, c.Entry, c.Exit, c.Risk, c.Stage,
				c.Score, tierOrDash(c.Tier), c.Trades, c.WinRate, c.AvgR, c.MaxDrawdownR, c.ProfitFactor,
				strings.Join(c.FailureReasons, "; ")))
		}
	} else {
		sb.WriteString("No validation outcomes available.\n")
	}
	sb.WriteString("\n")

	// Cost sensitivity
	sb.WriteString("## Cost Sensitivity\n\n")
	if len(r.CostSensitivity) > 0 {
		sb.WriteString("| Candidate | Baseline AvgR | Worst Scenario | Worst AvgR | Degradation% |\n")
		sb.WriteString("|-----------|---------------|----------------|------------|--------------|\n")
		for _, s := range r.CostSensitivity {
			sb.WriteString(fmt.Sprintf("| %s | %.4f | %s | %.4f | %.2f |\n",
				short(s.CandidateID), s.BaselineAvgR, s.WorstScenario, s.WorstAvgR, s.DegradationPct))
		}
	} else {
		sb.WriteString("No cost scenarios available.\n")
	}
	sb.WriteString("\n")

	// Manifest
	sb.WriteString("## Edge Manifest\n\n")
	if len(r.Edges) > 0 {
		sb.WriteString("| Edge | Version | Instrument | Tier | Score | Status |\n")
		sb.WriteString("|------|---------|------------|------|-------|--------|\n")
		for _, e := range r.Edges {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %.2f | %s |\n",
				e.EdgeCode, e.Version, e.Instrument, e.Tier, e.Score, e.Status))
		}
	} else {
		sb.WriteString("No approved edges.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// short abbreviates a 64-char param hash for tables.
func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func tierOrDash(t domain.ConfidenceTier) string {
	if t == "" {
		return "-"
	}
	return string(t)
}
