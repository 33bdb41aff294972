package validation

import (
	"edge-lab/internal/domain"
	"edge-lab/internal/metrics"
)

// survivalScore is 100 × the weighted mean of the components, rounded to
// two places so equal inputs always band identically.
func survivalScore(c domain.ScoreComponents, w ScoreWeights) float64 {
	total := w.total()
	if total <= 0 {
		return 0
	}
	sum := w.Expectancy*c.Expectancy +
		w.TradeCount*c.TradeCount +
		w.CostPass*c.CostPass +
		w.AttackSmooth*c.AttackSmooth +
		w.RegimePass*c.RegimePass
	return metrics.Round(100*sum/total, 2)
}

// tierFor maps a score to its confidence tier.
func tierFor(score float64, bands TierBands) domain.ConfidenceTier {
	switch {
	case score >= bands.VeryHigh:
		return domain.TierVeryHigh
	case score >= bands.High:
		return domain.TierHigh
	case score >= bands.Medium:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
