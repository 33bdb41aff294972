package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"edge-lab/internal/domain"
	"edge-lab/internal/metrics"
)

// Regime dimensions.
const (
	DimensionQuarter = "quarter"
	DimensionATR     = "atr_tercile"
	DimensionWeekday = "weekday"
)

// Partition is one regime slice of a trade set.
type Partition struct {
	Key    string
	Trades []*domain.TradeRecord
}

// Dimension partitions trades along one independent axis.
type Dimension struct {
	Name       string
	Partitions []Partition // sorted by key
}

// DimensionVerdict is the gate decision for one dimension.
type DimensionVerdict struct {
	Name       string
	Profitable int     // partitions with avg R > 0
	MaxShare   float64 // largest partition share of total R
	Pass       bool
	Detail     string
}

// PartitionTrades splits trades by calendar quarter, ATR tercile and weekday.
// atrByDate maps session date to the ATR known at that session's anchor.
func PartitionTrades(trades []*domain.TradeRecord, atrByDate map[string]float64) []Dimension {
	atrs := make([]float64, 0, len(trades))
	for _, t := range trades {
		atrs = append(atrs, atrByDate[t.SessionDate])
	}
	sort.Float64s(atrs)
	lowCut := metrics.Percentile(atrs, 1.0/3)
	highCut := metrics.Percentile(atrs, 2.0/3)

	return []Dimension{
		partitionBy(DimensionQuarter, trades, func(t *domain.TradeRecord) string {
			return quarterOf(t.SessionDate)
		}),
		partitionBy(DimensionATR, trades, func(t *domain.TradeRecord) string {
			atr := atrByDate[t.SessionDate]
			switch {
			case atr <= lowCut:
				return "low"
			case atr <= highCut:
				return "mid"
			default:
				return "high"
			}
		}),
		partitionBy(DimensionWeekday, trades, func(t *domain.TradeRecord) string {
			d, err := time.Parse("2006-01-02", t.SessionDate)
			if err != nil {
				return "unknown"
			}
			return strings.ToLower(d.Weekday().String())
		}),
	}
}

func partitionBy(name string, trades []*domain.TradeRecord, key func(*domain.TradeRecord) string) Dimension {
	groups := make(map[string][]*domain.TradeRecord)
	for _, t := range trades {
		k := key(t)
		groups[k] = append(groups[k], t)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dim := Dimension{Name: name, Partitions: make([]Partition, len(keys))}
	for i, k := range keys {
		dim.Partitions[i] = Partition{Key: k, Trades: groups[k]}
	}
	return dim
}

func quarterOf(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "unknown"
	}
	return fmt.Sprintf("%dQ%d", d.Year(), (int(d.Month())-1)/3+1)
}

// JudgeDimension applies the regime gate to per-partition results: at least
// minProfitable profitable partitions and no partition holding more than
// maxShare of total R. A non-positive total fails.
func JudgeDimension(name string, results []*domain.BacktestResult, minProfitable int, maxShare float64) DimensionVerdict {
	v := DimensionVerdict{Name: name}
	total := 0.0
	for _, r := range results {
		total += r.TotalR
		if r.Profitable() {
			v.Profitable++
		}
	}
	if total > 0 {
		for _, r := range results {
			v.MaxShare = max(v.MaxShare, r.TotalR/total)
		}
	}

	switch {
	case v.Profitable < minProfitable:
		v.Detail = fmt.Sprintf("%s: %d profitable partitions, need %d", name, v.Profitable, minProfitable)
	case total <= 0:
		v.Detail = fmt.Sprintf("%s: non-positive total R", name)
	case v.MaxShare > maxShare:
		v.Detail = fmt.Sprintf("%s: one partition holds %.0f%% of total R", name, v.MaxShare*100)
	default:
		v.Pass = true
	}
	return v
}

// regimes recomputes results per partition and gates every dimension.
// The score is the fraction of dimensions that pass.
func (b *battery) regimes(trades []*domain.TradeRecord) domain.GateResult {
	atrByDate := make(map[string]float64, len(b.in.Sessions))
	for _, s := range b.in.Sessions {
		atrByDate[s.Features.SessionDate] = s.Features.ATR
	}

	gate := domain.GateResult{Gate: domain.GateRegime}
	dims := PartitionTrades(trades, atrByDate)
	passed := 0
	var failures []string
	for _, dim := range dims {
		results := make([]*domain.BacktestResult, len(dim.Partitions))
		for i, p := range dim.Partitions {
			id := "regime:" + dim.Name + ":" + p.Key
			r := metrics.Compute(p.Trades, b.in.Spec.ID(), id, domain.ScenarioKindRegime)
			b.keep(r)
			results[i] = r
		}

		v := JudgeDimension(dim.Name, results, b.cfg.RegimeMinProfitable, b.cfg.ConcentrationMax)
		total := 0.0
		for _, r := range results {
			total += r.TotalR
		}
		for _, r := range results {
			share := 0.0
			if total > 0 {
				share = r.TotalR / total
			}
			b.record(domain.TestCategoryRegime, strings.TrimPrefix(r.ScenarioID, "regime:"), 0,
				r.Profitable() && share <= b.cfg.ConcentrationMax, r,
				fmt.Sprintf("share %.3f", share))
		}

		if v.Pass {
			passed++
		} else {
			failures = append(failures, v.Detail)
		}
	}

	gate.Score = float64(passed) / float64(len(dims))
	gate.Pass = passed == len(dims)
	if !gate.Pass {
		gate.Detail = "regime splits: " + strings.Join(failures, "; ")
	}
	return gate
}
