package validation

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"edge-lab/internal/domain"
	"edge-lab/internal/features"
	"edge-lab/internal/metrics"
	"edge-lab/internal/simulation"
)

// attackStep is one severity level of one attack family.
type attackStep struct {
	id       string
	severity float64
	result   *domain.BacktestResult
}

// attacks runs the perturbation families and the trade reorder test. Each
// family (tie-break reversal, execution delay, price noise) is ordered by
// severity and judged by judgeFamilies.
func (b *battery) attacks(base *simulation.Result) (domain.GateResult, error) {
	gate := domain.GateResult{Gate: domain.GateAttack}
	var families [][]attackStep

	// Tie-break reversal
	tb, err := b.simulate(b.in.Sessions, simulation.Options{
		ScenarioID: "tiebreak_target_first",
		Kind:       domain.ScenarioKindAttack,
		TieBreak:   simulation.TargetFirst,
	})
	if err != nil {
		return gate, fmt.Errorf("tie-break: %w", err)
	}
	families = append(families, []attackStep{{id: tb.Summary.ScenarioID, severity: 1, result: tb.Summary}})

	// Entry/exit delay
	var delays []attackStep
	for _, d := range b.cfg.DelayBars {
		id := fmt.Sprintf("delay_%d", d)
		res, err := b.simulate(b.in.Sessions, simulation.Options{
			ScenarioID:    id,
			Kind:          domain.ScenarioKindAttack,
			Fill:          simulation.DelayedFill{Bars: d},
			ExitDelayBars: d,
		})
		if err != nil {
			return gate, fmt.Errorf("%s: %w", id, err)
		}
		delays = append(delays, attackStep{id: id, severity: float64(d), result: res.Summary})
	}
	families = append(families, delays)

	// Price noise
	amp := medianBarRange(b.in.Sessions)
	var noise []attackStep
	for i, lvl := range b.cfg.NoiseLevels {
		id := fmt.Sprintf("noise_%.2f", lvl)
		noisy := perturb(b.in.Sessions, lvl*amp, b.cfg.NoiseSeed+int64(i))
		sessions, err := features.Split(b.in.Spec.Instrument, noisy, b.in.Spec.Window)
		if err != nil {
			return gate, fmt.Errorf("%s: rebuild features: %w", id, err)
		}
		res, err := b.simulate(sessions, simulation.Options{ScenarioID: id, Kind: domain.ScenarioKindAttack})
		if err != nil {
			return gate, fmt.Errorf("%s: %w", id, err)
		}
		noise = append(noise, attackStep{id: id, severity: lvl, result: res.Summary})
	}
	families = append(families, noise)

	// Smoothness
	verdicts, maxDrop, cliffs := judgeFamilies(base.Summary.AvgR, families, b.cfg.MaxStepDrop)
	for _, v := range verdicts {
		b.record(domain.TestCategoryAttack, v.step.id, v.step.severity, v.pass, v.step.result,
			fmt.Sprintf("retention %.3f, step drop %.3f", v.retention, v.drop))
	}

	// Trade reorder
	reorderOK := b.reorder(base)
	return attackGate(maxDrop, cliffs, reorderOK), nil
}

// stepVerdict is the smoothness judgement of one attack step.
type stepVerdict struct {
	step      attackStep
	retention float64
	drop      float64
	pass      bool
}

// judgeFamilies walks each family in severity order. Retention at a step is
// its avg R over base0; every family starts at retention 1. A drop above
// maxStepDrop between consecutive steps is a cliff. It returns one verdict
// per step, the largest drop seen and the ids of the cliff steps.
func judgeFamilies(base0 float64, families [][]attackStep, maxStepDrop float64) ([]stepVerdict, float64, []string) {
	var (
		verdicts []stepVerdict
		maxDrop  float64
		cliffs   []string
	)
	for _, fam := range families {
		prev := 1.0
		for _, st := range fam {
			r := st.result.AvgR / base0
			drop := prev - r
			ok := drop <= maxStepDrop
			if !ok {
				cliffs = append(cliffs, st.id)
			}
			maxDrop = max(maxDrop, drop)
			verdicts = append(verdicts, stepVerdict{step: st, retention: r, drop: drop, pass: ok})
			prev = r
		}
	}
	return verdicts, maxDrop, cliffs
}

// attackGate scores 1 - the largest drop, clamped, halved when the reorder
// test failed. Any cliff or a failed reorder fails the gate.
func attackGate(maxDrop float64, cliffs []string, reorderOK bool) domain.GateResult {
	gate := domain.GateResult{Gate: domain.GateAttack, Score: clamp01(1 - maxDrop)}
	if !reorderOK {
		gate.Score /= 2
	}

	gate.Pass = len(cliffs) == 0 && reorderOK
	if !gate.Pass {
		var why []string
		if len(cliffs) > 0 {
			why = append(why, "cliff at "+strings.Join(cliffs, ","))
		}
		if !reorderOK {
			why = append(why, "reorder drawdown")
		}
		gate.Detail = "robustness attacks: " + strings.Join(why, "; ")
	}
	return gate
}

// reorder shuffles the baseline R sequence and checks that the 95th
// percentile drawdown stays within ReorderDDMultiple × max(baseline DD, 1R).
// Entries are not re-decided; only path dependence of drawdown is probed.
func (b *battery) reorder(base *simulation.Result) bool {
	if b.cfg.ReorderShuffles <= 0 {
		return true
	}

	rs := metrics.RMultiples(metrics.SortChronological(base.Trades))
	p95 := ShuffledDrawdownP95(rs, b.cfg.ReorderShuffles, b.cfg.ReorderSeed)
	limit := b.cfg.ReorderDDMultiple * max(base.Summary.MaxDrawdownR, 1)
	ok := p95 <= limit

	summary := *base.Summary
	summary.ScenarioID = "reorder_p95"
	summary.Kind = domain.ScenarioKindAttack
	summary.MaxDrawdownR = p95
	b.keep(&summary)
	b.record(domain.TestCategoryAttack, summary.ScenarioID, float64(b.cfg.ReorderShuffles), ok, &summary,
		fmt.Sprintf("p95 drawdown %.3fR, limit %.3fR", p95, limit))
	return ok
}

// ShuffledDrawdownP95 returns the 95th percentile max drawdown over n seeded
// shuffles of rs. rs is not modified.
func ShuffledDrawdownP95(rs []float64, n int, seed int64) float64 {
	if len(rs) == 0 || n <= 0 {
		return 0
	}
	rng := rand.New(rand.NewSource(seed))
	buf := make([]float64, len(rs))
	dds := make([]float64, n)
	for i := range dds {
		copy(buf, rs)
		rng.Shuffle(len(buf), func(a, c int) { buf[a], buf[c] = buf[c], buf[a] })
		dds[i] = metrics.MaxDrawdown(buf)
	}
	sort.Float64s(dds)
	return metrics.Percentile(dds, 0.95)
}

// medianBarRange is the median high-low range over all session bars.
func medianBarRange(sessions []features.Session) float64 {
	var ranges []float64
	for _, s := range sessions {
		for _, bar := range s.Bars {
			ranges = append(ranges, bar.Range())
		}
	}
	sort.Float64s(ranges)
	return metrics.Percentile(ranges, 0.5)
}

// perturb returns copies of every session bar with seeded uniform noise of
// amplitude amp added to each price. High and low are widened as needed so
// every bar stays a valid OHLC.
func perturb(sessions []features.Session, amp float64, seed int64) []*domain.Bar {
	rng := rand.New(rand.NewSource(seed))
	jitter := func() float64 { return amp * (2*rng.Float64() - 1) }

	var out []*domain.Bar
	for _, s := range sessions {
		for _, bar := range s.Bars {
			n := *bar
			n.Open += jitter()
			n.Close += jitter()
			n.High = max(bar.High+jitter(), n.Open, n.Close)
			n.Low = min(bar.Low+jitter(), n.Open, n.Close)
			out = append(out, &n)
		}
	}
	return out
}
