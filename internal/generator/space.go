package generator

import (
	"errors"
	"fmt"
	"math/rand"

	"edge-lab/internal/domain"
	"edge-lab/internal/idhash"
)

// ParameterSpace is the grid candidates are drawn from. Each field is one
// dimension; a point picks one value from every dimension.
type ParameterSpace struct {
	Windows []domain.TimeWindow
	Entries []domain.EntryRule
	Exits   []domain.ExitRule
	Risks   []domain.RiskModel
	Filters []domain.FilterSet
}

// DefaultSpace is the opening-range grid for US equity index futures hours.
func DefaultSpace() ParameterSpace {
	ny := func(rangeMin, cutoff int) domain.TimeWindow {
		return domain.TimeWindow{
			SessionTZ:          "America/New_York",
			AnchorMinute:       570,
			RangeMinutes:       rangeMin,
			EntryCutoffMinutes: cutoff,
			SessionMinutes:     390,
		}
	}
	return ParameterSpace{
		Windows: []domain.TimeWindow{ny(5, 60), ny(15, 90), ny(30, 120)},
		Entries: []domain.EntryRule{
			domain.BreakoutEntry{},
			domain.BreakoutEntry{Buffer: 0.1},
			domain.CloseConfirmEntry{Confirmations: 1},
			domain.CloseConfirmEntry{Confirmations: 2},
			domain.FadeEntry{Confirmations: 1},
		},
		Exits: []domain.ExitRule{
			domain.FixedMultipleExit{Target: 1},
			domain.FixedMultipleExit{Target: 1.5},
			domain.FixedMultipleExit{Target: 2},
			domain.TrailingExit{TrailR: 1},
			domain.TimeExit{HoldBars: 30},
		},
		Risks: []domain.RiskModel{
			domain.RangeMidpointStop{},
			domain.RangeOppositeStop{},
			domain.ATRStop{Multiple: 0.5},
		},
		Filters: []domain.FilterSet{
			{},
			{RangeATRMax: 0.25},
			{RangeATRMin: 0.05},
		},
	}
}

func (s ParameterSpace) radix() [5]int {
	return [5]int{len(s.Windows), len(s.Entries), len(s.Exits), len(s.Risks), len(s.Filters)}
}

// Size returns the number of points in the space.
func (s ParameterSpace) Size() int {
	n := 1
	for _, r := range s.radix() {
		n *= r
	}
	return n
}

// Validate checks that every dimension is non-empty and every value valid.
func (s ParameterSpace) Validate() error {
	for i, r := range s.radix() {
		if r == 0 {
			return fmt.Errorf("parameter space dimension %d is empty", i)
		}
	}
	var errs []error
	for _, w := range s.Windows {
		errs = append(errs, w.Validate())
	}
	for _, e := range s.Entries {
		errs = append(errs, e.Validate())
	}
	for _, x := range s.Exits {
		errs = append(errs, x.Validate())
	}
	for _, r := range s.Risks {
		errs = append(errs, r.Validate())
	}
	for _, f := range s.Filters {
		errs = append(errs, f.Validate())
	}
	return errors.Join(errs...)
}

// point builds the sealed spec at the given per-dimension indices.
func (s ParameterSpace) point(instrument string, d [5]int) *domain.CandidateSpec {
	return idhash.Seal(&domain.CandidateSpec{
		Instrument: instrument,
		Window:     s.Windows[d[0]],
		Entry:      s.Entries[d[1]],
		Exit:       s.Exits[d[2]],
		Risk:       s.Risks[d[3]],
		Filters:    s.Filters[d[4]],
	})
}

// Enumerate walks the space in mixed-radix order with the window as the
// fastest digit, interleaving instruments, and returns up to count specs.
func Enumerate(s ParameterSpace, instruments []string, count int) []*domain.CandidateSpec {
	total := s.Size() * len(instruments)
	n := min(count, total)
	radix := s.radix()

	out := make([]*domain.CandidateSpec, 0, n)
	for k := 0; k < n; k++ {
		inst := instruments[k%len(instruments)]
		rem := k / len(instruments)
		var d [5]int
		for i, r := range radix {
			d[i] = rem % r
			rem /= r
		}
		out = append(out, s.point(inst, d))
	}
	return out
}

// Sample draws up to count distinct specs with stratified coverage: every
// dimension (instrument included) cycles through seeded permutations of its
// values, so value counts within a dimension differ by at most one per
// completed cycle. Repeated points are redrawn.
func Sample(s ParameterSpace, instruments []string, count int, seed int64) []*domain.CandidateSpec {
	total := s.Size() * len(instruments)
	n := min(count, total)
	rng := rand.New(rand.NewSource(seed))
	radix := s.radix()

	streams := make([]*cycle, len(radix)+1)
	streams[0] = newCycle(len(instruments), rng)
	for i, r := range radix {
		streams[i+1] = newCycle(r, rng)
	}

	seen := make(map[string]bool, n)
	out := make([]*domain.CandidateSpec, 0, n)
	for attempts := 0; len(out) < n && attempts < 20*n; attempts++ {
		inst := instruments[streams[0].next()]
		var d [5]int
		for i := range radix {
			d[i] = streams[i+1].next()
		}
		spec := s.point(inst, d)
		if seen[spec.ParamHash] {
			continue
		}
		seen[spec.ParamHash] = true
		out = append(out, spec)
	}
	return out
}

// cycle yields 0..n-1 in a fresh random order every n draws.
type cycle struct {
	rng  *rand.Rand
	perm []int
	pos  int
}

func newCycle(n int, rng *rand.Rand) *cycle {
	return &cycle{rng: rng, perm: rng.Perm(n)}
}

func (c *cycle) next() int {
	if c.pos == len(c.perm) {
		c.perm = c.rng.Perm(len(c.perm))
		c.pos = 0
	}
	v := c.perm[c.pos]
	c.pos++
	return v
}
