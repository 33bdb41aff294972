package simulation

import (
	"errors"
	"fmt"
	"math"

	"edge-lab/internal/domain"
	"edge-lab/internal/features"
	"edge-lab/internal/idhash"
	"edge-lab/internal/metrics"
)

// Simulation errors
var (
	// ErrDataUnavailable is returned when no session in the requested range has data.
	ErrDataUnavailable = errors.New("data unavailable for requested range")

	// ErrLookahead is returned when a decision would consult a feature value
	// before its availability time. It indicates corrupt feature data.
	ErrLookahead = errors.New("lookahead: feature not available at decision time")

	// ErrInvalidSpec is returned when the candidate cannot be simulated.
	ErrInvalidSpec = errors.New("invalid spec for simulation")
)

// Result is the output of one simulation run.
type Result struct {
	Trades  []*domain.TradeRecord
	Summary *domain.BacktestResult
	Skipped map[string]int // sessions skipped by reason
}

// Simulate replays sessions in chronological order and returns the trade ledger.
// At most one trade is taken per session and every position is flat by the
// session end. Identical inputs always yield identical outputs.
func Simulate(spec *domain.CandidateSpec, sessions []features.Session, opts Options) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	opts = opts.withDefaults()

	res := &Result{Skipped: make(map[string]int)}
	cutoffOffset := int64(spec.Window.EntryCutoffMinutes) * domain.BarIntervalMs

	inRange := 0
	for _, s := range sessions {
		f := s.Features
		if opts.StartDate != "" && f.SessionDate < opts.StartDate {
			continue
		}
		if opts.EndDate != "" && f.SessionDate > opts.EndDate {
			continue
		}
		if len(s.Bars) == 0 {
			continue
		}
		inRange++

		trade, reason, err := simulateSession(spec, s, f.AnchorMs+cutoffOffset, opts)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", f.SessionDate, err)
		}
		if trade == nil {
			res.Skipped[reason]++
			continue
		}
		res.Trades = append(res.Trades, trade)
	}

	if inRange == 0 {
		return nil, ErrDataUnavailable
	}

	res.Summary = metrics.Compute(res.Trades, spec.ParamHash, opts.ScenarioID, opts.Kind)
	return res, nil
}

// position is the state of an open trade.
type position struct {
	dir         domain.Direction
	entry       float64
	stop        float64
	initialStop float64
	target      *float64
	risk        float64 // planned risk, price units
	best        float64 // best close since entry, for trailing
	mae, mfe    float64 // price units, signed by direction
}

// exitEvent is a triggered exit before any delay is applied.
type exitEvent struct {
	idx     int
	price   float64
	timeMs  int64
	reason  string
	atClose bool
}

func simulateSession(spec *domain.CandidateSpec, s features.Session, cutoffMs int64, opts Options) (*domain.TradeRecord, string, error) {
	f := s.Features
	bars := s.Bars

	if f.ORWidth() <= 0 {
		return nil, SkipFlatRange, nil
	}
	pass, filterATR := passesFilters(spec.Filters, f)
	if !pass {
		return nil, SkipFilter, nil
	}

	sig, reason := detectSignal(spec.Entry, f, bars, cutoffMs)
	if reason != "" {
		return nil, reason, nil
	}

	dist, riskATR := stopDistance(spec.Risk, f, sig)

	asOf := f.ORFormedAtMs
	if filterATR || riskATR {
		asOf = max(asOf, f.ATRAvailableAtMs)
	}
	if asOf > sig.decisionMs {
		return nil, "", fmt.Errorf("%w: features as of %d, decision at %d", ErrLookahead, asOf, sig.decisionMs)
	}

	if !(dist > 0) || math.IsInf(dist, 0) {
		return nil, SkipInvalidRisk, nil
	}

	fill, ok := opts.Fill.fill(sig, bars)
	if !ok {
		return nil, SkipNoFill, nil
	}

	dir := float64(sig.dir)
	pos := &position{
		dir:   sig.dir,
		entry: fill.price,
		stop:  sig.price - dir*dist,
		risk:  dist,
		best:  fill.price,
	}
	pos.initialStop = pos.stop
	if x, ok := spec.Exit.(domain.FixedMultipleExit); ok {
		t := sig.price + dir*x.Target*dist
		pos.target = &t
	}

	ev := manage(spec.Exit, pos, bars, fill, opts.TieBreak)
	ev = delayExit(ev, bars, opts.ExitDelayBars)

	cost := opts.Cost.RoundTrip(pos.entry, ev.price)
	r := (dir*(ev.price-pos.entry) - cost) / pos.risk

	trade := &domain.TradeRecord{
		TradeID:        idhash.ComputeTradeID(spec.ParamHash, opts.ScenarioID, f.SessionDate, sig.decisionMs),
		CandidateID:    spec.ParamHash,
		ScenarioID:     opts.ScenarioID,
		SessionDate:    f.SessionDate,
		Direction:      sig.dir,
		DecisionTimeMs: sig.decisionMs,
		FeaturesAsOfMs: asOf,
		SignalPrice:    sig.price,
		EntryTimeMs:    fill.timeMs,
		EntryPrice:     pos.entry,
		StopPrice:      pos.initialStop,
		TargetPrice:    pos.target,
		InitialRisk:    pos.risk,
		ExitTimeMs:     ev.timeMs,
		ExitPrice:      ev.price,
		ExitReason:     ev.reason,
		CostPoints:     cost,
		RMultiple:      r,
		MAE:            math.Min(0, pos.mae/pos.risk),
		MFE:            math.Max(0, pos.mfe/pos.risk),
	}
	return trade, "", nil
}

// manage walks bars from the fill and returns the first exit.
func manage(rule domain.ExitRule, pos *position, bars []*domain.Bar, fill entryFill, tie TieBreak) exitEvent {
	dir := float64(pos.dir)
	last := len(bars) - 1

	// A delayed fill may open beyond the stop.
	if dir*(fill.price-pos.stop) <= 0 {
		return exitEvent{idx: fill.startIdx, price: fill.price, timeMs: fill.timeMs, reason: domain.ExitReasonStop}
	}

	held := 0
	for j := fill.startIdx; j <= last; j++ {
		b := bars[j]
		pos.track(b)

		if j == fill.startIdx && fill.partial {
			if pos.stopTouched(b) {
				return exitEvent{idx: j, price: pos.stop, timeMs: b.TimestampMs, reason: pos.stopReason()}
			}
		} else if ev, ok := pos.checkBar(j, b, tie); ok {
			return ev
		}

		// Bar close bookkeeping.
		if tr, ok := rule.(domain.TrailingExit); ok {
			pos.trail(b.Close, tr.TrailR)
		}
		if b.CloseTimeMs() > fill.timeMs {
			held++
		}
		if te, ok := rule.(domain.TimeExit); ok && held >= te.HoldBars {
			return exitEvent{idx: j, price: b.Close, timeMs: b.CloseTimeMs(), reason: domain.ExitReasonTimeExit, atClose: true}
		}
	}

	b := bars[last]
	return exitEvent{idx: last, price: b.Close, timeMs: b.CloseTimeMs(), reason: domain.ExitReasonTimeExit, atClose: true}
}

// checkBar evaluates a full bar against the stop and target.
func (p *position) checkBar(j int, b *domain.Bar, tie TieBreak) (exitEvent, bool) {
	dir := float64(p.dir)

	// Gaps: the open already traded beyond a level.
	if dir*(b.Open-p.stop) <= 0 {
		return exitEvent{idx: j, price: b.Open, timeMs: b.TimestampMs, reason: p.stopReason()}, true
	}
	if p.target != nil && dir*(b.Open-*p.target) >= 0 {
		return exitEvent{idx: j, price: *p.target, timeMs: b.TimestampMs, reason: domain.ExitReasonTarget}, true
	}

	stopHit := p.stopTouched(b)
	targetHit := p.target != nil && p.targetTouched(b)

	if stopHit && (!targetHit || tie == StopFirst) {
		return exitEvent{idx: j, price: p.stop, timeMs: b.TimestampMs, reason: p.stopReason()}, true
	}
	if targetHit {
		return exitEvent{idx: j, price: *p.target, timeMs: b.TimestampMs, reason: domain.ExitReasonTarget}, true
	}
	return exitEvent{}, false
}

func (p *position) stopTouched(b *domain.Bar) bool {
	if p.dir == domain.Long {
		return b.Low <= p.stop
	}
	return b.High >= p.stop
}

func (p *position) targetTouched(b *domain.Bar) bool {
	if p.dir == domain.Long {
		return b.High >= *p.target
	}
	return b.Low <= *p.target
}

func (p *position) stopReason() string {
	if p.stop != p.initialStop {
		return domain.ExitReasonTrailingStop
	}
	return domain.ExitReasonStop
}

// trail tightens the stop behind the best close; it never loosens.
func (p *position) trail(px, trailR float64) {
	dir := float64(p.dir)
	if dir*(px-p.best) > 0 {
		p.best = px
	}
	candidate := p.best - dir*trailR*p.risk
	if dir*(candidate-p.stop) > 0 {
		p.stop = candidate
	}
}

// track records excursions in price units relative to entry.
func (p *position) track(b *domain.Bar) {
	var adverse, favorable float64
	if p.dir == domain.Long {
		adverse, favorable = b.Low-p.entry, b.High-p.entry
	} else {
		adverse, favorable = p.entry-b.High, p.entry-b.Low
	}
	p.mae = math.Min(p.mae, adverse)
	p.mfe = math.Max(p.mfe, favorable)
}

// delayExit moves an exit fill delay bars later. Intrabar exits fill at the
// delayed bar's open, close exits at its close. Fills never pass the session's
// last bar.
func delayExit(ev exitEvent, bars []*domain.Bar, delay int) exitEvent {
	if delay <= 0 {
		return ev
	}
	last := len(bars) - 1
	k := ev.idx + delay
	if k > last {
		b := bars[last]
		ev.idx, ev.price, ev.timeMs = last, b.Close, b.CloseTimeMs()
		return ev
	}
	b := bars[k]
	ev.idx = k
	if ev.atClose {
		ev.price, ev.timeMs = b.Close, b.CloseTimeMs()
	} else {
		ev.price, ev.timeMs = b.Open, b.TimestampMs
	}
	return ev
}
