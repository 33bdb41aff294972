package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-lab/internal/domain"
	"edge-lab/internal/features"
	"edge-lab/internal/fixtures"
	"edge-lab/internal/idhash"
)

var testWindow = domain.TimeWindow{
	SessionTZ:          "America/New_York",
	AnchorMinute:       570,
	RangeMinutes:       5,
	EntryCutoffMinutes: 30,
	SessionMinutes:     60,
}

type ohlc [4]float64

// sessionWith builds one session on 2023-03-14: an opening range of 95..105
// (midpoint 100), the given post-range bars, then flat bars at the last close.
func sessionWith(t *testing.T, post ...ohlc) []features.Session {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	anchor := time.Date(2023, 3, 14, 9, 30, 0, 0, loc).UnixMilli()

	var bars []*domain.Bar
	add := func(o ohlc) {
		bars = append(bars, &domain.Bar{
			Instrument:  "TEST",
			TimestampMs: anchor + int64(len(bars))*domain.BarIntervalMs,
			Open:        o[0],
			High:        o[1],
			Low:         o[2],
			Close:       o[3],
		})
	}
	for i := 0; i < 5; i++ {
		add(ohlc{100, 105, 95, 100})
	}
	for _, o := range post {
		add(o)
	}
	last := bars[len(bars)-1].Close
	for len(bars) < 60 {
		add(ohlc{last, last, last, last})
	}

	sessions, err := features.Split("TEST", bars, testWindow)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	return sessions
}

func testSpec(entry domain.EntryRule, exit domain.ExitRule, risk domain.RiskModel) *domain.CandidateSpec {
	return idhash.Seal(&domain.CandidateSpec{
		Instrument: "TEST",
		Window:     testWindow,
		Entry:      entry,
		Exit:       exit,
		Risk:       risk,
	})
}

func closeConfirm() domain.EntryRule { return domain.CloseConfirmEntry{Confirmations: 1} }

// Signal bar: closes at 106 above the range high; long, risk 6, stop 100.
var longSignal = ohlc{100, 107, 99, 106}

func single(t *testing.T, res *Result) *domain.TradeRecord {
	t.Helper()
	require.Len(t, res.Trades, 1)
	return res.Trades[0]
}

func TestSimulate_RegressionFixture(t *testing.T) {
	spec := fixtures.RegressionCandidate()
	sessions, err := features.Split(fixtures.RegressionInstrument, fixtures.RegressionBars(), spec.Window)
	require.NoError(t, err)

	res, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)

	assert.Equal(t, fixtures.RegressionSessions, res.Summary.TradeCount)
	assert.InDelta(t, 0.561, res.Summary.WinRate, 0.001)
	assert.InDelta(t, 0.403, res.Summary.AvgR, 0.02)
}

func TestSimulate_Deterministic(t *testing.T) {
	spec := fixtures.RegressionCandidate()
	bars := fixtures.RegressionBars()

	run := func() *Result {
		sessions, err := features.Split(fixtures.RegressionInstrument, bars, spec.Window)
		require.NoError(t, err)
		res, err := Simulate(spec, sessions, Options{})
		require.NoError(t, err)
		return res
	}

	first, second := run(), run()
	require.Equal(t, len(first.Trades), len(second.Trades))
	for i := range first.Trades {
		assert.Equal(t, *first.Trades[i], *second.Trades[i])
	}
	assert.Equal(t, *first.Summary, *second.Summary)
}

func TestSimulate_DecisionsUseOnlyPastBars(t *testing.T) {
	spec := fixtures.RegressionCandidate()
	bars := fixtures.RegressionBars()
	sessions, err := features.Split(fixtures.RegressionInstrument, bars, spec.Window)
	require.NoError(t, err)

	full, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)

	for _, tr := range full.Trades[:25] {
		assert.LessOrEqual(t, tr.FeaturesAsOfMs, tr.DecisionTimeMs)

		// Remove every bar not closed by the decision time.
		var visible []*domain.Bar
		for _, b := range bars {
			if b.CloseTimeMs() <= tr.DecisionTimeMs {
				visible = append(visible, b)
			}
		}
		truncated, err := features.Split(fixtures.RegressionInstrument, visible, spec.Window)
		require.NoError(t, err)

		res, err := Simulate(spec, truncated, Options{StartDate: tr.SessionDate, EndDate: tr.SessionDate})
		require.NoError(t, err)
		got := single(t, res)

		assert.Equal(t, tr.Direction, got.Direction)
		assert.Equal(t, tr.DecisionTimeMs, got.DecisionTimeMs)
		assert.Equal(t, tr.SignalPrice, got.SignalPrice)
		assert.Equal(t, tr.StopPrice, got.StopPrice)
		assert.Equal(t, *tr.TargetPrice, *got.TargetPrice)
	}
}

func TestSimulate_TieBreak(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 1}, domain.RangeMidpointStop{})
	// Next bar spans both the stop (100) and the target (112).
	sessions := sessionWith(t, longSignal, ohlc{106, 113, 99, 108})

	stopFirst, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)
	tr := single(t, stopFirst)
	assert.Equal(t, domain.ExitReasonStop, tr.ExitReason)
	assert.InDelta(t, -1.0, tr.RMultiple, 1e-9)

	targetFirst, err := Simulate(spec, sessions, Options{TieBreak: TargetFirst})
	require.NoError(t, err)
	tr = single(t, targetFirst)
	assert.Equal(t, domain.ExitReasonTarget, tr.ExitReason)
	assert.InDelta(t, 1.0, tr.RMultiple, 1e-9)
}

func TestSimulate_GapThroughStopFillsAtOpen(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 1}, domain.RangeMidpointStop{})
	sessions := sessionWith(t, longSignal, ohlc{98, 99, 97, 98})

	res, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, domain.ExitReasonStop, tr.ExitReason)
	assert.Equal(t, 98.0, tr.ExitPrice)
	assert.InDelta(t, -8.0/6.0, tr.RMultiple, 1e-9)
}

func TestSimulate_GapThroughTargetFillsAtTarget(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 1}, domain.RangeMidpointStop{})
	sessions := sessionWith(t, longSignal, ohlc{115, 116, 114, 115})

	res, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, domain.ExitReasonTarget, tr.ExitReason)
	assert.Equal(t, 112.0, tr.ExitPrice)
}

func TestSimulate_TrailingStop(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.TrailingExit{TrailR: 1}, domain.RangeMidpointStop{})
	sessions := sessionWith(t, longSignal,
		ohlc{106, 110, 105, 110}, // best close 110 -> stop 104
		ohlc{110, 111, 103, 105}, // trades through 104
	)

	res, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, domain.ExitReasonTrailingStop, tr.ExitReason)
	assert.Equal(t, 104.0, tr.ExitPrice)
	assert.Nil(t, tr.TargetPrice)
	assert.InDelta(t, -2.0/6.0, tr.RMultiple, 1e-9)
}

func TestSimulate_TimeExit(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.TimeExit{HoldBars: 2}, domain.RangeMidpointStop{})
	sessions := sessionWith(t, longSignal, ohlc{106, 107, 105, 107}, ohlc{107, 108, 106, 108}, ohlc{108, 120, 108, 120})

	res, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, domain.ExitReasonTimeExit, tr.ExitReason)
	assert.Equal(t, 108.0, tr.ExitPrice)
	assert.InDelta(t, 2.0/6.0, tr.RMultiple, 1e-9)
}

func TestSimulate_FlatAtSessionEnd(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 3}, domain.RangeMidpointStop{})
	sessions := sessionWith(t, longSignal)

	res, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, domain.ExitReasonTimeExit, tr.ExitReason)
	assert.Equal(t, sessions[0].Features.SessionEndMs, tr.ExitTimeMs)
}

func TestSimulate_TickCost(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 1}, domain.RangeMidpointStop{})
	sessions := sessionWith(t, longSignal, ohlc{106, 113, 105, 112})

	res, err := Simulate(spec, sessions, Options{Cost: TickCost{TicksPerSide: 1, TickSize: 0.25}})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, 0.5, tr.CostPoints)
	assert.InDelta(t, (6.0-0.5)/6.0, tr.RMultiple, 1e-9)
}

func TestSimulate_LimitRetestFill(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 1}, domain.RangeMidpointStop{})
	fill := LimitRetestFill{PenetrationTicks: 1, TickSize: 0.25}

	// Next bar never trades back through 105.75: missed.
	missed := sessionWith(t, longSignal, ohlc{106, 113, 106, 112})
	res, err := Simulate(spec, missed, Options{Fill: fill})
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1, res.Skipped[SkipNoFill])

	// Next bar retests to 105.5: filled at the limit.
	filled := sessionWith(t, longSignal, ohlc{106, 113, 105.5, 112})
	res, err = Simulate(spec, filled, Options{Fill: fill})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, 106.0, tr.EntryPrice)
	assert.Equal(t, domain.ExitReasonTarget, tr.ExitReason)
}

func TestSimulate_DelayedEntryAndExit(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 1}, domain.RangeMidpointStop{})
	sessions := sessionWith(t, longSignal, ohlc{107, 108, 106, 107}, ohlc{107, 113, 106, 108})

	res, err := Simulate(spec, sessions, Options{Fill: DelayedFill{Bars: 1}, ExitDelayBars: 1})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, 107.0, tr.EntryPrice, "fills at next bar open")
	// Target touched on the second bar; exit slips to the following open (108).
	assert.Equal(t, domain.ExitReasonTarget, tr.ExitReason)
	assert.Equal(t, 108.0, tr.ExitPrice)
	assert.InDelta(t, 1.0/6.0, tr.RMultiple, 1e-9)
}

func TestSimulate_BreakoutEntries(t *testing.T) {
	spec := testSpec(domain.BreakoutEntry{}, domain.FixedMultipleExit{Target: 1}, domain.RangeOppositeStop{})

	// Gap above the range: fills at the open.
	res, err := Simulate(spec, sessionWith(t, ohlc{107, 108, 106, 107}), Options{})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, domain.Long, tr.Direction)
	assert.Equal(t, 107.0, tr.EntryPrice)
	assert.Equal(t, 95.0, tr.StopPrice)

	// One bar through both sides is skipped.
	res, err = Simulate(spec, sessionWith(t, ohlc{100, 106, 94, 100}), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1, res.Skipped[SkipAmbiguous])
}

func TestSimulate_FadeEntry(t *testing.T) {
	spec := testSpec(domain.FadeEntry{Confirmations: 1}, domain.FixedMultipleExit{Target: 1}, domain.RangeOppositeStop{})
	// Pierces 105 then closes back inside at 104: short, stop at 105.
	sessions := sessionWith(t, ohlc{100, 106, 99, 104}, ohlc{104, 104.5, 102, 102.5})

	res, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)
	tr := single(t, res)
	assert.Equal(t, domain.Short, tr.Direction)
	assert.Equal(t, 104.0, tr.EntryPrice)
	assert.Equal(t, 105.0, tr.StopPrice)
	assert.Equal(t, 103.0, *tr.TargetPrice)
	assert.Equal(t, domain.ExitReasonTarget, tr.ExitReason)
}

func TestSimulate_FilterSkipsSession(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 1}, domain.RangeMidpointStop{})
	spec.Filters = domain.FilterSet{RangeATRMax: 0.5}
	idhash.Seal(spec)

	sessions := sessionWith(t, longSignal)
	sessions[0].Features.ATR = 2 // width 10 / ATR 2 = 5 > 0.5

	res, err := Simulate(spec, sessions, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1, res.Skipped[SkipFilter])
}

func TestSimulate_RefusesFeatureNotYetAvailable(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 1}, domain.ATRStop{Multiple: 1})
	sessions := sessionWith(t, longSignal)
	f := sessions[0].Features
	f.ATR = 3
	f.ATRAvailableAtMs = f.SessionEndMs

	_, err := Simulate(spec, sessions, Options{})
	assert.ErrorIs(t, err, ErrLookahead)
}

func TestSimulate_DataUnavailable(t *testing.T) {
	spec := testSpec(closeConfirm(), domain.FixedMultipleExit{Target: 1}, domain.RangeMidpointStop{})
	sessions := sessionWith(t, longSignal)

	_, err := Simulate(spec, sessions, Options{StartDate: "2024-01-01", EndDate: "2024-12-31"})
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestSimulate_InvalidSpec(t *testing.T) {
	spec := testSpec(domain.CloseConfirmEntry{Confirmations: 0}, domain.FixedMultipleExit{Target: 1}, domain.RangeMidpointStop{})
	_, err := Simulate(spec, sessionWith(t, longSignal), Options{})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}
