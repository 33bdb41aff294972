package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-lab/internal/domain"
)

var testWindow = domain.TimeWindow{
	SessionTZ:          "America/New_York",
	AnchorMinute:       570,
	RangeMinutes:       5,
	EntryCutoffMinutes: 30,
	SessionMinutes:     60,
}

// sessionBars returns minutes of bars starting at 09:30 New York on the given
// date; bar i has low base+i and high base+i+2.
func sessionBars(t *testing.T, date string, minutes int, base float64) []*domain.Bar {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	require.NoError(t, err)
	anchor := time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, loc).UnixMilli()

	bars := make([]*domain.Bar, minutes)
	for i := range bars {
		p := base + float64(i)
		bars[i] = &domain.Bar{
			Instrument:  "ES",
			TimestampMs: anchor + int64(i)*domain.BarIntervalMs,
			Open:        p + 1,
			High:        p + 2,
			Low:         p,
			Close:       p + 1,
		}
	}
	return bars
}

func TestBuild_OpeningRange(t *testing.T) {
	bars := sessionBars(t, "2023-03-14", 60, 100)

	feats, err := Build("ES", bars, testWindow)
	require.NoError(t, err)
	require.Len(t, feats, 1)

	f := feats[0]
	assert.Equal(t, "2023-03-14", f.SessionDate)
	assert.Equal(t, 100.0, f.ORLow)
	assert.Equal(t, 106.0, f.ORHigh) // bars 0..4, high of bar 4 = 104+2
	assert.Equal(t, f.AnchorMs+5*domain.BarIntervalMs, f.ORFormedAtMs)
	assert.Equal(t, f.AnchorMs+60*domain.BarIntervalMs, f.SessionEndMs)
	assert.Zero(t, f.ATR, "first session has no history")
	assert.Equal(t, 60, f.BarCount)
}

func TestBuild_PriorSessionValues(t *testing.T) {
	var bars []*domain.Bar
	bars = append(bars, sessionBars(t, "2023-03-13", 60, 100)...)
	bars = append(bars, sessionBars(t, "2023-03-14", 60, 200)...)

	feats, err := Build("ES", bars, testWindow)
	require.NoError(t, err)
	require.Len(t, feats, 2)

	second := feats[1]
	// First session: low 100, high 59+100+2 = 161
	assert.Equal(t, 61.0, second.PrevSessionRange)
	assert.Equal(t, 61.0, second.ATR)
	assert.Equal(t, second.AnchorMs, second.ATRAvailableAtMs)
	assert.Equal(t, second.ORFormedAtMs, second.LatestAvailabilityMs())
}

func TestBuild_CausalUnderTruncation(t *testing.T) {
	var bars []*domain.Bar
	bars = append(bars, sessionBars(t, "2023-03-13", 60, 100)...)
	bars = append(bars, sessionBars(t, "2023-03-14", 60, 200)...)

	full, err := Build("ES", bars, testWindow)
	require.NoError(t, err)

	// Drop every bar that closes after the second session's OR formation.
	cut := full[1].ORFormedAtMs
	var truncated []*domain.Bar
	for _, b := range bars {
		if b.CloseTimeMs() <= cut {
			truncated = append(truncated, b)
		}
	}

	part, err := Build("ES", truncated, testWindow)
	require.NoError(t, err)
	require.Len(t, part, 2)

	assert.Equal(t, full[1].ORHigh, part[1].ORHigh)
	assert.Equal(t, full[1].ORLow, part[1].ORLow)
	assert.Equal(t, full[1].ATR, part[1].ATR)
	assert.Equal(t, full[1].PrevSessionRange, part[1].PrevSessionRange)
}

func TestBuild_IgnoresBarsOutsideSession(t *testing.T) {
	bars := sessionBars(t, "2023-03-14", 60, 100)
	pre := &domain.Bar{
		Instrument:  "ES",
		TimestampMs: bars[0].TimestampMs - domain.BarIntervalMs,
		High:        1000,
		Low:         1,
	}

	feats, err := Build("ES", append([]*domain.Bar{pre}, bars...), testWindow)
	require.NoError(t, err)
	require.Len(t, feats, 1)
	assert.Equal(t, 106.0, feats[0].ORHigh)
	assert.Equal(t, 100.0, feats[0].ORLow)
}

func TestBuild_NoBars(t *testing.T) {
	_, err := Build("ES", nil, testWindow)
	assert.ErrorIs(t, err, ErrNoBars)
}

func TestAttach_MatchesStoredFeatures(t *testing.T) {
	var bars []*domain.Bar
	bars = append(bars, sessionBars(t, "2023-03-13", 60, 100)...)
	bars = append(bars, sessionBars(t, "2023-03-14", 60, 200)...)

	built, err := Split("ES", bars, testWindow)
	require.NoError(t, err)

	feats := []*domain.SessionFeatures{built[1].Features, built[0].Features}
	attached := Attach(bars, feats)
	require.Len(t, attached, 2)
	assert.Equal(t, "2023-03-13", attached[0].Features.SessionDate)
	assert.Len(t, attached[0].Bars, 60)
	assert.Len(t, attached[1].Bars, 60)
}
