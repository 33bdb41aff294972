package fixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegressionDates_Weekdays(t *testing.T) {
	dates := RegressionDates()
	require.Len(t, dates, RegressionSessions)
	assert.Equal(t, RegressionStartDate, dates[0].Format("2006-01-02"))
	for _, d := range dates {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestIsWinSession_Count(t *testing.T) {
	wins := 0
	for i := 0; i < RegressionSessions; i++ {
		if IsWinSession(i) {
			wins++
		}
	}
	assert.Equal(t, RegressionWins, wins)
}

func TestRegressionBars_Shape(t *testing.T) {
	bars := RegressionBars()
	require.Len(t, bars, RegressionSessions*sessionBars)

	for i := 1; i < len(bars); i++ {
		require.Less(t, bars[i-1].TimestampMs, bars[i].TimestampMs)
	}
	for _, b := range bars {
		require.GreaterOrEqual(t, b.High, b.Low)
		require.GreaterOrEqual(t, b.High, b.Open)
		require.GreaterOrEqual(t, b.High, b.Close)
		require.LessOrEqual(t, b.Low, b.Open)
		require.LessOrEqual(t, b.Low, b.Close)
	}
}

func TestRegressionCandidate_Valid(t *testing.T) {
	c := RegressionCandidate()
	require.NoError(t, c.Validate())
	assert.Len(t, c.ParamHash, 64)
}
