package domain

// BarIntervalMs is the width of one minute bar in milliseconds.
const BarIntervalMs int64 = 60_000

// Bar represents one minute OHLCV bar.
// Corresponds to minute_bars table in ClickHouse.
type Bar struct {
	Instrument  string  // instrument symbol, e.g. "NQ"
	TimestampMs int64   // bar open time (ms, UTC)
	Open        float64 // first traded price
	High        float64 // highest traded price
	Low         float64 // lowest traded price
	Close       float64 // last traded price
	Volume      float64 // traded volume
}

// CloseTimeMs returns the time at which the bar's OHLC becomes known.
func (b *Bar) CloseTimeMs() int64 {
	return b.TimestampMs + BarIntervalMs
}

// Range returns High - Low.
func (b *Bar) Range() float64 {
	return b.High - b.Low
}
