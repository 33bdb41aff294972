package marketdata

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"edge-lab/internal/domain"
)

// SyntheticOptions describes a generated bar series.
type SyntheticOptions struct {
	Instrument string
	Window     domain.TimeWindow // bars cover [anchor, anchor + session) of each weekday
	StartDate  string            // first calendar day, YYYY-MM-DD
	Days       int               // weekday sessions to generate
	StartPrice float64
	TickSize   float64
	Volatility float64 // per-bar standard deviation in ticks; 0 = 4
	Seed       int64
}

// Synthetic generates a deterministic random-walk minute series. Each session
// draws its own volatility multiplier so that range regimes vary. Prices are
// snapped to the tick grid; the same options always yield the same bars.
func Synthetic(opts SyntheticOptions) ([]*domain.Bar, error) {
	if err := opts.Window.Validate(); err != nil {
		return nil, err
	}
	if opts.Days <= 0 || opts.StartPrice <= 0 || opts.TickSize <= 0 {
		return nil, fmt.Errorf("synthetic: days, start price and tick size must be > 0")
	}
	vol := opts.Volatility
	if vol <= 0 {
		vol = 4
	}
	loc, err := opts.Window.Location()
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(time.DateOnly, opts.StartDate, loc)
	if err != nil {
		return nil, fmt.Errorf("synthetic: start date: %w", err)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	tick := decimal.NewFromFloat(opts.TickSize)
	snap := func(v float64) float64 {
		f, _ := decimal.NewFromFloat(v).Div(tick).Round(0).Mul(tick).Float64()
		return f
	}

	price := snap(opts.StartPrice)
	bars := make([]*domain.Bar, 0, opts.Days*opts.Window.SessionMinutes)
	for sessions := 0; sessions < opts.Days; day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		sessions++

		// Overnight gap, then a session volatility between 0.5x and 2x.
		price = snap(math.Max(price+rng.NormFloat64()*vol*3*opts.TickSize, opts.TickSize))
		sessionVol := vol * (0.5 + 1.5*rng.Float64())
		anchor := time.Date(day.Year(), day.Month(), day.Day(), 0, opts.Window.AnchorMinute, 0, 0, loc).UnixMilli()

		for m := 0; m < opts.Window.SessionMinutes; m++ {
			open := price
			last := snap(math.Max(open+rng.NormFloat64()*sessionVol*opts.TickSize, opts.TickSize))
			wickUp := math.Abs(rng.NormFloat64()) * sessionVol * opts.TickSize / 2
			wickDown := math.Abs(rng.NormFloat64()) * sessionVol * opts.TickSize / 2
			bars = append(bars, &domain.Bar{
				Instrument:  opts.Instrument,
				TimestampMs: anchor + int64(m)*domain.BarIntervalMs,
				Open:        open,
				High:        snap(max(open, last) + wickUp),
				Low:         max(snap(min(open, last)-wickDown), opts.TickSize),
				Close:       last,
				Volume:      float64(100 + rng.Intn(900)),
			})
			price = last
		}
	}
	return bars, nil
}
