package domain

// SessionFeatures holds precomputed per-session reference values for one
// instrument and one time window. Every value carries the time at which it
// becomes known; a simulator may only use a value at or after that time.
// Corresponds to session_features table in ClickHouse.
type SessionFeatures struct {
	Instrument  string // instrument symbol
	WindowKey   string // TimeWindow.Key()
	SessionDate string // YYYY-MM-DD in the window's time zone

	AnchorMs     int64 // session anchor (window start, ms UTC)
	SessionEndMs int64 // forced flat time (ms UTC)

	// Opening range, known once the range window has closed.
	ORHigh       float64
	ORLow        float64
	ORFormedAtMs int64

	// Average true range over completed prior sessions, known at the anchor.
	ATR              float64
	ATRAvailableAtMs int64

	// Previous session high-low range, known at the anchor.
	PrevSessionRange float64
	PrevRangeAvailMs int64
	BarCount         int // bars observed inside the session
}

// ORWidth returns the opening-range width.
func (f *SessionFeatures) ORWidth() float64 {
	return f.ORHigh - f.ORLow
}

// ORMid returns the opening-range midpoint.
func (f *SessionFeatures) ORMid() float64 {
	return (f.ORHigh + f.ORLow) / 2
}

// LatestAvailabilityMs returns the latest availability time among all
// feature values, i.e. the earliest time at which the full set may be used.
func (f *SessionFeatures) LatestAvailabilityMs() int64 {
	latest := f.ORFormedAtMs
	if f.ATRAvailableAtMs > latest {
		latest = f.ATRAvailableAtMs
	}
	if f.PrevRangeAvailMs > latest {
		latest = f.PrevRangeAvailMs
	}
	return latest
}
