package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // session windows are defined in IANA zones
)

// ErrInvalidSpec is returned when a candidate specification is malformed.
var ErrInvalidSpec = errors.New("invalid candidate spec")

// TimeWindow defines the session and opening-range window a candidate trades.
type TimeWindow struct {
	SessionTZ          string // IANA zone the anchor is expressed in
	AnchorMinute       int    // minutes after local midnight (570 = 09:30)
	RangeMinutes       int    // opening-range length
	EntryCutoffMinutes int    // no new entries at or after anchor + cutoff
	SessionMinutes     int    // positions are flat at anchor + session
}

// Key returns a stable identifier used to key precomputed session features.
func (w TimeWindow) Key() string {
	return fmt.Sprintf("%s@%02d%02d/or%d/cut%d/sess%d",
		w.SessionTZ, w.AnchorMinute/60, w.AnchorMinute%60,
		w.RangeMinutes, w.EntryCutoffMinutes, w.SessionMinutes)
}

// Location loads the window's time zone.
func (w TimeWindow) Location() (*time.Location, error) {
	return time.LoadLocation(w.SessionTZ)
}

// Validate checks window bounds.
func (w TimeWindow) Validate() error {
	if _, err := w.Location(); err != nil {
		return fmt.Errorf("%w: session tz %q: %v", ErrInvalidSpec, w.SessionTZ, err)
	}
	switch {
	case w.AnchorMinute < 0 || w.AnchorMinute >= 24*60:
		return fmt.Errorf("%w: anchor minute %d out of range", ErrInvalidSpec, w.AnchorMinute)
	case w.RangeMinutes <= 0:
		return fmt.Errorf("%w: range minutes %d <= 0", ErrInvalidSpec, w.RangeMinutes)
	case w.EntryCutoffMinutes <= w.RangeMinutes:
		return fmt.Errorf("%w: entry cutoff %d must exceed range %d", ErrInvalidSpec, w.EntryCutoffMinutes, w.RangeMinutes)
	case w.SessionMinutes < w.EntryCutoffMinutes:
		return fmt.Errorf("%w: session %d shorter than entry cutoff %d", ErrInvalidSpec, w.SessionMinutes, w.EntryCutoffMinutes)
	case w.AnchorMinute+w.SessionMinutes > 24*60:
		return fmt.Errorf("%w: session crosses local midnight", ErrInvalidSpec)
	}
	return nil
}

func (w TimeWindow) canonical() string {
	return w.Key()
}

// CandidateSpec is an immutable edge hypothesis.
// Corresponds to candidates table in PostgreSQL.
type CandidateSpec struct {
	ParamHash   string // PRIMARY KEY, SHA256 of Canonical(true)
	Instrument  string
	Window      TimeWindow
	Entry       EntryRule
	Exit        ExitRule
	Risk        RiskModel
	Filters     FilterSet
	Revision    int   // attempt number; a retry of the same rules bumps it
	CreatedAtMs int64 // record creation timestamp (ms)
}

// ID returns the candidate identifier, which is the parameter hash.
func (c *CandidateSpec) ID() string {
	return c.ParamHash
}

// Validate checks every field of the spec.
func (c *CandidateSpec) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil spec", ErrInvalidSpec)
	}
	if strings.TrimSpace(c.Instrument) == "" {
		return fmt.Errorf("%w: empty instrument", ErrInvalidSpec)
	}
	if c.Revision < 0 {
		return fmt.Errorf("%w: negative revision", ErrInvalidSpec)
	}
	if err := c.Window.Validate(); err != nil {
		return err
	}
	if c.Entry == nil || c.Exit == nil || c.Risk == nil {
		return fmt.Errorf("%w: entry, exit and risk rules are required", ErrInvalidSpec)
	}
	for _, err := range []error{c.Entry.Validate(), c.Exit.Validate(), c.Risk.Validate(), c.Filters.Validate()} {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
	}
	return nil
}

// Canonical renders every rule-defining field in a fixed order. The revision
// is included only when withRevision is set; without it the string identifies
// the rule lineage shared by all revisions.
func (c *CandidateSpec) Canonical(withRevision bool) string {
	parts := []string{
		"inst=" + c.Instrument,
		"win=" + c.Window.canonical(),
		"entry=" + c.Entry.canonical(),
		"exit=" + c.Exit.canonical(),
		"risk=" + c.Risk.canonical(),
		"filters=" + c.Filters.canonical(),
	}
	if withRevision {
		parts = append(parts, fmt.Sprintf("rev=%d", c.Revision))
	}
	return strings.Join(parts, "|")
}

// WithRevision returns a copy of the spec carrying the given revision and no
// hash; the caller is expected to hash it.
func (c *CandidateSpec) WithRevision(rev int) *CandidateSpec {
	next := *c
	next.Revision = rev
	next.ParamHash = ""
	next.CreatedAtMs = 0
	return &next
}
