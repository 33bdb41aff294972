// Package marketdata reads minute bars from CSV and generates deterministic
// synthetic bar series.
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"edge-lab/internal/domain"
)

// ErrMalformedBar is returned for a CSV row that is not a valid bar.
var ErrMalformedBar = errors.New("malformed bar")

// ReadBars parses rows of
//
//	timestamp,open,high,low,close,volume
//
// where timestamp is the bar open as RFC3339 or unix milliseconds.
// A header row ("timestamp,...") is allowed and empty rows are skipped.
// Bars are returned in file order.
func ReadBars(r io.Reader, instrument string) ([]*domain.Bar, error) {
	if strings.TrimSpace(instrument) == "" {
		return nil, fmt.Errorf("%w: empty instrument", ErrMalformedBar)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []*domain.Bar
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "timestamp") {
			continue
		}

		b, err := parseBarRow(row, instrument)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseBarRow(row []string, instrument string) (*domain.Bar, error) {
	if len(row) < 5 {
		return nil, fmt.Errorf("%w: %d fields", ErrMalformedBar, len(row))
	}

	ts, err := parseTimestamp(strings.TrimSpace(row[0]))
	if err != nil {
		return nil, err
	}

	var px [5]float64
	for i := 1; i < len(row) && i <= 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q", ErrMalformedBar, i+1, row[i])
		}
		px[i-1] = v
	}

	b := &domain.Bar{
		Instrument:  instrument,
		TimestampMs: ts,
		Open:        px[0],
		High:        px[1],
		Low:         px[2],
		Close:       px[3],
		Volume:      px[4],
	}
	if err := checkBar(b); err != nil {
		return nil, err
	}
	return b, nil
}

func parseTimestamp(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q", ErrMalformedBar, s)
	}
	return t.UnixMilli(), nil
}

func checkBar(b *domain.Bar) error {
	switch {
	case b.Low <= 0:
		return fmt.Errorf("%w: non-positive low %v", ErrMalformedBar, b.Low)
	case b.High < max(b.Open, b.Close) || b.Low > min(b.Open, b.Close):
		return fmt.Errorf("%w: OHLC %v/%v/%v/%v inconsistent", ErrMalformedBar, b.Open, b.High, b.Low, b.Close)
	case b.Volume < 0:
		return fmt.Errorf("%w: negative volume", ErrMalformedBar)
	}
	return nil
}
