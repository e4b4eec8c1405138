package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
}

// Date is a calendar date that may be missing. The zero value is missing.
type Date struct {
	time.Time
}

// NewDate returns the date for the given year, month and day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses s using the accepted layouts. Empty input yields a missing date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") || strings.EqualFold(s, "NaT") {
		return Date{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t.UTC()}, nil
		}
	}
	return Date{}, eris.Errorf("model: unrecognized date %q", s)
}

// Valid reports whether the date is present.
func (d Date) Valid() bool { return !d.IsZero() }

// DaysSince returns the number of days from other to d, and false when either is missing.
func (d Date) DaysSince(other Date) (float64, bool) {
	if !d.Valid() || !other.Valid() {
		return 0, false
	}
	return d.Sub(other.Time).Hours() / 24, true
}

// YearsSince returns the age in years of other at d, using 365.25-day years.
func (d Date) YearsSince(other Date) (float64, bool) {
	days, ok := d.DaysSince(other)
	if !ok {
		return 0, false
	}
	return days / 365.25, true
}

func (d Date) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return []byte{}, nil
	}
	return []byte(d.Format("2006-01-02")), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) String() string {
	if !d.Valid() {
		return ""
	}
	return d.Format("2006-01-02")
}
