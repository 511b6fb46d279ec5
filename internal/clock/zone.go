package clock

import (
	"fmt"
	"time"
	_ "time/tzdata" // zones must resolve on minimal images
)

// DayLayout is the wire and key format of a calendar day.
const DayLayout = "2006-01-02"

// Zone normalizes timestamps to the configured reference time zone.
type Zone struct {
	loc *time.Location
}

// LoadZone resolves an IANA zone name. An empty name means UTC.
func LoadZone(name string) (*Zone, error) {
	if name == "" || name == "UTC" {
		return &Zone{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return &Zone{loc: loc}, nil
}

// NewZone wraps an already loaded location.
func NewZone(loc *time.Location) *Zone {
	if loc == nil {
		loc = time.UTC
	}
	return &Zone{loc: loc}
}

// Location returns the underlying location.
func (z *Zone) Location() *time.Location {
	return z.loc
}

// In converts t to the zone.
func (z *Zone) In(t time.Time) time.Time {
	return t.In(z.loc)
}

// StartOfDay returns local midnight of the calendar day containing t.
func (z *Zone) StartOfDay(t time.Time) time.Time {
	local := t.In(z.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.loc)
}

// AddDays moves a day boundary by n calendar days. DST-safe, unlike Add(24h).
func (z *Zone) AddDays(day time.Time, n int) time.Time {
	local := day.In(z.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+n, 0, 0, 0, 0, z.loc)
}

// At returns the instant of hour:minute on the given calendar day.
func (z *Zone) At(day time.Time, hour, minute int) time.Time {
	local := day.In(z.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, z.loc)
}

// DayKey formats the calendar day of t as YYYY-MM-DD.
func (z *Zone) DayKey(t time.Time) string {
	return t.In(z.loc).Format(DayLayout)
}

// ParseDay parses YYYY-MM-DD as local midnight in the zone.
func (z *Zone) ParseDay(s string) (time.Time, error) {
	day, err := time.ParseInLocation(DayLayout, s, z.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return day, nil
}

// MonthRange returns the first and last calendar day of the given month.
func (z *Zone) MonthRange(year int, month time.Month) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, z.loc)
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, z.loc)
	return first, last
}
