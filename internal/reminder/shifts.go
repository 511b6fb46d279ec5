package reminder

import (
	"fmt"
	"time"

	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/config"
)

// Shift is a named shift end time of day in the reference zone.
type Shift struct {
	Name   string
	Hour   int
	Minute int
}

// ParseShift parses an "HH:MM" end time.
func ParseShift(name, end string) (Shift, error) {
	parsed, err := time.Parse("15:04", end)
	if err != nil {
		return Shift{}, fmt.Errorf("shift %q: invalid end time %q: %w", name, end, err)
	}
	return Shift{Name: name, Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// Label is the human-readable shift name used in messages, e.g. "night shift (3:00 AM)".
func (s Shift) Label() string {
	t := time.Date(2000, 1, 1, s.Hour, s.Minute, 0, 0, time.UTC)
	return fmt.Sprintf("%s shift (%s)", s.Name, t.Format("3:04 PM"))
}

// End returns the shift end instant on the given calendar day.
func (s Shift) End(zone *clock.Zone, day time.Time) time.Time {
	return zone.At(day, s.Hour, s.Minute)
}

// Occurrence is one concrete end of a shift.
type Occurrence struct {
	Shift Shift
	End   time.Time
}

// Day is the dedup day of the occurrence (YYYY-MM-DD of the end instant).
func (o Occurrence) Day(zone *clock.Zone) string {
	return zone.DayKey(o.End)
}

// Ending returns every shift occurrence with end <= now < end+window. Both
// today's and yesterday's ends are considered so a window can cross midnight.
func Ending(shifts []Shift, zone *clock.Zone, now time.Time, window time.Duration) []Occurrence {
	today := zone.StartOfDay(now)
	days := []time.Time{today, zone.AddDays(today, -1)}

	var out []Occurrence
	for _, s := range shifts {
		for _, day := range days {
			end := s.End(zone, day)
			if !now.Before(end) && now.Before(end.Add(window)) {
				out = append(out, Occurrence{Shift: s, End: end})
				break
			}
		}
	}
	return out
}

// Config is the parsed engine configuration.
type Config struct {
	Shifts         []Shift
	Interval       time.Duration
	Window         time.Duration
	MarkerTTL      time.Duration
	DedupCacheSize int
}

// FromConfig parses the reminder section of the application config.
func FromConfig(cfg config.ReminderConfig) (Config, error) {
	out := Config{DedupCacheSize: cfg.DedupCacheSize}

	var err error
	if out.Interval, err = time.ParseDuration(cfg.Interval); err != nil {
		return Config{}, fmt.Errorf("reminders.interval: %w", err)
	}
	if out.Window, err = time.ParseDuration(cfg.Window); err != nil {
		return Config{}, fmt.Errorf("reminders.window: %w", err)
	}
	if out.MarkerTTL, err = time.ParseDuration(cfg.MarkerTTL); err != nil {
		return Config{}, fmt.Errorf("reminders.marker_ttl: %w", err)
	}

	for _, sc := range cfg.Shifts {
		s, err := ParseShift(sc.Name, sc.End)
		if err != nil {
			return Config{}, err
		}
		out.Shifts = append(out.Shifts, s)
	}

	return out, nil
}
