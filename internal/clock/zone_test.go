package clock

import (
	"testing"
	"time"
)

func TestZone_StartOfDay(t *testing.T) {
	zone := NewZone(time.FixedZone("UTC+7", 7*3600))

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"utc evening is next local day", time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC), "2024-03-11"},
		{"utc morning same local day", time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC), "2024-03-10"},
		{"exactly local midnight", time.Date(2024, 3, 10, 17, 0, 0, 0, time.UTC), "2024-03-11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day := zone.StartOfDay(tt.in)
			if got := day.Format(DayLayout); got != tt.want {
				t.Errorf("StartOfDay() = %s, want %s", got, tt.want)
			}
			if day.Hour() != 0 || day.Minute() != 0 || day.Second() != 0 {
				t.Errorf("StartOfDay() = %v, want local midnight", day)
			}
			if got := zone.DayKey(tt.in); got != tt.want {
				t.Errorf("DayKey() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestZone_AddDaysAcrossDST(t *testing.T) {
	zone, err := LoadZone("America/New_York")
	if err != nil {
		t.Fatalf("LoadZone: %v", err)
	}

	// 2024-03-10 is 23 hours long in New York.
	day, err := zone.ParseDay("2024-03-10")
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	next := zone.AddDays(day, 1)
	if got := next.Format(DayLayout); got != "2024-03-11" {
		t.Errorf("AddDays() = %s, want 2024-03-11", got)
	}
	if next.Hour() != 0 {
		t.Errorf("AddDays() hour = %d, want 0", next.Hour())
	}
	if got := next.Sub(day); got != 23*time.Hour {
		t.Errorf("day length = %v, want 23h", got)
	}
}

func TestZone_ParseDayRejectsGarbage(t *testing.T) {
	zone := NewZone(nil)
	if _, err := zone.ParseDay("10/03/2024"); err == nil {
		t.Error("expected error for non ISO date")
	}
}

func TestZone_MonthRange(t *testing.T) {
	zone := NewZone(time.UTC)
	first, last := zone.MonthRange(2024, time.February)
	if got := first.Format(DayLayout); got != "2024-02-01" {
		t.Errorf("first = %s", got)
	}
	if got := last.Format(DayLayout); got != "2024-02-29" {
		t.Errorf("last = %s", got)
	}

	first, last = zone.MonthRange(2023, time.December)
	if first.Format(DayLayout) != "2023-12-01" || last.Format(DayLayout) != "2023-12-31" {
		t.Errorf("december range = %s..%s", first.Format(DayLayout), last.Format(DayLayout))
	}
}

func TestLoadZone_Unknown(t *testing.T) {
	if _, err := LoadZone("Mars/Olympus_Mons"); err == nil {
		t.Error("expected error for unknown zone")
	}
}
