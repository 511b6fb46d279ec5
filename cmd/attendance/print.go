package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/attendance/internal/attendance"
	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/storage"
)

const clockLayout = "15:04:05"

var (
	cyan   = color.New(color.FgCyan, color.Bold)
	green  = color.New(color.FgGreen, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
)

func printBanner(title string) {
	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println(title)
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// printRecords prints one line per daily record.
func printRecords(records []storage.DailyRecord) {
	fmt.Printf("%-12s %-10s %-10s %-8s %s\n", "Day", "First in", "Last out", "Hours", "Sessions")
	for _, r := range records {
		out := "-"
		if r.LastCheckOut != nil {
			out = r.LastCheckOut.Format(clockLayout)
		}
		line := fmt.Sprintf("%-12s %-10s %-10s %-8s %d",
			storage.DayKey(r.Day),
			r.FirstCheckIn.Format(clockLayout),
			out,
			attendance.FormatHours(r.TotalHours),
			len(r.Sessions))
		if r.IsOpen() {
			yellow.Println(line + "  (open)")
		} else {
			fmt.Println(line)
		}
	}
}

// userFailure turns a service error into the user-facing text, keeping the cause.
func userFailure(err error) error {
	red.Println(attendance.UserMessage(err))
	return err
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id: %s", s)
	}
	return id, nil
}

// parseAt parses an RFC 3339 timestamp; empty means now.
func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (expected RFC 3339, e.g. 2024-05-06T09:00:00+02:00): %w", s, err)
	}
	return t, nil
}

// parseDay parses an optional YYYY-MM-DD day in the attendance zone.
func parseDay(zone *clock.Zone, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	day, err := zone.ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected %s): %w", s, clock.DayLayout, err)
	}
	return day, nil
}
