package attendance

import (
	"time"

	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/storage"
)

// ReportRow is one line of the attendance export.
type ReportRow struct {
	Day          string     `json:"day"`
	UserID       int64      `json:"user_id"`
	Name         string     `json:"name"`
	FirstCheckIn time.Time  `json:"first_check_in"`
	LastCheckOut *time.Time `json:"last_check_out,omitempty"`
	TotalHours   float64    `json:"total_hours"`
	SessionCount int        `json:"session_count"`
}

// BuildReport turns records (oldest first) into export rows. name resolves
// a user id to a display name.
func BuildReport(records []storage.DailyRecord, name func(int64) string) []ReportRow {
	rows := make([]ReportRow, 0, len(records))
	for _, r := range records {
		row := ReportRow{
			Day:          r.Day.Format(clock.DayLayout),
			UserID:       r.UserID,
			Name:         name(r.UserID),
			FirstCheckIn: r.FirstCheckIn,
			TotalHours:   storage.RoundHours(r.TotalHours),
			SessionCount: len(r.Sessions),
		}
		if r.LastCheckOut != nil {
			out := *r.LastCheckOut
			row.LastCheckOut = &out
		}
		rows = append(rows, row)
	}
	return rows
}
