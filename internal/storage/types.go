package storage

import (
	"fmt"
	"strings"
	"time"
)

// CheckInKind describes what a check-in did to the day's record.
type CheckInKind int

const (
	// CheckInFirst created the day's record.
	CheckInFirst CheckInKind = iota
	// CheckInDebounced repeated an open check-in inside the debounce window; nothing changed.
	CheckInDebounced
	// CheckInReopened replaced the open pointer with a fresh open session.
	CheckInReopened
	// CheckInAdditional started a new session after a closed one.
	CheckInAdditional
)

func (k CheckInKind) String() string {
	switch k {
	case CheckInFirst:
		return "first"
	case CheckInDebounced:
		return "debounced"
	case CheckInReopened:
		return "reopened"
	case CheckInAdditional:
		return "additional"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Session is one check-in/check-out pairing within a day.
type Session struct {
	CheckIn       time.Time  `json:"check_in"`
	CheckOut      *time.Time `json:"check_out,omitempty"`
	DurationHours *float64   `json:"duration_hours,omitempty"`
}

// Closed reports whether the session has a check-out.
func (s Session) Closed() bool {
	return s.CheckOut != nil
}

// Hours returns the closed duration, or zero for an open session.
func (s Session) Hours() float64 {
	if s.DurationHours == nil {
		return 0
	}
	return *s.DurationHours
}

// DailyRecord is the attendance state of one user on one calendar day.
type DailyRecord struct {
	UserID       int64      `json:"user_id"`
	Day          time.Time  `json:"day"`
	FirstCheckIn time.Time  `json:"first_check_in"`
	LastCheckIn  time.Time  `json:"last_check_in"`
	LastCheckOut *time.Time `json:"last_check_out,omitempty"`
	Sessions     []Session  `json:"sessions"`
	TotalHours   float64    `json:"total_hours"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// User is a directory entry for someone who talks to the bot.
type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	Username  string    `json:"username,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName joins first and last name, skipping whichever is empty.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.Join([]string{u.FirstName, u.LastName}, " "))
	if name == "" {
		if u.Username != "" {
			return "@" + u.Username
		}
		return fmt.Sprintf("User %d", u.ID)
	}
	return name
}

// ReminderKey identifies one reminder per user, shift and shift day.
// UserID 0 keys the admin alert for the shift day.
type ReminderKey struct {
	UserID int64
	Shift  string
	Day    string // YYYY-MM-DD of the shift end occurrence
}

func (k ReminderKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Day, k.Shift, k.UserID)
}
