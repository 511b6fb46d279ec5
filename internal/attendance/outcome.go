package attendance

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/attendance/internal/storage"
)

const timeLayout = "15:04:05"

// CheckInOutcome is what a check-in did to the day's record.
type CheckInOutcome int

const (
	// OutcomeFirstCheckIn created the day's record.
	OutcomeFirstCheckIn CheckInOutcome = iota
	// OutcomeAlreadyOpen was a repeat inside the debounce window; nothing changed.
	OutcomeAlreadyOpen
	// OutcomeOpenSessionUpdated opened a fresh session while one was still open.
	OutcomeOpenSessionUpdated
	// OutcomeAdditionalSession opened a new session after a closed one.
	OutcomeAdditionalSession
)

func (o CheckInOutcome) String() string {
	switch o {
	case OutcomeFirstCheckIn:
		return "first_check_in"
	case OutcomeAlreadyOpen:
		return "already_open"
	case OutcomeOpenSessionUpdated:
		return "open_session_updated"
	case OutcomeAdditionalSession:
		return "additional_session"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Changed reports whether the outcome wrote anything.
func (o CheckInOutcome) Changed() bool {
	return o != OutcomeAlreadyOpen
}

func outcomeFor(kind storage.CheckInKind) CheckInOutcome {
	switch kind {
	case storage.CheckInDebounced:
		return OutcomeAlreadyOpen
	case storage.CheckInReopened:
		return OutcomeOpenSessionUpdated
	case storage.CheckInAdditional:
		return OutcomeAdditionalSession
	default:
		return OutcomeFirstCheckIn
	}
}

// CheckInResult is returned by a successful check-in.
type CheckInResult struct {
	Outcome CheckInOutcome
	UserID  int64
	At      time.Time
	Record  *storage.DailyRecord
}

// Message is the confirmation shown to the user.
func (r *CheckInResult) Message() string {
	switch r.Outcome {
	case OutcomeAlreadyOpen:
		since, _ := r.Record.OpenSince()
		return fmt.Sprintf("You are already checked in since %s", since.Format(timeLayout))
	case OutcomeOpenSessionUpdated:
		return fmt.Sprintf("Check-in successful at %s (your previous check-in was not checked out)", r.At.Format(timeLayout))
	case OutcomeAdditionalSession:
		return fmt.Sprintf("Check-in successful (additional session) at %s", r.At.Format(timeLayout))
	default:
		return fmt.Sprintf("Check-in successful at %s", r.At.Format(timeLayout))
	}
}

// CheckOutResult is returned by a successful check-out.
type CheckOutResult struct {
	UserID       int64
	At           time.Time
	Session      storage.Session
	SessionHours float64
	TotalHours   float64
	Record       *storage.DailyRecord
}

// Message is the confirmation shown to the user.
func (r *CheckOutResult) Message() string {
	msg := fmt.Sprintf("Check-out successful. Session duration: %s hours. Total today: %s hours",
		FormatHours(r.SessionHours), FormatHours(r.TotalHours))

	if r.Record != nil && r.Record.ClosedSessions() > 1 && r.Record.LastCheckOut != nil {
		msg += fmt.Sprintf(" (First check-in: %s, Last check-out: %s)",
			r.Record.FirstCheckIn.Format(timeLayout), r.Record.LastCheckOut.Format(timeLayout))
	}
	return msg
}

// FormatHours renders hours with at most two decimals and no trailing zeros.
func FormatHours(h float64) string {
	return strconv.FormatFloat(storage.RoundHours(h), 'f', -1, 64)
}

// StatusKind classifies a user's state for the day.
type StatusKind int

const (
	StatusNotCheckedIn StatusKind = iota
	StatusOpen
	StatusClosed
)

func (k StatusKind) String() string {
	switch k {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "not_checked_in"
	}
}

// Status is a user's attendance state on one day.
type Status struct {
	Kind         StatusKind
	UserID       int64
	Day          time.Time
	Since        time.Time  // StatusOpen
	LastCheckIn  time.Time  // StatusClosed
	LastCheckOut *time.Time // StatusClosed
	TotalHours   float64
	Sessions     int
}

// Message is the status line shown to the user.
func (s Status) Message() string {
	switch s.Kind {
	case StatusOpen:
		msg := fmt.Sprintf("You are checked in since %s", s.Since.Format(timeLayout))
		if s.TotalHours > 0 {
			msg += fmt.Sprintf(". Total today so far: %s hours", FormatHours(s.TotalHours))
		}
		return msg
	case StatusClosed:
		// A closed day always carries its last check-out.
		return fmt.Sprintf("You checked out at %s. Last check-in: %s. Total today: %s hours",
			s.LastCheckOut.Format(timeLayout), s.LastCheckIn.Format(timeLayout), FormatHours(s.TotalHours))
	default:
		return "You haven't checked in today"
	}
}
