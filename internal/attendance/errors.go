package attendance

import (
	"errors"

	"github.com/goodtune/attendance/internal/storage"
)

var (
	// ErrNoOpenSession is returned by CheckOut when the day has nothing open.
	ErrNoOpenSession = storage.ErrNoOpenSession

	// ErrRecordNotFound is returned when a lookup or history query has no data.
	ErrRecordNotFound = storage.ErrNotFound

	// ErrRepositoryUnavailable is returned when the store failed; nothing was written.
	ErrRepositoryUnavailable = storage.ErrUnavailable

	// ErrOutOfOrder is returned for an event older than the session it would modify.
	ErrOutOfOrder = storage.ErrOutOfOrder

	// ErrForbidden is returned when a non-admin requests an administrative operation.
	ErrForbidden = errors.New("admin privileges required")

	// ErrInvalidRange is returned when a history or report range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range")
)

// UserMessage returns the text shown to the person whose request failed.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoOpenSession):
		return "You need to check in first"
	case errors.Is(err, ErrOutOfOrder):
		return "That time is earlier than your last recorded check-in or check-out"
	case errors.Is(err, ErrRecordNotFound):
		return "No attendance records found"
	case errors.Is(err, ErrForbidden):
		return "You don't have permission to use this command"
	case errors.Is(err, ErrInvalidRange):
		return "End date must not be before start date"
	case errors.Is(err, ErrRepositoryUnavailable):
		return "Attendance service is temporarily unavailable. Please try again in a moment"
	default:
		return "An error occurred. Please try again later"
	}
}
