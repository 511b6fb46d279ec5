package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")

	// ErrUnavailable wraps backend failures (connection, timeout, encoding).
	// Callers should surface a retry message; nothing has been written.
	ErrUnavailable = errors.New("storage: backend unavailable")

	// ErrNoOpenSession is returned when a check-out finds nothing to close.
	ErrNoOpenSession = errors.New("no open session")

	// ErrOutOfOrder is returned when an event is older than the session it would modify.
	ErrOutOfOrder = errors.New("event precedes the latest recorded event")

	// ErrInvalidRecord is returned when a record fails its invariants.
	ErrInvalidRecord = errors.New("storage: record violates invariants")
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Attendance() AttendanceStore
	Users() UserStore
	Reminders() ReminderStore
}

// AttendanceStore manages daily attendance records keyed by (user, calendar day).
//
// Day arguments must already be normalized to local midnight; the store keys on the
// day's YYYY-MM-DD form in the day's own location. Mutations are atomic per key.
type AttendanceStore interface {
	// UpsertOpenSession records a check-in, creating the day's record if needed.
	// A debounced check-in returns the unchanged record and CheckInDebounced.
	UpsertOpenSession(ctx context.Context, userID int64, day, at time.Time, debounce time.Duration) (*DailyRecord, CheckInKind, error)

	// CloseLatestOpenSession closes the chronologically last open session.
	CloseLatestOpenSession(ctx context.Context, userID int64, day, at time.Time) (*DailyRecord, Session, error)

	GetRecord(ctx context.Context, userID int64, day time.Time) (*DailyRecord, error)
	ListOpenRecordsFor(ctx context.Context, day time.Time) ([]DailyRecord, error)
	ListForDay(ctx context.Context, day time.Time) ([]DailyRecord, error)

	// ListAll returns every record of a user, newest day first.
	ListAll(ctx context.Context, userID int64) ([]DailyRecord, error)

	// ListRange returns all users' records with from <= day <= to, oldest day first.
	ListRange(ctx context.Context, from, to time.Time) ([]DailyRecord, error)

	DeleteRecord(ctx context.Context, userID int64, day time.Time) error
	DeleteAllForUser(ctx context.Context, userID int64) (int, error)
}

// UserStore manages the user directory.
type UserStore interface {
	Get(ctx context.Context, id int64) (*User, error)
	List(ctx context.Context) ([]User, error)
	ListAdmins(ctx context.Context) ([]User, error)
	Upsert(ctx context.Context, user User) error
	Delete(ctx context.Context, id int64) error
}

// ReminderStore persists reminder dedup markers.
type ReminderStore interface {
	// MarkSent records the marker if absent and reports whether this call created it.
	MarkSent(ctx context.Context, key ReminderKey, ttl time.Duration) (bool, error)
	WasSent(ctx context.Context, key ReminderKey) (bool, error)
}
