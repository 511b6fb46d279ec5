// Package attendance implements the session ledger: check-in and check-out
// reconciliation, status and history over the daily record repository.
package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/metrics"
	"github.com/goodtune/attendance/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the repeat check-in window used when none is configured.
const DefaultDebounce = 60 * time.Second

// Ledger applies check-in and check-out events to daily records. It holds no
// per-user state; the repository serializes concurrent writes to the same key.
type Ledger struct {
	store    storage.AttendanceStore
	zone     *clock.Zone
	clock    clock.Clock
	debounce time.Duration
	logger   zerolog.Logger
}

// NewLedger creates a ledger. A negative debounce disables repeat suppression.
func NewLedger(store storage.AttendanceStore, zone *clock.Zone, clk clock.Clock, debounce time.Duration, logger zerolog.Logger) *Ledger {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if zone == nil {
		zone = clock.NewZone(time.UTC)
	}
	if debounce < 0 {
		debounce = 0
	}
	return &Ledger{
		store:    store,
		zone:     zone,
		clock:    clk,
		debounce: debounce,
		logger:   logger.With().Str("component", "ledger").Logger(),
	}
}

// Zone returns the reference time zone.
func (l *Ledger) Zone() *clock.Zone {
	return l.zone
}

// Now returns the current time in the reference zone.
func (l *Ledger) Now() time.Time {
	return l.zone.In(l.clock.Now())
}

// Today returns local midnight of the current day.
func (l *Ledger) Today() time.Time {
	return l.zone.StartOfDay(l.clock.Now())
}

func (l *Ledger) resolve(at time.Time) (time.Time, time.Time) {
	if at.IsZero() {
		at = l.clock.Now()
	}
	at = l.zone.In(at)
	return at, l.zone.StartOfDay(at)
}

// CheckIn records a check-in at the given time (zero means now).
func (l *Ledger) CheckIn(ctx context.Context, userID int64, at time.Time) (*CheckInResult, error) {
	at, day := l.resolve(at)

	record, kind, err := l.store.UpsertOpenSession(ctx, userID, day, at, l.debounce)
	if err != nil {
		l.countFailure("checkin", err)
		metrics.CheckInsTotal.WithLabelValues(failureLabel(err)).Inc()
		l.logger.Warn().
			Err(err).
			Int64("user_id", userID).
			Str("day", l.zone.DayKey(day)).
			Msg("Check-in failed")
		return nil, err
	}

	outcome := outcomeFor(kind)
	metrics.CheckInsTotal.WithLabelValues(outcome.String()).Inc()

	l.logger.Info().
		Int64("user_id", userID).
		Str("day", l.zone.DayKey(day)).
		Str("outcome", outcome.String()).
		Time("at", at).
		Msg("Check-in recorded")

	return &CheckInResult{
		Outcome: outcome,
		UserID:  userID,
		At:      at,
		Record:  l.localize(record),
	}, nil
}

// CheckOut closes the latest open session of the day containing at (zero means now).
// A check-out after midnight resolves to the new day and fails with ErrNoOpenSession.
func (l *Ledger) CheckOut(ctx context.Context, userID int64, at time.Time) (*CheckOutResult, error) {
	at, day := l.resolve(at)

	record, session, err := l.store.CloseLatestOpenSession(ctx, userID, day, at)
	if err != nil {
		l.countFailure("checkout", err)
		metrics.CheckOutsTotal.WithLabelValues(failureLabel(err)).Inc()
		l.logger.Warn().
			Err(err).
			Int64("user_id", userID).
			Str("day", l.zone.DayKey(day)).
			Msg("Check-out failed")
		return nil, err
	}

	hours := session.Hours()
	metrics.CheckOutsTotal.WithLabelValues("closed").Inc()
	metrics.SessionHours.Observe(hours)

	l.logger.Info().
		Int64("user_id", userID).
		Str("day", l.zone.DayKey(day)).
		Float64("hours", hours).
		Float64("total_hours", record.TotalHours).
		Msg("Check-out recorded")

	record = l.localize(record)
	return &CheckOutResult{
		UserID:       userID,
		At:           at,
		Session:      record.Sessions[closedIndex(record, at)],
		SessionHours: hours,
		TotalHours:   record.TotalHours,
		Record:       record,
	}, nil
}

// Status reports the user's state on the day containing at (zero means now).
func (l *Ledger) Status(ctx context.Context, userID int64, at time.Time) (Status, error) {
	_, day := l.resolve(at)
	status := Status{Kind: StatusNotCheckedIn, UserID: userID, Day: day}

	record, err := l.store.GetRecord(ctx, userID, day)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return status, nil
		}
		l.countFailure("status", err)
		return status, err
	}
	record = l.localize(record)

	status.TotalHours = record.TotalHours
	status.Sessions = len(record.Sessions)
	if since, open := record.OpenSince(); open {
		status.Kind = StatusOpen
		status.Since = since
		return status, nil
	}

	status.Kind = StatusClosed
	status.LastCheckIn = record.LastCheckIn
	status.LastCheckOut = record.LastCheckOut
	return status, nil
}

// Day returns a single day's record or ErrRecordNotFound.
func (l *Ledger) Day(ctx context.Context, userID int64, day time.Time) (*storage.DailyRecord, error) {
	record, err := l.store.GetRecord(ctx, userID, l.zone.StartOfDay(day))
	if err != nil {
		l.countFailure("day", err)
		return nil, err
	}
	return l.localize(record), nil
}

// History returns the user's records with from <= day <= to, newest first.
// A zero bound is open-ended. Returns ErrRecordNotFound when nothing matches.
func (l *Ledger) History(ctx context.Context, userID int64, from, to time.Time) ([]storage.DailyRecord, error) {
	if !from.IsZero() && !to.IsZero() && l.zone.StartOfDay(to).Before(l.zone.StartOfDay(from)) {
		return nil, ErrInvalidRange
	}

	records, err := l.store.ListAll(ctx, userID)
	if err != nil {
		l.countFailure("history", err)
		return nil, err
	}

	var lo, hi int64
	if !from.IsZero() {
		lo = storage.DayScore(l.zone.StartOfDay(from))
	}
	if !to.IsZero() {
		hi = storage.DayScore(l.zone.StartOfDay(to))
	}

	out := make([]storage.DailyRecord, 0, len(records))
	for i := range records {
		score := storage.DayScore(records[i].Day)
		if lo != 0 && score < lo {
			continue
		}
		if hi != 0 && score > hi {
			continue
		}
		out = append(out, *l.localize(&records[i]))
	}

	if len(out) == 0 {
		return nil, ErrRecordNotFound
	}
	return out, nil
}

// Recent returns the user's latest n records, newest first.
func (l *Ledger) Recent(ctx context.Context, userID int64, n int) ([]storage.DailyRecord, error) {
	records, err := l.History(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// MonthSummary aggregates one calendar month of a user's records.
type MonthSummary struct {
	Year         int
	Month        time.Month
	Records      []storage.DailyRecord
	DaysPresent  int
	CompleteDays int
	TotalHours   float64
}

// Month returns the user's records for a calendar month with totals.
func (l *Ledger) Month(ctx context.Context, userID int64, year int, month time.Month) (*MonthSummary, error) {
	first, last := l.zone.MonthRange(year, month)
	records, err := l.History(ctx, userID, first, last)
	if err != nil {
		return nil, err
	}

	summary := &MonthSummary{Year: year, Month: month, Records: records, DaysPresent: len(records)}
	total := 0.0
	for _, r := range records {
		if !r.IsOpen() {
			summary.CompleteDays++
		}
		total += r.TotalHours
	}
	summary.TotalHours = storage.RoundHours(total)
	return summary, nil
}

// ForDay returns every user's record for a day.
func (l *Ledger) ForDay(ctx context.Context, day time.Time) ([]storage.DailyRecord, error) {
	records, err := l.store.ListForDay(ctx, l.zone.StartOfDay(day))
	if err != nil {
		l.countFailure("for_day", err)
		return nil, err
	}
	return l.localizeAll(records), nil
}

// OpenFor returns every record of a day whose latest session is open.
func (l *Ledger) OpenFor(ctx context.Context, day time.Time) ([]storage.DailyRecord, error) {
	records, err := l.store.ListOpenRecordsFor(ctx, l.zone.StartOfDay(day))
	if err != nil {
		l.countFailure("open_for", err)
		return nil, err
	}
	return l.localizeAll(records), nil
}

// Range returns all users' records with from <= day <= to, oldest first.
func (l *Ledger) Range(ctx context.Context, from, to time.Time) ([]storage.DailyRecord, error) {
	from, to = l.zone.StartOfDay(from), l.zone.StartOfDay(to)
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	records, err := l.store.ListRange(ctx, from, to)
	if err != nil {
		l.countFailure("range", err)
		return nil, err
	}
	return l.localizeAll(records), nil
}

// DeleteDay removes one record. Callers enforce authorization.
func (l *Ledger) DeleteDay(ctx context.Context, userID int64, day time.Time) error {
	day = l.zone.StartOfDay(day)
	if err := l.store.DeleteRecord(ctx, userID, day); err != nil {
		l.countFailure("delete", err)
		return err
	}
	l.logger.Info().Int64("user_id", userID).Str("day", l.zone.DayKey(day)).Msg("Attendance record deleted")
	return nil
}

// DeleteAll removes every record of a user and returns how many were removed.
func (l *Ledger) DeleteAll(ctx context.Context, userID int64) (int, error) {
	n, err := l.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		l.countFailure("delete_all", err)
		return 0, err
	}
	l.logger.Info().Int64("user_id", userID).Int("count", n).Msg("Attendance records deleted")
	return n, nil
}

// localize returns a copy with every timestamp in the reference zone.
func (l *Ledger) localize(r *storage.DailyRecord) *storage.DailyRecord {
	c := r.Clone()
	c.Day = l.zone.StartOfDay(c.Day)
	c.FirstCheckIn = l.zone.In(c.FirstCheckIn)
	c.LastCheckIn = l.zone.In(c.LastCheckIn)
	if c.LastCheckOut != nil {
		t := l.zone.In(*c.LastCheckOut)
		c.LastCheckOut = &t
	}
	for i := range c.Sessions {
		c.Sessions[i].CheckIn = l.zone.In(c.Sessions[i].CheckIn)
		if c.Sessions[i].CheckOut != nil {
			t := l.zone.In(*c.Sessions[i].CheckOut)
			c.Sessions[i].CheckOut = &t
		}
	}
	return c
}

func (l *Ledger) localizeAll(records []storage.DailyRecord) []storage.DailyRecord {
	out := make([]storage.DailyRecord, len(records))
	for i := range records {
		out[i] = *l.localize(&records[i])
	}
	return out
}

func (l *Ledger) countFailure(op string, err error) {
	if errors.Is(err, storage.ErrUnavailable) {
		metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

// closedIndex finds the session closed at the given instant.
func closedIndex(r *storage.DailyRecord, at time.Time) int {
	for i := len(r.Sessions) - 1; i >= 0; i-- {
		if out := r.Sessions[i].CheckOut; out != nil && out.Equal(at) {
			return i
		}
	}
	return len(r.Sessions) - 1
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, storage.ErrNoOpenSession):
		return "no_open_session"
	case errors.Is(err, storage.ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, storage.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
