package storage

import (
	"fmt"
	"math"
	"time"
)

// RoundHours rounds a duration in hours to two decimal places.
func RoundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

// HoursBetween returns (to - from) in hours, rounded to two decimal places.
func HoursBetween(from, to time.Time) float64 {
	return RoundHours(to.Sub(from).Hours())
}

// NewDailyRecord creates the record for a user's first check-in of the day.
func NewDailyRecord(userID int64, day, at time.Time) *DailyRecord {
	return &DailyRecord{
		UserID:       userID,
		Day:          day,
		FirstCheckIn: at,
		LastCheckIn:  at,
		Sessions:     []Session{{CheckIn: at}},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// IsOpen reports whether the latest session has no check-out.
func (r *DailyRecord) IsOpen() bool {
	if len(r.Sessions) == 0 {
		return false
	}
	return !r.Sessions[len(r.Sessions)-1].Closed()
}

// OpenSince returns the check-in of the latest session when it is open.
func (r *DailyRecord) OpenSince() (time.Time, bool) {
	if !r.IsOpen() {
		return time.Time{}, false
	}
	return r.Sessions[len(r.Sessions)-1].CheckIn, true
}

// ClosedSessions counts sessions with a check-out.
func (r *DailyRecord) ClosedSessions() int {
	n := 0
	for _, s := range r.Sessions {
		if s.Closed() {
			n++
		}
	}
	return n
}

// ApplyCheckIn mutates the record for a check-in at the given time.
func (r *DailyRecord) ApplyCheckIn(at time.Time, debounce time.Duration) (CheckInKind, error) {
	if at.Before(r.LastCheckIn) {
		return 0, fmt.Errorf("%w: check-in %s before last check-in %s",
			ErrOutOfOrder, at.Format(time.RFC3339), r.LastCheckIn.Format(time.RFC3339))
	}
	if r.LastCheckOut != nil && at.Before(*r.LastCheckOut) {
		return 0, fmt.Errorf("%w: check-in %s before last check-out %s",
			ErrOutOfOrder, at.Format(time.RFC3339), r.LastCheckOut.Format(time.RFC3339))
	}

	kind := CheckInAdditional
	if r.IsOpen() {
		if at.Sub(r.LastCheckIn) <= debounce {
			return CheckInDebounced, nil
		}
		kind = CheckInReopened
	}

	r.Sessions = append(r.Sessions, Session{CheckIn: at})
	r.LastCheckIn = at
	r.LastCheckOut = nil
	r.UpdatedAt = at
	r.recomputeTotal()

	return kind, nil
}

// ApplyCheckOut closes the chronologically last open session.
func (r *DailyRecord) ApplyCheckOut(at time.Time) (Session, error) {
	if !r.IsOpen() {
		return Session{}, ErrNoOpenSession
	}

	idx := -1
	for i := len(r.Sessions) - 1; i >= 0; i-- {
		if !r.Sessions[i].Closed() {
			idx = i
			break
		}
	}

	s := &r.Sessions[idx]
	if at.Before(s.CheckIn) {
		return Session{}, fmt.Errorf("%w: check-out %s before check-in %s",
			ErrOutOfOrder, at.Format(time.RFC3339), s.CheckIn.Format(time.RFC3339))
	}

	checkOut := at
	hours := HoursBetween(s.CheckIn, at)
	s.CheckOut = &checkOut
	s.DurationHours = &hours

	r.LastCheckOut = &checkOut
	r.UpdatedAt = at
	r.recomputeTotal()

	return *s, nil
}

func (r *DailyRecord) recomputeTotal() {
	sum := 0.0
	for _, s := range r.Sessions {
		sum += s.Hours()
	}
	r.TotalHours = RoundHours(sum)
}

// Normalize fills fields missing from records written by older versions.
func (r *DailyRecord) Normalize() {
	if len(r.Sessions) == 0 && !r.LastCheckIn.IsZero() {
		s := Session{CheckIn: r.LastCheckIn}
		if r.LastCheckOut != nil && !r.LastCheckOut.Before(r.LastCheckIn) {
			out := *r.LastCheckOut
			hours := HoursBetween(r.LastCheckIn, out)
			s.CheckOut = &out
			s.DurationHours = &hours
		}
		r.Sessions = []Session{s}
	}

	for i := range r.Sessions {
		s := &r.Sessions[i]
		if s.CheckOut != nil && s.DurationHours == nil {
			hours := HoursBetween(s.CheckIn, *s.CheckOut)
			s.DurationHours = &hours
		}
	}

	if r.FirstCheckIn.IsZero() {
		if len(r.Sessions) > 0 {
			r.FirstCheckIn = r.Sessions[0].CheckIn
		} else {
			r.FirstCheckIn = r.LastCheckIn
		}
	}
	if r.LastCheckIn.IsZero() && len(r.Sessions) > 0 {
		r.LastCheckIn = r.Sessions[len(r.Sessions)-1].CheckIn
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = r.FirstCheckIn
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	r.recomputeTotal()
}

// Validate checks the record invariants.
func (r *DailyRecord) Validate() error {
	if r.UserID == 0 {
		return fmt.Errorf("%w: missing user id", ErrInvalidRecord)
	}
	if r.Day.IsZero() {
		return fmt.Errorf("%w: missing day", ErrInvalidRecord)
	}
	if len(r.Sessions) == 0 {
		return fmt.Errorf("%w: no sessions", ErrInvalidRecord)
	}
	if !r.FirstCheckIn.Equal(r.Sessions[0].CheckIn) {
		return fmt.Errorf("%w: first check-in does not match first session", ErrInvalidRecord)
	}

	sum := 0.0
	for i, s := range r.Sessions {
		if i > 0 && s.CheckIn.Before(r.Sessions[i-1].CheckIn) {
			return fmt.Errorf("%w: session %d out of order", ErrInvalidRecord, i)
		}
		if s.CheckOut == nil {
			if s.DurationHours != nil {
				return fmt.Errorf("%w: open session %d has a duration", ErrInvalidRecord, i)
			}
			continue
		}
		if s.CheckOut.Before(s.CheckIn) {
			return fmt.Errorf("%w: session %d ends before it starts", ErrInvalidRecord, i)
		}
		if s.DurationHours == nil {
			return fmt.Errorf("%w: closed session %d has no duration", ErrInvalidRecord, i)
		}
		sum += *s.DurationHours
	}

	if math.Abs(RoundHours(sum)-r.TotalHours) > 1e-9 {
		return fmt.Errorf("%w: total %.2f does not match sessions %.2f", ErrInvalidRecord, r.TotalHours, RoundHours(sum))
	}
	if r.IsOpen() != (r.LastCheckOut == nil) {
		return fmt.Errorf("%w: last check-out inconsistent with open state", ErrInvalidRecord)
	}

	return nil
}

// Clone returns a deep copy of the record.
func (r *DailyRecord) Clone() *DailyRecord {
	c := *r
	if r.LastCheckOut != nil {
		t := *r.LastCheckOut
		c.LastCheckOut = &t
	}
	c.Sessions = make([]Session, len(r.Sessions))
	for i, s := range r.Sessions {
		c.Sessions[i] = Session{CheckIn: s.CheckIn}
		if s.CheckOut != nil {
			t := *s.CheckOut
			c.Sessions[i].CheckOut = &t
		}
		if s.DurationHours != nil {
			h := *s.DurationHours
			c.Sessions[i].DurationHours = &h
		}
	}
	return &c
}
