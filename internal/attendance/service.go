package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/attendance/internal/notify"
	"github.com/goodtune/attendance/internal/storage"
	"github.com/goodtune/attendance/internal/users"
	"github.com/rs/zerolog"
)

// Service is the front-end facade: ledger operations plus admin activity
// broadcasts and the administrative queries and purges.
type Service struct {
	ledger   *Ledger
	users    *users.Directory
	notifier notify.Notifier
	logger   zerolog.Logger
}

// NewService creates the facade used by the API and CLI.
func NewService(ledger *Ledger, directory *users.Directory, notifier notify.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		ledger:   ledger,
		users:    directory,
		notifier: notifier,
		logger:   logger.With().Str("component", "attendance").Logger(),
	}
}

// Ledger returns the underlying ledger.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Users returns the user directory.
func (s *Service) Users() *users.Directory {
	return s.users
}

// CheckIn records a check-in and tells the admins about it.
func (s *Service) CheckIn(ctx context.Context, userID int64, at time.Time) (*CheckInResult, error) {
	res, err := s.ledger.CheckIn(ctx, userID, at)
	if err != nil {
		return nil, err
	}

	if res.Outcome.Changed() {
		text := fmt.Sprintf("👤 *%s* has checked in at _%s_",
			s.users.DisplayName(ctx, userID), res.At.Format(timeLayout))
		s.NotifyAdmins(ctx, notify.KindAdminActivity, text, userID)
	}
	return res, nil
}

// CheckOut records a check-out and tells the admins about it.
func (s *Service) CheckOut(ctx context.Context, userID int64, at time.Time) (*CheckOutResult, error) {
	res, err := s.ledger.CheckOut(ctx, userID, at)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("👤 *%s* has checked out at _%s_\n_Duration: %s hours_",
		s.users.DisplayName(ctx, userID), res.At.Format(timeLayout), FormatHours(res.SessionHours))
	s.NotifyAdmins(ctx, notify.KindAdminActivity, text, userID)
	return res, nil
}

// NotifyAdmins sends text to every admin except excludeUserID (zero excludes nobody).
// Delivery failures are logged per recipient and never returned as an error.
func (s *Service) NotifyAdmins(ctx context.Context, kind notify.Kind, text string, excludeUserID int64) int {
	admins, err := s.users.AdminIDs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load admins for notification")
		return 0
	}

	recipients := make([]int64, 0, len(admins))
	for _, id := range admins {
		if id != excludeUserID {
			recipients = append(recipients, id)
		}
	}

	delivered, _ := notify.Broadcast(ctx, s.notifier, s.logger, recipients, kind, text)
	return delivered
}

func (s *Service) requireAdmin(ctx context.Context, actingUserID int64) error {
	ok, err := s.users.IsAdmin(ctx, actingUserID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn().Int64("user_id", actingUserID).Msg("Administrative operation refused")
		return ErrForbidden
	}
	return nil
}

// TodayEntry is one line of the admin's today overview.
type TodayEntry struct {
	UserID int64                `json:"user_id"`
	Name   string               `json:"name"`
	Open   bool                 `json:"open"`
	Record *storage.DailyRecord `json:"record"`
}

// Today lists every record of the current day. Admin only.
func (s *Service) Today(ctx context.Context, actingUserID int64) ([]TodayEntry, error) {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}

	records, err := s.ledger.ForDay(ctx, s.ledger.Today())
	if err != nil {
		return nil, err
	}

	entries := make([]TodayEntry, len(records))
	for i := range records {
		entries[i] = TodayEntry{
			UserID: records[i].UserID,
			Name:   s.users.DisplayName(ctx, records[i].UserID),
			Open:   records[i].IsOpen(),
			Record: &records[i],
		}
	}
	return entries, nil
}

// Report builds the export rows for from..to inclusive. Admin only.
func (s *Service) Report(ctx context.Context, actingUserID int64, from, to time.Time) ([]ReportRow, error) {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return nil, err
	}

	records, err := s.ledger.Range(ctx, from, to)
	if err != nil {
		return nil, err
	}

	return BuildReport(records, func(id int64) string {
		return s.users.DisplayName(ctx, id)
	}), nil
}

// DeleteRecord removes one day's record of a user. Admin only.
func (s *Service) DeleteRecord(ctx context.Context, actingUserID, userID int64, day time.Time) error {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return err
	}
	return s.ledger.DeleteDay(ctx, userID, day)
}

// ClearAttendance removes every record of a user but keeps the user. Admin only.
// Returns ErrRecordNotFound when the user had no records.
func (s *Service) ClearAttendance(ctx context.Context, actingUserID, userID int64) (int, error) {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return 0, err
	}

	n, err := s.ledger.DeleteAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrRecordNotFound
	}
	return n, nil
}

// DeleteUser removes a user and all of their records. Admin only.
func (s *Service) DeleteUser(ctx context.Context, actingUserID, userID int64) (int, error) {
	if err := s.requireAdmin(ctx, actingUserID); err != nil {
		return 0, err
	}

	if _, err := s.users.Get(ctx, userID); err != nil {
		return 0, err
	}

	n, err := s.ledger.DeleteAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.users.Remove(ctx, userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return n, err
	}

	s.logger.Info().Int64("user_id", userID).Int("records", n).Int64("by", actingUserID).Msg("User deleted")
	return n, nil
}

// PurgeMessage renders the confirmation for a purge operation.
func PurgeMessage(op string, n int) string {
	switch op {
	case "user":
		return fmt.Sprintf("User deleted successfully along with %d attendance records", n)
	case "record":
		return "Attendance record deleted successfully"
	default:
		return fmt.Sprintf("Deleted %d attendance records", n)
	}
}
