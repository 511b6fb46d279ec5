package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/attendance/internal/attendance"
	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/config"
	"github.com/goodtune/attendance/internal/notify"
	"github.com/goodtune/attendance/internal/storage"
	"github.com/goodtune/attendance/internal/storage/bolt"
	"github.com/goodtune/attendance/internal/users"
	"github.com/rs/zerolog"
)

const adminID = 100

var defaultShifts = []Shift{
	{Name: "morning", Hour: 20},
	{Name: "evening", Hour: 23},
	{Name: "night", Hour: 3},
}

func ts(day, hour, minute int) time.Time {
	return time.Date(2024, 5, day, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	store    *bolt.Store
	ledger   *attendance.Ledger
	dir      *users.Directory
	recorder *notify.Recorder
	clock    *clock.TestClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "reminder.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := &clock.TestClock{CurrentTime: ts(6, 9, 0)}
	zone := clock.NewZone(time.UTC)

	dir, err := users.NewDirectory(store.Users(), []int64{adminID}, 16, clk, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDirectory() error = %v", err)
	}

	ctx := context.Background()
	for _, u := range []storage.User{{ID: 1, FirstName: "Ana"}, {ID: 2, FirstName: "Bruno"}} {
		if _, err := dir.Register(ctx, u); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	return &fixture{
		store:    store,
		ledger:   attendance.NewLedger(store.Attendance(), zone, clk, attendance.DefaultDebounce, zerolog.Nop()),
		dir:      dir,
		recorder: notify.NewRecorder(),
		clock:    clk,
	}
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()

	e, err := NewEngine(Config{Shifts: defaultShifts, Interval: time.Hour, Window: 75 * time.Minute},
		f.ledger, f.store.Reminders(), f.dir, f.recorder, f.clock, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func (f *fixture) checkIn(t *testing.T, userID int64, at time.Time) {
	t.Helper()
	if _, err := f.ledger.CheckIn(context.Background(), userID, at); err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
}

func TestEnding(t *testing.T) {
	zone := clock.NewZone(time.UTC)

	tests := []struct {
		name    string
		now     time.Time
		want    string
		wantDay string
	}{
		{"morning end", ts(6, 20, 0), "morning", "2024-05-06"},
		{"morning window edge", ts(6, 21, 14), "morning", "2024-05-06"},
		{"morning window closed", ts(6, 21, 15), "", ""},
		{"evening", ts(6, 23, 30), "evening", "2024-05-06"},
		{"evening across midnight", ts(7, 0, 10), "evening", "2024-05-06"},
		{"night", ts(7, 3, 5), "night", "2024-05-07"},
		{"midday", ts(6, 12, 0), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ending(defaultShifts, zone, tt.now, 75*time.Minute)
			if tt.want == "" {
				if len(got) != 0 {
					t.Errorf("Ending() = %+v, want none", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("Ending() = %+v, want one occurrence", got)
			}
			if got[0].Shift.Name != tt.want {
				t.Errorf("shift = %s, want %s", got[0].Shift.Name, tt.want)
			}
			if day := got[0].Day(zone); day != tt.wantDay {
				t.Errorf("day = %s, want %s", day, tt.wantDay)
			}
		})
	}
}

func TestParseShift(t *testing.T) {
	s, err := ParseShift("night", "03:00")
	if err != nil {
		t.Fatalf("ParseShift() error = %v", err)
	}
	if s.Label() != "night shift (3:00 AM)" {
		t.Errorf("Label() = %q", s.Label())
	}
	if _, err := ParseShift("bad", "25:00"); err == nil {
		t.Error("ParseShift() expected error for 25:00")
	}
}

func TestFromConfig(t *testing.T) {
	cfg, err := FromConfig(config.Defaults().Reminders)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if cfg.Interval != 15*time.Minute || cfg.Window != 75*time.Minute {
		t.Errorf("interval/window = %v/%v, want 15m/75m", cfg.Interval, cfg.Window)
	}
	if len(cfg.Shifts) != 3 || cfg.Shifts[2].Hour != 3 {
		t.Errorf("shifts = %+v, want morning/evening/night", cfg.Shifts)
	}
}

func TestEngine_RemindsOncePerShift(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	f.checkIn(t, 1, ts(6, 9, 0))

	res, err := e.RunOnce(ctx, ts(6, 20, 5))
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(res.Reminded) != 1 || res.AdminAlerts != 1 {
		t.Fatalf("result = %+v, want one reminder and one alert", res)
	}

	msgs := f.recorder.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	wantUser := "⏰ *Checkout Reminder*\n\nHi Ana, it looks like you're still checked in from 09:00:00.\n\n" +
		"The morning shift (8:00 PM) is ending. If you're done with your shift, please don't forget to check out."
	if msgs[0].Recipient != 1 || msgs[0].Text != wantUser {
		t.Errorf("user reminder = %+v", msgs[0])
	}
	if msgs[1].Recipient != adminID || !strings.Contains(msgs[1].Text, "• Ana (checked in at 09:00:00)") {
		t.Errorf("admin alert = %+v", msgs[1])
	}

	// Second tick inside the same window
	res, err = e.RunOnce(ctx, ts(6, 20, 20))
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(res.Reminded) != 0 || res.AdminAlerts != 0 {
		t.Errorf("second tick result = %+v, want nothing new", res)
	}
	if len(f.recorder.Messages()) != 2 {
		t.Errorf("messages after second tick = %d, want 2", len(f.recorder.Messages()))
	}

	// Next shift is a separate reminder
	if _, err := e.RunOnce(ctx, ts(6, 23, 0)); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if f.recorder.Count(1, notify.KindReminder) != 2 {
		t.Errorf("reminders = %d, want 2 after evening shift", f.recorder.Count(1, notify.KindReminder))
	}
}

func TestEngine_NightShiftCatchesPreviousDay(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)

	f.checkIn(t, 2, ts(6, 22, 30))

	res, err := e.RunOnce(context.Background(), ts(7, 3, 10))
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(res.Reminded) != 1 || res.Reminded[0].UserID != 2 {
		t.Fatalf("result = %+v, want user 2 reminded", res)
	}
	if res.Reminded[0].Shift != "night" {
		t.Errorf("shift = %s, want night", res.Reminded[0].Shift)
	}
}

func TestEngine_ClosedSessionsIgnored(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)

	f.checkIn(t, 1, ts(6, 9, 0))
	if _, err := f.ledger.CheckOut(context.Background(), 1, ts(6, 17, 0)); err != nil {
		t.Fatalf("CheckOut() error = %v", err)
	}

	res, err := e.RunOnce(context.Background(), ts(6, 20, 5))
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res.Open != 0 || len(f.recorder.Messages()) != 0 {
		t.Errorf("closed day should produce no reminders, got %+v", res)
	}
}

func TestEngine_DeliveryFailureIsolated(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)

	f.checkIn(t, 1, ts(6, 9, 0))
	f.checkIn(t, 2, ts(6, 10, 0))
	f.recorder.FailFor(1)

	res, err := e.RunOnce(context.Background(), ts(6, 20, 5))
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(res.Reminded) != 2 {
		t.Fatalf("reminded = %d, want 2", len(res.Reminded))
	}
	if f.recorder.Count(2, notify.KindReminder) != 1 {
		t.Error("user 2 should still be reminded when user 1 fails")
	}
	if f.recorder.Count(adminID, notify.KindAdminAlert) != 1 {
		t.Error("admin alert should still be sent")
	}
}

func TestEngine_FailedReminderRetried(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	ctx := context.Background()

	f.checkIn(t, 1, ts(6, 9, 0))
	f.recorder.FailFor(1)

	if _, err := e.RunOnce(ctx, ts(6, 20, 0)); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if f.recorder.Count(1, notify.KindReminder) != 0 {
		t.Fatal("failing recipient should have no delivered reminder")
	}

	f.recorder.Recover(1)
	res, err := e.RunOnce(ctx, ts(6, 20, 15))
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(res.Reminded) != 1 || !res.Reminded[0].Delivered {
		t.Fatalf("result = %+v, want one delivered retry", res)
	}
	if res.AdminAlerts != 0 {
		t.Errorf("retry sent %d admin alerts, want 0", res.AdminAlerts)
	}

	if _, err := e.RunOnce(ctx, ts(6, 20, 30)); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n := f.recorder.Count(1, notify.KindReminder); n != 1 {
		t.Errorf("reminders = %d, want 1", n)
	}
	if n := f.recorder.Count(adminID, notify.KindAdminAlert); n != 1 {
		t.Errorf("admin alerts = %d, want 1", n)
	}
}

// flakyAdmins fails ListAdmins a set number of times.
type flakyAdmins struct {
	storage.UserStore
	failures int
}

func (s *flakyAdmins) ListAdmins(ctx context.Context) ([]storage.User, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("admin list unavailable")
	}
	return s.UserStore.ListAdmins(ctx)
}

func TestEngine_AdminLookupFailureRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dir, err := users.NewDirectory(&flakyAdmins{UserStore: f.store.Users(), failures: 1}, []int64{adminID}, 16, f.clock, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDirectory() error = %v", err)
	}
	f.dir = dir
	e := f.engine(t)

	f.checkIn(t, 1, ts(6, 9, 0))

	if _, err := e.RunOnce(ctx, ts(6, 20, 0)); err == nil {
		t.Fatal("RunOnce() expected error when admins cannot be loaded")
	}
	if n := len(f.recorder.Messages()); n != 0 {
		t.Fatalf("messages after failed tick = %d, want 0", n)
	}

	res, err := e.RunOnce(ctx, ts(6, 20, 15))
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(res.Reminded) != 1 || res.AdminAlerts != 1 {
		t.Fatalf("result = %+v, want one reminder and one alert", res)
	}

	if _, err := e.RunOnce(ctx, ts(6, 20, 30)); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if n := f.recorder.Count(adminID, notify.KindAdminAlert); n != 1 {
		t.Errorf("admin alerts = %d, want 1", n)
	}
	if n := f.recorder.Count(1, notify.KindReminder); n != 1 {
		t.Errorf("reminders = %d, want 1", n)
	}
}

func TestEngine_MarkerSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.checkIn(t, 1, ts(6, 9, 0))

	if _, err := f.engine(t).RunOnce(ctx, ts(6, 20, 5)); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	// Fresh engine, empty LRU, same persisted markers
	res, err := f.engine(t).RunOnce(ctx, ts(6, 20, 35))
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(res.Reminded) != 0 {
		t.Errorf("restarted engine re-sent %d reminders", len(res.Reminded))
	}
	if f.recorder.Count(1, notify.KindReminder) != 1 {
		t.Errorf("reminders = %d, want 1", f.recorder.Count(1, notify.KindReminder))
	}
}

func TestEngine_StartStop(t *testing.T) {
	f := newFixture(t)
	f.checkIn(t, 1, ts(6, 9, 0))
	f.clock.Set(ts(6, 20, 5))

	e := f.engine(t)
	e.Start()

	deadline := time.Now().Add(5 * time.Second)
	for f.recorder.Count(1, notify.KindReminder) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first tick did not send a reminder")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	// Stop is idempotent
	if err := e.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
