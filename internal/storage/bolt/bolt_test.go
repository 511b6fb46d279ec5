package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/attendance/internal/storage"
	"go.etcd.io/bbolt"
)

var (
	day1 = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)
)

func TestAttendanceStoreCheckInCheckOut(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	att := store.Attendance()

	if _, kind, err := att.UpsertOpenSession(ctx, 42, day1, day1.Add(8*time.Hour), time.Minute); err != nil || kind != storage.CheckInFirst {
		t.Fatalf("first check-in: kind=%v err=%v", kind, err)
	}
	if _, _, err := att.CloseLatestOpenSession(ctx, 42, day1, day1.Add(12*time.Hour)); err != nil {
		t.Fatalf("first check-out: %v", err)
	}
	if _, kind, err := att.UpsertOpenSession(ctx, 42, day1, day1.Add(13*time.Hour), time.Minute); err != nil || kind != storage.CheckInAdditional {
		t.Fatalf("second check-in: kind=%v err=%v", kind, err)
	}

	open, err := att.ListOpenRecordsFor(ctx, day1)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open record, got %d", len(open))
	}

	record, session, err := att.CloseLatestOpenSession(ctx, 42, day1, day1.Add(17*time.Hour+15*time.Minute))
	if err != nil {
		t.Fatalf("second check-out: %v", err)
	}
	if session.Hours() != 4.25 {
		t.Fatalf("expected session hours 4.25, got %v", session.Hours())
	}
	if record.TotalHours != 8.25 {
		t.Fatalf("expected total 8.25, got %v", record.TotalHours)
	}

	open, err = att.ListOpenRecordsFor(ctx, day1)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open records, got %d", len(open))
	}

	if _, _, err := att.CloseLatestOpenSession(ctx, 42, day1, day1.Add(18*time.Hour)); !errors.Is(err, storage.ErrNoOpenSession) {
		t.Fatalf("expected ErrNoOpenSession, got %v", err)
	}

	stored, err := att.GetRecord(ctx, 42, day1)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if len(stored.Sessions) != 2 || stored.TotalHours != 8.25 {
		t.Fatalf("unexpected stored record: %+v", stored)
	}
}

func TestAttendanceStoreCheckOutWithoutRecord(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	att := store.Attendance()

	if _, _, err := att.CloseLatestOpenSession(ctx, 1, day1, day1.Add(time.Hour)); !errors.Is(err, storage.ErrNoOpenSession) {
		t.Fatalf("expected ErrNoOpenSession, got %v", err)
	}
	if _, err := att.GetRecord(ctx, 1, day1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttendanceStoreConcurrentCheckOut(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	att := store.Attendance()

	if _, _, err := att.UpsertOpenSession(ctx, 5, day1, day1.Add(8*time.Hour), time.Minute); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := att.CloseLatestOpenSession(ctx, 5, day1, day1.Add(16*time.Hour))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly 1 successful check-out, got %d", succeeded)
	}
}

func TestAttendanceStoreListAndDelete(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	att := store.Attendance()

	for _, tc := range []struct {
		user int64
		day  time.Time
	}{
		{2, day1}, {1, day1}, {1, day2},
	} {
		if _, _, err := att.UpsertOpenSession(ctx, tc.user, tc.day, tc.day.Add(9*time.Hour), time.Minute); err != nil {
			t.Fatalf("check-in: %v", err)
		}
	}

	all, err := att.ListAll(ctx, 1)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || storage.DayKey(all[0].Day) != "2024-05-07" {
		t.Fatalf("expected 2 records newest first, got %+v", all)
	}

	ranged, err := att.ListRange(ctx, day1, day2)
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(ranged) != 3 || ranged[0].UserID != 1 || ranged[1].UserID != 2 {
		t.Fatalf("unexpected range result: %+v", ranged)
	}

	first, err := att.ListRange(ctx, day1, day1)
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 records on day1, got %d", len(first))
	}

	if err := att.DeleteRecord(ctx, 2, day1); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if err := att.DeleteRecord(ctx, 2, day1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	forDay, err := att.ListForDay(ctx, day1)
	if err != nil {
		t.Fatalf("list day: %v", err)
	}
	if len(forDay) != 1 {
		t.Fatalf("expected 1 record on day1 after delete, got %d", len(forDay))
	}

	deleted, err := att.DeleteAllForUser(ctx, 1)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted records, got %d", deleted)
	}

	ranged, err = att.ListRange(ctx, day1, day2)
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(ranged) != 0 {
		t.Fatalf("expected empty range after purge, got %d", len(ranged))
	}
}

func TestUserStore(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	users := store.Users()

	for _, u := range []storage.User{
		{ID: 20, FirstName: "Bea"},
		{ID: 3, FirstName: "Ana", IsAdmin: true},
	} {
		if err := users.Upsert(ctx, u); err != nil {
			t.Fatalf("upsert user: %v", err)
		}
	}

	list, err := users.List(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(list) != 2 || list[0].ID != 3 {
		t.Fatalf("expected users ordered by id, got %+v", list)
	}

	admins, err := users.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("list admins: %v", err)
	}
	if len(admins) != 1 || admins[0].FirstName != "Ana" {
		t.Fatalf("unexpected admins: %+v", admins)
	}

	if err := users.Delete(ctx, 20); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := users.Get(ctx, 20); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReminderStoreMarkSent(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	now := time.Date(2024, 5, 6, 20, 15, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	reminders := store.Reminders()
	key := storage.ReminderKey{UserID: 1, Shift: "morning", Day: "2024-05-06"}

	created, err := reminders.MarkSent(ctx, key, time.Hour)
	if err != nil || !created {
		t.Fatalf("first mark: created=%v err=%v", created, err)
	}

	created, err = reminders.MarkSent(ctx, key, time.Hour)
	if err != nil || created {
		t.Fatalf("second mark: created=%v err=%v", created, err)
	}

	now = now.Add(2 * time.Hour)
	reminders = store.Reminders()

	sent, err := reminders.WasSent(ctx, key)
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Fatal("expected marker to expire")
	}

	created, err = reminders.MarkSent(ctx, key, time.Hour)
	if err != nil || !created {
		t.Fatalf("mark after expiry: created=%v err=%v", created, err)
	}
}

func TestReminderStorePrunesOldDays(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	now := time.Date(2024, 5, 6, 20, 15, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	reminders := store.Reminders()
	old := storage.ReminderKey{UserID: 1, Shift: "morning", Day: "2024-05-06"}
	if _, err := reminders.MarkSent(ctx, old, time.Hour); err != nil {
		t.Fatalf("mark old: %v", err)
	}

	now = now.Add(72 * time.Hour)
	fresh := storage.ReminderKey{UserID: 1, Shift: "morning", Day: "2024-05-09"}
	if _, err := reminders.MarkSent(ctx, fresh, time.Hour); err != nil {
		t.Fatalf("mark fresh: %v", err)
	}

	var keys []string
	err := store.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketReminders)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("list markers: %v", err)
	}
	if len(keys) != 1 || keys[0] != "2024-05-09/morning/1" {
		t.Errorf("markers = %v, want only 2024-05-09/morning/1", keys)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "attendance.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
