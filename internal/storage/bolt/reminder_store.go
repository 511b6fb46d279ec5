package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goodtune/attendance/internal/storage"
	"go.etcd.io/bbolt"
)

type reminderStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// {day}/{shift}/{userID}; the value is the marker's expiry
func reminderKey(key storage.ReminderKey) []byte {
	return []byte(fmt.Sprintf("%s/%s/%d", key.Day, key.Shift, key.UserID))
}

// MarkSent stores the marker unless a live one exists. Expired markers for days
// older than the TTL are pruned in the same transaction.
func (s *reminderStore) MarkSent(ctx context.Context, key storage.ReminderKey, ttl time.Duration) (bool, error) {
	now := s.now()
	created := false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketReminders))

		if err := pruneMarkers(b, now, ttl); err != nil {
			return err
		}

		k := reminderKey(key)
		if v := b.Get(k); v != nil && !markerExpired(v, now) {
			return nil
		}

		created = true
		return b.Put(k, []byte(now.Add(ttl).UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return false, storage.Unavailable("mark reminder", err)
	}

	return created, nil
}

// WasSent reports whether a live marker exists.
func (s *reminderStore) WasSent(ctx context.Context, key storage.ReminderKey) (bool, error) {
	sent := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v := tx.Bucket([]byte(bucketReminders)).Get(reminderKey(key))
		sent = v != nil && !markerExpired(v, s.now())
		return nil
	})
	if err != nil {
		return false, storage.Unavailable("check reminder", err)
	}

	return sent, nil
}

// pruneMarkers deletes expired markers whose day sorts before now-ttl. Keys
// start with the day, so the cursor stops at the first recent one.
func pruneMarkers(b *bbolt.Bucket, now time.Time, ttl time.Duration) error {
	cutoff := []byte(now.Add(-ttl).UTC().Format(storage.DayLayout))

	var expired [][]byte
	c := b.Cursor()
	for k, v := c.First(); k != nil && bytes.Compare(k, cutoff) < 0; k, v = c.Next() {
		if markerExpired(v, now) {
			expired = append(expired, append([]byte(nil), k...))
		}
	}
	for _, k := range expired {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func markerExpired(value []byte, now time.Time) bool {
	expiry, err := time.Parse(time.RFC3339Nano, string(value))
	if err != nil {
		return true
	}
	return !now.Before(expiry)
}
