package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goodtune/attendance/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketRecords    = "records"
	bucketIndexes    = "indexes"
	bucketIndexDays  = "days"
	bucketUsers      = "users"
	bucketReminders  = "reminders"
	indexValueOpen   = "open"
	indexValueClosed = "closed"
)

// Store implements the storage.Store interface using bbolt.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			[]byte(bucketRecords),
			[]byte(bucketIndexes),
			[]byte(bucketUsers),
			[]byte(bucketReminders),
		}

		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}

		indexes := tx.Bucket([]byte(bucketIndexes))
		if indexes == nil {
			return fmt.Errorf("indexes bucket missing")
		}
		if _, err := indexes.CreateBucketIfNotExists([]byte(bucketIndexDays)); err != nil {
			return fmt.Errorf("create day index: %w", err)
		}

		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Attendance returns the daily record store.
func (s *Store) Attendance() storage.AttendanceStore { return &attendanceStore{db: s.db} }

// Users returns the user directory store.
func (s *Store) Users() storage.UserStore { return &userStore{db: s.db} }

// Reminders returns the reminder marker store.
func (s *Store) Reminders() storage.ReminderStore { return &reminderStore{db: s.db, now: s.now} }

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

// {userID}/{day}, zero padded so a user's records sort by day
func recordKey(userID int64, day string) []byte {
	return []byte(fmt.Sprintf("%020d/%s", userID, day))
}

func userPrefix(userID int64) []byte {
	return []byte(fmt.Sprintf("%020d/", userID))
}

// {day}/{userID}, so one cursor walk covers a day or a range of days
func dayIndexKey(day string, userID int64) []byte {
	return []byte(fmt.Sprintf("%s/%020d", day, userID))
}

func userKey(id int64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}

func listBucket[T any](ctx context.Context, db *bbolt.DB, bucket string) ([]T, error) {
	items := make([]T, 0)
	return items, db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var item T
			if err := unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
	})
}

func getBucketValue[T any](ctx context.Context, db *bbolt.DB, bucket string, key []byte) (*T, error) {
	var item *T
	err := db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get(key)
		if value == nil {
			return storage.ErrNotFound
		}
		var result T
		if err := unmarshal(value, &result); err != nil {
			return err
		}
		item = &result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func putBucketValue(ctx context.Context, db *bbolt.DB, bucket string, key []byte, value any) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucket)
		}
		return b.Put(key, data)
	})
}

func deleteBucketValue(ctx context.Context, db *bbolt.DB, bucket string, key []byte) error {
	return db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get(key)
		if value == nil {
			return storage.ErrNotFound
		}
		return b.Delete(key)
	})
}

func dayIndex(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	root := tx.Bucket([]byte(bucketIndexes))
	if root == nil {
		return nil, fmt.Errorf("indexes bucket missing")
	}
	b := root.Bucket([]byte(bucketIndexDays))
	if b == nil {
		return nil, fmt.Errorf("day index bucket missing")
	}
	return b, nil
}

// scanPrefix visits every key/value under prefix in key order.
func scanPrefix(b *bbolt.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
