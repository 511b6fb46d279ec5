package bolt

import (
	"context"
	"strconv"
	"time"

	"github.com/goodtune/attendance/internal/storage"
	"go.etcd.io/bbolt"
)

type attendanceStore struct {
	db *bbolt.DB
}

// update runs fn inside a single write transaction, which serializes writers.
// fn returns nil to leave the record untouched.
func (s *attendanceStore) update(ctx context.Context, userID int64, day time.Time, fn func(current *storage.DailyRecord) (*storage.DailyRecord, error)) (*storage.DailyRecord, error) {
	dayKey := storage.DayKey(day)
	key := recordKey(userID, dayKey)

	var result *storage.DailyRecord
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		records := tx.Bucket([]byte(bucketRecords))
		index, err := dayIndex(tx)
		if err != nil {
			return err
		}

		var current *storage.DailyRecord
		if raw := records.Get(key); raw != nil {
			if current, err = storage.DecodeRecord(raw); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}

		data, err := storage.EncodeRecord(next)
		if err != nil {
			return err
		}
		if err := records.Put(key, data); err != nil {
			return err
		}

		state := indexValueClosed
		if next.IsOpen() {
			state = indexValueOpen
		}
		if err := index.Put(dayIndexKey(dayKey, userID), []byte(state)); err != nil {
			return err
		}

		result = next
		return nil
	})
	if err != nil {
		return nil, storage.Unavailable("update record", err)
	}

	return result, nil
}

// UpsertOpenSession records a check-in for the day.
func (s *attendanceStore) UpsertOpenSession(ctx context.Context, userID int64, day, at time.Time, debounce time.Duration) (*storage.DailyRecord, storage.CheckInKind, error) {
	var kind storage.CheckInKind

	record, err := s.update(ctx, userID, day, func(current *storage.DailyRecord) (*storage.DailyRecord, error) {
		if current == nil {
			kind = storage.CheckInFirst
			return storage.NewDailyRecord(userID, day, at), nil
		}

		k, err := current.ApplyCheckIn(at, debounce)
		if err != nil {
			return nil, err
		}
		kind = k
		if k == storage.CheckInDebounced {
			return nil, nil
		}
		return current, nil
	})
	if err != nil {
		return nil, 0, err
	}

	return record, kind, nil
}

// CloseLatestOpenSession closes the last open session of the day.
func (s *attendanceStore) CloseLatestOpenSession(ctx context.Context, userID int64, day, at time.Time) (*storage.DailyRecord, storage.Session, error) {
	var closed storage.Session

	record, err := s.update(ctx, userID, day, func(current *storage.DailyRecord) (*storage.DailyRecord, error) {
		if current == nil {
			return nil, storage.ErrNoOpenSession
		}

		session, err := current.ApplyCheckOut(at)
		if err != nil {
			return nil, err
		}
		closed = session
		return current, nil
	})
	if err != nil {
		return nil, storage.Session{}, err
	}

	return record, closed, nil
}

// GetRecord retrieves one daily record.
func (s *attendanceStore) GetRecord(ctx context.Context, userID int64, day time.Time) (*storage.DailyRecord, error) {
	var record *storage.DailyRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw := tx.Bucket([]byte(bucketRecords)).Get(recordKey(userID, storage.DayKey(day)))
		if raw == nil {
			return storage.ErrNotFound
		}
		var err error
		record, err = storage.DecodeRecord(raw)
		return err
	})
	if err != nil {
		return nil, storage.Unavailable("get record", err)
	}

	return record, nil
}

// ListOpenRecordsFor returns records of the day whose latest session is open.
func (s *attendanceStore) ListOpenRecordsFor(ctx context.Context, day time.Time) ([]storage.DailyRecord, error) {
	return s.listDay(ctx, day, true)
}

// ListForDay returns every record of the day ordered by user.
func (s *attendanceStore) ListForDay(ctx context.Context, day time.Time) ([]storage.DailyRecord, error) {
	return s.listDay(ctx, day, false)
}

func (s *attendanceStore) listDay(ctx context.Context, day time.Time, openOnly bool) ([]storage.DailyRecord, error) {
	dayKey := storage.DayKey(day)
	records := make([]storage.DailyRecord, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		index, err := dayIndex(tx)
		if err != nil {
			return err
		}
		bucket := tx.Bucket([]byte(bucketRecords))

		return scanPrefix(index, []byte(dayKey+"/"), func(k, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if openOnly && string(v) != indexValueOpen {
				return nil
			}
			record, err := loadIndexed(bucket, k)
			if err != nil || record == nil {
				return err
			}
			records = append(records, *record)
			return nil
		})
	})
	if err != nil {
		return nil, storage.Unavailable("list day", err)
	}

	return records, nil
}

// loadIndexed resolves a {day}/{userID} index key to its record.
func loadIndexed(records *bbolt.Bucket, indexKey []byte) (*storage.DailyRecord, error) {
	key := string(indexKey)
	if len(key) < len(storage.DayLayout)+2 {
		return nil, nil
	}
	day := key[:len(storage.DayLayout)]
	userID, err := strconv.ParseInt(key[len(storage.DayLayout)+1:], 10, 64)
	if err != nil {
		return nil, err
	}

	raw := records.Get(recordKey(userID, day))
	if raw == nil {
		return nil, nil
	}
	return storage.DecodeRecord(raw)
}

// ListAll returns every record of a user, newest day first.
func (s *attendanceStore) ListAll(ctx context.Context, userID int64) ([]storage.DailyRecord, error) {
	records := make([]storage.DailyRecord, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return scanPrefix(tx.Bucket([]byte(bucketRecords)), userPrefix(userID), func(_, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			record, err := storage.DecodeRecord(v)
			if err != nil {
				return err
			}
			records = append(records, *record)
			return nil
		})
	})
	if err != nil {
		return nil, storage.Unavailable("list user records", err)
	}

	storage.SortByDayDesc(records)
	return records, nil
}

// ListRange returns all users' records between from and to inclusive, oldest first.
func (s *attendanceStore) ListRange(ctx context.Context, from, to time.Time) ([]storage.DailyRecord, error) {
	start := storage.DayKey(from)
	end := storage.DayKey(to)
	records := make([]storage.DailyRecord, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		index, err := dayIndex(tx)
		if err != nil {
			return err
		}
		bucket := tx.Bucket([]byte(bucketRecords))

		c := index.Cursor()
		for k, _ := c.Seek([]byte(start)); k != nil; k, _ = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if len(k) < len(end) || string(k[:len(end)]) > end {
				break
			}
			record, err := loadIndexed(bucket, k)
			if err != nil {
				return err
			}
			if record != nil {
				records = append(records, *record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storage.Unavailable("list range", err)
	}

	return records, nil
}

// DeleteRecord removes one daily record.
func (s *attendanceStore) DeleteRecord(ctx context.Context, userID int64, day time.Time) error {
	dayKey := storage.DayKey(day)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		records := tx.Bucket([]byte(bucketRecords))
		key := recordKey(userID, dayKey)
		if records.Get(key) == nil {
			return storage.ErrNotFound
		}
		if err := records.Delete(key); err != nil {
			return err
		}

		index, err := dayIndex(tx)
		if err != nil {
			return err
		}
		return index.Delete(dayIndexKey(dayKey, userID))
	})

	return storage.Unavailable("delete record", err)
}

// DeleteAllForUser removes every record of a user and returns how many were deleted.
func (s *attendanceStore) DeleteAllForUser(ctx context.Context, userID int64) (int, error) {
	count := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket([]byte(bucketRecords))
		index, err := dayIndex(tx)
		if err != nil {
			return err
		}

		// Collect first; deleting while iterating a cursor skips keys
		prefix := userPrefix(userID)
		var keys [][]byte
		if err := scanPrefix(records, prefix, func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}

		for _, k := range keys {
			day := string(k[len(prefix):])
			if err := records.Delete(k); err != nil {
				return err
			}
			if err := index.Delete(dayIndexKey(day, userID)); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, storage.Unavailable("delete user records", err)
	}

	return count, nil
}
