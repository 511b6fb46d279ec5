package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/attendance/internal/storage"
	"github.com/redis/go-redis/v9"
)

type attendanceStore struct {
	client     *redis.Client
	maxRetries int
}

// update runs an optimistic read-modify-write on one (user, day) key.
// fn returns nil to leave the record untouched.
func (s *attendanceStore) update(ctx context.Context, userID int64, day time.Time, fn func(current *storage.DailyRecord) (*storage.DailyRecord, error)) (*storage.DailyRecord, error) {
	dayKey := storage.DayKey(day)
	key := recordKey(userID, dayKey)

	var result *storage.DailyRecord
	txf := func(tx *redis.Tx) error {
		var current *storage.DailyRecord
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
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

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, dayUsersKey(dayKey), userID)
			if next.IsOpen() {
				pipe.SAdd(ctx, dayOpenKey(dayKey), userID)
			} else {
				pipe.SRem(ctx, dayOpenKey(dayKey), userID)
			}
			score := float64(storage.DayScore(day))
			pipe.ZAdd(ctx, userDaysKey(userID), redis.Z{Score: score, Member: dayKey})
			pipe.ZAdd(ctx, daysKey, redis.Z{Score: score, Member: dayKey})
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// Another writer touched the key between GET and EXEC
			continue
		}
		return nil, storage.Unavailable("update "+key, err)
	}

	return nil, fmt.Errorf("update %s: %w: too many concurrent writers", key, storage.ErrUnavailable)
}

// UpsertOpenSession records a check-in for the day
func (s *attendanceStore) UpsertOpenSession(ctx context.Context, userID int64, day, at time.Time, debounce time.Duration) (*storage.DailyRecord, storage.CheckInKind, error) {
	var kind storage.CheckInKind

	record, err := s.update(ctx, userID, day, func(current *storage.DailyRecord) (*storage.DailyRecord, error) {
		if current == nil {
			kind = storage.CheckInFirst
			return storage.NewDailyRecord(userID, day, at), nil
		}

		next := current.Clone()
		k, err := next.ApplyCheckIn(at, debounce)
		if err != nil {
			return nil, err
		}
		kind = k
		if k == storage.CheckInDebounced {
			return nil, nil
		}
		return next, nil
	})
	if err != nil {
		return nil, 0, err
	}

	return record, kind, nil
}

// CloseLatestOpenSession closes the last open session of the day
func (s *attendanceStore) CloseLatestOpenSession(ctx context.Context, userID int64, day, at time.Time) (*storage.DailyRecord, storage.Session, error) {
	var closed storage.Session

	record, err := s.update(ctx, userID, day, func(current *storage.DailyRecord) (*storage.DailyRecord, error) {
		if current == nil {
			return nil, storage.ErrNoOpenSession
		}

		next := current.Clone()
		session, err := next.ApplyCheckOut(at)
		if err != nil {
			return nil, err
		}
		closed = session
		return next, nil
	})
	if err != nil {
		return nil, storage.Session{}, err
	}

	return record, closed, nil
}

// GetRecord retrieves one daily record
func (s *attendanceStore) GetRecord(ctx context.Context, userID int64, day time.Time) (*storage.DailyRecord, error) {
	key := recordKey(userID, storage.DayKey(day))

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Unavailable("get "+key, err)
	}

	record, err := storage.DecodeRecord(raw)
	if err != nil {
		return nil, storage.Unavailable("get "+key, err)
	}
	return record, nil
}

// ListOpenRecordsFor returns records of the day whose latest session is open
func (s *attendanceStore) ListOpenRecordsFor(ctx context.Context, day time.Time) ([]storage.DailyRecord, error) {
	records, err := s.listDaySet(ctx, day, dayOpenKey(storage.DayKey(day)))
	if err != nil {
		return nil, err
	}

	open := records[:0]
	for _, r := range records {
		if r.IsOpen() {
			open = append(open, r)
		}
	}
	return open, nil
}

// ListForDay returns every record of the day ordered by user
func (s *attendanceStore) ListForDay(ctx context.Context, day time.Time) ([]storage.DailyRecord, error) {
	return s.listDaySet(ctx, day, dayUsersKey(storage.DayKey(day)))
}

func (s *attendanceStore) listDaySet(ctx context.Context, day time.Time, setKey string) ([]storage.DailyRecord, error) {
	dayKey := storage.DayKey(day)

	members, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, storage.Unavailable("list "+setKey, err)
	}

	ids, err := parseIDs(members)
	if err != nil {
		return nil, storage.Unavailable("list "+setKey, err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id, dayKey)
	}

	records, err := loadRecords(ctx, s.client, keys)
	if err != nil {
		return nil, storage.Unavailable("list "+setKey, err)
	}

	storage.SortByDayAsc(records)
	return records, nil
}

// ListAll returns every record of a user, newest day first
func (s *attendanceStore) ListAll(ctx context.Context, userID int64) ([]storage.DailyRecord, error) {
	days, err := s.client.ZRevRange(ctx, userDaysKey(userID), 0, -1).Result()
	if err != nil {
		return nil, storage.Unavailable("list user days", err)
	}

	keys := make([]string, len(days))
	for i, day := range days {
		keys[i] = recordKey(userID, day)
	}

	records, err := loadRecords(ctx, s.client, keys)
	if err != nil {
		return nil, storage.Unavailable("list user records", err)
	}

	storage.SortByDayDesc(records)
	return records, nil
}

// ListRange returns all users' records between from and to inclusive, oldest first
func (s *attendanceStore) ListRange(ctx context.Context, from, to time.Time) ([]storage.DailyRecord, error) {
	days, err := s.client.ZRangeByScore(ctx, daysKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(storage.DayScore(from), 10),
		Max: strconv.FormatInt(storage.DayScore(to), 10),
	}).Result()
	if err != nil {
		return nil, storage.Unavailable("list days", err)
	}

	if len(days) == 0 {
		return []storage.DailyRecord{}, nil
	}

	// Use pipeline for batch retrieval of each day's users
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(days))
	for i, day := range days {
		cmds[i] = pipe.SMembers(ctx, dayUsersKey(day))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, storage.Unavailable("list day users", err)
	}

	var keys []string
	for i, cmd := range cmds {
		ids, err := parseIDs(cmd.Val())
		if err != nil {
			return nil, storage.Unavailable("list day users", err)
		}
		for _, id := range ids {
			keys = append(keys, recordKey(id, days[i]))
		}
	}

	records, err := loadRecords(ctx, s.client, keys)
	if err != nil {
		return nil, storage.Unavailable("list range", err)
	}

	storage.SortByDayAsc(records)
	return records, nil
}

// DeleteRecord removes one daily record
func (s *attendanceStore) DeleteRecord(ctx context.Context, userID int64, day time.Time) error {
	script := redis.NewScript(deleteRecordScript)

	dayKey := storage.DayKey(day)
	keys := []string{
		recordKey(userID, dayKey),
		dayUsersKey(dayKey),
		dayOpenKey(dayKey),
		userDaysKey(userID),
		daysKey,
	}

	deleted, err := script.Run(ctx, s.client, keys, userID, dayKey).Int64()
	if err != nil {
		return storage.Unavailable("delete record", err)
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteAllForUser removes every record of a user and returns how many were deleted
func (s *attendanceStore) DeleteAllForUser(ctx context.Context, userID int64) (int, error) {
	script := redis.NewScript(purgeUserScript)

	keys := []string{userDaysKey(userID), daysKey}
	count, err := script.Run(ctx, s.client, keys, keyPrefix, userID).Int64()
	if err != nil {
		return 0, storage.Unavailable("delete user records", err)
	}
	return int(count), nil
}
