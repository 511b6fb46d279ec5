package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goodtune/attendance/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "attendance:"
	daysKey     = keyPrefix + "days"
	usersSetKey = keyPrefix + "users"
)

// attendance:record:{userID}:{YYYY-MM-DD}
func recordKey(userID int64, day string) string {
	return fmt.Sprintf("%srecord:%d:%s", keyPrefix, userID, day)
}

// attendance:day:{YYYY-MM-DD} holds every user with a record that day
func dayUsersKey(day string) string {
	return fmt.Sprintf("%sday:%s", keyPrefix, day)
}

// attendance:open:{YYYY-MM-DD} holds users whose latest session is open
func dayOpenKey(day string) string {
	return fmt.Sprintf("%sopen:%s", keyPrefix, day)
}

// attendance:user:{userID}:days is a sorted set of the user's days (score YYYYMMDD)
func userDaysKey(userID int64) string {
	return fmt.Sprintf("%suser:%d:days", keyPrefix, userID)
}

// attendance:users:{userID}
func userKey(id int64) string {
	return fmt.Sprintf("%susers:%d", keyPrefix, id)
}

// attendance:reminder:{YYYY-MM-DD}:{shift}:{userID}
func reminderKey(key storage.ReminderKey) string {
	return fmt.Sprintf("%sreminder:%s:%s:%d", keyPrefix, key.Day, key.Shift, key.UserID)
}

// loadRecords fetches record keys with a single MGET, skipping keys that vanished
func loadRecords(ctx context.Context, c redis.Cmdable, keys []string) ([]storage.DailyRecord, error) {
	if len(keys) == 0 {
		return []storage.DailyRecord{}, nil
	}

	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]storage.DailyRecord, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		record, err := storage.DecodeRecord([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", keys[i], err)
		}
		records = append(records, *record)
	}

	return records, nil
}

func parseIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
