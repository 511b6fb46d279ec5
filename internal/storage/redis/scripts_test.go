package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

// seedDay writes the keys a stored record would have for (userID, day)
func seedDay(t *testing.T, client *redis.Client, userID int64, day string, score float64, open bool) {
	t.Helper()
	ctx := context.Background()

	if err := client.Set(ctx, recordKey(userID, day), "{}", 0).Err(); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
	client.SAdd(ctx, dayUsersKey(day), userID)
	if open {
		client.SAdd(ctx, dayOpenKey(day), userID)
	}
	client.ZAdd(ctx, userDaysKey(userID), redis.Z{Score: score, Member: day})
	client.ZAdd(ctx, daysKey, redis.Z{Score: score, Member: day})
}

func TestDeleteRecordScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	seedDay(t, client, 1, "2024-05-06", 20240506, true)
	seedDay(t, client, 2, "2024-05-06", 20240506, false)

	tests := []struct {
		name        string
		userID      int64
		wantDeleted int64
		wantDayKept bool
	}{
		{"first of two users keeps day indexed", 1, 1, true},
		{"missing record is a no-op", 1, 0, true},
		{"last user drops day from index", 2, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := []string{
				recordKey(tt.userID, "2024-05-06"),
				dayUsersKey("2024-05-06"),
				dayOpenKey("2024-05-06"),
				userDaysKey(tt.userID),
				daysKey,
			}

			deleted, err := client.Eval(ctx, deleteRecordScript, keys, tt.userID, "2024-05-06").Int64()
			if err != nil {
				t.Fatalf("Script execution failed: %v", err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("deleted = %d, want %d", deleted, tt.wantDeleted)
			}

			if client.SIsMember(ctx, dayOpenKey("2024-05-06"), tt.userID).Val() {
				t.Error("user should not remain in open set")
			}

			_, err = client.ZScore(ctx, daysKey, "2024-05-06").Result()
			kept := err == nil
			if kept != tt.wantDayKept {
				t.Errorf("day indexed = %v, want %v", kept, tt.wantDayKept)
			}
		})
	}
}

func TestPurgeUserScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	seedDay(t, client, 7, "2024-05-05", 20240505, false)
	seedDay(t, client, 7, "2024-05-06", 20240506, true)
	seedDay(t, client, 8, "2024-05-06", 20240506, true)

	count, err := client.Eval(ctx, purgeUserScript, []string{userDaysKey(7), daysKey}, keyPrefix, 7).Int64()
	if err != nil {
		t.Fatalf("Script execution failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	if mr.Exists(recordKey(7, "2024-05-05")) || mr.Exists(recordKey(7, "2024-05-06")) {
		t.Error("user records should be deleted")
	}
	if mr.Exists(userDaysKey(7)) {
		t.Error("user day index should be deleted")
	}
	if !mr.Exists(recordKey(8, "2024-05-06")) {
		t.Error("other user's record should survive")
	}

	days, err := client.ZRange(ctx, daysKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("ZRange failed: %v", err)
	}
	if len(days) != 1 || days[0] != "2024-05-06" {
		t.Errorf("days index = %v, want [2024-05-06]", days)
	}
}
