package redis

import (
	"context"
	"time"

	"github.com/goodtune/attendance/internal/storage"
	"github.com/redis/go-redis/v9"
)

type reminderStore struct {
	client *redis.Client
}

// MarkSent sets the marker with SET NX EX and reports whether it was newly created
func (s *reminderStore) MarkSent(ctx context.Context, key storage.ReminderKey, ttl time.Duration) (bool, error) {
	created, err := s.client.SetNX(ctx, reminderKey(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, storage.Unavailable("mark reminder", err)
	}
	return created, nil
}

// WasSent reports whether a marker exists
func (s *reminderStore) WasSent(ctx context.Context, key storage.ReminderKey) (bool, error) {
	n, err := s.client.Exists(ctx, reminderKey(key)).Result()
	if err != nil {
		return false, storage.Unavailable("check reminder", err)
	}
	return n > 0, nil
}
