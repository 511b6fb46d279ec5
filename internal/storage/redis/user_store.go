package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/goodtune/attendance/internal/storage"
	"github.com/redis/go-redis/v9"
)

type userStore struct {
	client *redis.Client
}

// Get retrieves a user by ID
func (s *userStore) Get(ctx context.Context, id int64) (*storage.User, error) {
	raw, err := s.client.Get(ctx, userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Unavailable("get user", err)
	}

	var user storage.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, storage.Unavailable("decode user", err)
	}
	return &user, nil
}

// List returns all users ordered by ID
func (s *userStore) List(ctx context.Context) ([]storage.User, error) {
	members, err := s.client.SMembers(ctx, usersSetKey).Result()
	if err != nil {
		return nil, storage.Unavailable("list users", err)
	}

	ids, err := parseIDs(members)
	if err != nil {
		return nil, storage.Unavailable("list users", err)
	}
	if len(ids) == 0 {
		return []storage.User{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storage.Unavailable("list users", err)
	}

	users := make([]storage.User, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var user storage.User
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return nil, storage.Unavailable("decode user", err)
		}
		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// ListAdmins returns users flagged as administrators
func (s *userStore) ListAdmins(ctx context.Context) ([]storage.User, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	admins := make([]storage.User, 0)
	for _, u := range users {
		if u.IsAdmin {
			admins = append(admins, u)
		}
	}
	return admins, nil
}

// Upsert creates or updates a user
func (s *userStore) Upsert(ctx context.Context, user storage.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, userKey(user.ID), data, 0)
		pipe.SAdd(ctx, usersSetKey, user.ID)
		return nil
	})
	return storage.Unavailable("upsert user", err)
}

// Delete removes a user
func (s *userStore) Delete(ctx context.Context, id int64) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, userKey(id))
		pipe.SRem(ctx, usersSetKey, id)
		return nil
	})
	if err != nil {
		return storage.Unavailable("delete user", err)
	}
	if del.Val() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
