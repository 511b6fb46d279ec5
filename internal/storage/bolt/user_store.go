package bolt

import (
	"context"

	"github.com/goodtune/attendance/internal/storage"
	"go.etcd.io/bbolt"
)

type userStore struct {
	db *bbolt.DB
}

// Get retrieves a user by ID.
func (s *userStore) Get(ctx context.Context, id int64) (*storage.User, error) {
	user, err := getBucketValue[storage.User](ctx, s.db, bucketUsers, userKey(id))
	if err != nil {
		return nil, storage.Unavailable("get user", err)
	}
	return user, nil
}

// List retrieves all users ordered by ID.
func (s *userStore) List(ctx context.Context) ([]storage.User, error) {
	users, err := listBucket[storage.User](ctx, s.db, bucketUsers)
	if err != nil {
		return nil, storage.Unavailable("list users", err)
	}
	return users, nil
}

// ListAdmins retrieves users flagged as administrators.
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

// Upsert creates or updates a user.
func (s *userStore) Upsert(ctx context.Context, user storage.User) error {
	return storage.Unavailable("upsert user", putBucketValue(ctx, s.db, bucketUsers, userKey(user.ID), user))
}

// Delete removes a user by ID.
func (s *userStore) Delete(ctx context.Context, id int64) error {
	return storage.Unavailable("delete user", deleteBucketValue(ctx, s.db, bucketUsers, userKey(id)))
}
