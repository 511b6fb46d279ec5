// Package users is the user directory: names for messages and the admin flag.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Directory wraps the user store with a display-name cache and admin fallback.
type Directory struct {
	store          storage.UserStore
	fallbackAdmins []int64
	names          *lru.Cache[int64, string]
	clock          clock.Clock
	logger         zerolog.Logger
}

// NewDirectory creates a directory. fallbackAdmins are used when no stored user is an admin.
func NewDirectory(store storage.UserStore, fallbackAdmins []int64, cacheSize int, clk clock.Clock, logger zerolog.Logger) (*Directory, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	names, err := lru.New[int64, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create name cache: %w", err)
	}

	return &Directory{
		store:          store,
		fallbackAdmins: fallbackAdmins,
		names:          names,
		clock:          clk,
		logger:         logger.With().Str("component", "users").Logger(),
	}, nil
}

// Register creates or updates a user, keeping the original creation time.
func (d *Directory) Register(ctx context.Context, user storage.User) (*storage.User, error) {
	if user.ID == 0 {
		return nil, fmt.Errorf("user id is required")
	}

	now := d.clock.Now()
	existing, err := d.store.Get(ctx, user.ID)
	switch {
	case err == nil:
		user.CreatedAt = existing.CreatedAt
	case errors.Is(err, storage.ErrNotFound):
		user.CreatedAt = now
	default:
		return nil, err
	}
	user.UpdatedAt = now

	if err := d.store.Upsert(ctx, user); err != nil {
		return nil, err
	}
	d.names.Remove(user.ID)

	d.logger.Debug().Int64("user_id", user.ID).Bool("admin", user.IsAdmin).Msg("User registered")
	return &user, nil
}

// Get returns a user or storage.ErrNotFound.
func (d *Directory) Get(ctx context.Context, id int64) (*storage.User, error) {
	return d.store.Get(ctx, id)
}

// List returns all users.
func (d *Directory) List(ctx context.Context) ([]storage.User, error) {
	return d.store.List(ctx)
}

// Remove deletes a user from the directory.
func (d *Directory) Remove(ctx context.Context, id int64) error {
	d.names.Remove(id)
	return d.store.Delete(ctx, id)
}

// DisplayName returns the user's name, or "User N" when unknown.
func (d *Directory) DisplayName(ctx context.Context, id int64) string {
	if name, ok := d.names.Get(id); ok {
		return name
	}

	user, err := d.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn().Err(err).Int64("user_id", id).Msg("Failed to look up user name")
			return fmt.Sprintf("User %d", id)
		}
		user = &storage.User{ID: id}
	}

	name := user.DisplayName()
	d.names.Add(id, name)
	return name
}

// AdminIDs returns every administrator, falling back to the configured list
// when the directory has none flagged.
func (d *Directory) AdminIDs(ctx context.Context) ([]int64, error) {
	admins, err := d.store.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}

	if len(admins) == 0 {
		return append([]int64(nil), d.fallbackAdmins...), nil
	}

	ids := make([]int64, len(admins))
	for i, a := range admins {
		ids[i] = a.ID
	}
	return ids, nil
}

// IsAdmin reports whether id may run administrative operations.
func (d *Directory) IsAdmin(ctx context.Context, id int64) (bool, error) {
	ids, err := d.AdminIDs(ctx)
	if err != nil {
		return false, err
	}
	for _, adminID := range ids {
		if adminID == id {
			return true, nil
		}
	}
	return false, nil
}
