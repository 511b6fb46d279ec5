package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/attendance/internal/clock"
	"github.com/goodtune/attendance/internal/storage"
	"github.com/goodtune/attendance/internal/storage/bolt"
	"github.com/rs/zerolog"
)

func newTestDirectory(t *testing.T, fallback []int64) (*Directory, *clock.TestClock) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "users.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := &clock.TestClock{CurrentTime: time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)}
	dir, err := NewDirectory(store.Users(), fallback, 16, clk, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDirectory() error = %v", err)
	}
	return dir, clk
}

func TestDirectory_RegisterKeepsCreatedAt(t *testing.T) {
	dir, clk := newTestDirectory(t, nil)
	ctx := context.Background()

	first, err := dir.Register(ctx, storage.User{ID: 1, FirstName: "Ana"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	clk.Advance(time.Hour)
	second, err := dir.Register(ctx, storage.User{ID: 1, FirstName: "Ana", LastName: "Lima"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", second.CreatedAt, first.CreatedAt)
	}
	if !second.UpdatedAt.Equal(clk.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", second.UpdatedAt, clk.Now())
	}
}

func TestDirectory_DisplayName(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	if got := dir.DisplayName(ctx, 5); got != "User 5" {
		t.Errorf("DisplayName(unknown) = %q, want %q", got, "User 5")
	}

	if _, err := dir.Register(ctx, storage.User{ID: 5, FirstName: "Bea"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := dir.DisplayName(ctx, 5); got != "Bea" {
		t.Errorf("DisplayName() after register = %q, want %q", got, "Bea")
	}
}

func TestDirectory_AdminFallback(t *testing.T) {
	dir, _ := newTestDirectory(t, []int64{99})
	ctx := context.Background()

	ok, err := dir.IsAdmin(ctx, 99)
	if err != nil {
		t.Fatalf("IsAdmin() error = %v", err)
	}
	if !ok {
		t.Error("configured fallback admin should be admin when none are flagged")
	}

	if _, err := dir.Register(ctx, storage.User{ID: 7, FirstName: "Cy", IsAdmin: true}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ids, err := dir.AdminIDs(ctx)
	if err != nil {
		t.Fatalf("AdminIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Errorf("AdminIDs() = %v, want [7]", ids)
	}

	ok, err = dir.IsAdmin(ctx, 99)
	if err != nil {
		t.Fatalf("IsAdmin() error = %v", err)
	}
	if ok {
		t.Error("fallback admin should not apply once a stored admin exists")
	}
}

func TestDirectory_Remove(t *testing.T) {
	dir, _ := newTestDirectory(t, nil)
	ctx := context.Background()

	if _, err := dir.Register(ctx, storage.User{ID: 3, FirstName: "Dee"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_ = dir.DisplayName(ctx, 3)

	if err := dir.Remove(ctx, 3); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := dir.Get(ctx, 3); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if got := dir.DisplayName(ctx, 3); got != "User 3" {
		t.Errorf("DisplayName() after remove = %q, want %q", got, "User 3")
	}
}
