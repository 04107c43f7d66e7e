// Package repotest holds the behaviour every account.Repository backend
// must share, run against each backend from its own tests.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/userhub/internal/account"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newUser(n int, email, phone string) user.User {
	at := base.Add(time.Duration(n) * time.Minute)
	return user.User{
		ID:           uuid.NewString(),
		Username:     "user",
		Email:        email,
		Phone:        phone,
		PasswordHash: "$2a$04$notarealhash",
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// Run exercises repo-agnostic behaviour. newRepo must return an empty store.
func Run(t *testing.T, newRepo func(t *testing.T) account.Repository) {
	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u := newUser(0, "a@x.com", "555")
		u.ProfileImage = "/uploads/1-1.png"
		_, err := repo.Create(ctx, u)
		require.NoError(t, err)

		byID, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, byID.Email)
		assert.Equal(t, u.PasswordHash, byID.PasswordHash)
		assert.Equal(t, u.ProfileImage, byID.ProfileImage)
		assert.True(t, u.CreatedAt.Equal(byID.CreatedAt))

		byEmail, err := repo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		byPhone, err := repo.GetByPhone(ctx, "555")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byPhone.ID)
	})

	t.Run("unknown lookups", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, user.ErrNotFound)
		_, err = repo.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, user.ErrNotFound)
		_, err = repo.GetByEmail(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, user.ErrNotFound)
		_, err = repo.GetByPhone(ctx, "000")
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("unique email and phone", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Create(ctx, newUser(0, "a@x.com", "555"))
		require.NoError(t, err)

		_, err = repo.Create(ctx, newUser(1, "a@x.com", "556"))
		assert.ErrorIs(t, err, user.ErrEmailTaken)

		_, err = repo.Create(ctx, newUser(2, "b@x.com", "555"))
		assert.ErrorIs(t, err, user.ErrPhoneTaken)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		a, err := repo.Create(ctx, newUser(0, "a@x.com", "555"))
		require.NoError(t, err)
		_, err = repo.Create(ctx, newUser(1, "b@x.com", "556"))
		require.NoError(t, err)

		a.Username = "alice"
		a.UpdatedAt = a.UpdatedAt.Add(time.Hour)
		_, err = repo.Update(ctx, a)
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "a@x.com", got.Email)

		a.Email = "b@x.com"
		_, err = repo.Update(ctx, a)
		assert.ErrorIs(t, err, user.ErrEmailTaken)

		a.Email = "a@x.com"
		a.Phone = "556"
		_, err = repo.Update(ctx, a)
		assert.ErrorIs(t, err, user.ErrPhoneTaken)

		missing := newUser(3, "c@x.com", "557")
		_, err = repo.Update(ctx, missing)
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u, err := repo.Create(ctx, newUser(0, "a@x.com", "555"))
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, u.ID))
		_, err = repo.GetByID(ctx, u.ID)
		assert.ErrorIs(t, err, user.ErrNotFound)

		assert.ErrorIs(t, repo.Delete(ctx, u.ID), user.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "not-a-uuid"), user.ErrNotFound)

		// the email is free again
		_, err = repo.Create(ctx, newUser(1, "a@x.com", "555"))
		assert.NoError(t, err)
	})

	t.Run("list ordered by creation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		empty, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		late := newUser(5, "late@x.com", "2")
		early := newUser(1, "early@x.com", "1")
		_, err = repo.Create(ctx, late)
		require.NoError(t, err)
		_, err = repo.Create(ctx, early)
		require.NoError(t, err)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, early.ID, all[0].ID)
		assert.Equal(t, late.ID, all[1].ID)
	})
}
