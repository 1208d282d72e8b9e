package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/writique/writique/internal/apperror"
	"github.com/writique/writique/internal/model"
	"github.com/writique/writique/internal/repository"
)

func newUser(externalID, email string) *model.User {
	return &model.User{
		ExternalID: externalID,
		Email:      email,
		FirstName:  "Ada",
		LastName:   "Lovelace",
		AvatarURL:  "https://example.com/a.png",
		Role:       model.RoleUser,
	}
}

func TestUserProvisionAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := newUser("user_1", "ada@example.com")
	require.NoError(t, db.Provision(ctx, user))
	assert.NotEmpty(t, user.ID)

	byExternal, err := db.GetByExternalID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byExternal.ID)
	assert.Equal(t, "ada@example.com", byExternal.Email)

	byID, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "user_1", byID.ExternalID)

	t.Run("unknown ids are not found", func(t *testing.T) {
		_, err := db.GetUserByID(ctx, "missing")
		assert.True(t, errors.Is(err, apperror.ErrNotFound))
		_, err = db.GetByExternalID(ctx, "user_missing")
		assert.True(t, errors.Is(err, apperror.ErrNotFound))
	})
}

// Provisioning the same subject twice must not create a second row; the
// second call adopts the first row.
func TestUserProvision_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := newUser("user_1", "ada@example.com")
	require.NoError(t, db.Provision(ctx, first))

	second := newUser("user_1", "changed@example.com")
	second.FirstName = "Grace"
	require.NoError(t, db.Provision(ctx, second))

	// The second caller holds the original row, not its own candidate.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "ada@example.com", second.Email)
	assert.Equal(t, "Ada", second.FirstName)

	users, err := db.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

// Two first logins racing for the same subject must converge on one row.
func TestUserProvision_Concurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const n = 10
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := newUser("user_race", fmt.Sprintf("race+%d@example.com", i))
			if err := db.Provision(ctx, u); err != nil {
				t.Errorf("provision failed: %v", err)
				return
			}
			ids <- u.ID
		}()
	}
	wg.Wait()
	close(ids)

	var winner string
	for id := range ids {
		if winner == "" {
			winner = id
		}
		assert.Equal(t, winner, id)
	}

	users, err := db.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

// Accounts with no visible email all store the empty string; that must not
// collide across subjects.
func TestUserProvision_NoEmailDoesNotCollide(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Provision(ctx, newUser("user_1", "")))
	require.NoError(t, db.Provision(ctx, newUser("user_2", "")))

	users, err := db.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUserUpdateByExternalID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := newUser("user_1", "ada@example.com")
	require.NoError(t, db.Provision(ctx, user))

	t.Run("only present fields change", func(t *testing.T) {
		name := "Grace"
		err := db.UpdateByExternalID(ctx, "user_1", repository.UserUpdate{FirstName: &name})
		require.NoError(t, err)

		got, err := db.GetByExternalID(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, "Grace", got.FirstName)
		assert.Equal(t, "Lovelace", got.LastName)
		assert.Equal(t, "ada@example.com", got.Email)
	})

	t.Run("empty update is a no-op", func(t *testing.T) {
		err := db.UpdateByExternalID(ctx, "user_1", repository.UserUpdate{})
		assert.NoError(t, err)
	})

	t.Run("unknown subject is not found", func(t *testing.T) {
		name := "Nobody"
		err := db.UpdateByExternalID(ctx, "user_missing", repository.UserUpdate{FirstName: &name})
		assert.True(t, errors.Is(err, apperror.ErrNotFound))
	})
}

func TestUserDeleteByExternalID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := newUser("user_1", "ada@example.com")
	require.NoError(t, db.Provision(ctx, user))

	require.NoError(t, db.DeleteByExternalID(ctx, "user_1"))

	_, err := db.GetByExternalID(ctx, "user_1")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	err = db.DeleteByExternalID(ctx, "user_1")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestUserFavorites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := newUser("user_1", "ada@example.com")
	require.NoError(t, db.Provision(ctx, user))

	t.Run("starts empty", func(t *testing.T) {
		ids, err := db.Favorites(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("add is idempotent", func(t *testing.T) {
		require.NoError(t, db.AddFavorite(ctx, user.ID, "post_a"))
		require.NoError(t, db.AddFavorite(ctx, user.ID, "post_b"))
		require.NoError(t, db.AddFavorite(ctx, user.ID, "post_a"))

		ids, err := db.Favorites(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"post_a", "post_b"}, ids)
	})

	t.Run("remove drops the entry", func(t *testing.T) {
		require.NoError(t, db.RemoveFavorite(ctx, user.ID, "post_a"))

		ids, err := db.Favorites(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"post_b"}, ids)
	})

	t.Run("removing a non-member succeeds", func(t *testing.T) {
		assert.NoError(t, db.RemoveFavorite(ctx, user.ID, "post_never"))
	})

	t.Run("favorites go away with the user", func(t *testing.T) {
		require.NoError(t, db.DeleteByExternalID(ctx, "user_1"))
		ids, err := db.Favorites(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
