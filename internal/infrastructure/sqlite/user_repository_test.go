package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botweave/internal/domain"
)

func TestUserRepository_Save_Insert(t *testing.T) {
	repo := setupTestDB(t).Users()

	user := &domain.User{Username: "alice", Nickname: "Alice"}
	err := repo.Save(user)
	require.NoError(t, err, "Save should succeed for new user")
	require.Greater(t, user.ID, int64(0), "User should have ID assigned")

	found, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", found.Username)
	require.Equal(t, "Alice", found.Nickname)
	require.WithinDuration(t, user.CreatedAt, found.CreatedAt, time.Second)
}

func TestUserRepository_Save_Update(t *testing.T) {
	repo := setupTestDB(t).Users()

	user := &domain.User{Username: "alice", Nickname: "Alice"}
	require.NoError(t, repo.Save(user))

	user.Nickname = "Al"
	require.NoError(t, repo.Save(user), "Save should succeed for update")

	found, err := repo.FindByID(user.ID)
	require.NoError(t, err)
	require.Equal(t, "Al", found.Nickname, "Nickname should be updated")
}

func TestUserRepository_Save_DuplicateUsername(t *testing.T) {
	repo := setupTestDB(t).Users()

	require.NoError(t, repo.Save(&domain.User{Username: "alice"}))

	err := repo.Save(&domain.User{Username: "alice"})
	require.Error(t, err, "Usernames are unique")
}

func TestUserRepository_FindByUsername(t *testing.T) {
	repo := setupTestDB(t).Users()

	user := &domain.User{Username: "alice"}
	require.NoError(t, repo.Save(user))

	found, err := repo.FindByUsername("alice")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	_, err = repo.FindByUsername("bob")
	var notFound *domain.UserNotFoundError
	require.True(t, errors.As(err, &notFound), "Error should be UserNotFoundError")
	require.Equal(t, "bob", notFound.Username)
}

func TestUserRepository_List(t *testing.T) {
	repo := setupTestDB(t).Users()

	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, repo.Save(&domain.User{Username: name}))
	}

	list, err := repo.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "alice", list[0].Username, "List should be ordered by ID")
}

func TestUserRepository_Delete(t *testing.T) {
	repo := setupTestDB(t).Users()

	user := &domain.User{Username: "alice"}
	require.NoError(t, repo.Save(user))

	require.NoError(t, repo.Delete(user.ID))

	_, err := repo.FindByID(user.ID)
	var notFound *domain.UserNotFoundError
	require.True(t, errors.As(err, &notFound), "Deleted user should not be found")
}
