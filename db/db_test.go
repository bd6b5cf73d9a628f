package db

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

func TestCreateUserDuplicate(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, database.CreateUser("alice", "pw1"))
	assert.ErrorIs(t, database.CreateUser("alice", "other"), ErrDuplicateUser)

	exists, err := database.UserExists("alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = database.UserExists("bob")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateUserConcurrentDuplicate(t *testing.T) {
	database := setupTestDB(t)

	// Concurrent registrations of the same name: the UNIQUE constraint
	// lets exactly one insert win, whatever the interleaving.
	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- database.CreateUser("alice", "pw1")
		}()
	}
	wg.Wait()
	close(errs)

	var created, duplicate int
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDuplicateUser):
			duplicate++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, duplicate)
}

func TestAuthenticateUser(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, database.CreateUser("alice", "pw1"))

	found, valid, err := database.AuthenticateUser("alice", "pw1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, valid)

	found, valid, err = database.AuthenticateUser("alice", "wrong")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, valid)

	found, _, err = database.AuthenticateUser("nobody", "pw1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFriendEdgesAreDirected(t *testing.T) {
	database := setupTestDB(t)

	created, err := database.AddFriend("alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)

	// Adding the same edge again is not an error, just a no-op.
	created, err = database.AddFriend("alice", "bob")
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := database.FriendExists("alice", "bob")
	require.NoError(t, err)
	assert.True(t, exists)

	// The reverse edge does not follow from the forward one.
	exists, err = database.FriendExists("bob", "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, database.RemoveFriend("alice", "bob"))
	assert.ErrorIs(t, database.RemoveFriend("alice", "bob"), ErrNoRows)
}

func TestGetFriends(t *testing.T) {
	database := setupTestDB(t)

	_, err := database.AddFriend("alice", "carol")
	require.NoError(t, err)
	_, err = database.AddFriend("alice", "bob")
	require.NoError(t, err)
	_, err = database.AddFriend("bob", "alice")
	require.NoError(t, err)

	friends, err := database.GetFriends("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, friends)
}

func TestDrainOffline(t *testing.T) {
	database := setupTestDB(t)

	require.NoError(t, database.EnqueueOffline("bob", "alice: first"))
	require.NoError(t, database.EnqueueOffline("bob", "alice: second"))
	require.NoError(t, database.EnqueueOffline("carol", "alice: other"))

	messages, err := database.DrainOffline("bob")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "alice: first", messages[0].Body)
	assert.Equal(t, "alice: second", messages[1].Body)

	// Drain deletes: a second drain finds nothing.
	messages, err = database.DrainOffline("bob")
	require.NoError(t, err)
	assert.Empty(t, messages)

	// Other addressees are untouched.
	messages, err = database.DrainOffline("carol")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "alice: other", messages[0].Body)
}
