package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openredstone/linkore/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLinkAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := domain.User{UUID: uuid.New(), Name: "Notch", DiscordID: 1001}
	require.NoError(t, s.LinkUser(ctx, user))

	byUUID, err := s.GetUserByUUID(ctx, user.UUID)
	require.NoError(t, err)
	assert.Equal(t, user, *byUUID)

	byDiscord, err := s.GetUserByDiscordID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, user, *byDiscord)
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUserByUUID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetUserByDiscordID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinkUserUpsertsByUUID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := domain.User{UUID: uuid.New(), Name: "Notch", DiscordID: 1001}
	require.NoError(t, s.LinkUser(ctx, user))

	// Re-linking the same player replaces the row
	user.Name = "Herobrine"
	user.DiscordID = 2002
	require.NoError(t, s.LinkUser(ctx, user))

	got, err := s.GetUserByUUID(ctx, user.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Herobrine", got.Name)
	assert.Equal(t, int64(2002), got.DiscordID)

	_, err = s.GetUserByDiscordID(ctx, 1001)
	assert.ErrorIs(t, err, ErrNotFound, "old discord id should be gone")
}

func TestLinkUserRejectsTakenDiscordID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LinkUser(ctx, domain.User{UUID: uuid.New(), Name: "Notch", DiscordID: 1001}))

	err := s.LinkUser(ctx, domain.User{UUID: uuid.New(), Name: "Herobrine", DiscordID: 1001})
	assert.ErrorIs(t, err, ErrDiscordIDTaken)
}

func TestUnlinkUserIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := domain.User{UUID: uuid.New(), Name: "Notch", DiscordID: 1001}
	require.NoError(t, s.LinkUser(ctx, user))

	require.NoError(t, s.UnlinkUser(ctx, 1001))
	_, err := s.GetUserByUUID(ctx, user.UUID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Second delete is a no-op
	require.NoError(t, s.UnlinkUser(ctx, 1001))
}

func TestUpdateUserName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := domain.User{UUID: uuid.New(), Name: "Notch", DiscordID: 1001}
	require.NoError(t, s.LinkUser(ctx, user))

	require.NoError(t, s.UpdateUserName(ctx, user.UUID, "Herobrine"))

	got, err := s.GetUserByUUID(ctx, user.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Herobrine", got.Name)

	assert.ErrorIs(t, s.UpdateUserName(ctx, uuid.New(), "nobody"), ErrNotFound)
}

func TestListUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LinkUser(ctx, domain.User{UUID: uuid.New(), Name: "zed", DiscordID: 1}))
	require.NoError(t, s.LinkUser(ctx, domain.User{UUID: uuid.New(), Name: "alice", DiscordID: 2}))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Name)
	assert.Equal(t, "zed", users[1].Name)
}

func TestAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateAccount(ctx, "admin", "hash", true))

	a, err := s.GetAccountByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, a.IsAdmin)
	assert.Equal(t, "hash", a.PasswordHash)
	assert.Nil(t, a.LastLogin)

	require.NoError(t, s.UpdateAccountPassword(ctx, a.ID, "hash2"))
	require.NoError(t, s.UpdateAccountLastLogin(ctx, a.ID))

	a, err = s.GetAccountByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash2", a.PasswordHash)
	assert.NotNil(t, a.LastLogin)

	_, err = s.GetAccountByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDeleteAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateAccount(ctx, "zed", "h1", false))
	require.NoError(t, s.CreateAccount(ctx, "alice", "h2", true))

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Username)

	require.NoError(t, s.DeleteAccount(ctx, "zed"))
	assert.ErrorIs(t, s.DeleteAccount(ctx, "zed"), ErrNotFound)

	accounts, err = s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}
