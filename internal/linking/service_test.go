package linking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openredstone/linkore/internal/domain"
	"github.com/openredstone/linkore/internal/storage"
	"github.com/openredstone/linkore/internal/token"
)

type serviceFixture struct {
	svc      *Service
	store    *fakeStore
	tokens   *token.Store
	guild    *fakeGuild
	provider *fakeProvider
	events   []domain.Event
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:    newFakeStore(),
		tokens:   token.NewStore(30 * time.Minute),
		guild:    newFakeGuild(trackedRoles()...),
		provider: newFakeProvider(testTrack, "member", "builder", "engineer"),
	}
	syncer := NewSyncer(f.guild, f.provider, testTrack)
	f.svc = NewService(f.store, f.tokens, syncer)
	f.svc.OnEvent = func(e domain.Event) { f.events = append(f.events, e) }
	return f
}

func (f *serviceFixture) eventTypes() []string {
	var types []string
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	return types
}

func TestRequestLinkIssuesCode(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	code, err := f.svc.RequestLink(ctx, uuid.New(), "Steve")
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestRequestLinkAlreadyLinked(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, f.store.LinkUser(ctx, domain.User{UUID: id, Name: "Steve", DiscordID: 7001}))

	_, err := f.svc.RequestLink(ctx, id, "Steve")
	assert.ErrorIs(t, err, ErrAlreadyLinked)
	assert.Equal(t, 0, f.tokens.Pending(), "no code may be issued for a linked player")
}

func TestCompleteLinkHappyPath(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	id := uuid.New()
	f.provider.setPrimary(id, "member")

	code, err := f.svc.RequestLink(ctx, id, "Steve")
	require.NoError(t, err)

	user, err := f.svc.CompleteLink(ctx, 7001, code)
	require.NoError(t, err)
	assert.Equal(t, domain.User{UUID: id, Name: "Steve", DiscordID: 7001}, user)

	stored, err := f.store.GetUserByUUID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, user, *stored)

	// Reconciliation ran: role added, nickname set
	assert.Contains(t, f.guild.mutationLog(), "add:Member")
	assert.Equal(t, "Steve", f.guild.nicknames[7001])
	assert.Equal(t, []string{domain.EventSynced, domain.EventLinked}, f.eventTypes())
}

func TestCompleteLinkInvalidToken(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.CompleteLink(context.Background(), 7001, "nope42")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCompleteLinkDiscordAlreadyLinked(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.LinkUser(ctx, domain.User{UUID: uuid.New(), Name: "Alex", DiscordID: 7001}))

	code, err := f.svc.RequestLink(ctx, uuid.New(), "Steve")
	require.NoError(t, err)

	_, err = f.svc.CompleteLink(ctx, 7001, code)
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestCompleteLinkEnforcesBijectionOnRace(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	idA, idB := uuid.New(), uuid.New()
	f.provider.setPrimary(idA, "member")

	codeA, err := f.svc.RequestLink(ctx, idA, "Alex")
	require.NoError(t, err)
	codeB, err := f.svc.RequestLink(ctx, idB, "Steve")
	require.NoError(t, err)

	_, err = f.svc.CompleteLink(ctx, 7001, codeA)
	require.NoError(t, err)

	// Same Discord account, different player: rejected by the store's
	// unique index even though the code itself is fine.
	_, err = f.svc.CompleteLink(ctx, 7001, codeB)
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestCompleteLinkSucceedsWhenSyncFails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	id := uuid.New()
	// No primary group registered: the sync will fail
	code, err := f.svc.RequestLink(ctx, id, "Steve")
	require.NoError(t, err)

	user, err := f.svc.CompleteLink(ctx, 7001, code)
	require.NoError(t, err, "link must succeed even when reconciliation fails")
	assert.Equal(t, id, user.UUID)

	_, err = f.store.GetUserByUUID(ctx, id)
	assert.NoError(t, err)
}

func TestUnlink(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := domain.User{UUID: uuid.New(), Name: "Steve", DiscordID: 7001}
	require.NoError(t, f.store.LinkUser(ctx, user))
	f.guild.memberRoles[7001] = []Role{{ID: "r1", Name: "Member"}}
	f.guild.nicknames[7001] = "Steve"

	got, err := f.svc.Unlink(ctx, 7001, "discord")
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = f.store.GetUserByDiscordID(ctx, 7001)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUnlinkNotLinked(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Unlink(context.Background(), 7001, "discord")
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestUnlinkByUUIDClearsDiscordState(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := domain.User{UUID: uuid.New(), Name: "Steve", DiscordID: 7001}
	require.NoError(t, f.store.LinkUser(ctx, user))
	f.guild.memberRoles[7001] = []Role{{ID: "r2", Name: "Builder"}}
	f.guild.nicknames[7001] = "Bob [Steve]"

	_, err := f.svc.UnlinkByUUID(ctx, user.UUID, "admin")
	require.NoError(t, err)

	assert.Empty(t, f.guild.memberRoles[7001])
	assert.Empty(t, f.guild.nicknames[7001])
	assert.Equal(t, []string{domain.EventUnlinked}, f.eventTypes())
}

func TestRename(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := domain.User{UUID: uuid.New(), Name: "Steve", DiscordID: 7001}
	require.NoError(t, f.store.LinkUser(ctx, user))
	f.provider.setPrimary(user.UUID, "member")
	f.guild.memberRoles[7001] = []Role{{ID: "r1", Name: "Member"}}
	f.guild.nicknames[7001] = "Steve"

	require.NoError(t, f.svc.Rename(ctx, user.UUID, "Steve2"))

	stored, err := f.store.GetUserByUUID(ctx, user.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Steve2", stored.Name)
	assert.Equal(t, "Steve2", f.guild.nicknames[7001])

	// Renaming an unlinked player
	assert.ErrorIs(t, f.svc.Rename(ctx, uuid.New(), "Ghost"), ErrNotLinked)
}

func TestForceSync(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := domain.User{UUID: uuid.New(), Name: "Steve", DiscordID: 7001}
	require.NoError(t, f.store.LinkUser(ctx, user))
	f.provider.setPrimary(user.UUID, "builder")

	got, err := f.svc.ForceSync(ctx, 7001)
	require.NoError(t, err)
	assert.Equal(t, user, got)
	assert.Contains(t, f.guild.mutationLog(), "add:Builder")

	_, err = f.svc.ForceSync(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestLookups(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user := domain.User{UUID: uuid.New(), Name: "Steve", DiscordID: 7001}
	require.NoError(t, f.store.LinkUser(ctx, user))

	got, err := f.svc.LookupDiscord(ctx, 7001)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	got, err = f.svc.LookupUUID(ctx, user.UUID)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = f.svc.LookupDiscord(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotLinked)
	_, err = f.svc.LookupUUID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotLinked)
}
