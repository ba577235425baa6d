package linking

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/openredstone/linkore/internal/domain"
	"github.com/openredstone/linkore/internal/storage"
)

// fakeGuild is an in-memory Discord guild. Mutations apply to its state, so
// a second sync against it really sees the result of the first.
type fakeGuild struct {
	mu          sync.Mutex
	roles       []Role
	memberRoles map[int64][]Role
	nicknames   map[int64]string

	mutations []string // log of applied mutations, for diff assertions

	addErr    error
	removeErr error
	nickErr   error
}

func newFakeGuild(roles ...Role) *fakeGuild {
	return &fakeGuild{
		roles:       roles,
		memberRoles: make(map[int64][]Role),
		nicknames:   make(map[int64]string),
	}
}

func (g *fakeGuild) Roles(ctx context.Context) ([]Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Role(nil), g.roles...), nil
}

func (g *fakeGuild) MemberRoles(ctx context.Context, discordID int64) ([]Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Role(nil), g.memberRoles[discordID]...), nil
}

func (g *fakeGuild) AddRole(ctx context.Context, discordID int64, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.addErr != nil {
		return g.addErr
	}
	for _, role := range g.roles {
		if role.ID == roleID {
			g.memberRoles[discordID] = append(g.memberRoles[discordID], role)
			g.mutations = append(g.mutations, fmt.Sprintf("add:%s", role.Name))
			return nil
		}
	}
	return fmt.Errorf("no such role %s", roleID)
}

func (g *fakeGuild) RemoveRole(ctx context.Context, discordID int64, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removeErr != nil {
		return g.removeErr
	}
	kept := g.memberRoles[discordID][:0]
	for _, role := range g.memberRoles[discordID] {
		if role.ID == roleID {
			g.mutations = append(g.mutations, fmt.Sprintf("remove:%s", role.Name))
			continue
		}
		kept = append(kept, role)
	}
	g.memberRoles[discordID] = kept
	return nil
}

func (g *fakeGuild) Nickname(ctx context.Context, discordID int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nicknames[discordID], nil
}

func (g *fakeGuild) SetNickname(ctx context.Context, discordID int64, nickname string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nickErr != nil {
		return g.nickErr
	}
	if nickname == "" {
		delete(g.nicknames, discordID)
	} else {
		g.nicknames[discordID] = nickname
	}
	g.mutations = append(g.mutations, fmt.Sprintf("nick:%s", nickname))
	return nil
}

func (g *fakeGuild) mutationLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.mutations...)
}

func (g *fakeGuild) resetMutations() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mutations = nil
}

// fakeProvider serves permission data from maps.
type fakeProvider struct {
	mu      sync.Mutex
	primary map[uuid.UUID]string
	tracks  map[string][]string
}

func newFakeProvider(track string, groups ...string) *fakeProvider {
	return &fakeProvider{
		primary: make(map[uuid.UUID]string),
		tracks:  map[string][]string{track: groups},
	}
}

func (p *fakeProvider) setPrimary(id uuid.UUID, group string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.primary[id] = group
}

func (p *fakeProvider) PrimaryGroup(ctx context.Context, id uuid.UUID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	group, ok := p.primary[id]
	if !ok {
		return "", fmt.Errorf("no permission data for %s", id)
	}
	return group, nil
}

func (p *fakeProvider) TrackGroups(ctx context.Context, track string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	groups, ok := p.tracks[track]
	if !ok {
		return nil, fmt.Errorf("no such track %q", track)
	}
	return groups, nil
}

// fakeStore is an in-memory UserStore with the same uniqueness behaviour as
// the SQLite implementation.
type fakeStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[uuid.UUID]domain.User)}
}

func (f *fakeStore) GetUserByUUID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &user, nil
}

func (f *fakeStore) GetUserByDiscordID(ctx context.Context, discordID int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.DiscordID == discordID {
			return &user, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) LinkUser(ctx context.Context, user domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.users {
		if existing.DiscordID == user.DiscordID && id != user.UUID {
			return storage.ErrDiscordIDTaken
		}
	}
	f.users[user.UUID] = user
	return nil
}

func (f *fakeStore) UnlinkUser(ctx context.Context, discordID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if user.DiscordID == discordID {
			delete(f.users, id)
		}
	}
	return nil
}

func (f *fakeStore) UpdateUserName(ctx context.Context, id uuid.UUID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	user.Name = name
	f.users[id] = user
	return nil
}
