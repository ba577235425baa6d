// Package linking implements the account-link lifecycle: issuing link codes,
// redeeming them, and keeping Discord roles and nicknames in line with the
// permission groups on the proxy.
package linking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/openredstone/linkore/internal/domain"
	"github.com/openredstone/linkore/internal/groups"
)

// ErrMissingRoles is returned when the Discord guild lacks a role for one or
// more tracked groups. The sync is aborted before any mutation.
var ErrMissingRoles = errors.New("tracked groups missing from discord guild")

// Role is a Discord guild role as seen by the reconciler.
type Role struct {
	ID   string
	Name string
}

// Guild is the slice of the Discord API the reconciler needs. All calls may
// block on network I/O.
type Guild interface {
	Roles(ctx context.Context) ([]Role, error)
	MemberRoles(ctx context.Context, discordID int64) ([]Role, error)
	AddRole(ctx context.Context, discordID int64, roleID string) error
	RemoveRole(ctx context.Context, discordID int64, roleID string) error
	// Nickname returns the member's guild nickname, "" when unset.
	Nickname(ctx context.Context, discordID int64) (string, error)
	// SetNickname sets the member's guild nickname; "" resets it.
	SetNickname(ctx context.Context, discordID int64, nickname string) error
}

// Group 1 is the user-chosen alias, group 2 is the IGN
var nicknameRegexp = regexp.MustCompile(`(.+?)\[(\w{3,16})\]`)

// Syncer reconciles a linked user's Discord roles and nickname against their
// current primary permission group. It holds no state of its own; running it
// twice in a row applies nothing the second time.
type Syncer struct {
	guild  Guild
	groups groups.Provider
	track  string
}

// NewSyncer creates a reconciler for the given track.
func NewSyncer(guild Guild, provider groups.Provider, track string) *Syncer {
	return &Syncer{guild: guild, groups: provider, track: track}
}

// SyncUser brings the user's tracked roles and nickname up to date and
// returns the primary group that was applied. The primary group is looked up
// live rather than read from the stored link. Individual Discord mutations
// that fail (missing permission, member gone) are logged and skipped; only
// errors that prevent computing the diff abort the sync.
func (s *Syncer) SyncUser(ctx context.Context, user domain.User) (string, error) {
	primary, err := s.groups.PrimaryGroup(ctx, user.UUID)
	if err != nil {
		return "", err
	}
	primary = strings.ToLower(primary)

	if err := s.syncRoles(ctx, user, primary); err != nil {
		return "", err
	}
	s.syncName(ctx, user)
	return primary, nil
}

// ClearUser removes every tracked role from the user and resets their
// nickname. Used when a link is removed.
func (s *Syncer) ClearUser(ctx context.Context, user domain.User) error {
	// Removing everything is syncing against a primary group that cannot
	// match any tracked group.
	if err := s.syncRoles(ctx, user, ""); err != nil {
		return err
	}
	if err := s.guild.SetNickname(ctx, user.DiscordID, ""); err != nil {
		log.Printf("linking: resetting nickname for %s: %v", user, err)
	}
	return nil
}

func (s *Syncer) syncRoles(ctx context.Context, user domain.User, primary string) error {
	tracked, err := s.trackedGroups(ctx)
	if err != nil {
		return err
	}

	guildRoles, err := s.guild.Roles(ctx)
	if err != nil {
		return fmt.Errorf("listing guild roles: %w", err)
	}
	roleIDs := make(map[string]string, len(guildRoles))
	for _, role := range guildRoles {
		roleIDs[strings.ToLower(role.Name)] = role.ID
	}

	var missing []string
	for group := range tracked {
		if _, ok := roleIDs[group]; !ok {
			missing = append(missing, group)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRoles, strings.Join(missing, ", "))
	}

	memberRoles, err := s.guild.MemberRoles(ctx, user.DiscordID)
	if err != nil {
		return fmt.Errorf("listing roles of discord id %d: %w", user.DiscordID, err)
	}

	// The member's roles we are allowed to touch
	current := make(map[string]bool)
	for _, role := range memberRoles {
		name := strings.ToLower(role.Name)
		if tracked[name] {
			current[name] = true
		}
	}

	for name := range current {
		if name == primary {
			continue
		}
		if err := s.guild.RemoveRole(ctx, user.DiscordID, roleIDs[name]); err != nil {
			log.Printf("linking: removing role %q from %s: %v", name, user, err)
		}
	}

	if !tracked[primary] {
		// The primary group is not on the track, nothing to add
		return nil
	}
	if current[primary] {
		return nil
	}
	if err := s.guild.AddRole(ctx, user.DiscordID, roleIDs[primary]); err != nil {
		log.Printf("linking: adding role %q to %s: %v", primary, user, err)
	}
	return nil
}

func (s *Syncer) syncName(ctx context.Context, user domain.User) {
	nickname, err := s.guild.Nickname(ctx, user.DiscordID)
	if err != nil {
		log.Printf("linking: reading nickname of %s: %v", user, err)
		return
	}

	var newName string
	switch {
	case nickname == "":
		newName = user.Name
	case nickname == user.Name || strings.HasSuffix(nickname, " ["+user.Name+"]"):
		// Already up to date
		return
	default:
		match := nicknameRegexp.FindStringSubmatch(nickname)
		if match == nil {
			// Unparseable, overwrite with the bare IGN
			newName = user.Name
		} else {
			// Keep the user's alias, refresh the IGN part
			alias := strings.TrimSpace(match[1])
			newName = alias + " [" + user.Name + "]"
		}
	}

	if err := s.guild.SetNickname(ctx, user.DiscordID, newName); err != nil {
		log.Printf("linking: setting nickname of %s: %v", user, err)
	}
}

func (s *Syncer) trackedGroups(ctx context.Context) (map[string]bool, error) {
	names, err := s.groups.TrackGroups(ctx, s.track)
	if err != nil {
		return nil, fmt.Errorf("loading track %q: %w", s.track, err)
	}
	tracked := make(map[string]bool, len(names))
	for _, name := range names {
		tracked[strings.ToLower(name)] = true
	}
	return tracked, nil
}
