package discord

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/openredstone/linkore/internal/linking"
)

// linking.Guild implementation. Discord's API speaks string snowflakes,
// linkore stores int64 ids; the conversion lives here and nowhere else.

var _ linking.Guild = (*Bot)(nil)

// Roles lists the guild's roles.
func (b *Bot) Roles(ctx context.Context) ([]linking.Role, error) {
	guildRoles, err := b.session.GuildRoles(b.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing guild roles: %w", err)
	}
	roles := make([]linking.Role, 0, len(guildRoles))
	for _, role := range guildRoles {
		roles = append(roles, linking.Role{ID: role.ID, Name: role.Name})
	}
	return roles, nil
}

// MemberRoles lists the roles the member currently holds.
func (b *Bot) MemberRoles(ctx context.Context, discordID int64) ([]linking.Role, error) {
	member, err := b.member(ctx, discordID)
	if err != nil {
		return nil, err
	}
	guildRoles, err := b.session.GuildRoles(b.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing guild roles: %w", err)
	}
	byID := make(map[string]*discordgo.Role, len(guildRoles))
	for _, role := range guildRoles {
		byID[role.ID] = role
	}
	roles := make([]linking.Role, 0, len(member.Roles))
	for _, roleID := range member.Roles {
		if role, ok := byID[roleID]; ok {
			roles = append(roles, linking.Role{ID: role.ID, Name: role.Name})
		}
	}
	return roles, nil
}

// AddRole grants a role to the member.
func (b *Bot) AddRole(ctx context.Context, discordID int64, roleID string) error {
	return b.session.GuildMemberRoleAdd(b.guildID, snowflake(discordID), roleID, discordgo.WithContext(ctx))
}

// RemoveRole revokes a role from the member.
func (b *Bot) RemoveRole(ctx context.Context, discordID int64, roleID string) error {
	return b.session.GuildMemberRoleRemove(b.guildID, snowflake(discordID), roleID, discordgo.WithContext(ctx))
}

// Nickname returns the member's guild nickname, "" when unset.
func (b *Bot) Nickname(ctx context.Context, discordID int64) (string, error) {
	member, err := b.member(ctx, discordID)
	if err != nil {
		return "", err
	}
	return member.Nick, nil
}

// SetNickname sets the member's guild nickname; "" resets it.
func (b *Bot) SetNickname(ctx context.Context, discordID int64, nickname string) error {
	return b.session.GuildMemberNickname(b.guildID, snowflake(discordID), nickname, discordgo.WithContext(ctx))
}

func (b *Bot) member(ctx context.Context, discordID int64) (*discordgo.Member, error) {
	member, err := b.session.GuildMember(b.guildID, snowflake(discordID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching member %d: %w", discordID, err)
	}
	return member, nil
}

func snowflake(id int64) string {
	return strconv.FormatInt(id, 10)
}
