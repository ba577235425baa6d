package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// UnlinkedUser is a player who has requested a link but not yet redeemed a
// code on Discord. It only lives inside the token store.
type UnlinkedUser struct {
	UUID uuid.UUID `json:"uuid"`
	Name string    `json:"name"`
}

// User is a completed link between a Minecraft account and a Discord account.
// At most one row exists per UUID and per Discord id.
type User struct {
	UUID      uuid.UUID `json:"uuid"`
	Name      string    `json:"name"`
	DiscordID int64     `json:"discord_id"`
}

// LinkTo promotes an unlinked user to a full link with the given Discord id.
func (u UnlinkedUser) LinkTo(discordID int64) User {
	return User{
		UUID:      u.UUID,
		Name:      u.Name,
		DiscordID: discordID,
	}
}

func (u User) String() string {
	return fmt.Sprintf("%s (%s / discord %d)", u.Name, u.UUID, u.DiscordID)
}
