package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/openredstone/linkore/internal/linking"
)

const commandTimeout = 15 * time.Second

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "link",
		Description: "Link your Discord account with your Minecraft account",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "code",
				Description: "The code from running the link command ingame",
				Required:    true,
			},
		},
	},
	{
		Name:        "unlink",
		Description: "Unlink this Discord account from your Minecraft account",
	},
	{
		Name:        "forcesync",
		Description: "Re-sync your Discord role and nickname with your ingame rank",
	},
	{
		Name:        "whois",
		Description: "Show the Minecraft account linked to a Discord user",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "The Discord user to look up",
				Required:    true,
			},
		},
	},
}

func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	for _, cmd := range commands {
		if _, err := b.session.ApplicationCommandCreate(appID, b.guildID, cmd); err != nil {
			return fmt.Errorf("registering /%s: %w", cmd.Name, err)
		}
	}
	return nil
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.Member == nil {
		return
	}
	discordID, err := strconv.ParseInt(i.Member.User.ID, 10, 64)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	data := i.ApplicationCommandData()
	var reply string
	switch data.Name {
	case "link":
		reply = b.doLink(ctx, discordID, data.Options[0].StringValue())
	case "unlink":
		reply = b.doUnlink(ctx, discordID)
	case "forcesync":
		reply = b.doForceSync(ctx, discordID)
	case "whois":
		reply = b.doWhois(ctx, data.Options[0].UserValue(s))
	default:
		return
	}

	b.respondEphemeral(i.Interaction, reply)
}

func (b *Bot) doLink(ctx context.Context, discordID int64, code string) string {
	user, err := b.linking.CompleteLink(ctx, discordID, code)
	switch {
	case err == nil:
		return fmt.Sprintf("You are now linked to **%s** (`%s`)!", user.Name, user.UUID)
	case errors.Is(err, linking.ErrAlreadyLinked):
		if user.Name != "" {
			return fmt.Sprintf("You are already linked to %s (`%s`).", user.Name, user.UUID)
		}
		return "That account is already linked."
	case errors.Is(err, linking.ErrInvalidToken):
		return fmt.Sprintf("Invalid code provided! I do not recognize the code `%s`.", code)
	default:
		log.Printf("[discord] /link for %d: %v", discordID, err)
		return "Something went wrong, please try again later."
	}
}

func (b *Bot) doUnlink(ctx context.Context, discordID int64) string {
	_, err := b.linking.Unlink(ctx, discordID, "discord")
	switch {
	case err == nil:
		return "You are now unlinked. Run the link command ingame to link again."
	case errors.Is(err, linking.ErrNotLinked):
		return "You are not linked to any Minecraft account!"
	default:
		log.Printf("[discord] /unlink for %d: %v", discordID, err)
		return "Something went wrong, please try again later."
	}
}

func (b *Bot) doForceSync(ctx context.Context, discordID int64) string {
	user, err := b.linking.ForceSync(ctx, discordID)
	switch {
	case err == nil:
		return fmt.Sprintf("Synced your role and nickname with **%s**.", user.Name)
	case errors.Is(err, linking.ErrNotLinked):
		return "You are not linked to any Minecraft account!"
	default:
		log.Printf("[discord] /forcesync for %d: %v", discordID, err)
		return "Sync failed, please try again later."
	}
}

func (b *Bot) doWhois(ctx context.Context, target *discordgo.User) string {
	if target == nil {
		return "I could not resolve that user."
	}
	discordID, err := strconv.ParseInt(target.ID, 10, 64)
	if err != nil {
		return "I could not resolve that user."
	}
	user, err := b.linking.LookupDiscord(ctx, discordID)
	switch {
	case err == nil:
		return fmt.Sprintf("%s is linked to **%s** (`%s`).", target.Mention(), user.Name, user.UUID)
	case errors.Is(err, linking.ErrNotLinked):
		return fmt.Sprintf("%s is not linked to any Minecraft account.", target.Mention())
	default:
		log.Printf("[discord] /whois for %s: %v", target.ID, err)
		return "Something went wrong, please try again later."
	}
}

func (b *Bot) respondEphemeral(interaction *discordgo.Interaction, text string) {
	err := b.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("[discord] responding to interaction: %v", err)
	}
}
