// Package discord runs the guild-side half of linkore: the slash commands,
// the role/nickname mutations and the log-channel notices.
package discord

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/openredstone/linkore/internal/linking"
)

// Bot manages the Discord session. It implements linking.Guild so the
// reconciler can drive role and nickname changes through it.
type Bot struct {
	session      *discordgo.Session
	guildID      string
	logChannelID string
	playing      string

	linking *linking.Service
}

// New creates the bot without opening the gateway connection.
func New(token, guildID, logChannelID, playing string) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers

	return &Bot{
		session:      session,
		guildID:      guildID,
		logChannelID: logChannelID,
		playing:      playing,
	}, nil
}

// UseLinking attaches the coordinator the slash commands talk to. Must be
// called before Start.
func (b *Bot) UseLinking(svc *linking.Service) {
	b.linking = svc
}

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start() error {
	if b.linking == nil {
		return fmt.Errorf("discord: no linking service attached")
	}

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)
	b.session.AddHandler(b.onMemberJoin)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		b.session.Close()
		return err
	}

	log.Printf("[discord] connected, commands registered on guild %s", b.guildID)
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() {
	if err := b.session.Close(); err != nil {
		log.Printf("[discord] closing session: %v", err)
	}
}

// Announce posts to the configured log channel, if any.
func (b *Bot) Announce(ctx context.Context, text string) {
	if b.logChannelID == "" {
		return
	}
	if _, err := b.session.ChannelMessageSend(b.logChannelID, text, discordgo.WithContext(ctx)); err != nil {
		log.Printf("[discord] posting to log channel: %v", err)
	}
}

func (b *Bot) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	if b.playing != "" {
		if err := s.UpdateGameStatus(0, b.playing); err != nil {
			log.Printf("[discord] setting activity: %v", err)
		}
	}
}

// onMemberJoin resyncs members that were linked before they (re)joined the
// guild, so their role and nickname are right from the start.
func (b *Bot) onMemberJoin(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.GuildID != b.guildID {
		return
	}
	discordID, err := strconv.ParseInt(m.User.ID, 10, 64)
	if err != nil {
		return
	}
	go func() {
		ctx := context.Background()
		if _, err := b.linking.ForceSync(ctx, discordID); err != nil && err != linking.ErrNotLinked {
			log.Printf("[discord] syncing joining member %s: %v", m.User.ID, err)
		}
	}()
}
