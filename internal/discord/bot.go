// Package discord provides the Discord bot layer for Maya. It owns the
// discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, and checks guardian role permissions.
package discord

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// GuildID is the target guild (single-guild deployment).
	GuildID string

	// GuardianRoleID identifies guardians for privileged commands.
	// Empty allows everyone.
	GuardianRoleID string
}

// Bot owns the Discord gateway connection and routes interactions to
// registered command handlers.
type Bot struct {
	session *discordgo.Session
	router  *CommandRouter
	perms   *PermissionChecker
	guildID string

	mu       sync.Mutex
	commands []*discordgo.ApplicationCommand

	closeOnce sync.Once
}

// New creates a Bot, connects to the Discord gateway, and installs the
// interaction handler. Slash commands are pushed separately via
// [Bot.RegisterCommands] once all handlers are registered on the router.
func New(cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		perms:   NewPermissionChecker(cfg.GuardianRoleID),
		guildID: cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Session returns the underlying discordgo session for subsystems that
// need direct gateway access (the voice platform).
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the guardian role checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// RegisterCommands pushes all router-known command definitions to Discord,
// scoped to the configured guild so they appear immediately.
func (b *Bot) RegisterCommands() error {
	defs := b.router.ApplicationCommands()
	if len(defs) == 0 {
		return nil
	}

	appID := b.session.State.User.ID
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, defs)
	if err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}

	b.mu.Lock()
	b.commands = registered
	b.mu.Unlock()

	slog.Info("discord commands registered", "count", len(registered), "guild_id", b.guildID)
	return nil
}

// Close unregisters slash commands and closes the gateway connection.
// Safe to call more than once.
func (b *Bot) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		commands := b.commands
		b.commands = nil
		b.mu.Unlock()

		appID := ""
		if b.session.State != nil && b.session.State.User != nil {
			appID = b.session.State.User.ID
		}
		for _, cmd := range commands {
			if derr := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); derr != nil {
				slog.Warn("discord: unregister command", "name", cmd.Name, "err", derr)
			}
		}

		err = b.session.Close()
	})
	return err
}
