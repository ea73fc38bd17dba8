// Package commands implements the guardian-facing Discord slash commands
// for Maya: session control, voice selection, and review of the
// conversation log and flagged events.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/guardianvoice/maya/internal/discord"
	"github.com/guardianvoice/maya/internal/report"
	"github.com/guardianvoice/maya/internal/session"
	"github.com/guardianvoice/maya/pkg/provider/live"
)

// connectTimeout bounds the /maya connect handler.
const connectTimeout = 30 * time.Second

// followUpLimit keeps follow-up content under Discord's 2000-character
// message cap, leaving room for the code fence.
const followUpLimit = 1900

// contextLimit bounds free-form embed field values (flagged context, error
// text) well under Discord's 1024-character field cap.
const contextLimit = 200

// GuardianCommands holds the dependencies for the /maya command group.
type GuardianCommands struct {
	ctrl    *session.Controller
	perms   *discord.PermissionChecker
	persona string
	voices  []live.Voice
}

// NewGuardianCommands creates the command group and registers its handlers
// with the bot's router.
func NewGuardianCommands(bot *discord.Bot, ctrl *session.Controller, persona string, voices []live.Voice) *GuardianCommands {
	gc := &GuardianCommands{
		ctrl:    ctrl,
		perms:   bot.Permissions(),
		persona: persona,
		voices:  voices,
	}
	gc.Register(bot.Router())
	return gc
}

// Register registers the /maya command group with the router.
func (gc *GuardianCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("maya", gc.Definition(), func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand, e.g. `/maya status`.")
	})
	router.RegisterHandler("maya/status", gc.handleStatus)
	router.RegisterHandler("maya/connect", gc.guarded(gc.handleConnect))
	router.RegisterHandler("maya/disconnect", gc.guarded(gc.handleDisconnect))
	router.RegisterHandler("maya/voice", gc.guarded(gc.handleVoice))
	router.RegisterHandler("maya/report", gc.guarded(gc.handleReport))
	router.RegisterHandler("maya/flagged", gc.guarded(gc.handleFlagged))
	router.RegisterHandler("maya/clear", gc.guarded(gc.handleClear))
	router.RegisterAutocomplete("maya/voice", gc.autocompleteVoice)
}

// Definition returns the ApplicationCommand definition for Discord.
func (gc *GuardianCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "maya",
		Description: "Control and review the Maya voice companion",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show session state, voice, and history counts",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "connect",
				Description: "Open the live voice session",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "disconnect",
				Description: "End the live voice session",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "voice",
				Description: "Select the companion voice (takes effect next session)",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionString,
						Name:         "name",
						Description:  "Voice name",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "report",
				Description: "Print the guardian report",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "flagged",
				Description: "List recent flagged utterances",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "clear",
				Description: "Erase the conversation history (keeps the voice selection)",
			},
		},
	}
}

// guarded wraps a handler with the guardian role check.
func (gc *GuardianCommands) guarded(h discord.HandlerFunc) discord.HandlerFunc {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if !gc.perms.IsGuardian(i) {
			discord.RespondEphemeral(s, i, "You need the guardian role to use this command.")
			return
		}
		h(s, i)
	}
}

// ─── handlers ─────────────────────────────────────────────────────────────────

func (gc *GuardianCommands) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.RespondEmbed(s, i, gc.statusEmbed())
}

func (gc *GuardianCommands) statusEmbed() *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: gc.persona + " — status",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Session", Value: string(gc.ctrl.State()), Inline: true},
			{Name: "Voice", Value: gc.ctrl.Voice(), Inline: true},
			{Name: "Messages", Value: fmt.Sprintf("%d", len(gc.ctrl.Messages())), Inline: true},
			{Name: "Flagged", Value: fmt.Sprintf("%d", len(gc.ctrl.FlaggedEvents())), Inline: true},
		},
	}
	if err := gc.ctrl.LastError(); err != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Error", Value: truncate(err.Error(), contextLimit),
		})
	}
	return embed
}

func (gc *GuardianCommands) handleConnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := gc.ctrl.Connect(ctx); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to connect: %v", err))
		return
	}
	discord.FollowUp(s, i, fmt.Sprintf("%s is listening (voice: %s).", gc.persona, gc.ctrl.Voice()))
}

func (gc *GuardianCommands) handleDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	gc.ctrl.Disconnect()
	discord.RespondEphemeral(s, i, "Session ended.")
}

func (gc *GuardianCommands) handleVoice(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := subcommandOption(i, "name")
	if name == "" {
		discord.RespondEphemeral(s, i, "A voice name is required.")
		return
	}

	gc.ctrl.SetVoice(context.Background(), name)
	discord.RespondEphemeral(s, i, fmt.Sprintf("Voice set to **%s**. It takes effect on the next session.", name))
}

func (gc *GuardianCommands) handleReport(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.DeferReply(s, i)
	discord.FollowUp(s, i, "```\n"+gc.reportText()+"\n```")
}

func (gc *GuardianCommands) reportText() string {
	r := report.Report{
		PersonaName: gc.persona,
		GeneratedAt: time.Now(),
		Messages:    gc.ctrl.Messages(),
		Flagged:     gc.ctrl.FlaggedEvents(),
	}
	return truncate(r.Text(), followUpLimit)
}

func (gc *GuardianCommands) handleFlagged(s *discordgo.Session, i *discordgo.InteractionCreate) {
	discord.RespondEmbed(s, i, gc.flaggedEmbed())
}

func (gc *GuardianCommands) flaggedEmbed() *discordgo.MessageEmbed {
	flagged := gc.ctrl.FlaggedEvents()

	embed := &discordgo.MessageEmbed{Title: "Flagged for review"}
	if len(flagged) == 0 {
		embed.Description = "Nothing was flagged."
		return embed
	}

	const maxShown = 10
	for idx, ev := range flagged {
		if idx == maxShown {
			embed.Footer = &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("and %d more — use /maya report for the full list", len(flagged)-maxShown),
			}
			break
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("[%s] %s", strings.ToUpper(string(ev.Severity)), ev.Keyword),
			Value: truncate(ev.Context, contextLimit),
		})
	}
	return embed
}

func (gc *GuardianCommands) handleClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	gc.ctrl.ClearHistory(context.Background())
	discord.RespondEphemeral(s, i, "Conversation history erased.")
}

// autocompleteVoice suggests voices matching the typed prefix.
func (gc *GuardianCommands) autocompleteVoice(s *discordgo.Session, i *discordgo.InteractionCreate) {
	prefix := strings.ToLower(subcommandOption(i, "name"))

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, v := range gc.voices {
		if prefix != "" && !strings.HasPrefix(strings.ToLower(v.Name), prefix) {
			continue
		}
		label := v.Name
		if v.Label != "" {
			label = v.Label
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  label,
			Value: v.Name,
		})
	}

	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// subcommandOption extracts a string option from a subcommand interaction.
func subcommandOption(i *discordgo.InteractionCreate, name string) string {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return ""
	}
	for _, opt := range data.Options[0].Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

// truncate caps s at limit bytes, cutting on a rune boundary so multi-byte
// text is never split mid-sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
