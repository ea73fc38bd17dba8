package commands

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/guardianvoice/maya/internal/discord"
	"github.com/guardianvoice/maya/internal/safety"
	"github.com/guardianvoice/maya/internal/session"
	audiomock "github.com/guardianvoice/maya/pkg/audio/mock"
	"github.com/guardianvoice/maya/pkg/conversation"
	"github.com/guardianvoice/maya/pkg/conversation/file"
	livemock "github.com/guardianvoice/maya/pkg/provider/live/mock"
)

// ─── fixtures ─────────────────────────────────────────────────────────────────

// newTestController builds a controller over a file store pre-seeded with
// history, so status/report/flagged have something to show.
func newTestController(t *testing.T, seed bool) *session.Controller {
	t.Helper()

	path := filepath.Join(t.TempDir(), "history.json")
	if seed {
		store, err := file.New(path)
		if err != nil {
			t.Fatalf("file.New: %v", err)
		}
		ctx := context.Background()
		msgs := []conversation.Message{
			conversation.NewMessage(conversation.RoleUser, "i found a knife in the park"),
			conversation.NewMessage(conversation.RoleModel, "That sounds scary, tell an adult."),
		}
		for _, m := range msgs {
			if err := store.AppendMessage(ctx, m); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}
		}
		ev := conversation.NewFlaggedEvent("knife", "i found a knife in the park", conversation.SeverityHigh)
		if err := store.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	store, err := file.New(path)
	if err != nil {
		t.Fatalf("file.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	monitor, err := safety.New(nil, nil)
	if err != nil {
		t.Fatalf("safety.New: %v", err)
	}

	ctrl, err := session.New(context.Background(),
		&livemock.Provider{AutoOpen: true},
		&audiomock.Platform{},
		store, monitor,
		session.Config{Credential: "test-key", Voice: "Kore"},
	)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return ctrl
}

func newTestCommands(t *testing.T, seed bool) *GuardianCommands {
	t.Helper()
	return &GuardianCommands{
		ctrl:    newTestController(t, seed),
		perms:   discord.NewPermissionChecker(""),
		persona: "Maya",
	}
}

// ─── definition ───────────────────────────────────────────────────────────────

func TestDefinitionCoversAllHandlers(t *testing.T) {
	t.Parallel()

	gc := newTestCommands(t, false)
	def := gc.Definition()
	if def.Name != "maya" {
		t.Fatalf("command name = %q, want maya", def.Name)
	}

	want := []string{"status", "connect", "disconnect", "voice", "report", "flagged", "clear"}
	got := make(map[string]bool, len(def.Options))
	for _, opt := range def.Options {
		got[opt.Name] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("subcommand %q missing from definition", name)
		}
	}
	if len(def.Options) != len(want) {
		t.Errorf("definition has %d subcommands, want %d", len(def.Options), len(want))
	}
}

func TestRegisterPushesOneDefinition(t *testing.T) {
	t.Parallel()

	gc := newTestCommands(t, false)
	router := discord.NewCommandRouter()
	gc.Register(router)

	if cmds := router.ApplicationCommands(); len(cmds) != 1 || cmds[0].Name != "maya" {
		t.Fatalf("ApplicationCommands = %v, want single maya definition", cmds)
	}
}

// ─── embeds and report ────────────────────────────────────────────────────────

func TestStatusEmbed(t *testing.T) {
	t.Parallel()

	gc := newTestCommands(t, true)
	embed := gc.statusEmbed()

	fields := make(map[string]string, len(embed.Fields))
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	if fields["Session"] != string(session.StateDisconnected) {
		t.Errorf("Session field = %q, want %q", fields["Session"], session.StateDisconnected)
	}
	if fields["Voice"] != "Kore" {
		t.Errorf("Voice field = %q, want Kore", fields["Voice"])
	}
	if fields["Messages"] != "2" {
		t.Errorf("Messages field = %q, want 2", fields["Messages"])
	}
	if fields["Flagged"] != "1" {
		t.Errorf("Flagged field = %q, want 1", fields["Flagged"])
	}
	for _, f := range embed.Fields {
		if f.Name == "Error" {
			t.Errorf("Error field present with no session error: %q", f.Value)
		}
	}
}

func TestStatusEmbedShowsSessionError(t *testing.T) {
	t.Parallel()

	store, err := file.New(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("file.New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	monitor, err := safety.New(nil, nil)
	if err != nil {
		t.Fatalf("safety.New: %v", err)
	}
	ctrl, err := session.New(context.Background(),
		&livemock.Provider{ConnectErr: errors.New("connection refused")},
		&audiomock.Platform{},
		store, monitor,
		session.Config{Credential: "test-key", Voice: "Kore"},
	)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	if err := ctrl.Connect(context.Background()); err == nil {
		t.Fatal("Connect with a failing provider must error")
	}

	gc := &GuardianCommands{ctrl: ctrl, perms: discord.NewPermissionChecker(""), persona: "Maya"}
	embed := gc.statusEmbed()

	var errField string
	for _, f := range embed.Fields {
		if f.Name == "Error" {
			errField = f.Value
		}
	}
	if !strings.Contains(errField, "connection refused") {
		t.Fatalf("Error field = %q, want the connect failure", errField)
	}
}

func TestFlaggedEmbed(t *testing.T) {
	t.Parallel()

	gc := newTestCommands(t, true)
	embed := gc.flaggedEmbed()
	if len(embed.Fields) != 1 {
		t.Fatalf("embed fields = %d, want 1", len(embed.Fields))
	}
	if !strings.Contains(embed.Fields[0].Name, "HIGH") || !strings.Contains(embed.Fields[0].Name, "knife") {
		t.Errorf("field name = %q, want severity and keyword", embed.Fields[0].Name)
	}
	if !strings.Contains(embed.Fields[0].Value, "knife in the park") {
		t.Errorf("field value = %q, want context excerpt", embed.Fields[0].Value)
	}
}

func TestFlaggedEmbedEmpty(t *testing.T) {
	t.Parallel()

	gc := newTestCommands(t, false)
	embed := gc.flaggedEmbed()
	if len(embed.Fields) != 0 {
		t.Fatalf("embed fields = %d, want 0", len(embed.Fields))
	}
	if embed.Description != "Nothing was flagged." {
		t.Errorf("description = %q", embed.Description)
	}
}

func TestReportText(t *testing.T) {
	t.Parallel()

	gc := newTestCommands(t, true)
	text := gc.reportText()
	if !strings.Contains(text, "Maya — Guardian Report") {
		t.Error("report header missing")
	}
	if !strings.Contains(text, "knife") {
		t.Error("flagged keyword missing from report")
	}
	if len(text) > followUpLimit+len("…") {
		t.Errorf("report text %d chars, want <= %d", len(text), followUpLimit)
	}
}

// ─── option parsing ───────────────────────────────────────────────────────────

func TestSubcommandOption(t *testing.T) {
	t.Parallel()

	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "maya",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name: "voice",
						Type: discordgo.ApplicationCommandOptionSubCommand,
						Options: []*discordgo.ApplicationCommandInteractionDataOption{
							{Name: "name", Type: discordgo.ApplicationCommandOptionString, Value: "Puck"},
						},
					},
				},
			},
		},
	}

	if got := subcommandOption(i, "name"); got != "Puck" {
		t.Errorf("subcommandOption = %q, want Puck", got)
	}
	if got := subcommandOption(i, "missing"); got != "" {
		t.Errorf("subcommandOption(missing) = %q, want empty", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789…" {
		t.Errorf("truncate = %q", got)
	}
	// The cut must land on a rune boundary, never inside a multi-byte
	// sequence. "héllo" is h(1) é(2) l l o — a 4-byte limit falls inside
	// nothing, a 2-byte limit falls mid-é.
	if got := truncate("héllo", 4); got != "hél…" {
		t.Errorf("truncate(héllo, 4) = %q", got)
	}
	if got := truncate("héllo", 2); got != "h…" {
		t.Errorf("truncate(héllo, 2) = %q", got)
	}
}
