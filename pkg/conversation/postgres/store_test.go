package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardianvoice/maya/pkg/conversation"
	"github.com/guardianvoice/maya/pkg/conversation/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if MAYA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MAYA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MAYA_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	for _, table := range []string{"messages", "flagged_events", "settings"} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}

	store, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := conversation.NewMessage(conversation.RoleUser, "hi maya")
	second := conversation.NewMessage(conversation.RoleModel, "hi! how was school today?")
	for _, m := range []conversation.Message{first, second} {
		if err := store.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := store.LoadMessages(ctx)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("LoadMessages = %d entries, want 2", len(msgs))
	}
	if msgs[0].ID != first.ID || msgs[1].ID != second.ID {
		t.Fatalf("messages out of order: %q then %q", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Role != conversation.RoleUser || msgs[1].Role != conversation.RoleModel {
		t.Fatalf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ev := conversation.NewFlaggedEvent("hurt myself", "sometimes i want to hurt myself", conversation.SeverityHigh)
	if err := store.AppendEvent(ctx, ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	evs, err := store.LoadEvents(ctx)
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("LoadEvents = %d entries, want 1", len(evs))
	}
	if evs[0].Severity != conversation.SeverityHigh || evs[0].Keyword != "hurt myself" {
		t.Fatalf("event = %+v", evs[0])
	}
}

func TestStoreVoice(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	voice, err := store.Voice(ctx, "Kore")
	if err != nil {
		t.Fatalf("Voice: %v", err)
	}
	if voice != "Kore" {
		t.Fatalf("Voice fallback = %q, want Kore", voice)
	}

	if err := store.SetVoice(ctx, "Fenrir"); err != nil {
		t.Fatalf("SetVoice: %v", err)
	}
	if err := store.SetVoice(ctx, "Zephyr"); err != nil {
		t.Fatalf("SetVoice (overwrite): %v", err)
	}

	voice, err = store.Voice(ctx, "Kore")
	if err != nil {
		t.Fatalf("Voice: %v", err)
	}
	if voice != "Zephyr" {
		t.Fatalf("Voice = %q, want Zephyr", voice)
	}
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.AppendMessage(ctx, conversation.NewMessage(conversation.RoleUser, "hello")); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := store.AppendEvent(ctx, conversation.NewFlaggedEvent("scared", "i am scared", conversation.SeverityMedium)); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.SetVoice(ctx, "Puck"); err != nil {
		t.Fatalf("SetVoice: %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	msgs, _ := store.LoadMessages(ctx)
	evs, _ := store.LoadEvents(ctx)
	if len(msgs) != 0 || len(evs) != 0 {
		t.Fatalf("after Clear: %d messages, %d events, want 0/0", len(msgs), len(evs))
	}
	voice, _ := store.Voice(ctx, "Kore")
	if voice != "Puck" {
		t.Fatalf("voice after Clear = %q, want Puck", voice)
	}
}
