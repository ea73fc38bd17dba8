// Package postgres provides a PostgreSQL-backed implementation of
// [conversation.Store] for deployments where history must survive the
// local machine (shared family devices, guardian review from a second
// device).
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardianvoice/maya/pkg/conversation"
)

// Compile-time interface check.
var _ conversation.Store = (*Store)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlMessages = `
CREATE TABLE IF NOT EXISTS messages (
    id         TEXT        PRIMARY KEY,
    role       TEXT        NOT NULL,
    text       TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
)`

const ddlFlaggedEvents = `
CREATE TABLE IF NOT EXISTS flagged_events (
    id         TEXT        PRIMARY KEY,
    keyword    TEXT        NOT NULL,
    context    TEXT        NOT NULL,
    severity   TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
)`

const ddlSettings = `
CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

const ddlMessagesCreatedIdx = `
CREATE INDEX IF NOT EXISTS messages_created_at_idx ON messages (created_at)`

const ddlEventsCreatedIdx = `
CREATE INDEX IF NOT EXISTS flagged_events_created_at_idx ON flagged_events (created_at)`

const settingsVoiceKey = "voice"

// Store is a PostgreSQL-backed conversation store. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool to the database at dsn and runs the
// schema migration so all required tables exist.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{
		ddlMessages,
		ddlFlaggedEvents,
		ddlSettings,
		ddlMessagesCreatedIdx,
		ddlEventsCreatedIdx,
	} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// LoadMessages implements [conversation.Store]. Messages are returned in
// chronological order, oldest first.
func (s *Store) LoadMessages(ctx context.Context) ([]conversation.Message, error) {
	const q = `
		SELECT id, role, text, created_at
		FROM   messages
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load messages: %w", err)
	}
	defer rows.Close()

	var out []conversation.Message
	for rows.Next() {
		var m conversation.Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: load messages: %w", err)
	}
	return out, nil
}

// LoadEvents implements [conversation.Store]. Events are returned in
// chronological order, oldest first.
func (s *Store) LoadEvents(ctx context.Context) ([]conversation.FlaggedEvent, error) {
	const q = `
		SELECT id, keyword, context, severity, created_at
		FROM   flagged_events
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load events: %w", err)
	}
	defer rows.Close()

	var out []conversation.FlaggedEvent
	for rows.Next() {
		var ev conversation.FlaggedEvent
		if err := rows.Scan(&ev.ID, &ev.Keyword, &ev.Context, &ev.Severity, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: load events: %w", err)
	}
	return out, nil
}

// AppendMessage implements [conversation.Store].
func (s *Store) AppendMessage(ctx context.Context, msg conversation.Message) error {
	const q = `
		INSERT INTO messages (id, role, text, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, msg.ID, msg.Role, msg.Text, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: append message: %w", err)
	}
	return nil
}

// AppendEvent implements [conversation.Store].
func (s *Store) AppendEvent(ctx context.Context, ev conversation.FlaggedEvent) error {
	const q = `
		INSERT INTO flagged_events (id, keyword, context, severity, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, ev.ID, ev.Keyword, ev.Context, ev.Severity, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: append event: %w", err)
	}
	return nil
}

// Voice implements [conversation.Store]. It returns the persisted voice
// name, or fallback when none has been saved yet.
func (s *Store) Voice(ctx context.Context, fallback string) (string, error) {
	const q = `SELECT value FROM settings WHERE key = $1`

	var voice string
	err := s.pool.QueryRow(ctx, q, settingsVoiceKey).Scan(&voice)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fallback, nil
	case err != nil:
		return "", fmt.Errorf("postgres store: load voice: %w", err)
	}
	return voice, nil
}

// SetVoice implements [conversation.Store].
func (s *Store) SetVoice(ctx context.Context, voice string) error {
	const q = `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`

	if _, err := s.pool.Exec(ctx, q, settingsVoiceKey, voice); err != nil {
		return fmt.Errorf("postgres store: set voice: %w", err)
	}
	return nil
}

// Clear implements [conversation.Store]. Both tables are truncated in a
// single transaction; settings (including the voice) are left intact.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: clear: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("postgres store: clear messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM flagged_events`); err != nil {
		return fmt.Errorf("postgres store: clear events: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: clear: commit: %w", err)
	}
	return nil
}

// Close implements [conversation.Store]. It releases all connections held
// by the underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
