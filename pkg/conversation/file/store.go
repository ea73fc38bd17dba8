// Package file provides a local JSON file implementation of
// [conversation.Store]. The full history is kept in memory and flushed
// to disk on every mutation, which is plenty for a single companion
// session per process.
//
// For multi-device deployments use the postgres implementation instead.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/guardianvoice/maya/pkg/conversation"
)

// Compile-time interface check.
var _ conversation.Store = (*Store)(nil)

// state is the on-disk document. The three top-level fields correspond to
// the chat history, the guardian flag log and the selected voice.
type state struct {
	Messages []conversation.Message      `json:"messages"`
	Events   []conversation.FlaggedEvent `json:"flagged_events"`
	Voice    string                      `json:"voice,omitempty"`
}

// Store persists conversation history as a single JSON document on disk.
// Thread-safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	path  string
	state state
}

// New creates a Store backed by the file at path. If the file exists its
// contents are loaded; if it does not, the store starts empty and the file
// is created on the first write. Parent directories are created as needed.
func New(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("file store: read %s: %w", path, err)
	}

	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("file store: parse %s: %w", path, err)
	}
	return s, nil
}

// LoadMessages implements [conversation.Store].
func (s *Store) LoadMessages(ctx context.Context) ([]conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.Message, len(s.state.Messages))
	copy(out, s.state.Messages)
	return out, nil
}

// LoadEvents implements [conversation.Store].
func (s *Store) LoadEvents(ctx context.Context) ([]conversation.FlaggedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.FlaggedEvent, len(s.state.Events))
	copy(out, s.state.Events)
	return out, nil
}

// AppendMessage implements [conversation.Store].
func (s *Store) AppendMessage(ctx context.Context, msg conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Messages = append(s.state.Messages, msg)
	if err := s.flush(); err != nil {
		s.state.Messages = s.state.Messages[:len(s.state.Messages)-1]
		return err
	}
	return nil
}

// AppendEvent implements [conversation.Store].
func (s *Store) AppendEvent(ctx context.Context, ev conversation.FlaggedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Events = append(s.state.Events, ev)
	if err := s.flush(); err != nil {
		s.state.Events = s.state.Events[:len(s.state.Events)-1]
		return err
	}
	return nil
}

// Voice implements [conversation.Store]. It returns the persisted voice
// name, or fallback when none has been saved yet.
func (s *Store) Voice(ctx context.Context, fallback string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Voice == "" {
		return fallback, nil
	}
	return s.state.Voice, nil
}

// SetVoice implements [conversation.Store].
func (s *Store) SetVoice(ctx context.Context, voice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state.Voice
	s.state.Voice = voice
	if err := s.flush(); err != nil {
		s.state.Voice = prev
		return err
	}
	return nil
}

// Clear implements [conversation.Store]. It removes all messages and flagged
// events but keeps the selected voice.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevMsgs, prevEvs := s.state.Messages, s.state.Events
	s.state.Messages = nil
	s.state.Events = nil
	if err := s.flush(); err != nil {
		s.state.Messages, s.state.Events = prevMsgs, prevEvs
		return err
	}
	return nil
}

// Close implements [conversation.Store]. The file store holds no open
// handles between operations, so Close is a no-op.
func (s *Store) Close() error { return nil }

// flush writes the current state to disk atomically (temp file + rename).
// Callers must hold s.mu.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file store: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".maya-*.json")
	if err != nil {
		return fmt.Errorf("file store: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("file store: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file store: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}
