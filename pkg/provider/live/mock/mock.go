// Package mock provides scripted [live.Provider] test doubles.
package mock

import (
	"context"
	"sync"

	"github.com/guardianvoice/maya/pkg/provider/live"
)

// Compile-time interface assertions.
var (
	_ live.Provider      = (*Provider)(nil)
	_ live.SessionHandle = (*Session)(nil)
)

// Provider is an in-memory live.Provider. Each Connect call produces a new
// [Session] whose inbound events the test scripts via [Session.Emit].
type Provider struct {
	// ConnectErr, when non-nil, is returned by Connect.
	ConnectErr error

	// AutoOpen, when true, makes every new session emit [live.Opened]
	// immediately, mimicking a backend that acknowledges setup at once.
	AutoOpen bool

	mu       sync.Mutex
	sessions []*Session
}

// Connect creates and records a new scripted session.
func (p *Provider) Connect(_ context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	s := &Session{
		Config: cfg,
		events: make(chan live.Event, 64),
	}
	if p.AutoOpen {
		s.events <- live.Opened{}
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

// Voices returns a small fixed catalogue.
func (p *Provider) Voices() []live.Voice {
	return []live.Voice{
		{Name: "Kore", Label: "Kore (Test)"},
		{Name: "Puck", Label: "Puck (Test)"},
	}
}

// Sessions returns all sessions created so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Last returns the most recently created session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// Session is a scripted live session.
type Session struct {
	// Config is the configuration the session was opened with.
	Config live.SessionConfig

	events chan live.Event

	mu     sync.Mutex
	sent   []string
	errVal error
	closed bool
}

// Emit delivers one inbound event to the consumer. No-op after Close.
func (s *Session) Emit(ev live.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// Fail simulates a mid-session transport failure: the error is recorded,
// a [live.SessionError] is emitted, and the event stream is closed.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.errVal = err
	s.events <- live.SessionError{Err: err}
	s.closed = true
	close(s.events)
}

// SendAudio records the outbound media chunk.
func (s *Session) SendAudio(media string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errVal
	}
	s.sent = append(s.sent, media)
	return nil
}

// Sent returns a snapshot of all media chunks sent so far.
func (s *Session) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

// Events returns the scripted event stream.
func (s *Session) Events() <-chan live.Event { return s.events }

// Err returns the scripted failure, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Closed reports whether Close or Fail has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes the event stream. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
