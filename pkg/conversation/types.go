// Package conversation defines the persistent data model of a Maya voice
// session: finalized messages, guardian-facing flagged events, and the
// Store interface both the file and PostgreSQL backends implement.
//
// Messages and FlaggedEvents are immutable once created. The message log is
// append-only in arrival order; the flagged-event log is most-recent-first.
// The only destructive operation is [Store.Clear], which empties both logs
// atomically from the caller's perspective.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a finalized message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleModel, RoleSystem:
		return true
	}
	return false
}

// Severity classifies how concerning a flagged keyword match is.
// SeverityLow is reserved in the data model but never emitted by the
// current classifier.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid reports whether s is a recognised severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Message is one finalized utterance in the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a Message with a fresh ID and the current timestamp.
func NewMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// FlaggedEvent records a safety-keyword match on a finalized utterance.
// Context carries the full source text so a guardian can judge the match.
type FlaggedEvent struct {
	ID        string    `json:"id"`
	Keyword   string    `json:"keyword"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"created_at"`
	Severity  Severity  `json:"severity"`
}

// NewFlaggedEvent creates a FlaggedEvent with a fresh ID and the current
// timestamp.
func NewFlaggedEvent(keyword, context string, severity Severity) FlaggedEvent {
	return FlaggedEvent{
		ID:        uuid.NewString(),
		Keyword:   keyword,
		Context:   context,
		CreatedAt: time.Now().UTC(),
		Severity:  severity,
	}
}
