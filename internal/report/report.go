// Package report renders conversation history and flagged events into a
// plain-text summary a guardian can read or archive without the app.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/guardianvoice/maya/pkg/conversation"
)

// timeLayout is the timestamp format used throughout the report.
const timeLayout = "2006-01-02 15:04:05 MST"

// Report carries everything that goes into one guardian summary.
type Report struct {
	// PersonaName is the companion's display name used in the transcript.
	PersonaName string

	// GeneratedAt stamps the report header. The zero value means time.Now.
	GeneratedAt time.Time

	// Messages is the conversation log in chronological order.
	Messages []conversation.Message

	// Flagged is the event log, most recent first.
	Flagged []conversation.FlaggedEvent
}

// Render writes the report to w. It returns the first write error
// encountered.
func (r Report) Render(w io.Writer) error {
	name := r.PersonaName
	if name == "" {
		name = "Maya"
	}
	at := r.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s — Guardian Report\n", name)
	fmt.Fprintf(&b, "Generated: %s\n", at.Format(timeLayout))
	fmt.Fprintf(&b, "Messages: %d   Flagged: %d\n", len(r.Messages), len(r.Flagged))

	b.WriteString("\n== Flagged for review ==\n")
	if len(r.Flagged) == 0 {
		b.WriteString("Nothing was flagged.\n")
	}
	for _, ev := range r.Flagged {
		fmt.Fprintf(&b, "[%s] %s  keyword=%q\n", strings.ToUpper(string(ev.Severity)), ev.CreatedAt.Format(timeLayout), ev.Keyword)
		fmt.Fprintf(&b, "    %q\n", ev.Context)
	}

	b.WriteString("\n== Conversation ==\n")
	if len(r.Messages) == 0 {
		b.WriteString("No messages recorded.\n")
	}
	for _, msg := range r.Messages {
		speaker := "Child"
		switch msg.Role {
		case conversation.RoleModel:
			speaker = name
		case conversation.RoleSystem:
			speaker = "System"
		}
		fmt.Fprintf(&b, "%s  %s: %s\n", msg.CreatedAt.Format(timeLayout), speaker, msg.Text)
	}

	_, err := io.WriteString(w, b.String())
	if err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}

// Text renders the report to a string.
func (r Report) Text() string {
	var b strings.Builder
	// strings.Builder writes never fail.
	_ = r.Render(&b)
	return b.String()
}
