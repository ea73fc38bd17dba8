// Package transcript assembles streaming partial transcript fragments into
// finalized conversation messages.
//
// Fragments are noisy: they arrive many times per turn, in arbitrary
// interleaving relative to audio, and may be revised by later fragments of
// the same turn. The only reliable commit point is the turn-complete signal
// from the live session, so all side effects (persistence, safety scanning)
// key off the finalized messages emitted by [Assembler.CompleteTurn], never
// off partials.
package transcript

import (
	"strings"
	"sync"

	"github.com/guardianvoice/maya/pkg/conversation"
)

// Assembler accumulates in-progress text for the current turn in two
// independent buffers, one per speaker side. Buffers live for the duration
// of one connection and are discarded on every connect.
//
// Safe for concurrent use.
type Assembler struct {
	mu    sync.Mutex
	user  strings.Builder
	model strings.Builder
}

// New creates an empty Assembler.
func New() *Assembler {
	return &Assembler{}
}

// AppendUser concatenates a user-side fragment into the user buffer.
// No normalization is applied; fragments carry their own spacing.
func (a *Assembler) AppendUser(text string) {
	a.mu.Lock()
	a.user.WriteString(text)
	a.mu.Unlock()
}

// AppendModel concatenates a model-side fragment into the model buffer.
func (a *Assembler) AppendModel(text string) {
	a.mu.Lock()
	a.model.WriteString(text)
	a.mu.Unlock()
}

// CompleteTurn finalizes the current turn: every buffer whose trimmed
// content is non-empty becomes one Message (user first, then model), and
// both buffers are cleared. Returns the finalized messages in emit order;
// the slice is empty when neither side said anything.
func (a *Assembler) CompleteTurn() []conversation.Message {
	a.mu.Lock()
	userText := strings.TrimSpace(a.user.String())
	modelText := strings.TrimSpace(a.model.String())
	a.user.Reset()
	a.model.Reset()
	a.mu.Unlock()

	var out []conversation.Message
	if userText != "" {
		out = append(out, conversation.NewMessage(conversation.RoleUser, userText))
	}
	if modelText != "" {
		out = append(out, conversation.NewMessage(conversation.RoleModel, modelText))
	}
	return out
}

// InterruptModel discards the in-progress model buffer without emitting a
// message. Called when playback is barged in mid-utterance — the unfinished
// model transcript no longer corresponds to anything the user heard in
// full. The user buffer is untouched.
func (a *Assembler) InterruptModel() {
	a.mu.Lock()
	a.model.Reset()
	a.mu.Unlock()
}

// Reset clears both buffers. Called when a connection is torn down.
func (a *Assembler) Reset() {
	a.mu.Lock()
	a.user.Reset()
	a.model.Reset()
	a.mu.Unlock()
}
