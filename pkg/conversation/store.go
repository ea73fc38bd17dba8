package conversation

import "context"

// Store persists the conversation log, the flagged-event log, and the
// selected voice preference across restarts.
//
// Reads happen once at startup; writes happen on every mutation of the
// corresponding in-memory log. Implementations must be safe for concurrent
// use. Storage failures are surfaced as errors but never invalidate the
// caller's in-memory state — the session keeps running on memory alone.
type Store interface {
	// LoadMessages returns all persisted messages in insertion order.
	LoadMessages(ctx context.Context) ([]Message, error)

	// LoadEvents returns all persisted flagged events, most recent first.
	LoadEvents(ctx context.Context) ([]FlaggedEvent, error)

	// AppendMessage persists one finalized message.
	AppendMessage(ctx context.Context, msg Message) error

	// AppendEvent persists one flagged event.
	AppendEvent(ctx context.Context, ev FlaggedEvent) error

	// Voice returns the persisted voice preference, or fallback when no
	// preference has been stored yet.
	Voice(ctx context.Context, fallback string) (string, error)

	// SetVoice persists the voice preference.
	SetVoice(ctx context.Context, voice string) error

	// Clear removes both logs atomically from the caller's perspective.
	// The voice preference is untouched.
	Clear(ctx context.Context) error

	// Close releases any underlying resources. Safe to call more than once.
	Close() error
}
