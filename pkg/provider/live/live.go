// Package live defines the Provider interface for realtime duplex speech
// backends.
//
// A live provider wraps a voice AI service that accepts streaming audio
// input and returns synthesised audio plus transcripts in a single,
// stateful session. The central abstraction is [SessionHandle]: outbound
// audio goes in via SendAudio, and everything inbound — audio chunks,
// transcript fragments, turn boundaries, interruption signals, errors —
// comes out of a single ordered event stream as tagged [Event] variants.
// Consumers dispatch on the concrete event type and never probe optional
// fields.
//
// All implementations must be safe for concurrent use.
package live

import "context"

// Speaker identifies which side of the conversation a transcript fragment
// belongs to.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Event is one inbound session event. Exactly one of the concrete types
// below is delivered per value:
//
//   - [Opened] — the backend acknowledged the session setup.
//   - [AudioChunk] — one independently decodable chunk of synthesised audio.
//   - [TranscriptFragment] — a partial transcript for one speaker.
//   - [TurnComplete] — the current exchange finished; buffers may finalize.
//   - [Interrupted] — the user barged in; discard pending model audio.
//   - [SessionError] — a transport-level failure; the session is dead.
type Event interface {
	liveEvent()
}

// Opened signals that the backend accepted the session configuration.
type Opened struct{}

// AudioChunk carries one chunk of synthesised speech, still in its
// transport-safe (base64 PCM) wire encoding. Decoding is the playback
// scheduler's job so that a corrupt chunk can be skipped without killing
// the receive loop.
type AudioChunk struct {
	Media string
}

// TranscriptFragment is a partial transcript for one speaker. Fragments
// arrive many times per turn and in arbitrary interleaving; only
// [TurnComplete] makes them final.
type TranscriptFragment struct {
	Speaker Speaker
	Text    string
}

// TurnComplete marks the end of one exchange unit.
type TurnComplete struct{}

// Interrupted signals user barge-in while model audio was still playing.
type Interrupted struct{}

// SessionError carries a mid-session transport failure. After a
// SessionError the session is unusable; reconnection is always a fresh
// Connect.
type SessionError struct {
	Err error
}

func (Opened) liveEvent()             {}
func (AudioChunk) liveEvent()         {}
func (TranscriptFragment) liveEvent() {}
func (TurnComplete) liveEvent()       {}
func (Interrupted) liveEvent()        {}
func (SessionError) liveEvent()       {}

// Voice is one selectable prebuilt voice.
type Voice struct {
	// Name is the provider-side voice identifier.
	Name string

	// Label is a human-readable description for selection UIs.
	Label string
}

// SessionConfig is the initial configuration for a new live session.
// Output modality is always audio with transcription enabled for both
// directions; those are not configurable.
type SessionConfig struct {
	// Voice selects the prebuilt voice for synthesised output.
	Voice string

	// Instructions is the fixed behavioural persona text for the session.
	Instructions string
}

// SessionHandle represents an open live session.
//
// The session is the hot path of the voice pipeline — SendAudio must return
// quickly and consumers must drain Events promptly. Callers must call Close
// when the session is no longer needed; Close is idempotent.
type SessionHandle interface {
	// SendAudio delivers one transport-encoded (base64 PCM) capture frame.
	// Transmission is fire-and-forget from the caller's perspective; an
	// error means the session is closed or the write failed.
	SendAudio(media string) error

	// Events returns the ordered inbound event stream. The channel is
	// closed when the session ends; check [SessionHandle.Err] afterwards
	// to distinguish clean shutdown from failure.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil if it
	// ended cleanly.
	Err() error

	// Close terminates the session and releases all resources. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any realtime duplex speech backend.
type Provider interface {
	// Connect establishes a new live session with the given configuration.
	// The returned SessionHandle accepts audio immediately. The caller owns
	// the handle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Voices lists the prebuilt voices this provider offers.
	Voices() []Voice
}
