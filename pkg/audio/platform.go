package audio

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned by [Platform.OpenCapture] when the
// underlying device or channel refuses access. The session controller
// surfaces it as a user-facing message and aborts the connect attempt.
var ErrPermissionDenied = errors.New("audio: capture permission denied")

// CaptureStream delivers microphone (or channel-mix) frames.
//
// The Frames channel is closed when the stream is closed or the underlying
// device goes away. Close is idempotent.
type CaptureStream interface {
	// Frames returns a read-only channel of captured frames in the format
	// requested at open time.
	Frames() <-chan Frame

	// Close releases the capture device. Safe to call more than once.
	Close() error
}

// PlaybackStream accepts frames for immediate output.
//
// Write must not block for extended periods; implementations buffer
// internally. Close is idempotent.
type PlaybackStream interface {
	// Write plays one frame. Frames written after Close are dropped, not
	// an error.
	Write(frame Frame) error

	// Close releases the output device. Safe to call more than once.
	Close() error
}

// Platform is the entry point for an audio device provider. Implementations
// wrap provider-specific SDKs (Discord voice, test mocks, …) and expose
// uniform capture and playback streams.
//
// Each open stream is owned exclusively by the current session attempt.
// Implementations must be safe for concurrent use.
type Platform interface {
	// OpenCapture acquires the capture device and starts delivering frames
	// converted to the requested format. Returns [ErrPermissionDenied]
	// (possibly wrapped) when access is refused.
	OpenCapture(ctx context.Context, format Format) (CaptureStream, error)

	// OpenPlayback acquires the output device for frames in the given format.
	OpenPlayback(ctx context.Context, format Format) (PlaybackStream, error)
}
