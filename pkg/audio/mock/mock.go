// Package mock provides channel-backed [audio.Platform] test doubles.
package mock

import (
	"context"
	"sync"

	"github.com/guardianvoice/maya/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform       = (*Platform)(nil)
	_ audio.CaptureStream  = (*CaptureStream)(nil)
	_ audio.PlaybackStream = (*PlaybackStream)(nil)
)

// Platform is an in-memory audio.Platform. Feed capture frames via
// [Platform.PushFrame]; inspect playback via [PlaybackStream.Written].
type Platform struct {
	// CaptureErr, when non-nil, is returned by OpenCapture. Set it to
	// audio.ErrPermissionDenied to simulate a denied microphone.
	CaptureErr error

	// PlaybackErr, when non-nil, is returned by OpenPlayback.
	PlaybackErr error

	mu       sync.Mutex
	capture  *CaptureStream
	playback *PlaybackStream
}

// OpenCapture returns the platform's capture stream, creating it on first use.
func (p *Platform) OpenCapture(_ context.Context, _ audio.Format) (audio.CaptureStream, error) {
	if p.CaptureErr != nil {
		return nil, p.CaptureErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.capture == nil || p.capture.closed {
		p.capture = &CaptureStream{frames: make(chan audio.Frame, 64)}
	}
	return p.capture, nil
}

// OpenPlayback returns the platform's playback stream, creating it on first use.
func (p *Platform) OpenPlayback(_ context.Context, _ audio.Format) (audio.PlaybackStream, error) {
	if p.PlaybackErr != nil {
		return nil, p.PlaybackErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playback == nil || p.playback.closed {
		p.playback = &PlaybackStream{}
	}
	return p.playback, nil
}

// PushFrame delivers a frame to the open capture stream. It is a no-op when
// no capture stream is open or the stream is closed.
func (p *Platform) PushFrame(frame audio.Frame) {
	p.mu.Lock()
	cs := p.capture
	p.mu.Unlock()
	if cs == nil {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return
	}
	select {
	case cs.frames <- frame:
	default:
	}
}

// CaptureStream is the mock capture side.
type CaptureStream struct {
	frames chan audio.Frame

	mu     sync.Mutex
	closed bool
}

// Frames returns the channel PushFrame feeds.
func (s *CaptureStream) Frames() <-chan audio.Frame { return s.frames }

// Close marks the stream closed and closes the frame channel. Idempotent.
func (s *CaptureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.frames)
	return nil
}

// PlaybackStream records every frame written to it.
type PlaybackStream struct {
	mu      sync.Mutex
	written []audio.Frame
	closed  bool
}

// Write records the frame. Frames written after Close are dropped.
func (s *PlaybackStream) Write(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.written = append(s.written, frame)
	return nil
}

// Written returns a snapshot of all frames written so far.
func (s *PlaybackStream) Written() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Frame, len(s.written))
	copy(out, s.written)
	return out
}

// Close marks the stream closed. Idempotent.
func (s *PlaybackStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
