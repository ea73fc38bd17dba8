package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/guardianvoice/maya/pkg/audio"
)

var _ audio.PlaybackStream = (*playbackStream)(nil)

// playbackStream converts written frames to 48 kHz stereo, slices them into
// exact Opus frame sizes, encodes, and sends them into the voice channel.
// Leftover PCM smaller than one Opus frame stays buffered until the next
// Write tops it up.
type playbackStream struct {
	p   *Platform
	vc  *discordgo.VoiceConnection
	enc *opusEncoder

	mu       sync.Mutex
	conv     audio.FormatConverter
	buf      []byte
	speaking bool
	closed   bool

	done chan struct{}
}

// newPlaybackStream builds the output stream. The converter keys off each
// frame's own sample rate and channel count, so no declared source format
// is needed here.
func newPlaybackStream(p *Platform, vc *discordgo.VoiceConnection) (*playbackStream, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	return &playbackStream{
		p:    p,
		vc:   vc,
		enc:  enc,
		conv: audio.FormatConverter{Target: audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}},
		done: make(chan struct{}),
	}, nil
}

// Write encodes one frame into the voice channel. Frames written after
// Close are silently dropped.
func (s *playbackStream) Write(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if !s.speaking {
		s.setSpeaking(true)
		s.speaking = true
	}

	frame = s.conv.Convert(frame)
	s.buf = append(s.buf, frame.Data...)

	for len(s.buf) >= opusFrameBytes {
		opus, err := s.enc.encode(s.buf[:opusFrameBytes])
		s.buf = s.buf[opusFrameBytes:]
		if err != nil {
			slog.Warn("discord: opus encode error", "error", err)
			continue
		}

		select {
		case s.vc.OpusSend <- opus:
		case <-s.done:
			return nil
		}
	}
	return nil
}

// Close clears speaking state, drops any buffered partial frame, and
// releases this stream's reference on the shared voice connection. Safe to
// call more than once.
func (s *playbackStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	if s.speaking {
		s.setSpeaking(false)
		s.speaking = false
	}
	s.buf = nil
	s.mu.Unlock()

	s.p.release()
	return nil
}

func (s *playbackStream) setSpeaking(b bool) {
	if err := s.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
