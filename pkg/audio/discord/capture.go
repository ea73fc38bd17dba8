package discord

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/guardianvoice/maya/pkg/audio"
)

var _ audio.CaptureStream = (*captureStream)(nil)

const captureChannelBuffer = 64

// captureStream decodes the voice channel's inbound Opus packets and
// delivers them as PCM frames in the requested format.
//
// Discord sends a separate Opus stream per speaker (keyed by SSRC). Each
// stream gets its own decoder because Opus decoders carry state between
// packets; the decoded output of all speakers is forwarded onto one frame
// channel in arrival order.
type captureStream struct {
	p      *Platform
	vc     *discordgo.VoiceConnection
	frames chan audio.Frame

	done      chan struct{}
	closeOnce sync.Once
}

func newCaptureStream(p *Platform, vc *discordgo.VoiceConnection, format audio.Format) *captureStream {
	s := &captureStream{
		p:      p,
		vc:     vc,
		frames: make(chan audio.Frame, captureChannelBuffer),
		done:   make(chan struct{}),
	}
	go s.recvLoop(format)
	return s
}

// Frames returns the channel of decoded capture frames. It is closed when
// the stream is closed or the voice connection goes away.
func (s *captureStream) Frames() <-chan audio.Frame {
	return s.frames
}

// Close stops the receive loop and drops this stream's reference on the
// shared voice connection. Safe to call more than once.
func (s *captureStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.p.release()
	})
	return nil
}

// recvLoop reads Opus packets from the voice connection, decodes them per
// SSRC, converts to the requested format, and delivers frames. It is the
// sole sender on s.frames and closes it on exit.
func (s *captureStream) recvLoop(format audio.Format) {
	defer close(s.frames)

	decoders := make(map[uint32]*opusDecoder)
	conv := audio.FormatConverter{Target: format}
	start := time.Now()

	for {
		select {
		case <-s.done:
			return
		case pkt, ok := <-s.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}

			frame := conv.Convert(audio.Frame{
				Data:       pcm,
				SampleRate: opusSampleRate,
				Channels:   opusChannels,
				Timestamp:  time.Since(start),
			})

			select {
			case s.frames <- frame:
			default:
				// Consumer is behind; drop rather than stall the voice
				// connection's receive path.
			}
		}
	}
}
