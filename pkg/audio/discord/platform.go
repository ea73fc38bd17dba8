// Package discord implements [audio.Platform] on top of a Discord voice
// channel via the bwmarrin/discordgo library. The voice channel stands in
// for the microphone and speaker: audio spoken in the channel is decoded
// from Opus and delivered as capture frames, and playback frames are
// encoded to Opus and sent back into the channel.
//
// The platform requires an active *discordgo.Session (owned by the caller)
// plus a guild and voice channel ID. Capture and playback share a single
// voice connection, joined lazily when the first stream opens and left when
// the last stream closes.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/guardianvoice/maya/pkg/audio"
)

var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] for one Discord voice channel.
// It is safe for concurrent use.
type Platform struct {
	session   *discordgo.Session
	guildID   string
	channelID string

	mu   sync.Mutex
	vc   *discordgo.VoiceConnection
	refs int

	// joinVC and leaveVC default to the discordgo session calls.
	// Overridden in tests.
	joinVC  func() (*discordgo.VoiceConnection, error)
	leaveVC func(vc *discordgo.VoiceConnection) error
}

// New creates a Platform bound to one guild voice channel. The session must
// already be opened by the caller; the platform never closes it.
func New(session *discordgo.Session, guildID, channelID string) *Platform {
	p := &Platform{
		session:   session,
		guildID:   guildID,
		channelID: channelID,
	}
	p.joinVC = func() (*discordgo.VoiceConnection, error) {
		// mute=false (we send audio), deaf=false (we receive audio).
		return session.ChannelVoiceJoin(guildID, channelID, false, false)
	}
	p.leaveVC = func(vc *discordgo.VoiceConnection) error {
		return vc.Disconnect()
	}
	return p
}

// OpenCapture joins the voice channel (if not already joined for playback)
// and starts delivering the channel's mixed-down audio as frames in the
// requested format. Packets from overlapping speakers are forwarded in
// arrival order rather than mixed.
func (p *Platform) OpenCapture(ctx context.Context, format audio.Format) (audio.CaptureStream, error) {
	vc, err := p.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("discord: open capture: %w", err)
	}
	return newCaptureStream(p, vc, format), nil
}

// OpenPlayback joins the voice channel (if not already joined for capture)
// and returns a stream that encodes written frames to Opus. The format
// argument is unused: frames declare their own format and are converted
// per frame.
func (p *Platform) OpenPlayback(ctx context.Context, _ audio.Format) (audio.PlaybackStream, error) {
	vc, err := p.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("discord: open playback: %w", err)
	}
	s, err := newPlaybackStream(p, vc)
	if err != nil {
		p.release()
		return nil, fmt.Errorf("discord: open playback: %w", err)
	}
	return s, nil
}

// acquire returns the shared voice connection, joining the channel on first
// use, and takes a reference that must be balanced by release.
func (p *Platform) acquire(ctx context.Context) (*discordgo.VoiceConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.vc == nil {
		vc, err := p.joinVC()
		if err != nil {
			return nil, fmt.Errorf("join voice channel %q: %w", p.channelID, err)
		}
		p.vc = vc
	}
	p.refs++
	return p.vc, nil
}

// release drops one stream's reference and leaves the voice channel when the
// last stream is gone.
func (p *Platform) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refs--
	if p.refs > 0 || p.vc == nil {
		return
	}
	vc := p.vc
	p.vc = nil
	if err := p.leaveVC(vc); err != nil {
		slog.Warn("discord: leave voice channel", "channelID", p.channelID, "error", err)
	}
}
