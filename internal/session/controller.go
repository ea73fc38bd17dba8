// Package session contains the top-level state machine that drives one live
// conversation: connection lifecycle, the capture→transport pipeline, the
// transport→playback/transcript dispatch, and safety scanning of finalized
// user utterances.
//
// A [Controller] is constructed per consumer and passed explicitly to
// whatever layer observes it; there are no process-wide singletons. Exactly
// one connection attempt may be active at a time.
//
// This package is internal because it encapsulates application-private
// pipeline logic and is not intended for import by external code.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guardianvoice/maya/internal/observe"
	"github.com/guardianvoice/maya/internal/safety"
	"github.com/guardianvoice/maya/internal/transcript"
	"github.com/guardianvoice/maya/pkg/audio"
	"github.com/guardianvoice/maya/pkg/conversation"
	"github.com/guardianvoice/maya/pkg/playback"
	"github.com/guardianvoice/maya/pkg/provider/live"
)

// State is the connection lifecycle state of a [Controller].
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateErrored      State = "errored"
)

// ErrSessionActive is returned by [Controller.Connect] when a connection is
// already connecting or connected. Overlapping sessions would double-schedule
// audio and duplicate transcripts, so a second Connect is an explicit error,
// never a silent restart.
var ErrSessionActive = errors.New("session: connect: session already active")

// ConfigurationError reports that required connection credentials are
// absent. It is surfaced by the Connect pre-flight before any resource is
// acquired; the controller stays Disconnected.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "session: configuration: " + e.Reason
}

// PermissionError reports that an audio resource (typically the microphone)
// was denied by the platform. The connect attempt is aborted and the
// controller returns to Disconnected.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return "session: audio permission denied: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Config carries the static configuration of a [Controller].
type Config struct {
	// Credential is the provider API credential. Connect fails fast with a
	// ConfigurationError when it is empty.
	Credential string

	// Voice is the fallback voice used when the store has no persisted
	// selection.
	Voice string

	// Instructions is the behavioural persona text sent with every session.
	Instructions string
}

// Option configures a [Controller] during construction.
type Option func(*Controller)

// WithPlaybackOptions passes extra options to the playback scheduler created
// for each connection. Used in tests to control the scheduler's clock.
func WithPlaybackOptions(opts ...playback.Option) Option {
	return func(c *Controller) { c.playbackOpts = opts }
}

// WithMetrics attaches metric instruments. By default the controller records
// to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// connection bundles the resources owned by one connection attempt. All of
// them are released exactly once via release, which is safe to call from
// both the event loop and Disconnect.
type connection struct {
	session   live.SessionHandle
	capture   audio.CaptureStream
	sink      audio.PlaybackStream
	scheduler *playback.Scheduler
	assembler *transcript.Assembler

	// turnStart marks the first transcript fragment of the current turn.
	// Only the event loop touches it.
	turnStart time.Time

	opened    chan struct{} // closed on the first Opened event
	done      chan struct{} // closed when the event loop exits
	openOnce  sync.Once
	closeOnce sync.Once
	gaugeOnce sync.Once
}

func (cn *connection) release() {
	cn.closeOnce.Do(func() {
		cn.capture.Close()
		cn.session.Close()
		cn.scheduler.Close()
		cn.sink.Close()
	})
}

// Controller is the session state machine. All exported methods are safe
// for concurrent use.
type Controller struct {
	provider     live.Provider
	platform     audio.Platform
	store        conversation.Store
	monitor      *safety.Monitor
	cfg          Config
	playbackOpts []playback.Option
	metrics      *observe.Metrics

	mu       sync.Mutex
	state    State
	conn     *connection
	lastErr  error // set on the transition to Errored, cleared by Connect
	voice    string
	messages []conversation.Message
	flagged  []conversation.FlaggedEvent // most recent first

	cbMu          sync.Mutex
	onStateChange []func(State)
	onMessage     []func(conversation.Message)
	onFlagged     []func(conversation.FlaggedEvent)
}

// New creates a Controller and loads persisted history from store. Storage
// read failures are logged and leave the corresponding in-memory log empty;
// the in-memory state is authoritative for the session either way.
func New(ctx context.Context, provider live.Provider, platform audio.Platform, store conversation.Store, monitor *safety.Monitor, cfg Config, opts ...Option) (*Controller, error) {
	if provider == nil || platform == nil || store == nil || monitor == nil {
		return nil, fmt.Errorf("session: new controller: provider, platform, store and monitor are all required")
	}

	c := &Controller{
		provider: provider,
		platform: platform,
		store:    store,
		monitor:  monitor,
		cfg:      cfg,
		state:    StateDisconnected,
		voice:    cfg.Voice,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	if msgs, err := store.LoadMessages(ctx); err != nil {
		slog.Warn("session: loading message history failed", "err", err)
	} else {
		c.messages = msgs
	}
	if evs, err := store.LoadEvents(ctx); err != nil {
		slog.Warn("session: loading flagged events failed", "err", err)
	} else {
		// Stores return chronological order; the in-memory log keeps the
		// most recent event first for guardian review.
		for i := len(evs) - 1; i >= 0; i-- {
			c.flagged = append(c.flagged, evs[i])
		}
	}
	if voice, err := store.Voice(ctx, cfg.Voice); err != nil {
		slog.Warn("session: loading voice selection failed", "err", err)
	} else {
		c.voice = voice
	}

	return c, nil
}

// ── lifecycle ──

// Connect establishes a live session: credential pre-flight, capture and
// playback acquisition, transport session setup. It returns once the backend
// has acknowledged the session, leaving the controller Connected.
//
// A failed pre-flight or resource acquisition leaves the controller
// Disconnected with nothing acquired. A transport failure after resources
// were acquired releases them and leaves the controller Errored. Calling
// Connect while a session is connecting or connected returns
// [ErrSessionActive].
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return ErrSessionActive
	}
	if c.cfg.Credential == "" {
		c.mu.Unlock()
		return &ConfigurationError{Reason: "missing provider credential"}
	}
	c.setStateLocked(StateConnecting)
	c.lastErr = nil
	voice := c.voice
	c.mu.Unlock()

	start := time.Now()

	capture, err := c.platform.OpenCapture(ctx, audio.CaptureFormat)
	if err != nil {
		c.transition(StateDisconnected)
		if errors.Is(err, audio.ErrPermissionDenied) {
			return &PermissionError{Err: err}
		}
		return fmt.Errorf("session: open capture: %w", err)
	}

	sink, err := c.platform.OpenPlayback(ctx, audio.PlaybackFormat)
	if err != nil {
		capture.Close()
		c.transition(StateDisconnected)
		if errors.Is(err, audio.ErrPermissionDenied) {
			return &PermissionError{Err: err}
		}
		return fmt.Errorf("session: open playback: %w", err)
	}

	sess, err := c.provider.Connect(ctx, live.SessionConfig{
		Voice:        voice,
		Instructions: c.cfg.Instructions,
	})
	if err != nil {
		capture.Close()
		sink.Close()
		err = fmt.Errorf("session: connect provider: %w", err)
		c.mu.Lock()
		c.lastErr = err
		c.setStateLocked(StateErrored)
		c.mu.Unlock()
		return err
	}

	scheduler := playback.New(func(frame audio.Frame) {
		if err := sink.Write(frame); err != nil {
			slog.Warn("session: playback write failed", "err", err)
		}
	}, c.playbackOpts...)

	conn := &connection{
		session:   sess,
		capture:   capture,
		sink:      sink,
		scheduler: scheduler,
		assembler: transcript.New(),
		opened:    make(chan struct{}),
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect landed mid-connect before the connection was
		// installed. Honour it: release everything and abort.
		c.mu.Unlock()
		conn.release()
		return fmt.Errorf("session: connect: aborted by disconnect")
	}
	c.conn = conn
	c.mu.Unlock()

	go c.captureLoop(conn)
	go c.eventLoop(conn)

	select {
	case <-conn.opened:
		c.mu.Lock()
		if c.conn == conn {
			c.setStateLocked(StateConnected)
		}
		c.mu.Unlock()
		c.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
		c.metrics.ActiveSessions.Add(ctx, 1)
		return nil
	case <-conn.done:
		// The event loop already moved us to Errored (or Disconnect was
		// called mid-connect and moved us to Disconnected).
		if err := sess.Err(); err != nil {
			return fmt.Errorf("session: connect: %w", err)
		}
		if err := c.LastError(); err != nil {
			return fmt.Errorf("session: connect: %w", err)
		}
		return fmt.Errorf("session: connect: session closed before ready")
	case <-ctx.Done():
		c.dropConnection(conn, StateDisconnected)
		return fmt.Errorf("session: connect: %w", ctx.Err())
	}
}

// Disconnect tears down whatever resources the current connection holds and
// transitions to Disconnected unconditionally. It is idempotent, never
// returns an error, and is safe to call from any state including mid-connect.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		c.releaseConn(conn)
		<-conn.done
	}
}

// releaseConn releases the connection's resources and, when the session had
// reached Connected, decrements the active-session gauge exactly once.
func (c *Controller) releaseConn(conn *connection) {
	conn.release()
	conn.gaugeOnce.Do(func() {
		select {
		case <-conn.opened:
			c.metrics.ActiveSessions.Add(context.Background(), -1)
		default:
		}
	})
}

// dropConnection detaches conn (if it is still current) and releases its
// resources, leaving the controller in the given terminal state.
func (c *Controller) dropConnection(conn *connection, to State) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.setStateLocked(to)
	}
	c.mu.Unlock()
	c.releaseConn(conn)
}

// ── pipeline loops ──

// captureLoop streams capture frames to the provider. Transmission is
// fire-and-forget: a send failure ends outbound audio and leaves session
// teardown to the event loop.
func (c *Controller) captureLoop(conn *connection) {
	for frame := range conn.capture.Frames() {
		media := audio.EncodePCM(frame.Data)
		if err := conn.session.SendAudio(media); err != nil {
			slog.Warn("session: sending capture frame failed", "err", err)
			return
		}
		c.metrics.AudioChunksOut.Add(context.Background(), 1)
	}
}

// eventLoop dispatches the ordered inbound event stream. When the stream
// ends it releases the connection's resources and, unless a disconnect
// already detached the connection, transitions to Errored.
func (c *Controller) eventLoop(conn *connection) {
	defer close(conn.done)

	for ev := range conn.session.Events() {
		switch ev := ev.(type) {
		case live.Opened:
			conn.openOnce.Do(func() { close(conn.opened) })
		case live.AudioChunk:
			c.metrics.AudioChunksIn.Add(context.Background(), 1)
			// Decode failures are logged and skipped inside the scheduler;
			// the stream continues.
			if err := conn.scheduler.Enqueue(ev.Media); err != nil {
				c.metrics.DecodeFailures.Add(context.Background(), 1)
			}
		case live.TranscriptFragment:
			if conn.turnStart.IsZero() {
				conn.turnStart = time.Now()
			}
			switch ev.Speaker {
			case live.SpeakerUser:
				conn.assembler.AppendUser(ev.Text)
			case live.SpeakerModel:
				conn.assembler.AppendModel(ev.Text)
			}
		case live.TurnComplete:
			if !conn.turnStart.IsZero() {
				c.metrics.TurnDuration.Record(context.Background(), time.Since(conn.turnStart).Seconds())
				conn.turnStart = time.Time{}
			}
			c.finalizeTurn(conn)
		case live.Interrupted:
			c.metrics.Interruptions.Add(context.Background(), 1)
			conn.scheduler.Interrupt()
			conn.assembler.InterruptModel()
		case live.SessionError:
			// The backend may report an error in-band with the socket
			// still open; the session is over either way.
			slog.Error("session: transport error", "err", ev.Err)
			c.metrics.TransportErrors.Add(context.Background(), 1)
			c.failConnection(conn, ev.Err)
			return
		}
	}

	if err := conn.session.Err(); err != nil {
		slog.Error("session: session ended", "err", err)
		c.failConnection(conn, err)
	} else {
		c.dropConnection(conn, StateDisconnected)
	}
}

// failConnection detaches conn (if it is still current), records err as the
// terminal session error and transitions to Errored. A disconnect that
// already detached the connection wins: the state and error stay untouched.
func (c *Controller) failConnection(conn *connection, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.lastErr = err
		c.setStateLocked(StateErrored)
	}
	c.mu.Unlock()
	c.releaseConn(conn)
}

// finalizeTurn turns the assembler's buffers into messages, persists them,
// and runs the safety monitor over finalized user utterances. Storage
// failures are logged; the in-memory logs remain authoritative.
func (c *Controller) finalizeTurn(conn *connection) {
	msgs := conn.assembler.CompleteTurn()
	for _, msg := range msgs {
		c.mu.Lock()
		c.messages = append(c.messages, msg)
		c.mu.Unlock()

		if err := c.store.AppendMessage(context.Background(), msg); err != nil {
			slog.Warn("session: persisting message failed", "err", err)
		}
		c.metrics.RecordMessage(context.Background(), string(msg.Role))
		c.notifyMessage(msg)

		if msg.Role != conversation.RoleUser {
			continue
		}
		c.mu.Lock()
		monitor := c.monitor
		c.mu.Unlock()
		ev, ok := monitor.Scan(msg.Text)
		if !ok {
			continue
		}

		c.mu.Lock()
		c.flagged = append([]conversation.FlaggedEvent{ev}, c.flagged...)
		c.mu.Unlock()

		if err := c.store.AppendEvent(context.Background(), ev); err != nil {
			slog.Warn("session: persisting flagged event failed", "err", err)
		}
		slog.Info("session: utterance flagged for guardian review",
			"keyword", ev.Keyword, "severity", ev.Severity)
		c.metrics.RecordFlaggedEvent(context.Background(), string(ev.Severity))
		c.notifyFlagged(ev)
	}
}

// ── observable state ──

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error behind the most recent transition to Errored,
// or nil. It is cleared when a new connection attempt starts, so observers
// always see the error belonging to the state they read.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Messages returns a snapshot of the message log in arrival order.
func (c *Controller) Messages() []conversation.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]conversation.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// FlaggedEvents returns a snapshot of the flag log, most recent first.
func (c *Controller) FlaggedEvents() []conversation.FlaggedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]conversation.FlaggedEvent, len(c.flagged))
	copy(out, c.flagged)
	return out
}

// ClearHistory empties both in-memory logs and removes the persisted
// entries. A storage failure is logged; the in-memory clear always happens.
func (c *Controller) ClearHistory(ctx context.Context) {
	c.mu.Lock()
	c.messages = nil
	c.flagged = nil
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		slog.Warn("session: clearing persisted history failed", "err", err)
	}
}

// Voice returns the currently selected voice.
func (c *Controller) Voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// SetVoice persists a new voice selection. The change takes effect on the
// next Connect; an active session keeps the voice it was opened with.
func (c *Controller) SetVoice(ctx context.Context, voice string) {
	c.mu.Lock()
	c.voice = voice
	c.mu.Unlock()

	if err := c.store.SetVoice(ctx, voice); err != nil {
		slog.Warn("session: persisting voice selection failed", "err", err)
	}
}

// SetMonitor swaps the safety monitor used for subsequent turns. Nil is
// ignored. Used when the keyword lists change at runtime.
func (c *Controller) SetMonitor(m *safety.Monitor) {
	if m == nil {
		return
	}
	c.mu.Lock()
	c.monitor = m
	c.mu.Unlock()
}

// OutputLevel reports the RMS level of currently playing model audio in
// [0, 1], or 0 when nothing is playing.
func (c *Controller) OutputLevel() float64 {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0
	}
	return conn.scheduler.Level()
}

// ── callbacks ──

// OnStateChange registers a callback invoked on every state transition.
// Callbacks run synchronously on the transitioning goroutine and must not
// call back into the controller's lifecycle methods.
func (c *Controller) OnStateChange(fn func(State)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onStateChange = append(c.onStateChange, fn)
}

// OnMessage registers a callback invoked for every finalized message.
func (c *Controller) OnMessage(fn func(conversation.Message)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

// OnFlagged registers a callback invoked for every new flagged event.
func (c *Controller) OnFlagged(fn func(conversation.FlaggedEvent)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onFlagged = append(c.onFlagged, fn)
}

// setStateLocked updates the state and notifies observers. Callers must
// hold c.mu. No notification happens when the state does not change, which
// keeps repeated Disconnect calls silent.
func (c *Controller) setStateLocked(to State) {
	if c.state == to {
		return
	}
	c.state = to

	c.cbMu.Lock()
	fns := make([]func(State), len(c.onStateChange))
	copy(fns, c.onStateChange)
	c.cbMu.Unlock()
	for _, fn := range fns {
		fn(to)
	}
}

// transition is setStateLocked for callers not holding c.mu.
func (c *Controller) transition(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(to)
}

func (c *Controller) notifyMessage(msg conversation.Message) {
	c.cbMu.Lock()
	fns := make([]func(conversation.Message), len(c.onMessage))
	copy(fns, c.onMessage)
	c.cbMu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

func (c *Controller) notifyFlagged(ev conversation.FlaggedEvent) {
	c.cbMu.Lock()
	fns := make([]func(conversation.FlaggedEvent), len(c.onFlagged))
	copy(fns, c.onFlagged)
	c.cbMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
