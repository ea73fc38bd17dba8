// Package playback schedules inbound synthesised audio chunks onto an
// output sink, gap-free and strictly ordered.
//
// Chunks arrive independently (network jitter, variable decode time) but
// must play back-to-back in enqueue order. The [Scheduler] keeps a single
// monotonic time cursor — the scheduled end of the last enqueued chunk —
// and starts every new chunk at max(cursor, now). Barge-in cancels every
// live chunk at once and resets the cursor to the present, so the next
// chunk starts immediately rather than at a stale future offset.
package playback

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/guardianvoice/maya/pkg/audio"
)

// Clock is the output clock the scheduler measures against. The zero point
// is arbitrary; only monotonicity matters.
type Clock interface {
	Now() time.Duration
}

type realClock struct {
	start time.Time
}

func (c realClock) Now() time.Duration { return time.Since(c.start) }

// Sink receives decoded frames at their scheduled start times. It is called
// sequentially from the dispatch goroutine and must not block for extended
// periods.
type Sink func(frame audio.Frame)

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithClock substitutes the output clock. Used in tests to control time.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithFormat sets the format decoded chunks are assumed to be in.
// Default is [audio.PlaybackFormat].
func WithFormat(f audio.Format) Option {
	return func(s *Scheduler) { s.format = f }
}

// WithTimerFunc substitutes the wait primitive used to delay chunk starts.
// Used in tests to fire timers synthetically. Default is [time.After].
func WithTimerFunc(fn func(d time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) { s.after = fn }
}

// entry is one scheduled chunk. Closing stop cancels it whether it is still
// queued or currently being waited out.
type entry struct {
	frame   audio.Frame
	startAt time.Duration
	stop    chan struct{}
}

// Scheduler owns the playback cursor and the set of live (scheduled or
// playing, not yet finished) chunk entries. A single background dispatch
// goroutine emits chunks in FIFO order, so ordering is guaranteed by
// construction regardless of arrival jitter.
//
// All exported methods are safe for concurrent use.
type Scheduler struct {
	sink   Sink
	clock  Clock
	format audio.Format
	after  func(d time.Duration) <-chan time.Time

	mu      sync.Mutex
	queue   []*entry
	playing *entry
	cursor  time.Duration
	level   float64
	closed  bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler delivering decoded frames to sink. The dispatch
// goroutine starts immediately; call [Scheduler.Close] to stop it.
func New(sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:   sink,
		clock:  realClock{start: time.Now()},
		format: audio.PlaybackFormat,
		after:  time.After,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Enqueue decodes one wire chunk and schedules it to start at
// max(cursor, now), then advances the cursor by the chunk's duration.
//
// A chunk that fails to decode is skipped: a warning is logged, the cursor
// does not move, and the stream continues. The decode error is returned so
// callers can count skips, but it never aborts playback.
func (s *Scheduler) Enqueue(media string) error {
	pcm, err := audio.DecodePCM(media)
	if err != nil {
		slog.Warn("playback: skipping undecodable chunk", "err", err)
		return fmt.Errorf("playback: enqueue: %w", err)
	}
	if len(pcm) == 0 {
		return nil
	}

	frame := audio.Frame{
		Data:       pcm,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("playback: scheduler closed")
	}
	now := s.clock.Now()
	startAt := s.cursor
	if now > startAt {
		startAt = now
	}
	s.cursor = startAt + frame.Duration()
	s.level = rmsLevel(pcm)
	s.queue = append(s.queue, &entry{
		frame:   frame,
		startAt: startAt,
		stop:    make(chan struct{}),
	})
	s.mu.Unlock()

	// Wake the dispatch goroutine.
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// dispatch pops entries in FIFO order, waits until each entry's start time,
// emits its frame, then waits out the frame duration. Cancelled entries are
// dropped without emitting.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.done:
				return
			case <-s.notify:
				continue
			}
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.playing = e
		s.mu.Unlock()

		if s.playEntry(e) {
			return // scheduler closed
		}

		s.mu.Lock()
		if s.playing == e {
			s.playing = nil
		}
		if s.playing == nil && len(s.queue) == 0 {
			s.level = 0
		}
		s.mu.Unlock()
	}
}

// playEntry waits until e.startAt, emits the frame unless the entry was
// cancelled, then waits out its duration. Reports whether the scheduler is
// shutting down.
func (s *Scheduler) playEntry(e *entry) (shutdown bool) {
	if delay := e.startAt - s.clock.Now(); delay > 0 {
		select {
		case <-s.done:
			return true
		case <-e.stop:
			return false
		case <-s.after(delay):
		}
	}

	select {
	case <-e.stop:
		return false
	default:
	}

	s.sink(e.frame)

	select {
	case <-s.done:
		return true
	case <-e.stop:
	case <-s.after(e.frame.Duration()):
	}
	return false
}

// Interrupt immediately stops every live entry, clears the queue, and
// resets the cursor to the output clock's current time so the next enqueued
// chunk starts now rather than at the projected end of cancelled audio.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	if s.playing != nil {
		close(s.playing.stop)
		s.playing = nil
	}
	for _, e := range s.queue {
		close(e.stop)
	}
	s.queue = nil
	s.cursor = s.clock.Now()
	s.level = 0
	s.mu.Unlock()
}

// Cursor returns the scheduled end of the last enqueued chunk on the
// output clock.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// LiveCount returns the number of chunks that are scheduled or playing.
func (s *Scheduler) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	if s.playing != nil {
		n++
	}
	return n
}

// Level returns the RMS amplitude of the most recently enqueued chunk,
// normalized to [0, 1]. Returns 0 when nothing is live. UI consumers poll
// this for the speaking indicator.
func (s *Scheduler) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing == nil && len(s.queue) == 0 {
		return 0
	}
	return s.level
}

// Close interrupts all playback, stops the dispatch goroutine, and waits
// for it to exit. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.playing != nil {
		close(s.playing.stop)
		s.playing = nil
	}
	for _, e := range s.queue {
		close(e.stop)
	}
	s.queue = nil
	s.cursor = s.clock.Now()
	s.level = 0
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return nil
}

// rmsLevel computes the normalized RMS amplitude of int16 little-endian PCM.
func rmsLevel(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := range samples {
		v := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += v * v
	}
	return math.Sqrt(sum/float64(samples)) / 32768
}
