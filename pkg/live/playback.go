package live

import (
	"log/slog"
	"sync"
	"time"
)

// SourceHandle is one scheduled buffer on the output clock.
type SourceHandle interface {
	// Done is closed when the buffer finishes sounding naturally.
	Done() <-chan struct{}
	// Stop silences the buffer immediately.
	Stop()
}

// PlaybackClock abstracts the platform output audio clock. Implementations
// live in internal/device.
type PlaybackClock interface {
	// Now returns the current output-clock time.
	Now() time.Duration
	// Schedule queues pcm to begin sounding at start. start is never in
	// the past relative to Now at call time.
	Schedule(pcm []byte, start time.Duration) (SourceHandle, error)
	// Suspend pauses the clock; Resume restarts it.
	Suspend() error
	Resume() error
	// Close releases the clock. Safe to call when already closed.
	Close() error
}

// PlaybackScheduler schedules decoded audio chunks back-to-back on the
// output clock: no gaps, no overlaps, regardless of arrival jitter. It is
// the sole owner of the next-start cursor and the currently-sounding set.
type PlaybackScheduler struct {
	clock  PlaybackClock
	format AudioConfig
	logger *slog.Logger

	// onTalking is invoked on every talking-signal transition.
	onTalking func(bool)

	mu        sync.Mutex
	nextStart time.Duration
	active    map[SourceHandle]struct{}
	gen       uint64
}

// NewPlaybackScheduler creates a scheduler over the given output clock.
func NewPlaybackScheduler(clock PlaybackClock, format AudioConfig, onTalking func(bool), logger *slog.Logger) *PlaybackScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackScheduler{
		clock:     clock,
		format:    format,
		onTalking: onTalking,
		active:    make(map[SourceHandle]struct{}),
		logger:    logger,
	}
}

// Schedule queues one PCM16 chunk. The chunk starts at
// max(cursor, clock.Now()) and the cursor advances by its duration, which
// keeps consecutive chunks gapless even when they arrive faster or slower
// than real time. The talking signal fires as soon as the chunk is
// scheduled, which can precede the moment it is audibly reached.
func (s *PlaybackScheduler) Schedule(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	d := s.format.Duration(len(pcm))

	s.mu.Lock()
	start := s.nextStart
	if now := s.clock.Now(); now > start {
		start = now
	}
	handle, err := s.clock.Schedule(pcm, start)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("schedule playback chunk", "err", err)
		return
	}
	s.nextStart = start + d
	wasEmpty := len(s.active) == 0
	s.active[handle] = struct{}{}
	gen := s.gen
	s.mu.Unlock()

	if wasEmpty && s.onTalking != nil {
		s.onTalking(true)
	}
	go s.awaitCompletion(handle, gen)
}

func (s *PlaybackScheduler) awaitCompletion(handle SourceHandle, gen uint64) {
	<-handle.Done()

	s.mu.Lock()
	if s.gen != gen {
		// Interrupted or torn down since scheduling; already handled.
		s.mu.Unlock()
		return
	}
	delete(s.active, handle)
	nowEmpty := len(s.active) == 0
	s.mu.Unlock()

	if nowEmpty && s.onTalking != nil {
		s.onTalking(false)
	}
}

// Interrupt models barge-in: stop every sounding source, clear the set and
// reset the cursor to zero.
func (s *PlaybackScheduler) Interrupt() {
	s.mu.Lock()
	s.gen++
	stopped := make([]SourceHandle, 0, len(s.active))
	for handle := range s.active {
		stopped = append(stopped, handle)
	}
	wasTalking := len(s.active) > 0
	s.active = make(map[SourceHandle]struct{})
	s.nextStart = 0
	s.mu.Unlock()

	for _, handle := range stopped {
		handle.Stop()
	}
	if wasTalking && s.onTalking != nil {
		s.onTalking(false)
	}
}

// Talking reports whether any source is currently sounding.
func (s *PlaybackScheduler) Talking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// Cursor returns the next-start cursor. Exposed for tests and diagnostics.
func (s *PlaybackScheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
