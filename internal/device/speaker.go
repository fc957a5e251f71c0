package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/astraportal/astraportal/pkg/live"
)

// Speaker is an oto-backed output clock. It streams one continuous PCM16
// timeline: scheduled buffers are mixed in at their byte offsets and the
// gaps between them are filled with silence, so the clock keeps running
// whether or not anything is sounding. It implements live.PlaybackClock.
type Speaker struct {
	format live.AudioConfig
	ctx    *oto.Context
	player *oto.Player

	mu      sync.Mutex
	cursor  int64 // bytes handed to the player so far
	sources []*speakerSource
	closed  bool
}

type speakerSource struct {
	start int64 // timeline byte offset
	pcm   []byte

	once sync.Once
	done chan struct{}

	mu      *sync.Mutex // the owning Speaker's lock
	stopped bool
}

func (s *speakerSource) Done() <-chan struct{} { return s.done }

// Stop silences the source; the remaining bytes render as silence.
func (s *speakerSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.finish()
}

func (s *speakerSource) finish() { s.once.Do(func() { close(s.done) }) }

// NewSpeaker opens the default output device at the playback format and
// starts the timeline.
func NewSpeaker() (*Speaker, error) {
	format := live.PlaybackFormat()
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("speaker: open context: %w", err)
	}
	<-ready

	s := &Speaker{format: format, ctx: ctx}
	s.player = ctx.NewPlayer(timelineReader{s})
	s.player.Play()
	return s, nil
}

// timelineReader feeds the player from the speaker's scheduled sources.
type timelineReader struct{ s *Speaker }

func (r timelineReader) Read(p []byte) (int, error) {
	return r.s.read(p)
}

// read renders the next len(p) bytes of the timeline: source bytes where a
// buffer covers the cursor, zeros elsewhere. Runs on the player's goroutine.
func (s *Speaker) read(p []byte) (int, error) {
	// Whole samples only.
	n := len(p) - len(p)%2
	if n == 0 {
		return 0, nil
	}

	s.mu.Lock()
	for i := range p[:n] {
		p[i] = 0
	}
	var finished []*speakerSource
	kept := s.sources[:0]
	for _, src := range s.sources {
		if src.stopped {
			finished = append(finished, src)
			continue
		}
		end := src.start + int64(len(src.pcm))
		if end <= s.cursor {
			finished = append(finished, src)
			continue
		}
		// Overlap of [src.start, end) with [cursor, cursor+n).
		from := src.start
		if from < s.cursor {
			from = s.cursor
		}
		to := end
		if limit := s.cursor + int64(n); to > limit {
			to = limit
		}
		if from < to {
			copy(p[from-s.cursor:to-s.cursor], src.pcm[from-src.start:to-src.start])
		}
		if end <= s.cursor+int64(n) {
			finished = append(finished, src)
			continue
		}
		kept = append(kept, src)
	}
	s.sources = kept
	s.cursor += int64(n)
	s.mu.Unlock()

	for _, src := range finished {
		src.finish()
	}
	return n, nil
}

// Now returns the timeline position in clock time.
func (s *Speaker) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.Duration(int(s.cursor))
}

// Schedule queues pcm to begin sounding at start on the timeline.
func (s *Speaker) Schedule(pcm []byte, start time.Duration) (live.SourceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("speaker: closed")
	}
	src := &speakerSource{
		start: int64(s.format.BytesForDuration(start)),
		pcm:   pcm,
		done:  make(chan struct{}),
		mu:    &s.mu,
	}
	if src.start < s.cursor {
		src.start = s.cursor
	}
	s.sources = append(s.sources, src)
	return src, nil
}

// Suspend pauses the output clock.
func (s *Speaker) Suspend() error {
	s.player.Pause()
	return nil
}

// Resume restarts the output clock.
func (s *Speaker) Resume() error {
	s.player.Play()
	return nil
}

// Close releases the output device. Pending sources are completed so that
// nothing waits on a clock that will never advance again.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.sources
	s.sources = nil
	s.mu.Unlock()

	for _, src := range pending {
		src.finish()
	}
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("speaker: close player: %w", err)
	}
	return nil
}
