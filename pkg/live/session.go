package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astraportal/astraportal/pkg/live/protocol"
)

// Status is the session lifecycle state.
type Status int

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusPaused
	StatusClosed
	StatusErrored
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusOpen:
		return "OPEN"
	case StatusPaused:
		return "PAUSED"
	case StatusClosed:
		return "CLOSED"
	case StatusErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// Channel is the streaming session endpoint the manager drives. Satisfied
// by channel.Channel.
type Channel interface {
	Messages() <-chan protocol.InboundMessage
	SendAudioFrame(pcm []byte) error
	SendToolResponse(responses []protocol.FunctionResponse) error
	SendSyntheticTurn(text string) error
	Close() error
	Err() error
}

// SessionConfig wires the session's owned resources.
type SessionConfig struct {
	Channel       Channel
	CaptureDevice CaptureDevice
	PlaybackClock PlaybackClock

	// TranscriptClearDelay overrides the 6s caption linger (tests).
	TranscriptClearDelay time.Duration

	Logger *slog.Logger
}

// State is the snapshot consumed by the presentation layer.
type State struct {
	Status     Status
	Talking    bool
	Analyzing  bool
	Profile    *Profile
	Transcript string
	Err        error
}

// Session composes the capture pipeline, playback scheduler, tool machine
// and transcript assembler around one streaming channel. It owns the
// capture device and both audio clocks; every exit path converges on one
// idempotent teardown.
type Session struct {
	id     string
	logger *slog.Logger

	channel    Channel
	capture    *CapturePipeline
	playback   *PlaybackScheduler
	tools      *ToolMachine
	transcript *TranscriptAssembler
	clock      PlaybackClock

	mu     sync.Mutex
	status Status
	err    error

	teardownOnce sync.Once
	done         chan struct{}
}

// OpenSession acquires the capture device, starts the dispatch loop and
// transitions Connecting → Open. On any acquisition failure the partially
// acquired resources are released and no session exists.
func OpenSession(cfg SessionConfig) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:         uuid.NewString(),
		logger:     logger,
		channel:    cfg.Channel,
		clock:      cfg.PlaybackClock,
		tools:      NewToolMachine(logger),
		transcript: NewTranscriptAssembler(cfg.TranscriptClearDelay),
		status:     StatusConnecting,
		done:       make(chan struct{}),
	}
	s.playback = NewPlaybackScheduler(cfg.PlaybackClock, PlaybackFormat(), nil, logger)
	s.capture = NewCapturePipeline(cfg.CaptureDevice, cfg.Channel, logger)

	if err := s.capture.Start(); err != nil {
		_ = cfg.Channel.Close()
		_ = cfg.PlaybackClock.Close()
		return nil, err
	}

	s.mu.Lock()
	s.status = StatusOpen
	s.mu.Unlock()

	logger.Info("session open", "id", s.id)
	go s.run()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// run consumes inbound messages strictly in arrival order until the
// channel ends, then tears down.
func (s *Session) run() {
	for msg := range s.channel.Messages() {
		s.dispatch(msg)
	}
	if err := s.channel.Err(); err != nil {
		s.fail(err)
		return
	}
	s.teardown(StatusClosed, nil)
}

func (s *Session) dispatch(msg protocol.InboundMessage) {
	switch m := msg.(type) {
	case protocol.ToolCallBatch:
		acks := s.tools.Process(m)
		if len(acks) == 0 {
			return
		}
		if err := s.channel.SendToolResponse(acks); err != nil {
			s.logger.Warn("send tool response", "err", err)
		}
	case protocol.AudioChunk:
		s.playback.Schedule(m.PCM)
	case protocol.TranscriptionFragment:
		s.transcript.Append(m.Text)
	case protocol.TurnComplete:
		s.transcript.TurnComplete()
	case protocol.Interrupted:
		// Barge-in: the remote's prior turn must stop sounding now.
		s.playback.Interrupt()
		s.transcript.Clear()
		s.tools.Interrupt()
	case protocol.GoAway:
		s.logger.Warn("server going away", "timeLeft", m.TimeLeft)
	case protocol.SetupComplete:
		// Consumed during dial; late duplicates are harmless.
	}
}

// ToggleMute flips the transmission gate only; clocks and connection are
// untouched.
func (s *Session) ToggleMute() bool {
	muted := !s.capture.Muted()
	s.capture.SetMuted(muted)
	return muted
}

// Muted reports the transmission gate.
func (s *Session) Muted() bool { return s.capture.Muted() }

// TogglePause symmetrically suspends or resumes the capture clock and the
// playback clock. It never affects mute and never closes the connection.
func (s *Session) TogglePause() bool {
	s.mu.Lock()
	if s.status != StatusOpen && s.status != StatusPaused {
		status := s.status
		s.mu.Unlock()
		return status == StatusPaused
	}
	pausing := s.status == StatusOpen
	if pausing {
		s.status = StatusPaused
	} else {
		s.status = StatusOpen
	}
	s.mu.Unlock()

	if err := s.capture.SetPaused(pausing); err != nil {
		s.logger.Warn("toggle capture clock", "err", err)
	}
	var err error
	if pausing {
		err = s.clock.Suspend()
	} else {
		err = s.clock.Resume()
	}
	if err != nil {
		s.logger.Warn("toggle playback clock", "err", err)
	}
	return pausing
}

// SendSuggestedPrompt injects a completed user turn without audio.
func (s *Session) SendSuggestedPrompt(text string) error {
	return s.channel.SendSyntheticTurn(text)
}

// End closes the session through the single teardown path.
func (s *Session) End() {
	s.teardown(StatusClosed, nil)
}

func (s *Session) fail(err error) {
	s.teardown(StatusErrored, err)
}

// teardown releases everything exactly once: capture device, playback
// sources and both clocks, the channel, and the derived flags. Invoking it
// again is a no-op, never an error.
func (s *Session) teardown(status Status, err error) {
	s.teardownOnce.Do(func() {
		s.capture.Stop()
		s.playback.Interrupt()
		if closeErr := s.clock.Close(); closeErr != nil {
			s.logger.Warn("close playback clock", "err", closeErr)
		}
		s.transcript.Clear()
		s.tools.Interrupt()
		_ = s.channel.Close()

		s.mu.Lock()
		s.status = status
		s.err = err
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("session ended", "id", s.id, "status", status, "err", err)
		} else {
			s.logger.Info("session ended", "id", s.id, "status", status)
		}
		close(s.done)
	})
}

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the presentation-facing state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	status := s.status
	err := s.err
	s.mu.Unlock()

	return State{
		Status:     status,
		Talking:    s.playback.Talking(),
		Analyzing:  s.tools.Analyzing(),
		Profile:    s.tools.Profile(),
		Transcript: s.transcript.Text(),
		Err:        err,
	}
}
