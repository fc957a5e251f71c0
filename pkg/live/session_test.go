package live

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/astraportal/astraportal/pkg/live/protocol"
)

// fakeChannel feeds scripted inbound messages and records outbound traffic.
type fakeChannel struct {
	messages chan protocol.InboundMessage

	mu        sync.Mutex
	frames    [][]byte
	toolResps [][]protocol.FunctionResponse
	turns     []string
	closed    int
	err       error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{messages: make(chan protocol.InboundMessage, 64)}
}

func (c *fakeChannel) Messages() <-chan protocol.InboundMessage { return c.messages }

func (c *fakeChannel) SendAudioFrame(pcm []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, pcm)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) SendToolResponse(responses []protocol.FunctionResponse) error {
	c.mu.Lock()
	c.toolResps = append(c.toolResps, responses)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) SendSyntheticTurn(text string) error {
	c.mu.Lock()
	c.turns = append(c.turns, text)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed++
	if c.closed == 1 {
		close(c.messages)
	}
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) toolResponses() [][]protocol.FunctionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]protocol.FunctionResponse(nil), c.toolResps...)
}

func openTestSession(t *testing.T) (*Session, *fakeChannel, *fakeDevice, *fakeClock) {
	t.Helper()
	ch := newFakeChannel()
	dev := &fakeDevice{}
	clock := &fakeClock{}
	s, err := OpenSession(SessionConfig{
		Channel:              ch,
		CaptureDevice:        dev,
		PlaybackClock:        clock,
		TranscriptClearDelay: 20 * time.Millisecond,
		Logger:               testLogger(),
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(s.End)
	return s, ch, dev, clock
}

func TestOpenSession_CaptureFailureReleasesEverything(t *testing.T) {
	ch := newFakeChannel()
	clock := &fakeClock{}
	_, err := OpenSession(SessionConfig{
		Channel:       ch,
		CaptureDevice: &fakeDevice{startErr: errors.New("mic denied")},
		PlaybackClock: clock,
		Logger:        testLogger(),
	})

	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Type != ErrPermission {
		t.Fatalf("got %v, want a permission error", err)
	}
	if ch.closeCount() != 1 {
		t.Error("channel not closed on failed open")
	}
	clock.mu.Lock()
	closed := clock.closed
	clock.mu.Unlock()
	if !closed {
		t.Error("playback clock not closed on failed open")
	}
}

func TestSession_MicFlowsToChannel(t *testing.T) {
	_, ch, dev, _ := openTestSession(t)

	dev.emit(make([]float32, 16))
	ch.mu.Lock()
	n := len(ch.frames)
	ch.mu.Unlock()
	if n != 1 {
		t.Fatalf("got %d outbound frames, want 1", n)
	}
}

func TestSession_DispatchesAudioAndTranscript(t *testing.T) {
	s, ch, _, clock := openTestSession(t)

	ch.messages <- protocol.AudioChunk{PCM: make([]byte, 4800), SampleRate: 24000, Channels: 1}
	ch.messages <- protocol.TranscriptionFragment{Text: "hello"}

	waitFor(t, func() bool { return s.Snapshot().Transcript == "hello" })
	waitFor(t, func() bool { return len(clock.scheduled()) == 1 })
	if !s.Snapshot().Talking {
		t.Error("talking not reported while audio is scheduled")
	}
}

func TestSession_ToolBatchAckedOnce(t *testing.T) {
	s, ch, _, _ := openTestSession(t)

	ch.messages <- protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
		{ID: "c1", Name: protocol.ToolStartAnalysis},
		{ID: "c2", Name: protocol.ToolSetUserProfile, Args: map[string]any{
			"name": "Asha", "sunSign": "Leo", "rashi": "Simha",
		}},
	}}

	waitFor(t, func() bool { return len(ch.toolResponses()) == 1 })
	resps := ch.toolResponses()[0]
	if len(resps) != 2 {
		t.Fatalf("got %d acks in the batch message, want 2", len(resps))
	}
	snap := s.Snapshot()
	if snap.Analyzing {
		t.Error("analyzing flag survived profile call in same batch")
	}
	if snap.Profile == nil || snap.Profile.Name != "Asha" {
		t.Errorf("profile: got %+v", snap.Profile)
	}
}

func TestSession_InterruptedSilencesAndClears(t *testing.T) {
	s, ch, _, clock := openTestSession(t)

	ch.messages <- protocol.ToolCallBatch{Calls: []protocol.FunctionCall{
		{ID: "c1", Name: protocol.ToolStartAnalysis},
	}}
	ch.messages <- protocol.AudioChunk{PCM: make([]byte, 4800)}
	ch.messages <- protocol.TranscriptionFragment{Text: "as I was say"}
	ch.messages <- protocol.Interrupted{}

	waitFor(t, func() bool {
		snap := s.Snapshot()
		return !snap.Talking && !snap.Analyzing && snap.Transcript == ""
	})
	for _, src := range clock.scheduled() {
		if !src.wasStopped() {
			t.Error("scheduled source not silenced on barge-in")
		}
	}
}

func TestSession_TurnCompleteClearsCaptionAfterDelay(t *testing.T) {
	s, ch, _, _ := openTestSession(t)

	ch.messages <- protocol.TranscriptionFragment{Text: "farewell"}
	ch.messages <- protocol.TurnComplete{}

	waitFor(t, func() bool { return s.Snapshot().Transcript == "" })
}

func TestSession_TogglePauseSuspendsBothClocks(t *testing.T) {
	s, _, dev, clock := openTestSession(t)

	if paused := s.TogglePause(); !paused {
		t.Fatal("first toggle did not pause")
	}
	clock.mu.Lock()
	suspended := clock.suspended
	clock.mu.Unlock()
	if !dev.Suspended() || !suspended {
		t.Error("pause did not suspend both clocks")
	}
	if s.Snapshot().Status != StatusPaused {
		t.Errorf("status: got %v, want PAUSED", s.Snapshot().Status)
	}

	if paused := s.TogglePause(); paused {
		t.Fatal("second toggle did not resume")
	}
	clock.mu.Lock()
	suspended = clock.suspended
	clock.mu.Unlock()
	if dev.Suspended() || suspended {
		t.Error("resume did not restart both clocks")
	}
	if s.Snapshot().Status != StatusOpen {
		t.Errorf("status: got %v, want OPEN", s.Snapshot().Status)
	}
}

func TestSession_ToggleMuteIndependentOfPause(t *testing.T) {
	s, _, dev, _ := openTestSession(t)

	if muted := s.ToggleMute(); !muted {
		t.Fatal("first toggle did not mute")
	}
	if dev.Suspended() {
		t.Error("mute suspended the capture clock")
	}
	if muted := s.ToggleMute(); muted {
		t.Fatal("second toggle did not unmute")
	}
}

func TestSession_SendSuggestedPrompt(t *testing.T) {
	s, ch, _, _ := openTestSession(t)

	if err := s.SendSuggestedPrompt("tell me about Leo"); err != nil {
		t.Fatalf("send prompt: %v", err)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.turns) != 1 || ch.turns[0] != "tell me about Leo" {
		t.Errorf("turns: got %v", ch.turns)
	}
}

func TestSession_EndIsIdempotent(t *testing.T) {
	s, ch, dev, clock := openTestSession(t)

	s.End()
	s.End()
	<-s.Done()

	if got := s.Snapshot().Status; got != StatusClosed {
		t.Errorf("status: got %v, want CLOSED", got)
	}
	if ch.closeCount() != 1 {
		t.Errorf("channel closed %d times, want 1", ch.closeCount())
	}
	if dev.stopped != 1 {
		t.Errorf("device stopped %d times, want 1", dev.stopped)
	}
	clock.mu.Lock()
	closed := clock.closed
	clock.mu.Unlock()
	if !closed {
		t.Error("playback clock not closed")
	}
}

func TestSession_ChannelErrorEndsErrored(t *testing.T) {
	s, ch, _, _ := openTestSession(t)

	ch.mu.Lock()
	ch.err = NewConnectionError("stream reset")
	ch.mu.Unlock()
	ch.Close()
	<-s.Done()

	snap := s.Snapshot()
	if snap.Status != StatusErrored {
		t.Errorf("status: got %v, want ERRORED", snap.Status)
	}
	var lerr *Error
	if !errors.As(snap.Err, &lerr) || lerr.Type != ErrConnection {
		t.Errorf("err: got %v, want a connection error", snap.Err)
	}
}

func TestSession_RemoteCloseEndsClosed(t *testing.T) {
	s, ch, _, _ := openTestSession(t)

	ch.Close()
	<-s.Done()

	if got := s.Snapshot().Status; got != StatusClosed {
		t.Errorf("status: got %v, want CLOSED", got)
	}
}
