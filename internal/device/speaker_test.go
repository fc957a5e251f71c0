package device

import (
	"testing"
	"time"

	"github.com/astraportal/astraportal/pkg/live"
)

// bareSpeaker builds a Speaker without opening an output device so the
// timeline renderer can be driven directly.
func bareSpeaker() *Speaker {
	return &Speaker{format: live.PlaybackFormat()}
}

func render(t *testing.T, s *Speaker, bytes int) []byte {
	t.Helper()
	p := make([]byte, bytes)
	n, err := s.read(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return p[:n]
}

func TestSpeaker_RendersSilenceWithNoSources(t *testing.T) {
	s := bareSpeaker()
	out := render(t, s, 480)
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d: got %d, want silence", i, b)
		}
	}
	if got := s.Now(); got != 10*time.Millisecond {
		t.Errorf("clock after 480 bytes: got %v, want 10ms", got)
	}
}

func TestSpeaker_RendersSourceAtOffset(t *testing.T) {
	s := bareSpeaker()
	pcm := []byte{1, 2, 3, 4}
	handle, err := s.Schedule(pcm, 10*time.Millisecond) // byte offset 480
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	out := render(t, s, 480)
	for i, b := range out {
		if b != 0 {
			t.Fatalf("pre-start byte %d: got %d, want silence", i, b)
		}
	}
	select {
	case <-handle.Done():
		t.Fatal("source done before its bytes rendered")
	default:
	}

	out = render(t, s, 480)
	for i, want := range pcm {
		if out[i] != want {
			t.Errorf("byte %d: got %d, want %d", i, out[i], want)
		}
	}
	select {
	case <-handle.Done():
	default:
		t.Error("source not done after its bytes rendered")
	}
}

func TestSpeaker_LateScheduleSnapsToCursor(t *testing.T) {
	s := bareSpeaker()
	render(t, s, 960) // cursor at 20ms

	pcm := []byte{9, 9}
	if _, err := s.Schedule(pcm, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	out := render(t, s, 4)
	if out[0] != 9 || out[1] != 9 {
		t.Errorf("late source not snapped to cursor: %v", out)
	}
}

func TestSpeaker_StoppedSourceRendersSilence(t *testing.T) {
	s := bareSpeaker()
	handle, err := s.Schedule([]byte{7, 7, 7, 7}, 0)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	handle.Stop()

	out := render(t, s, 4)
	for i, b := range out {
		if b != 0 {
			t.Errorf("byte %d after stop: got %d, want silence", i, b)
		}
	}
	select {
	case <-handle.Done():
	default:
		t.Error("stopped source not done")
	}
}

func TestSpeaker_AdjacentSourcesRenderBackToBack(t *testing.T) {
	s := bareSpeaker()
	first := make([]byte, 48) // exactly 1ms at the playback rate
	for i := range first {
		first[i] = 1
	}
	second := make([]byte, 48)
	for i := range second {
		second[i] = 2
	}
	if _, err := s.Schedule(first, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := s.Schedule(second, time.Millisecond); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	out := render(t, s, 96)
	if out[0] != 1 || out[47] != 1 {
		t.Errorf("first source bytes: got %d...%d, want 1...1", out[0], out[47])
	}
	if out[48] != 2 || out[95] != 2 {
		t.Errorf("second source bytes: got %d...%d, want 2...2", out[48], out[95])
	}
}
