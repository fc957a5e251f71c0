package live

import (
	"sync"
	"time"
)

const (
	// transcriptLimit is the caption length beyond which the next
	// fragment replaces the accumulated text (a paragraph cut).
	transcriptLimit = 200

	// defaultClearDelay is how long a finished turn's caption lingers.
	defaultClearDelay = 6 * time.Second
)

// TranscriptAssembler accumulates streaming transcription fragments into a
// bounded, turn-scoped caption.
type TranscriptAssembler struct {
	clearDelay time.Duration

	mu    sync.Mutex
	text  string
	timer *time.Timer
}

// NewTranscriptAssembler creates an assembler. clearDelay <= 0 selects the
// default of 6 seconds.
func NewTranscriptAssembler(clearDelay time.Duration) *TranscriptAssembler {
	if clearDelay <= 0 {
		clearDelay = defaultClearDelay
	}
	return &TranscriptAssembler{clearDelay: clearDelay}
}

// Append adds a fragment. A caption already past the length limit is
// replaced by the fragment rather than extended. Any pending scheduled
// clear is cancelled.
func (a *TranscriptAssembler) Append(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelTimerLocked()
	if len(a.text) > transcriptLimit {
		a.text = fragment
		return
	}
	a.text += fragment
}

// TurnComplete schedules a clear after the linger delay, unless further
// fragments or an interrupt arrive first.
func (a *TranscriptAssembler) TurnComplete() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelTimerLocked()
	a.timer = time.AfterFunc(a.clearDelay, a.Clear)
}

// Clear empties the caption immediately and cancels any pending clear.
func (a *TranscriptAssembler) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelTimerLocked()
	a.text = ""
}

func (a *TranscriptAssembler) cancelTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Text returns the current caption.
func (a *TranscriptAssembler) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}
