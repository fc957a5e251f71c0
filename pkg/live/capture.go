package live

import (
	"log/slog"
	"sync"
)

// FrameSamples is the fixed capture frame size, in samples.
const FrameSamples = 4096

// CaptureDevice abstracts a platform microphone that delivers fixed-size
// frames of normalized samples through a callback. Implementations live in
// internal/device.
type CaptureDevice interface {
	// Start begins delivering frames of FrameSamples samples to onFrame.
	Start(onFrame func(samples []float32)) error
	// Suspend pauses the capture clock without releasing the device.
	Suspend() error
	// Resume restarts a suspended capture clock.
	Resume() error
	// Suspended reports whether the capture clock is currently suspended.
	Suspended() bool
	// Stop releases the device. Safe to call more than once.
	Stop() error
}

// FrameSink receives transport-ready audio frames. Satisfied by
// channel.Channel.
type FrameSink interface {
	SendAudioFrame(pcm []byte) error
}

// CapturePipeline converts microphone frames to PCM16 and forwards them to
// the session channel, gated by mute and pause. Gated frames are dropped,
// never queued: transmission resumes on the next frame after the gate
// clears, with no backlog.
type CapturePipeline struct {
	device CaptureDevice
	sink   FrameSink
	logger *slog.Logger

	mu     sync.Mutex
	muted  bool
	paused bool
	closed bool
}

// NewCapturePipeline wires a capture device to a frame sink.
func NewCapturePipeline(device CaptureDevice, sink FrameSink, logger *slog.Logger) *CapturePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapturePipeline{device: device, sink: sink, logger: logger}
}

// Start acquires the device and begins streaming.
func (p *CapturePipeline) Start() error {
	if err := p.device.Start(p.onFrame); err != nil {
		return NewPermissionError(err.Error())
	}
	return nil
}

func (p *CapturePipeline) onFrame(samples []float32) {
	p.mu.Lock()
	if p.closed || p.paused {
		// Paused sessions never resume the capture clock from here.
		p.mu.Unlock()
		return
	}
	if p.device.Suspended() {
		if err := p.device.Resume(); err != nil {
			p.logger.Warn("resume capture clock", "err", err)
		}
	}
	if p.muted {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := p.sink.SendAudioFrame(EncodePCM16(samples)); err != nil {
		p.logger.Warn("drop capture frame", "err", err)
	}
}

// SetMuted flips the transmission gate. It never touches the capture clock
// or the connection.
func (p *CapturePipeline) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

// Muted reports the transmission gate.
func (p *CapturePipeline) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// SetPaused suspends or resumes the capture clock. It never closes the
// session.
func (p *CapturePipeline) SetPaused(paused bool) error {
	p.mu.Lock()
	if p.closed || p.paused == paused {
		p.mu.Unlock()
		return nil
	}
	p.paused = paused
	p.mu.Unlock()

	if paused {
		return p.device.Suspend()
	}
	return p.device.Resume()
}

// Paused reports the capture clock gate.
func (p *CapturePipeline) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Stop releases the capture device. Idempotent.
func (p *CapturePipeline) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.device.Stop(); err != nil {
		p.logger.Warn("stop capture device", "err", err)
	}
}
