// Package device holds the platform audio bindings: a malgo-backed
// microphone and an oto-backed output clock. Everything above this package
// talks to the interfaces in pkg/live and never sees a device handle.
package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/astraportal/astraportal/pkg/live"
)

// Mic is a miniaudio capture device delivering fixed-size frames of
// normalized mono samples. It implements live.CaptureDevice.
type Mic struct {
	format live.AudioConfig

	mu        sync.Mutex
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	onFrame   func([]float32)
	pending   []float32
	suspended bool
	closed    bool
}

// NewMic prepares a microphone at the capture format. The device is not
// acquired until Start.
func NewMic() *Mic {
	return &Mic{format: live.CaptureFormat()}
}

// Start acquires the default capture device and begins delivering frames of
// live.FrameSamples samples to onFrame from the device's own goroutine.
func (m *Mic) Start(onFrame func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mic: already stopped")
	}
	if m.device != nil {
		return fmt.Errorf("mic: already started")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("mic: init context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(m.format.Channels)
	cfg.SampleRate = uint32(m.format.SampleRate)
	cfg.Alsa.NoMMap = 1

	m.onFrame = onFrame
	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: m.onDeviceData,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("mic: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("mic: start device: %w", err)
	}

	m.ctx = ctx
	m.device = device
	return nil
}

// onDeviceData rebuffers the device's variable-size callbacks into
// fixed-size frames.
func (m *Mic) onDeviceData(_, input []byte, frameCount uint32) {
	m.mu.Lock()
	onFrame := m.onFrame
	if m.closed || onFrame == nil {
		m.mu.Unlock()
		return
	}
	n := int(frameCount) * m.format.Channels
	for i := 0; i < n && (i+1)*4 <= len(input); i++ {
		bits := binary.LittleEndian.Uint32(input[i*4:])
		m.pending = append(m.pending, math.Float32frombits(bits))
	}
	var frames [][]float32
	for len(m.pending) >= live.FrameSamples {
		frame := make([]float32, live.FrameSamples)
		copy(frame, m.pending[:live.FrameSamples])
		m.pending = m.pending[live.FrameSamples:]
		frames = append(frames, frame)
	}
	m.mu.Unlock()

	for _, frame := range frames {
		onFrame(frame)
	}
}

// Suspend stops the capture clock without releasing the device. The device
// call happens outside the lock: stopping may wait for an in-flight data
// callback, and that callback takes the same lock.
func (m *Mic) Suspend() error {
	m.mu.Lock()
	if m.closed || m.device == nil || m.suspended {
		m.mu.Unlock()
		return nil
	}
	m.suspended = true
	device := m.device
	m.mu.Unlock()

	if err := device.Stop(); err != nil {
		return fmt.Errorf("mic: suspend: %w", err)
	}
	return nil
}

// Resume restarts a suspended capture clock.
func (m *Mic) Resume() error {
	m.mu.Lock()
	if m.closed || m.device == nil || !m.suspended {
		m.mu.Unlock()
		return nil
	}
	m.suspended = false
	device := m.device
	m.mu.Unlock()

	if err := device.Start(); err != nil {
		return fmt.Errorf("mic: resume: %w", err)
	}
	return nil
}

// Suspended reports whether the capture clock is stopped.
func (m *Mic) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

// Stop releases the device and context. Safe to call more than once.
func (m *Mic) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.onFrame = nil
	device := m.device
	ctx := m.ctx
	m.device = nil
	m.ctx = nil
	m.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	if ctx != nil {
		err := ctx.Uninit()
		ctx.Free()
		if err != nil {
			return fmt.Errorf("mic: uninit context: %w", err)
		}
	}
	return nil
}
