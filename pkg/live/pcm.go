package live

import (
	"time"
)

// AudioConfig specifies PCM format parameters.
type AudioConfig struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// CaptureFormat is the fixed microphone format: 16 kHz mono PCM16.
func CaptureFormat() AudioConfig {
	return AudioConfig{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

// PlaybackFormat is the fixed synthesized-audio format: 24 kHz mono PCM16.
func PlaybackFormat() AudioConfig {
	return AudioConfig{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// Duration returns the playback duration of the given byte count.
func (c AudioConfig) Duration(bytes int) time.Duration {
	bps := c.BytesPerSecond()
	if bps <= 0 || bytes <= 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}

// BytesForDuration returns the byte count covering d, rounded down to a
// whole sample.
func (c AudioConfig) BytesForDuration(d time.Duration) int {
	bps := c.BytesPerSecond()
	if bps <= 0 || d <= 0 {
		return 0
	}
	n := int(int64(bps) * int64(d) / int64(time.Second))
	align := c.Channels * (c.BitsPerSample / 8)
	if align > 0 {
		n -= n % align
	}
	return n
}

// EncodePCM16 converts normalized float samples to 16-bit signed
// little-endian PCM. Samples are clamped to [-1, 1] before scaling so
// out-of-range input saturates instead of wrapping.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		s := int16(v * 32767.0)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM back to normalized
// float samples. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}
