package dsp

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidBuffer is returned when a Buffer cannot be processed.
var ErrInvalidBuffer = errors.New("invalid sample buffer")

// Buffer is a decoded multi-channel block of float samples at a fixed
// sample rate. Channels are stored planar: Channels[c][frame].
type Buffer struct {
	SampleRate int
	Channels   [][]float64
}

// NewBuffer allocates a zero-filled buffer.
func NewBuffer(sampleRate int, channels int, frames int) *Buffer {
	if channels < 0 {
		channels = 0
	}
	if frames < 0 {
		frames = 0
	}
	b := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float64, channels),
	}
	for c := range b.Channels {
		b.Channels[c] = make([]float64, frames)
	}
	return b
}

// FromInterleaved de-interleaves float32 frames (L, R, L, R, ...) into a Buffer.
// Trailing samples that do not form a whole frame are dropped.
func FromInterleaved(data []float32, numChannels int, sampleRate int) *Buffer {
	if numChannels < 1 {
		return NewBuffer(sampleRate, 0, 0)
	}
	frames := len(data) / numChannels
	b := NewBuffer(sampleRate, numChannels, frames)
	for i := 0; i < frames; i++ {
		base := i * numChannels
		for c := 0; c < numChannels; c++ {
			b.Channels[c][i] = float64(data[base+c])
		}
	}
	return b
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

// Frames returns the number of frames (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Validate reports whether the buffer is non-empty, has a positive sample
// rate and equal-length channels.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be > 0, got %d", ErrInvalidBuffer, b.SampleRate)
	}
	if len(b.Channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidBuffer)
	}
	n := len(b.Channels[0])
	if n == 0 {
		return fmt.Errorf("%w: no frames", ErrInvalidBuffer)
	}
	for c, ch := range b.Channels {
		if len(ch) != n {
			return fmt.Errorf("%w: channel %d has %d frames, want %d", ErrInvalidBuffer, c, len(ch), n)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	out := &Buffer{
		SampleRate: b.SampleRate,
		Channels:   make([][]float64, len(b.Channels)),
	}
	for c, ch := range b.Channels {
		out.Channels[c] = append([]float64(nil), ch...)
	}
	return out
}

// Interleaved32 returns the samples interleaved as float32 frames.
func (b *Buffer) Interleaved32() []float32 {
	numCh := b.NumChannels()
	frames := b.Frames()
	out := make([]float32, frames*numCh)
	for i := 0; i < frames; i++ {
		base := i * numCh
		for c := 0; c < numCh; c++ {
			out[base+c] = float32(b.Channels[c][i])
		}
	}
	return out
}

// AbsPeak returns the largest absolute sample value across all channels.
func (b *Buffer) AbsPeak() float64 {
	if b == nil {
		return 0
	}
	var peak float64
	for _, ch := range b.Channels {
		for _, v := range ch {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// Scale multiplies every sample by g in place.
func (b *Buffer) Scale(g float64) {
	for _, ch := range b.Channels {
		for i := range ch {
			ch[i] *= g
		}
	}
}

// Finite reports whether every sample is a finite number.
func (b *Buffer) Finite() bool {
	for _, ch := range b.Channels {
		for _, v := range ch {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// FlushDenormals converts tiny denormal-like values to zero.
func FlushDenormals(x float64) float64 {
	const epsilon = 1e-30
	if x > -epsilon && x < epsilon {
		return 0.0
	}
	return x
}
