package audio

import (
	"errors"
	"fmt"
	"time"
)

// Common audio errors shared across the pipeline
var (
	ErrInvalidFormat     = errors.New("invalid audio format")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Format describes the negotiated PCM stream format: interleaved signed
// little-endian samples.
type Format struct {
	SampleRate uint32 // Samples per second per channel (e.g. 44100)
	Channels   uint8  // Number of interleaved channels
	Bits       uint8  // Bit depth per sample (16, 24, 32)
}

// CD is the canonical 44.1kHz/16-bit stereo format
var CD = Format{SampleRate: 44100, Channels: 2, Bits: 16}

// Valid reports whether the format parameters are usable
func (f Format) Valid() bool {
	if f.SampleRate == 0 || f.Channels == 0 {
		return false
	}
	switch f.Bits {
	case 16, 24, 32:
		return true
	}
	return false
}

// Validate returns a descriptive error for an unusable format
func (f Format) Validate() error {
	if f.SampleRate == 0 {
		return fmt.Errorf("%w: zero sample rate", ErrInvalidFormat)
	}
	if f.Channels == 0 {
		return fmt.Errorf("%w: zero channels", ErrInvalidFormat)
	}
	switch f.Bits {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidFormat, f.Bits)
	}
}

// FrameSize returns the byte size of one sample frame (all channels)
func (f Format) FrameSize() int {
	return int(f.Channels) * int(f.Bits) / 8
}

// ByteRate returns the PCM byte rate per second
func (f Format) ByteRate() int {
	return int(f.SampleRate) * f.FrameSize()
}

// Duration returns the playback time of n PCM bytes in this format
func (f Format) Duration(n int) time.Duration {
	rate := f.ByteRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// BytesFor returns the PCM byte count covering d, rounded down to a
// whole sample frame
func (f Format) BytesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(int64(d) * int64(f.ByteRate()) / int64(time.Second))
	fs := f.FrameSize()
	if fs > 0 {
		n -= n % fs
	}
	return n
}

// String renders the format the way it appears in logs: "44100:16:2"
func (f Format) String() string {
	return fmt.Sprintf("%d:%d:%d", f.SampleRate, f.Bits, f.Channels)
}
