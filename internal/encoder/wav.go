package encoder

import (
	"encoding/binary"
	"log/slog"

	"github.com/tapedeck/tapedeck/internal/audio"
)

// streamingSize is the sentinel chunk size written while the final
// stream length is unknown; readers treat it as "until end of file".
const streamingSize = 0xFFFFFFFF

// WavEncoder wraps PCM in a RIFF/WAVE container. The header goes out at
// Open with streaming size fields, so the output stays valid without
// seeking back, and the sample data passes through untouched.
type WavEncoder struct {
	format  audio.Format
	open    bool
	pending []byte
}

// NewWavEncoder creates a new WAV encoder instance
func NewWavEncoder() *WavEncoder {
	return &WavEncoder{}
}

// Open queues the RIFF header for draining
func (e *WavEncoder) Open(format audio.Format) error {
	if e.open {
		return ErrAlreadyOpen
	}
	if err := format.Validate(); err != nil {
		return err
	}

	e.format = format
	e.open = true
	e.pending = appendWavHeader(e.pending[:0], format)

	slog.Debug("WAV encoder opened",
		"format", format.String(),
		"header_bytes", len(e.pending))
	return nil
}

// appendWavHeader writes the canonical 44-byte header with unknown
// stream length
func appendWavHeader(buf []byte, f audio.Format) []byte {
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, streamingSize)
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, uint16(f.Channels))
	buf = binary.LittleEndian.AppendUint32(buf, f.SampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(f.ByteRate()))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(f.FrameSize()))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(f.Bits))
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, streamingSize)
	return buf
}

// Write passes PCM through into the pending buffer
func (e *WavEncoder) Write(pcm []byte) error {
	if !e.open {
		return ErrNotOpen
	}
	e.pending = append(e.pending, pcm...)
	return nil
}

// Read drains pending container bytes; never blocks
func (e *WavEncoder) Read(out []byte) int {
	n := copy(out, e.pending)
	e.pending = e.pending[n:]
	if len(e.pending) == 0 {
		e.pending = nil
	}
	return n
}

// PreTag is a no-op: the sample data passes through unbuffered
func (e *WavEncoder) PreTag() error {
	if !e.open {
		return ErrNotOpen
	}
	return nil
}

// Tag is accepted and ignored: a mid-stream RIFF container has no place
// for metadata
func (e *WavEncoder) Tag(tag Tag) error {
	if !e.open {
		return ErrNotOpen
	}
	slog.Debug("WAV encoder ignoring tag", "title", tag.Title)
	return nil
}

// End has no trailer to flush
func (e *WavEncoder) End() error {
	if !e.open {
		return ErrNotOpen
	}
	return nil
}

// Close releases the instance
func (e *WavEncoder) Close() error {
	e.open = false
	e.pending = nil
	return nil
}

var _ Encoder = (*WavEncoder)(nil)
