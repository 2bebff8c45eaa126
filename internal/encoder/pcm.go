package encoder

import (
	"log/slog"

	"github.com/tapedeck/tapedeck/internal/audio"
)

// PcmEncoder emits raw headerless PCM, unchanged. Useful as a sink
// passthrough and as the baseline implementation of the pull contract.
type PcmEncoder struct {
	open    bool
	pending []byte
}

// NewPcmEncoder creates a new raw PCM encoder instance
func NewPcmEncoder() *PcmEncoder {
	return &PcmEncoder{}
}

// Open validates the format; raw PCM has no header
func (e *PcmEncoder) Open(format audio.Format) error {
	if e.open {
		return ErrAlreadyOpen
	}
	if err := format.Validate(); err != nil {
		return err
	}
	e.open = true
	slog.Debug("PCM encoder opened", "format", format.String())
	return nil
}

// Write buffers PCM for the next drain
func (e *PcmEncoder) Write(pcm []byte) error {
	if !e.open {
		return ErrNotOpen
	}
	e.pending = append(e.pending, pcm...)
	return nil
}

// Read drains pending bytes; never blocks
func (e *PcmEncoder) Read(out []byte) int {
	n := copy(out, e.pending)
	e.pending = e.pending[n:]
	if len(e.pending) == 0 {
		e.pending = nil
	}
	return n
}

// PreTag is a no-op for raw PCM
func (e *PcmEncoder) PreTag() error {
	if !e.open {
		return ErrNotOpen
	}
	return nil
}

// Tag is accepted and ignored: raw PCM carries no metadata
func (e *PcmEncoder) Tag(Tag) error {
	if !e.open {
		return ErrNotOpen
	}
	return nil
}

// End has nothing to flush
func (e *PcmEncoder) End() error {
	if !e.open {
		return ErrNotOpen
	}
	return nil
}

// Close releases the instance
func (e *PcmEncoder) Close() error {
	e.open = false
	e.pending = nil
	return nil
}

var _ Encoder = (*PcmEncoder)(nil)
