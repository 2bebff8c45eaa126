package decoder

import (
	"errors"
	"io"
	"time"

	"github.com/tapedeck/tapedeck/internal/audio"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrSeekUnsupported   = errors.New("seek not supported by this stream")
)

// Decoder is a codec plugin: it recognizes source files and opens
// positioned PCM streams over them.
type Decoder interface {
	// Open parses the source header and returns a PCM stream. The
	// source must stay valid for the stream's lifetime; the stream
	// does not close it.
	Open(src io.ReadSeeker) (Stream, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}

// Stream is an open, seekable PCM view of one compressed source, driven
// by the decode loop. Implementations are not safe for concurrent use;
// only the decoder loop touches a stream after open.
type Stream interface {
	// Format returns the negotiated PCM output format
	Format() audio.Format

	// TotalTime returns the total stream time, 0 if unknown
	TotalTime() time.Duration

	// Position returns the playback time of the next byte Read returns
	Position() time.Duration

	// Bitrate returns the instantaneous source bit-rate in kbps since
	// the previous call, 0 if unknown
	Bitrate() int

	// Read fills p with decoded PCM bytes, io.EOF at end of stream
	Read(p []byte) (int, error)

	// Seek repositions the stream to t, clamped to the stream bounds
	Seek(t time.Duration) error

	// Close releases codec resources, not the underlying source
	Close() error
}
