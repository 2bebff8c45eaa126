package decoder

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/youpy/go-wav"

	"github.com/tapedeck/tapedeck/internal/audio"
)

// riffSource adapts an io.ReadSeeker to the riff.RIFFReader interface,
// which additionally requires io.ReaderAt. ReadAt repositions the
// underlying source, which is safe here because every consumer of the
// source re-seeks to an absolute offset before reading.
type riffSource struct {
	src io.ReadSeeker
}

func (r *riffSource) Read(p []byte) (int, error) { return r.src.Read(p) }

func (r *riffSource) ReadAt(p []byte, off int64) (int, error) {
	if _, err := r.src.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(r.src, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// WavDecoder handles RIFF/WAVE sources
type WavDecoder struct{}

// NewWavDecoder creates a new WAV codec instance
func NewWavDecoder() *WavDecoder {
	return &WavDecoder{}
}

// FormatName returns the name of the format this codec handles
func (d *WavDecoder) FormatName() string {
	return "WAV"
}

// CanDecode checks if this codec can handle the given filename
func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// Open parses the WAV header and returns a PCM stream over src
func (d *WavDecoder) Open(src io.ReadSeeker) (Stream, error) {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	reader := wav.NewReader(&riffSource{src: src})
	wf, err := reader.Format()
	if err != nil {
		slog.Error("failed to read WAV format", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	format := audio.Format{
		SampleRate: wf.SampleRate,
		Channels:   uint8(wf.NumChannels),
		Bits:       uint8(wf.BitsPerSample),
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("WAV format detected",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"bits_per_sample", format.Bits)

	// Total time is estimated from the source size minus the canonical
	// 44-byte header; sources with extra metadata chunks come out
	// slightly long, which only affects reporting.
	dataBytes := size - 44
	if dataBytes < 0 {
		dataBytes = 0
	}

	return &wavStream{
		src:    src,
		reader: reader,
		format: format,
		total:  format.Duration(int(dataBytes)),
	}, nil
}

// wavStream serves PCM bytes straight out of the data chunk
type wavStream struct {
	src    io.ReadSeeker
	reader *wav.Reader
	format audio.Format
	total  time.Duration
	pos    int // PCM bytes delivered since the last seek
	base   time.Duration
}

func (s *wavStream) Format() audio.Format { return s.format }

func (s *wavStream) TotalTime() time.Duration { return s.total }

func (s *wavStream) Position() time.Duration {
	return s.base + s.format.Duration(s.pos)
}

// Bitrate for uncompressed PCM is the constant byte rate
func (s *wavStream) Bitrate() int {
	return s.format.ByteRate() * 8 / 1000
}

func (s *wavStream) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	s.pos += n
	if n > 0 && err == io.EOF {
		err = nil // deliver the tail before signaling EOF
	}
	return n, err
}

// Seek reparses the header and discards PCM up to t; go-wav readers are
// forward-only.
func (s *wavStream) Seek(t time.Duration) error {
	if t < 0 {
		t = 0
	}
	if _, err := s.src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind WAV source: %w", err)
	}

	reader := wav.NewReader(&riffSource{src: s.src})
	if _, err := reader.Format(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	skip := s.format.BytesFor(t)
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, reader, int64(skip)); err != nil && err != io.EOF {
			return fmt.Errorf("skip to %v: %w", t, err)
		}
	}

	s.reader = reader
	s.pos = 0
	s.base = s.format.Duration(skip)
	return nil
}

func (s *wavStream) Close() error {
	s.reader = nil
	return nil
}

var _ Stream = (*wavStream)(nil)
