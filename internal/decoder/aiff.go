package decoder

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-audio/aiff"

	"github.com/tapedeck/tapedeck/internal/audio"
)

// AiffDecoder handles AIFF sources. go-audio exposes AIFF as whole-file
// PCM buffers, so the stream decodes once at open and serves reads and
// seeks from memory; still no per-chunk allocation on the decode path.
type AiffDecoder struct{}

// NewAiffDecoder creates a new AIFF codec instance
func NewAiffDecoder() *AiffDecoder {
	return &AiffDecoder{}
}

// FormatName returns the name of the format this codec handles
func (d *AiffDecoder) FormatName() string {
	return "AIFF"
}

// CanDecode checks if this codec can handle the given filename
func (d *AiffDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".aiff") || strings.HasSuffix(lower, ".aif")
}

// Open decodes the whole AIFF source into PCM
func (d *AiffDecoder) Open(src io.ReadSeeker) (Stream, error) {
	dec := aiff.NewDecoder(src)
	dec.ReadInfo()

	if !dec.IsValidFile() {
		slog.Error("invalid AIFF file")
		return nil, ErrInvalidData
	}

	format := audio.Format{
		SampleRate: uint32(dec.SampleRate),
		Channels:   uint8(dec.NumChans),
		Bits:       uint8(dec.SampleBitDepth()),
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("AIFF format detected",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"bits_per_sample", format.Bits)

	pcmBuf, err := dec.FullPCMBuffer()
	if err != nil {
		slog.Error("failed to read AIFF samples", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	if pcmBuf == nil || len(pcmBuf.Data) == 0 {
		return nil, ErrInvalidData
	}

	data, err := interleaveSamples(pcmBuf.Data, int(format.Bits))
	if err != nil {
		return nil, err
	}

	return &aiffStream{
		format: format,
		data:   data,
		total:  format.Duration(len(data)),
	}, nil
}

// interleaveSamples packs decoded ints as little-endian PCM bytes
func interleaveSamples(samples []int, bits int) ([]byte, error) {
	width := bits / 8
	out := make([]byte, 0, len(samples)*width)

	for _, sample := range samples {
		v := int32(sample)
		switch bits {
		case 16:
			out = append(out, byte(v), byte(v>>8))
		case 24:
			out = append(out, byte(v), byte(v>>8), byte(v>>16))
		case 32:
			out = append(out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
		default:
			return nil, fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, bits)
		}
	}
	return out, nil
}

type aiffStream struct {
	format audio.Format
	data   []byte
	total  time.Duration
	off    int
}

func (s *aiffStream) Format() audio.Format { return s.format }

func (s *aiffStream) TotalTime() time.Duration { return s.total }

func (s *aiffStream) Position() time.Duration {
	return s.format.Duration(s.off)
}

// Bitrate for decoded-in-memory PCM is the constant byte rate
func (s *aiffStream) Bitrate() int {
	return s.format.ByteRate() * 8 / 1000
}

func (s *aiffStream) Read(p []byte) (int, error) {
	if s.off >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.off:])
	s.off += n
	return n, nil
}

func (s *aiffStream) Seek(t time.Duration) error {
	if t < 0 {
		t = 0
	}
	off := s.format.BytesFor(t)
	if off > len(s.data) {
		off = len(s.data)
	}
	s.off = off
	return nil
}

func (s *aiffStream) Close() error {
	s.data = nil
	return nil
}

var _ Stream = (*aiffStream)(nil)
