package decoder

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/tapedeck/tapedeck/internal/audio"
)

// Mp3Decoder handles MPEG layer 3 sources
type Mp3Decoder struct{}

// NewMp3Decoder creates a new MP3 codec instance
func NewMp3Decoder() *Mp3Decoder {
	return &Mp3Decoder{}
}

// FormatName returns the name of the format this codec handles
func (d *Mp3Decoder) FormatName() string {
	return "MP3"
}

// CanDecode checks if this codec can handle the given filename
func (d *Mp3Decoder) CanDecode(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".mp3")
}

// Open creates a go-mp3 decoder over src. go-mp3 always emits 16-bit
// stereo and, for seekable sources, supports sample-accurate seeking
// over the decoded byte stream.
func (d *Mp3Decoder) Open(src io.ReadSeeker) (Stream, error) {
	dec, err := mp3.NewDecoder(src)
	if err != nil {
		slog.Error("failed to create MP3 decoder", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	if dec.SampleRate() <= 0 {
		return nil, fmt.Errorf("%w: MP3 sample rate %d", ErrInvalidData, dec.SampleRate())
	}

	format := audio.Format{
		SampleRate: uint32(dec.SampleRate()),
		Channels:   2,
		Bits:       16,
	}

	var total time.Duration
	if length := dec.Length(); length > 0 {
		total = format.Duration(int(length))
	}

	slog.Debug("MP3 format detected",
		"sample_rate", format.SampleRate,
		"total_time", total)

	return &mp3Stream{
		src:    src,
		dec:    dec,
		format: format,
		total:  total,
	}, nil
}

type mp3Stream struct {
	src    io.ReadSeeker
	dec    *mp3.Decoder
	format audio.Format
	total  time.Duration
	pos    int64 // decoded bytes delivered

	// bit-rate sampling window
	lastSrcOff int64
	lastPos    int64
}

func (s *mp3Stream) Format() audio.Format { return s.format }

func (s *mp3Stream) TotalTime() time.Duration { return s.total }

func (s *mp3Stream) Position() time.Duration {
	return s.format.Duration(int(s.pos))
}

// Bitrate reports the average source bit-rate over the window since the
// previous call, from the compressed bytes consumed per decoded second.
func (s *mp3Stream) Bitrate() int {
	srcOff, err := s.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}

	deltaPCM := s.pos - s.lastPos
	deltaSrc := srcOff - s.lastSrcOff
	s.lastSrcOff = srcOff
	s.lastPos = s.pos

	if deltaPCM <= 0 || deltaSrc <= 0 {
		return 0
	}
	window := s.format.Duration(int(deltaPCM))
	if window <= 0 {
		return 0
	}
	return int(float64(deltaSrc*8) / window.Seconds() / 1000)
}

func (s *mp3Stream) Read(p []byte) (int, error) {
	n, err := s.dec.Read(p)
	s.pos += int64(n)
	if n > 0 && err == io.EOF {
		err = nil
	}
	return n, err
}

// Seek repositions over the decoded byte stream, rounded down to a whole
// sample frame.
func (s *mp3Stream) Seek(t time.Duration) error {
	if t < 0 {
		t = 0
	}
	off := int64(s.format.BytesFor(t))
	if length := s.dec.Length(); length > 0 && off > length {
		off = length
	}

	got, err := s.dec.Seek(off, io.SeekStart)
	if err != nil {
		return fmt.Errorf("seek MP3 to %v: %w", t, err)
	}
	s.pos = got
	s.lastPos = got
	if srcOff, err := s.src.Seek(0, io.SeekCurrent); err == nil {
		s.lastSrcOff = srcOff
	}
	return nil
}

func (s *mp3Stream) Close() error {
	s.dec = nil
	return nil
}

var _ Stream = (*mp3Stream)(nil)
