package decoder

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"

	"github.com/tapedeck/tapedeck/internal/audio"
)

// FlacDecoder handles FLAC sources
type FlacDecoder struct{}

// NewFlacDecoder creates a new FLAC codec instance
func NewFlacDecoder() *FlacDecoder {
	return &FlacDecoder{}
}

// FormatName returns the name of the format this codec handles
func (d *FlacDecoder) FormatName() string {
	return "FLAC"
}

// CanDecode checks if this codec can handle the given filename
func (d *FlacDecoder) CanDecode(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".flac")
}

// Open parses the FLAC stream info and returns a PCM stream. The seek
// table (or a binary search over frame headers when absent) is handled
// by mewkiz/flac.
func (d *FlacDecoder) Open(src io.ReadSeeker) (Stream, error) {
	fs, err := flac.NewSeek(src)
	if err != nil {
		slog.Error("failed to parse FLAC stream", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	info := fs.Info
	format := audio.Format{
		SampleRate: info.SampleRate,
		Channels:   info.NChannels,
		Bits:       info.BitsPerSample,
	}
	switch format.Bits {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: FLAC bit depth %d", ErrUnsupportedFormat, format.Bits)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	var total time.Duration
	if info.NSamples > 0 {
		total = time.Duration(info.NSamples) * time.Second / time.Duration(info.SampleRate)
	}

	slog.Debug("FLAC format detected",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"bits_per_sample", format.Bits,
		"total_samples", info.NSamples)

	return &flacStream{
		src:    src,
		fs:     fs,
		format: format,
		total:  total,
	}, nil
}

type flacStream struct {
	src    io.ReadSeeker
	fs     *flac.Stream
	format audio.Format
	total  time.Duration

	sample  uint64 // next sample frame to deliver
	pending []byte // decoded bytes not yet read

	lastSrcOff int64
	lastSample uint64
}

func (s *flacStream) Format() audio.Format { return s.format }

func (s *flacStream) TotalTime() time.Duration { return s.total }

func (s *flacStream) Position() time.Duration {
	undelivered := len(s.pending) / s.format.FrameSize()
	delivered := int64(s.sample) - int64(undelivered)
	if delivered < 0 {
		delivered = 0
	}
	return time.Duration(delivered) * time.Second / time.Duration(s.format.SampleRate)
}

// Bitrate reports the average source bit-rate over the window since the
// previous call.
func (s *flacStream) Bitrate() int {
	srcOff, err := s.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}

	deltaSamples := int64(s.sample) - int64(s.lastSample)
	deltaSrc := srcOff - s.lastSrcOff
	s.lastSrcOff = srcOff
	s.lastSample = s.sample

	if deltaSamples <= 0 || deltaSrc <= 0 {
		return 0
	}
	seconds := float64(deltaSamples) / float64(s.format.SampleRate)
	return int(float64(deltaSrc*8) / seconds / 1000)
}

func (s *flacStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		fr, err := s.fs.ParseNext()
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil {
			return 0, fmt.Errorf("parse FLAC frame: %w", err)
		}
		s.decodeFrame(fr)
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// decodeFrame interleaves the per-channel samples into little-endian
// PCM at the stream bit depth.
func (s *flacStream) decodeFrame(fr *frame.Frame) {
	if len(fr.Subframes) == 0 {
		return
	}
	nsamples := len(fr.Subframes[0].Samples)
	width := int(s.format.Bits) / 8

	need := nsamples * len(fr.Subframes) * width
	if cap(s.pending) < need {
		s.pending = make([]byte, 0, need)
	}
	buf := s.pending[:0]

	for i := 0; i < nsamples; i++ {
		for _, sf := range fr.Subframes {
			v := sf.Samples[i]
			switch width {
			case 2:
				buf = append(buf, byte(v), byte(v>>8))
			case 3:
				buf = append(buf, byte(v), byte(v>>8), byte(v>>16))
			case 4:
				buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			}
		}
	}

	s.pending = buf
	s.sample += uint64(nsamples)
}

// Seek repositions to the sample frame covering t. mewkiz/flac lands on
// a frame boundary at or before the target, so the stream skips the
// residue sample-exactly.
func (s *flacStream) Seek(t time.Duration) error {
	if t < 0 {
		t = 0
	}
	target := uint64(int64(t) * int64(s.format.SampleRate) / int64(time.Second))
	if s.total > 0 {
		if max := uint64(int64(s.total) * int64(s.format.SampleRate) / int64(time.Second)); target > max {
			target = max
		}
	}

	got, err := s.fs.Seek(target)
	if err != nil {
		return fmt.Errorf("seek FLAC to %v: %w", t, err)
	}

	s.sample = got
	s.lastSample = got
	s.pending = s.pending[:0]
	if srcOff, err := s.src.Seek(0, io.SeekCurrent); err == nil {
		s.lastSrcOff = srcOff
	}

	// Discard the residue between the frame boundary and the target.
	if target > got {
		skip := int(target-got) * s.format.FrameSize()
		if _, err := io.CopyN(io.Discard, s, int64(skip)); err != nil && err != io.EOF {
			return fmt.Errorf("skip FLAC residue: %w", err)
		}
	}
	return nil
}

func (s *flacStream) Close() error {
	s.pending = nil
	return nil
}

var _ Stream = (*flacStream)(nil)
