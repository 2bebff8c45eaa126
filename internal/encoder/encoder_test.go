package encoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/tapedeck/tapedeck/internal/audio"
)

func TestRegistryResolvesBuiltins(t *testing.T) {
	registry := NewDefaultRegistry()

	for _, name := range []string{"wav", "pcm"} {
		if !registry.Has(name) {
			t.Errorf("builtin encoder %q not registered", name)
		}
		enc, err := registry.New(name)
		if err != nil {
			t.Errorf("New(%q) failed: %v", name, err)
		}
		if enc == nil {
			t.Errorf("New(%q) returned nil encoder", name)
		}
	}
}

func TestRegistryUnknownEncoder(t *testing.T) {
	registry := NewDefaultRegistry()

	_, err := registry.New("vorbis")
	if !errors.Is(err, ErrUnknownEncoder) {
		t.Errorf("expected ErrUnknownEncoder, got %v", err)
	}
	if registry.Has("vorbis") {
		t.Error("Has reported unknown encoder as registered")
	}
}

func TestRegistryNewReturnsFreshInstances(t *testing.T) {
	registry := NewDefaultRegistry()

	a, _ := registry.New("pcm")
	b, _ := registry.New("pcm")
	if a == b {
		t.Error("registry handed out the same encoder instance twice")
	}
}

// drainAll pulls everything pending out of an encoder
func drainAll(e Encoder) []byte {
	var out []byte
	buf := make([]byte, 512)
	for {
		n := e.Read(buf)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func TestWavEncoderHeader(t *testing.T) {
	enc := NewWavEncoder()
	format := audio.Format{SampleRate: 44100, Channels: 2, Bits: 16}

	if err := enc.Open(format); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	header := drainAll(enc)
	if len(header) != 44 {
		t.Fatalf("expected 44 header bytes, got %d", len(header))
	}

	if !bytes.Equal(header[0:4], []byte("RIFF")) {
		t.Errorf("missing RIFF magic: %q", header[0:4])
	}
	if !bytes.Equal(header[8:12], []byte("WAVE")) {
		t.Errorf("missing WAVE magic: %q", header[8:12])
	}
	if !bytes.Equal(header[36:40], []byte("data")) {
		t.Errorf("missing data chunk id: %q", header[36:40])
	}

	if got := binary.LittleEndian.Uint16(header[22:24]); got != 2 {
		t.Errorf("expected 2 channels in header, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(header[24:28]); got != 44100 {
		t.Errorf("expected sample rate 44100 in header, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(header[34:36]); got != 16 {
		t.Errorf("expected 16 bits in header, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(header[40:44]); got != streamingSize {
		t.Errorf("expected streaming data size sentinel, got %#x", got)
	}
}

func TestWavEncoderPassthrough(t *testing.T) {
	enc := NewWavEncoder()
	if err := enc.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	drainAll(enc) // discard header

	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := enc.Write(pcm); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if got := drainAll(enc); !bytes.Equal(got, pcm) {
		t.Errorf("expected passthrough %v, got %v", pcm, got)
	}
}

func TestWavEncoderRejectsInvalidFormat(t *testing.T) {
	enc := NewWavEncoder()
	err := enc.Open(audio.Format{SampleRate: 0, Channels: 2, Bits: 16})
	if err == nil {
		t.Error("Open accepted zero sample rate")
	}
}

func TestWavEncoderDoubleOpen(t *testing.T) {
	enc := NewWavEncoder()
	if err := enc.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := enc.Open(audio.CD); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("expected ErrAlreadyOpen, got %v", err)
	}
}

func TestPcmEncoderLifecycleGuards(t *testing.T) {
	enc := NewPcmEncoder()

	if err := enc.Write([]byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write before Open: expected ErrNotOpen, got %v", err)
	}
	if err := enc.End(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("End before Open: expected ErrNotOpen, got %v", err)
	}
	if err := enc.PreTag(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("PreTag before Open: expected ErrNotOpen, got %v", err)
	}

	if err := enc.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := enc.Write([]byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write after Close: expected ErrNotOpen, got %v", err)
	}
}

func TestPcmEncoderNoHeaderNoTrailer(t *testing.T) {
	enc := NewPcmEncoder()
	if err := enc.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if got := drainAll(enc); len(got) != 0 {
		t.Errorf("raw PCM encoder emitted %d header bytes", len(got))
	}

	pcm := []byte{9, 8, 7, 6}
	enc.Write(pcm)
	if got := drainAll(enc); !bytes.Equal(got, pcm) {
		t.Errorf("expected %v, got %v", pcm, got)
	}

	if err := enc.End(); err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if got := drainAll(enc); len(got) != 0 {
		t.Errorf("raw PCM encoder emitted %d trailer bytes", len(got))
	}
}

func TestEncoderReadNeverBlocksWhenEmpty(t *testing.T) {
	encoders := []Encoder{NewWavEncoder(), NewPcmEncoder()}

	for _, enc := range encoders {
		buf := make([]byte, 16)
		if n := enc.Read(buf); n != 0 {
			t.Errorf("Read on fresh encoder returned %d", n)
		}
	}
}

func TestEncoderPullContract(t *testing.T) {
	// Write, drain to empty, write again: the second drain must return
	// exactly the second payload.
	enc := NewPcmEncoder()
	enc.Open(audio.CD)

	enc.Write([]byte{1, 1})
	first := drainAll(enc)
	enc.Write([]byte{2, 2, 2})
	second := drainAll(enc)

	if !bytes.Equal(first, []byte{1, 1}) {
		t.Errorf("first drain: %v", first)
	}
	if !bytes.Equal(second, []byte{2, 2, 2}) {
		t.Errorf("second drain: %v", second)
	}
}

func TestTagEmpty(t *testing.T) {
	if !(Tag{}).Empty() {
		t.Error("zero tag should be empty")
	}
	if (Tag{Title: "x"}).Empty() {
		t.Error("titled tag should not be empty")
	}
}
