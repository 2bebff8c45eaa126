package player

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/tapedeck/tapedeck/internal/audio"
	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/encoder"
	"github.com/tapedeck/tapedeck/internal/output"
)

// wavFile builds a canonical RIFF/WAVE file around pcm
func wavFile(format audio.Format, pcm []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(format.Channels))
	binary.Write(&buf, binary.LittleEndian, format.SampleRate)
	binary.Write(&buf, binary.LittleEndian, uint32(format.ByteRate()))
	binary.Write(&buf, binary.LittleEndian, uint16(format.FrameSize()))
	binary.Write(&buf, binary.LittleEndian, uint16(format.Bits))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// rampPCM generates len bytes of recognizable non-silence payload
func rampPCM(n int) []byte {
	pcm := make([]byte, n)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}
	return pcm
}

func sessionFixture(t *testing.T, pcm []byte) (afero.Fs, *decoder.Registry, *output.Registry) {
	t.Helper()
	fs := afero.NewMemMapFs()
	format := audio.Format{SampleRate: 8000, Channels: 1, Bits: 16}
	if err := afero.WriteFile(fs, "/music/take.wav", wavFile(format, pcm), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return fs, decoder.NewDefaultRegistry(), output.NewDefaultRegistry(fs, encoder.NewDefaultRegistry())
}

func TestSessionRecordsWavToWav(t *testing.T) {
	pcm := rampPCM(32000) // 2s at 8000:16:1
	fs, decoders, sinks := sessionFixture(t, pcm)

	s, err := NewSession(fs, decoders, sinks, Config{
		Source: "/music/take.wav",
		Sink:   output.Config{Name: "recorder", Path: "/out/copy.wav", Encoder: "wav"},
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	s.Start()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait returned %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	out, err := afero.ReadFile(fs, "/out/copy.wav")
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(out) != 44+len(pcm) {
		t.Fatalf("output is %d bytes, want %d", len(out), 44+len(pcm))
	}
	if !bytes.Equal(out[44:], pcm) {
		t.Error("output payload differs from the source PCM")
	}

	if got := s.Elapsed(); got != 2*time.Second {
		t.Errorf("Elapsed = %v, want 2s", got)
	}
	if got := s.TotalTime(); got != 2*time.Second {
		t.Errorf("TotalTime = %v, want 2s", got)
	}
}

func TestSessionPcmEncoderEmitsRawPayload(t *testing.T) {
	pcm := rampPCM(16000)
	fs, decoders, sinks := sessionFixture(t, pcm)

	s, err := NewSession(fs, decoders, sinks, Config{
		Source: "/music/take.wav",
		Sink:   output.Config{Name: "recorder", Path: "/out/copy.raw", Encoder: "pcm"},
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	s.Start()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait returned %v", err)
	}
	s.Close()

	out, err := afero.ReadFile(fs, "/out/copy.raw")
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.Equal(out, pcm) {
		t.Errorf("raw output is %d bytes and differs, want the %d source bytes", len(out), len(pcm))
	}
}

func TestSessionStopEndsCleanly(t *testing.T) {
	pcm := rampPCM(160000) // 10s of source
	fs, decoders, sinks := sessionFixture(t, pcm)

	s, err := NewSession(fs, decoders, sinks, Config{
		Source: "/music/take.wav",
		Sink:   output.Config{Name: "null"},
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	s.Start()
	s.Stop()
	if err := s.Wait(); err != nil {
		t.Errorf("Wait after stop returned %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSessionSeekSkipsEarlierAudio(t *testing.T) {
	pcm := rampPCM(64000) // 4s of source
	fs, decoders, sinks := sessionFixture(t, pcm)

	s, err := NewSession(fs, decoders, sinks, Config{
		Source: "/music/take.wav",
		Chunks: 4,
		Sink:   output.Config{Name: "recorder", Path: "/out/tail.raw", Encoder: "pcm"},
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	// Seek before starting: the request is latched and honored before
	// any chunk is produced.
	if !s.Seek(3 * time.Second) {
		t.Fatal("seek rejected before start")
	}
	s.Start()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait returned %v", err)
	}
	s.Close()

	out, err := afero.ReadFile(fs, "/out/tail.raw")
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	want := pcm[48000:] // everything from 3s on
	if !bytes.Equal(out, want) {
		t.Errorf("seek output is %d bytes, want the final %d source bytes", len(out), len(want))
	}
	if got := s.Elapsed(); got != 4*time.Second {
		t.Errorf("Elapsed = %v, want 4s", got)
	}
}

func TestSessionDeliversTag(t *testing.T) {
	pcm := rampPCM(16000)
	fs, decoders, _ := sessionFixture(t, pcm)

	recording := &recordingSink{}
	registry := output.NewRegistry()
	registry.Register("capture", func(output.Config) (output.Sink, error) {
		return recording, nil
	})

	s, err := NewSession(fs, decoders, registry, Config{
		Source: "/music/take.wav",
		Sink:   output.Config{Name: "capture"},
		Tag:    encoder.Tag{Title: "Take One", Artist: "The Fixtures"},
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	s.Start()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait returned %v", err)
	}
	s.Close()

	if len(recording.events) == 0 || recording.events[0] != "tag:Take One" {
		t.Errorf("events = %v, want the tag before the first chunk", recording.events)
	}
}

func TestSessionRejectsMissingSource(t *testing.T) {
	fs, decoders, sinks := sessionFixture(t, rampPCM(16))

	_, err := NewSession(fs, decoders, sinks, Config{
		Source: "/music/missing.wav",
		Sink:   output.Config{Name: "null"},
	})
	if err == nil {
		t.Fatal("NewSession accepted a missing source")
	}
}

func TestSessionRejectsUnknownSink(t *testing.T) {
	fs, decoders, sinks := sessionFixture(t, rampPCM(16000))

	_, err := NewSession(fs, decoders, sinks, Config{
		Source: "/music/take.wav",
		Sink:   output.Config{Name: "icecast"},
	})
	if err == nil {
		t.Fatal("NewSession accepted an unknown sink")
	}
}
