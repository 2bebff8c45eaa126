package output

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/tapedeck/tapedeck/internal/audio"
	"github.com/tapedeck/tapedeck/internal/encoder"
)

// stubEncoder is a scriptable encoder for exercising the recorder's
// failure paths without a real codec
type stubEncoder struct {
	pending []byte

	failOpen   bool
	failWrite  bool
	failPreTag bool
	failTag    bool
	failEnd    bool

	opened    bool
	closed    bool
	tags      []encoder.Tag
	endCalled bool
}

var errStub = errors.New("stub encoder failure")

func (s *stubEncoder) Open(format audio.Format) error {
	if s.failOpen {
		return errStub
	}
	s.opened = true
	s.pending = append(s.pending, []byte("HDR!")...)
	return nil
}

func (s *stubEncoder) Write(pcm []byte) error {
	if s.failWrite {
		return errStub
	}
	s.pending = append(s.pending, pcm...)
	return nil
}

func (s *stubEncoder) Read(out []byte) int {
	n := copy(out, s.pending)
	s.pending = s.pending[n:]
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return n
}

func (s *stubEncoder) PreTag() error {
	if s.failPreTag {
		return errStub
	}
	return nil
}

func (s *stubEncoder) Tag(tag encoder.Tag) error {
	if s.failTag {
		return errStub
	}
	s.tags = append(s.tags, tag)
	return nil
}

func (s *stubEncoder) End() error {
	s.endCalled = true
	if s.failEnd {
		return errStub
	}
	s.pending = append(s.pending, []byte("END!")...)
	return nil
}

func (s *stubEncoder) Close() error {
	s.closed = true
	return nil
}

// stubRegistry wraps a single stub instance under the name "stub"
func stubRegistry(stub *stubEncoder) *encoder.Registry {
	registry := encoder.NewRegistry()
	registry.Register("stub", func() encoder.Encoder { return stub })
	return registry
}

func newStubRecorder(t *testing.T, fs afero.Fs, stub *stubEncoder, path string) *Recorder {
	t.Helper()
	rec, err := NewRecorder(fs, stubRegistry(stub), Config{Path: path, Encoder: "stub"})
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	return rec
}

func TestRecorderConfigValidation(t *testing.T) {
	fs := afero.NewMemMapFs()
	encoders := encoder.NewDefaultRegistry()

	_, err := NewRecorder(fs, encoders, Config{Path: "/rec.wav", Encoder: "vorbis"})
	if !errors.Is(err, encoder.ErrUnknownEncoder) {
		t.Errorf("unknown encoder: got %v, want ErrUnknownEncoder", err)
	}

	_, err = NewRecorder(fs, encoders, Config{Encoder: "wav"})
	if !errors.Is(err, ErrPathRequired) {
		t.Errorf("missing path: got %v, want ErrPathRequired", err)
	}

	// Empty encoder id falls back to the default
	rec, err := NewRecorder(fs, encoders, Config{Path: "/rec.wav"})
	if err != nil {
		t.Fatalf("default encoder rejected: %v", err)
	}
	if rec == nil {
		t.Fatal("NewRecorder returned nil recorder")
	}
}

func TestRecorderWavRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec, err := NewRecorder(fs, encoder.NewDefaultRegistry(),
		Config{Path: "/out/take.wav", Encoder: "wav"})
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	if err := rec.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// One second of CD silence, fed in uneven slices
	second := int(audio.CD.ByteRate())
	silence := make([]byte, second)
	for off := 0; off < len(silence); {
		n := 1000
		if off+n > len(silence) {
			n = len(silence) - off
		}
		written, err := rec.Play(silence[off : off+n])
		if err != nil {
			t.Fatalf("Play failed at offset %d: %v", off, err)
		}
		if written != n {
			t.Fatalf("Play consumed %d of %d bytes", written, n)
		}
		off += n
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := afero.ReadFile(fs, "/out/take.wav")
	if err != nil {
		t.Fatalf("reading recording: %v", err)
	}
	if len(data) != 44+second {
		t.Fatalf("recording is %d bytes, want %d", len(data), 44+second)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("recording does not start with a RIFF/WAVE header")
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != audio.CD.SampleRate {
		t.Errorf("header sample rate = %d, want %d", got, audio.CD.SampleRate)
	}
	for i, b := range data[44:] {
		if b != 0 {
			t.Fatalf("payload byte %d = %#x, want silence", i, b)
		}
	}
}

func TestRecorderOpenRollbackOnEncoderFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	stub := &stubEncoder{failOpen: true}
	rec := newStubRecorder(t, fs, stub, "/rec.raw")

	if err := rec.Open(audio.CD); err == nil {
		t.Fatal("Open succeeded despite encoder failure")
	}

	if ok, _ := afero.Exists(fs, "/rec.raw"); ok {
		t.Error("failed Open left a partial artifact on disk")
	}
}

func TestRecorderOpenFailsOnUnwritableFilesystem(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	stub := &stubEncoder{}
	rec := newStubRecorder(t, fs, stub, "/rec.raw")

	if err := rec.Open(audio.CD); err == nil {
		t.Fatal("Open succeeded on a read-only filesystem")
	}
	if stub.opened {
		t.Error("encoder was opened even though the file could not be created")
	}
}

func TestRecorderHeaderWrittenAtOpen(t *testing.T) {
	fs := afero.NewMemMapFs()
	stub := &stubEncoder{}
	rec := newStubRecorder(t, fs, stub, "/rec.raw")

	if err := rec.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	data, err := afero.ReadFile(fs, "/rec.raw")
	if err != nil {
		t.Fatalf("reading recording: %v", err)
	}
	if string(data) != "HDR!" {
		t.Errorf("file after Open = %q, want the encoder header", data)
	}

	rec.Close()
}

func TestRecorderPlayLifecycleGuards(t *testing.T) {
	fs := afero.NewMemMapFs()
	stub := &stubEncoder{}
	rec := newStubRecorder(t, fs, stub, "/rec.raw")

	if _, err := rec.Play([]byte{1, 2}); !errors.Is(err, ErrSinkNotOpen) {
		t.Errorf("Play before Open: got %v, want ErrSinkNotOpen", err)
	}
}

func TestRecorderPlayFailureIsFatal(t *testing.T) {
	fs := afero.NewMemMapFs()
	stub := &stubEncoder{}
	rec := newStubRecorder(t, fs, stub, "/rec.raw")

	if err := rec.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	stub.failWrite = true
	if _, err := rec.Play([]byte{1, 2, 3, 4}); err == nil {
		t.Fatal("Play succeeded despite encoder write failure")
	}

	// The sink stays dead even if the encoder recovers
	stub.failWrite = false
	if _, err := rec.Play([]byte{1, 2, 3, 4}); !errors.Is(err, ErrSinkFailed) {
		t.Errorf("Play after failure: got %v, want ErrSinkFailed", err)
	}

	if err := rec.Close(); err != nil {
		t.Errorf("Close after failure returned %v", err)
	}
	if !stub.closed {
		t.Error("Close did not release the encoder")
	}
	if stub.endCalled {
		t.Error("Close flushed a trailer through a failed sink")
	}
}

func TestRecorderTagBestEffort(t *testing.T) {
	fs := afero.NewMemMapFs()
	stub := &stubEncoder{failTag: true}
	rec := newStubRecorder(t, fs, stub, "/rec.raw")

	if err := rec.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	rec.SendTag(encoder.Tag{Title: "Side A"})

	// A failed annotation must not poison the stream
	if _, err := rec.Play([]byte{9, 9}); err != nil {
		t.Errorf("Play after tag failure: %v", err)
	}
	if len(stub.tags) != 0 {
		t.Error("failed Tag still recorded metadata")
	}

	stub.failTag = false
	rec.SendTag(encoder.Tag{Title: "Side B"})
	if len(stub.tags) != 1 || stub.tags[0].Title != "Side B" {
		t.Errorf("tags after recovery = %+v, want one Side B", stub.tags)
	}

	rec.Close()
}

func TestRecorderCloseFlushesTrailerBestEffort(t *testing.T) {
	fs := afero.NewMemMapFs()
	stub := &stubEncoder{}
	rec := newStubRecorder(t, fs, stub, "/rec.raw")

	if err := rec.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := rec.Play([]byte("pcm.")); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := afero.ReadFile(fs, "/rec.raw")
	if err != nil {
		t.Fatalf("reading recording: %v", err)
	}
	if string(data) != "HDR!pcm.END!" {
		t.Errorf("recording = %q, want header, payload, then trailer", data)
	}
	if !stub.closed {
		t.Error("Close did not release the encoder")
	}
}

func TestRecorderCloseSuppressesTrailerFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	stub := &stubEncoder{failEnd: true}
	rec := newStubRecorder(t, fs, stub, "/rec.raw")

	if err := rec.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("Close surfaced a trailer failure: %v", err)
	}
	if !stub.closed {
		t.Error("encoder not released after trailer failure")
	}

	// The file survives with whatever made it to disk
	if ok, _ := afero.Exists(fs, "/rec.raw"); !ok {
		t.Error("recording removed on trailer failure")
	}
}

func TestRecorderCloseIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	stub := &stubEncoder{}
	rec := newStubRecorder(t, fs, stub, "/rec.raw")

	if err := rec.Open(audio.CD); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
