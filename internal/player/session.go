package player

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/tapedeck/tapedeck/internal/audio"
	"github.com/tapedeck/tapedeck/internal/buffer"
	"github.com/tapedeck/tapedeck/internal/decoder"
	"github.com/tapedeck/tapedeck/internal/encoder"
	"github.com/tapedeck/tapedeck/internal/output"
)

// Config describes one playback session
type Config struct {
	// Source is the path of the audio file to play
	Source string

	// Chunks is the ring capacity; 0 selects buffer.DefaultChunks
	Chunks int

	// Sink selects and configures the output destination
	Sink output.Config

	// Tag is metadata delivered to the sink before the first chunk;
	// an empty tag is skipped
	Tag encoder.Tag
}

// Session wires one source file through a decoder stream, the ring, and
// a sink, and owns the two goroutines that drive them. Construction
// acquires every resource or none; a constructed session must be Closed.
type Session struct {
	ID string

	src    afero.File
	stream decoder.Stream
	sink   output.Sink

	ring   *buffer.Ring
	ctl    *decoder.Control
	loop   *decoder.Loop
	player *Player

	tag encoder.Tag

	wg        sync.WaitGroup
	started   bool
	closeOnce sync.Once
	closeErr  error
}

// NewSession opens the source, negotiates a decoder, and opens the sink
// for the stream's format. Any failure releases everything acquired so
// far.
func NewSession(fs afero.Fs, decoders *decoder.Registry, sinks *output.Registry, cfg Config) (*Session, error) {
	src, err := fs.Open(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open source %q: %w", cfg.Source, err)
	}

	stream, err := decoders.OpenStream(cfg.Source, src)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to decode %q: %w", cfg.Source, err)
	}

	sink, err := sinks.New(cfg.Sink)
	if err != nil {
		stream.Close()
		src.Close()
		return nil, err
	}
	if err := sink.Open(stream.Format()); err != nil {
		stream.Close()
		src.Close()
		return nil, fmt.Errorf("failed to open sink %q: %w", cfg.Sink.Name, err)
	}

	chunks := cfg.Chunks
	if chunks <= 0 {
		chunks = buffer.DefaultChunks
	}

	ring := buffer.NewRing(chunks)
	ctl := decoder.NewControl()

	s := &Session{
		ID:     uuid.New().String(),
		src:    src,
		stream: stream,
		sink:   sink,
		ring:   ring,
		ctl:    ctl,
		loop:   decoder.NewLoop(ring, ctl),
		player: NewPlayer(ring, ctl, sink),
		tag:    cfg.Tag,
	}

	slog.Info("session created",
		"session", s.ID,
		"source", cfg.Source,
		"sink", cfg.Sink.Name,
		"format", stream.Format().String(),
		"total_time", stream.TotalTime(),
		"ring_chunks", ring.Cap())
	return s, nil
}

// Start launches the decoder loop and the player. Idempotent.
func (s *Session) Start() {
	if s.started {
		return
	}
	s.started = true

	s.player.QueueTag(s.tag)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.loop.Run(s.stream)
	}()
	go func() {
		defer s.wg.Done()
		s.player.Run()
	}()
	slog.Debug("session started", "session", s.ID)
}

// Seek asks the decoder to reposition to target. Returns false when the
// stream already stopped or failed.
func (s *Session) Seek(target time.Duration) bool {
	return s.ctl.RequestSeek(target)
}

// Stop asks both agents to wind down at the next chunk boundary
func (s *Session) Stop() {
	s.ctl.RequestStop()
}

// Wait blocks until both goroutines exit and returns the error that
// ended the stream: a codec failure first, then a sink failure, nil on
// a clean end or stop.
func (s *Session) Wait() error {
	s.wg.Wait()
	if err := s.ctl.Err(); err != nil {
		return err
	}
	return s.player.Err()
}

// Elapsed returns the playback position after the last delivered chunk
func (s *Session) Elapsed() time.Duration {
	return s.player.Elapsed()
}

// Bitrate returns the last known source bit-rate in kbps, 0 if unknown
func (s *Session) Bitrate() int {
	return s.player.Bitrate()
}

// TotalTime returns the total stream time, 0 if unknown
func (s *Session) TotalTime() time.Duration {
	return s.ctl.TotalTime()
}

// Format returns the negotiated PCM format
func (s *Session) Format() audio.Format {
	return s.stream.Format()
}

// Close stops the stream, waits for both goroutines, and releases the
// sink, the codec, and the source file. Safe to call more than once;
// later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.Stop()
		if s.started {
			s.wg.Wait()
		}

		sinkErr := s.sink.Close()
		if err := s.stream.Close(); err != nil {
			slog.Warn("failed to close decoder stream", "session", s.ID, "error", err)
		}
		srcErr := s.src.Close()

		if sinkErr != nil {
			s.closeErr = sinkErr
		} else if srcErr != nil {
			s.closeErr = fmt.Errorf("failed to close source: %w", srcErr)
		}
		slog.Info("session closed", "session", s.ID, "elapsed", s.Elapsed())
	})
	return s.closeErr
}
